package indexer

import "strings"

// maxChunksPerDocument caps the number of chunks a single background
// indexing job will produce.
const maxChunksPerDocument = 100

// separators is the split hierarchy tried in order, largest semantic
// unit first, falling back to finer-grained boundaries.
var separators = []string{"\n\n", "\n", ". ", "; ", " "}

// charsPerToken approximates token count from character count without
// pulling in a tokenizer; good enough for a ~1000-token chunk target.
const charsPerToken = 4

// chunkTarget is the approximate per-chunk size, in characters, that
// keeps a chunk under the indexing pipeline's ~1000-token ceiling.
const chunkTarget = 1000 * charsPerToken

// chunkOverlap is the character overlap carried from one chunk into the
// next, so a fact split across a chunk boundary is not lost.
const chunkOverlap = 150 * charsPerToken

// chunkText splits body into at most maxChunksPerDocument segments of
// roughly chunkTarget characters, preferring to break on paragraph,
// then sentence, then word boundaries, with a small overlap between
// consecutive chunks. Grounded on the recursive-separator-hierarchy
// chunking strategy used elsewhere in this codebase, simplified to this
// package's fixed token budget.
func chunkText(body string) []string {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}

	raw := splitRecursive(body, separators)
	merged := mergeWithOverlap(raw)

	if len(merged) > maxChunksPerDocument {
		merged = coalesce(merged, maxChunksPerDocument)
	}
	return merged
}

func splitRecursive(text string, seps []string) []string {
	if len(text) <= chunkTarget || len(seps) == 0 {
		return []string{text}
	}

	sep := seps[0]
	if sep == "" || !strings.Contains(text, sep) {
		return splitRecursive(text, seps[1:])
	}

	parts := strings.Split(text, sep)
	var out []string
	var current strings.Builder
	for i, part := range parts {
		piece := part
		if i < len(parts)-1 {
			piece += sep
		}
		if current.Len() > 0 && current.Len()+len(piece) > chunkTarget {
			out = append(out, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if len(piece) > chunkTarget {
			if current.Len() > 0 {
				out = append(out, strings.TrimSpace(current.String()))
				current.Reset()
			}
			out = append(out, splitRecursive(piece, seps[1:])...)
			continue
		}
		current.WriteString(piece)
	}
	if current.Len() > 0 {
		out = append(out, strings.TrimSpace(current.String()))
	}

	final := out[:0]
	for _, s := range out {
		if s != "" {
			final = append(final, s)
		}
	}
	return final
}

func mergeWithOverlap(chunks []string) []string {
	if len(chunks) <= 1 {
		return chunks
	}
	out := make([]string, len(chunks))
	for i, c := range chunks {
		if i == 0 {
			out[i] = c
			continue
		}
		prev := chunks[i-1]
		overlap := chunkOverlap
		if overlap > len(prev) {
			overlap = len(prev)
		}
		out[i] = prev[len(prev)-overlap:] + c
	}
	return out
}

// coalesce collapses chunks into at most max groups when the document
// produced more pieces than the cap allows, concatenating consecutive
// chunks rather than dropping any content.
func coalesce(chunks []string, max int) []string {
	if max <= 0 {
		return nil
	}
	groupSize := (len(chunks) + max - 1) / max
	out := make([]string, 0, max)
	for i := 0; i < len(chunks); i += groupSize {
		end := i + groupSize
		if end > len(chunks) {
			end = len(chunks)
		}
		out = append(out, strings.Join(chunks[i:end], ""))
	}
	return out
}
