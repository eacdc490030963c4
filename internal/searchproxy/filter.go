package searchproxy

import "fmt"

// ownershipFilterSQL returns the compiled ownership predicate appended,
// unconditionally and non-negotiably, to every chunk query the proxy
// runs on behalf of a caller: a chunk is visible to a fingerprint if it
// is shared regulatory content (owner_fingerprint IS NULL) or if it
// belongs to that fingerprint. placeholder is the $N position of the
// fingerprint argument already appended to the query's args slice — the
// clause itself is never assembled from request input.
func ownershipFilterSQL(placeholder int) string {
	return fmt.Sprintf("(owner_fingerprint IS NULL OR owner_fingerprint = $%d)", placeholder)
}

// writeOwnershipOK reports whether a chunk carrying ownerFingerprint may
// be written by a caller authenticated as requestFingerprint holding
// regulatoryWrite authorization. Personal writes must match the caller's
// own fingerprint; regulatory writes (owner_fingerprint empty) require
// the separate regulatory-write credential rather than any fingerprint
// match.
func writeOwnershipOK(ownerFingerprint, requestFingerprint string, regulatoryWrite bool) bool {
	if ownerFingerprint == "" {
		return regulatoryWrite
	}
	return ownerFingerprint == requestFingerprint
}
