package retrieval

import (
	"github.com/regassist/regassist/internal/orchestrator"
)

// Dependencies collects every collaborator the retrieval catalog needs.
// A deployment wires these once at startup and passes the result to
// Register.
type Dependencies struct {
	Cache    CacheStore
	Indexer  Indexer
	Proxy    SearchProxyClient
	CFR      CFRClient
	DRS      DRSClient
	APS      APSClient
	Embedder Embedder
	Memo     *MemoStore
}

// Register builds the fixed tool catalog and adds it to registry under
// each tool's declared name. Deployments then assign subsets of these
// names to individual agents via configuration
// (agents.<name>.tools).
func Register(registry *orchestrator.ToolRegistry, deps Dependencies) {
	if deps.Memo == nil {
		deps.Memo = NewMemoStore()
	}

	fetchPersonal := NewFetchPersonalDocumentTool(deps.Proxy, deps.Memo)

	registry.Register(NewSearchIndexedContentTool(deps.Proxy))
	registry.Register(NewFetchCFRSectionTool(deps.Cache, deps.Indexer, deps.CFR))
	registry.Register(NewFetchDRSDocumentTool(deps.Cache, deps.Indexer, deps.DRS))
	registry.Register(NewSearchDRSTool(deps.DRS))
	registry.Register(NewSearchAPSTool(deps.APS))
	registry.Register(NewFetchAPSDocumentTool(deps.Cache, deps.Indexer, deps.APS))
	registry.Register(NewListMyDocumentsTool(deps.Proxy))
	registry.Register(fetchPersonal)
	registry.Register(NewSearchPersonalDocumentTool(fetchPersonal, deps.Memo, deps.Embedder))
	registry.Register(NewDeleteMyDocumentTool(deps.Proxy))
}
