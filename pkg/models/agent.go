package models

// Agent is a static, process-wide tenant configuration. It is immutable
// once the registry is built at process init (see internal/config).
type Agent struct {
	Name string `yaml:"name" json:"name"`

	// SystemPrompt is prepended to every turn composed for this agent.
	SystemPrompt string `yaml:"system_prompt" json:"system_prompt"`

	// Tools lists the tool names exposed to the model for this agent.
	// Must be a subset of the tool names registered in the orchestrator's
	// tool registry.
	Tools []string `yaml:"tools" json:"tools"`

	// SearchIndex is the vector-index namespace this agent's documents are
	// indexed into and searched against. Passed to tools via ToolContext at
	// execution time; never sourced from the model.
	SearchIndex string `yaml:"search_index" json:"search_index"`

	// CitationPatterns are regexes used to extract citation strings from
	// fetched regulatory text (e.g. "14 CFR §\\s*[\\d.]+").
	CitationPatterns []string `yaml:"citation_patterns" json:"citation_patterns"`
}

// Registry is an immutable, process-wide lookup of agents by name. It is
// built once at startup from configuration and never mutated afterward.
type Registry struct {
	agents map[string]*Agent
}

// NewRegistry builds a Registry from a list of agents. Duplicate names are
// rejected with a DuplicateAgentError, matching the "immutable after
// process init" invariant by failing loudly at build time rather than
// silently overwriting.
func NewRegistry(agents []*Agent) (*Registry, error) {
	r := &Registry{agents: make(map[string]*Agent, len(agents))}
	for _, a := range agents {
		if a == nil || a.Name == "" {
			continue
		}
		if _, exists := r.agents[a.Name]; exists {
			return nil, &DuplicateAgentError{Name: a.Name}
		}
		r.agents[a.Name] = a
	}
	return r, nil
}

// Get returns the named agent and whether it was found.
func (r *Registry) Get(name string) (*Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// Names returns all registered agent names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	return names
}

// DuplicateAgentError is returned when two agents share a name.
type DuplicateAgentError struct {
	Name string
}

func (e *DuplicateAgentError) Error() string {
	return "duplicate agent name: " + e.Name
}
