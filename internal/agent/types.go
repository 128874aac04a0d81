// Package agent provides agent definitions and per-agent retrieval tuning.
package agent

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Agent is a company-scoped assistant definition.
type Agent struct {
	ID            uuid.UUID
	CompanyID     uuid.UUID
	Role          string
	Name          string
	Description   string
	Configuration Config
}

// Config is the typed view of the agent configuration blob. Known keys are
// parsed into fields; everything else round-trips through Extra so provider
// overrides survive read-modify-write cycles.
type Config struct {
	Model       string
	Temperature *float32
	MaxTokens   *int

	// Extra holds unrecognized configuration keys verbatim.
	Extra map[string]json.RawMessage
}

// configKnown mirrors the typed fields of Config for JSON (de)serialization.
type configKnown struct {
	Model       string   `json:"model,omitempty"`
	Temperature *float32 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// UnmarshalJSON parses known keys into fields and keeps the rest in Extra.
func (c *Config) UnmarshalJSON(data []byte) error {
	var known configKnown
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	delete(raw, "model")
	delete(raw, "temperature")
	delete(raw, "max_tokens")

	c.Model = known.Model
	c.Temperature = known.Temperature
	c.MaxTokens = known.MaxTokens
	if len(raw) > 0 {
		c.Extra = raw
	} else {
		c.Extra = nil
	}
	return nil
}

// MarshalJSON merges typed fields and Extra back into one object. Typed
// fields win on key collision.
func (c Config) MarshalJSON() ([]byte, error) {
	merged := make(map[string]json.RawMessage, len(c.Extra)+3)
	for k, v := range c.Extra {
		merged[k] = v
	}

	knownJSON, err := json.Marshal(configKnown{
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	var known map[string]json.RawMessage
	if err := json.Unmarshal(knownJSON, &known); err != nil {
		return nil, err
	}
	for k, v := range known {
		merged[k] = v
	}

	return json.Marshal(merged)
}

// ContextConfig holds the retrieval tunables for one agent.
type ContextConfig struct {
	FoundationEnabled  bool
	SpecializedEnabled bool
	SharedEnabled      bool
	ProceduralEnabled  bool

	MaxChunksPerSource  int
	TotalMaxChunks      int
	SimilarityThreshold float32

	ExpansionEnabled   bool
	MaxExpandedQueries int

	RerankEnabled bool
	RerankModel   string
	RerankTopN    int

	IncludeCitations bool
	CitationFormat   string

	MaxContextTokens int
}

// DefaultContextConfig returns the tuning applied when an agent has no
// stored configuration.
func DefaultContextConfig() ContextConfig {
	return ContextConfig{
		FoundationEnabled:   true,
		SpecializedEnabled:  true,
		SharedEnabled:       true,
		ProceduralEnabled:   true,
		MaxChunksPerSource:  3,
		TotalMaxChunks:      10,
		SimilarityThreshold: 0.7,
		ExpansionEnabled:    true,
		MaxExpandedQueries:  5,
		RerankEnabled:       true,
		RerankModel:         "rerank-v3.5",
		RerankTopN:          8,
		IncludeCitations:    true,
		CitationFormat:      "inline",
		MaxContextTokens:    4000,
	}
}
