package catalog

import (
	"sort"

	"github.com/samber/lo"
)

// Provider selects which generation strategy backs a catalog entry. The set
// is closed; resolving anything else fails at construction time.
type Provider string

const (
	ProviderCanned Provider = "canned"
	ProviderArk    Provider = "ark"
	ProviderOpenAI Provider = "openai"
)

// Config describes one generation backend.
type Config struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Provider      Provider `json:"provider"`
	BaseModel     string   `json:"baseModel"`
	MaxTokens     int      `json:"maxTokens"`
	Temperature   float64  `json:"temperature"`
	TopP          float64  `json:"topP"`
	CostPerToken  float64  `json:"costPerToken"`
	ContextWindow int      `json:"contextWindow"`
	Capabilities  []string `json:"capabilities"`
	MinTier       Tier     `json:"minTier"`
}

// Catalog maps backend identifiers to their configuration. It is immutable
// after construction and safe for concurrent reads.
type Catalog struct {
	entries   map[string]Config
	defaultID string
}

// New builds a catalog from the given entries. The default id must resolve.
func New(entries map[string]Config, defaultID string) *Catalog {
	return &Catalog{entries: entries, defaultID: defaultID}
}

// Resolve looks up a backend configuration by id.
func (c *Catalog) Resolve(id string) (Config, bool) {
	cfg, ok := c.entries[id]
	return cfg, ok
}

// DefaultID returns the backend used when a request names none.
func (c *Catalog) DefaultID() string {
	return c.defaultID
}

// IDs returns every backend identifier in stable order.
func (c *Catalog) IDs() []string {
	ids := lo.Keys(c.entries)
	sort.Strings(ids)
	return ids
}

// Len reports the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Seed returns the default backend catalog.
func Seed() map[string]Config {
	return map[string]Config{
		"flux-large": {
			Name:          "flux-large",
			Description:   "Most capable model for complex tasks",
			Provider:      ProviderOpenAI,
			BaseModel:     "gpt-4-turbo-preview",
			MaxTokens:     8000,
			Temperature:   0.7,
			TopP:          0.9,
			CostPerToken:  0.00003,
			ContextWindow: 128000,
			Capabilities:  []string{"code", "analysis", "creative", "math", "reasoning"},
			MinTier:       TierPro,
		},
		"flux-analyst": {
			Name:          "flux-analyst",
			Description:   "Tuned for analysis and long-form writing",
			Provider:      ProviderArk,
			BaseModel:     "doubao-pro-32k",
			MaxTokens:     6000,
			Temperature:   0.8,
			TopP:          0.95,
			CostPerToken:  0.00002,
			ContextWindow: 200000,
			Capabilities:  []string{"analysis", "writing", "creative", "research"},
			MinTier:       TierPro,
		},
		"flux-code": {
			Name:          "flux-code",
			Description:   "Specialized for programming tasks",
			Provider:      ProviderOpenAI,
			BaseModel:     "gpt-4-turbo-preview",
			MaxTokens:     8000,
			Temperature:   0.3,
			TopP:          0.7,
			CostPerToken:  0.00002,
			ContextWindow: 128000,
			Capabilities:  []string{"code", "debugging", "refactoring", "testing"},
			MinTier:       TierPro,
		},
		"flux-vision": {
			Name:          "flux-vision",
			Description:   "Image and screen understanding",
			Provider:      ProviderOpenAI,
			BaseModel:     "gpt-4-vision-preview",
			MaxTokens:     4000,
			Temperature:   0.5,
			TopP:          0.8,
			CostPerToken:  0.00004,
			ContextWindow: 128000,
			Capabilities:  []string{"vision", "ocr", "ui-analysis"},
			MinTier:       TierEnterprise,
		},
		"flux-fast": {
			Name:          "flux-fast",
			Description:   "Fast model for simple tasks",
			Provider:      ProviderCanned,
			BaseModel:     "canned-v1",
			MaxTokens:     2000,
			Temperature:   0.6,
			TopP:          0.85,
			CostPerToken:  0.000001,
			ContextWindow: 16000,
			Capabilities:  []string{"chat", "simple-tasks", "quick-answers"},
			MinTier:       TierFree,
		},
	}
}

// DefaultBackendID is the seed catalog's default.
const DefaultBackendID = "flux-fast"
