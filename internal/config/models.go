package config

// ModelsConfig maps model ids used by the gate to concrete provider models.
type ModelsConfig struct {
	Models map[string]ModelMapping `yaml:"models"`
}

type ModelMapping struct {
	DisplayName string          `yaml:"display_name"`
	Primary     ProviderRoute   `yaml:"primary"`
	Fallback    []ProviderRoute `yaml:"fallback"`
}

type ProviderRoute struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// PromptsConfig holds the classifier prompts referenced by prompt id.
type PromptsConfig struct {
	Prompts map[string]PromptTemplate `yaml:"prompts"`
}

type PromptTemplate struct {
	System      string   `yaml:"system"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature,omitempty"`
}
