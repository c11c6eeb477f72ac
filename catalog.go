package botledger

// ModelKind tells conversational models from one-shot image models.
type ModelKind string

const (
	KindText  ModelKind = "text"
	KindImage ModelKind = "image"
)

// DefaultSystemPrompt is used for models without their own prompt.
const DefaultSystemPrompt = "You are a helpful AI assistant."

// ModelSpec describes a generation backend known to the bot.
type ModelSpec struct {
	Key          string    `yaml:"key"`
	Name         string    `yaml:"name"`
	Provider     string    `yaml:"provider"`
	Kind         ModelKind `yaml:"kind"`
	Description  string    `yaml:"description"`
	SystemPrompt string    `yaml:"system_prompt"`
}

// Conversational reports whether requests to this model carry history.
func (m ModelSpec) Conversational() bool {
	return m.Kind == KindText
}

// Catalog is an ordered list of models.
type Catalog []ModelSpec

// Lookup finds a model by key.
func (c Catalog) Lookup(key string) (ModelSpec, bool) {
	for _, m := range c {
		if m.Key == key {
			return m, true
		}
	}
	return ModelSpec{}, false
}

// SystemPrompt returns the model's prompt or DefaultSystemPrompt.
func (c Catalog) SystemPrompt(key string) string {
	if m, ok := c.Lookup(key); ok && m.SystemPrompt != "" {
		return m.SystemPrompt
	}
	return DefaultSystemPrompt
}

// Conversational reports whether key names a text model in the catalog.
func (c Catalog) Conversational(key string) bool {
	m, ok := c.Lookup(key)
	return ok && m.Conversational()
}

const respondInUserLanguage = " Always respond in the language the user uses."

// DefaultCatalog returns the built-in model list.
func DefaultCatalog() Catalog {
	text := func(key, name, provider, persona string) ModelSpec {
		return ModelSpec{
			Key:          key,
			Name:         name,
			Provider:     provider,
			Kind:         KindText,
			Description:  "Text generation",
			SystemPrompt: persona + respondInUserLanguage,
		}
	}
	image := func(key, name, provider, desc string) ModelSpec {
		return ModelSpec{Key: key, Name: name, Provider: provider, Kind: KindImage, Description: desc}
	}

	return Catalog{
		text("text", "Chat GPT 5", "OpenAI",
			"You are ChatGPT-5, an advanced AI assistant created by OpenAI. You provide accurate, thoughtful, and comprehensive responses."),
		text("gemini", "Gemini 2.0", "Google",
			"You are Gemini 2.0, an advanced AI assistant created by Google, known for reasoning skills and understanding complex contexts."),
		text("deepseek", "DeepSeek R1", "DeepSeek",
			"You are DeepSeek R1, an advanced reasoning AI assistant created by DeepSeek. You think step-by-step and provide thorough analysis."),
		text("claude", "Claude 3.5", "Anthropic",
			"You are Claude 3.5, an AI assistant created by Anthropic, known for thoughtful analysis and nuanced understanding."),
		text("claude_sonnet", "Claude Sonnet 4.5", "Anthropic",
			"You are Claude Sonnet 4.5, an AI assistant created by Anthropic, optimized for speed while keeping high quality reasoning."),
		text("claude_haiku", "Claude Haiku 4.5", "Anthropic",
			"You are Claude Haiku 4.5, a lightweight yet capable AI assistant created by Anthropic, designed for quick, efficient responses."),
		text("claude_opus", "Claude Opus 4.6", "Anthropic",
			"You are Claude Opus 4.6, an AI assistant created by Anthropic that excels at complex reasoning and deep analysis."),
		text("qwen", "Qwen 2.5", "Alibaba",
			"You are Qwen 2.5, a multilingual AI assistant created by Alibaba that provides practical solutions."),
		text("llama", "Llama 3.1", "Meta",
			"You are Llama 3.1, an open-source AI assistant created by Meta that gives clear, direct responses."),
		image("schnell", "NanoBanana 1", "Gemini", "Fast generation (4 steps)"),
		image("dev", "NanoBanana 2", "Gemini", "Quality generation (50 steps)"),
		image("sd3", "Stable Diffusion 3", "Stability AI", "Quality generation by Stability AI"),
		image("kontext", "NanoBanana Edit", "Gemini", "Contextual generation (requires a photo)"),
	}
}
