package source

import "strings"

// DefaultAIKeywords is the base set used for filtering AI-related content.
var DefaultAIKeywords = []string{
	"artificial intelligence", "machine learning", "deep learning",
	"neural network", "LLM", "large language model", "GPT",
	"transformer", "diffusion", "generative AI", "genai",
	"AGI", "reinforcement learning", "fine-tuning", "fine tuning",
	"RAG", "retrieval augmented", "vector database", "embedding",
	"inference", "AI agent", "agentic", "copilot", "chatbot",
	"foundation model", "llama", "mistral", "gemini",
	"openai", "anthropic", "claude", "deepseek", "qwen",
	"hugging face", "huggingface", "multimodal",
	"prompt engineering", "AI safety", "alignment",
	"AI coding", "code generation", "AI assistant",
}

// Filter matches AI-related text using case-insensitive keyword search.
type Filter struct {
	keywords []string
	exclude  []string
}

// NewFilter creates a filter from the default keyword set plus extras.
// Pass-through filtering is disabled when disable is true (curated feeds
// do not need relevance filtering).
func NewFilter(extra, exclude []string, disable bool) *Filter {
	if disable {
		return nil
	}
	keywords := make([]string, 0, len(DefaultAIKeywords)+len(extra))
	for _, k := range DefaultAIKeywords {
		keywords = append(keywords, strings.ToLower(k))
	}
	for _, k := range extra {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	var excluded []string
	for _, k := range exclude {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			excluded = append(excluded, k)
		}
	}
	return &Filter{keywords: keywords, exclude: excluded}
}

// Matches reports whether text looks AI-related and is not excluded.
func (f *Filter) Matches(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range f.exclude {
		if strings.Contains(lower, k) {
			return false
		}
	}
	for _, k := range f.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
