package services

// Well-known configuration keys. Every key here has a hardcoded default below,
// so reads degrade to a usable value even when the database is unreachable.
const (
	ConfigKeyLLMTasks = "llm_tasks"
	ConfigKeyPrompts  = "prompts"
	ConfigKeyGraph    = "graph"
	ConfigKeyRAG      = "rag"
	ConfigKeyLimits   = "limits"
)

// DefaultSystemConfig returns the hardcoded default configuration table.
// Callers receive a fresh copy on every call; numeric values are float64 so
// defaults compare equal to the same values after a JSON round trip through
// the database.
func DefaultSystemConfig() map[string]interface{} {
	return map[string]interface{}{
		ConfigKeyLLMTasks: map[string]interface{}{
			"chat": map[string]interface{}{
				"provider":    "openai",
				"model":       "gpt-4o-mini",
				"temperature": 0.7,
				"max_tokens":  float64(4096),
			},
			"embedding": map[string]interface{}{
				"provider":   "openai",
				"model":      "text-embedding-3-small",
				"dimensions": float64(1536),
			},
			"summary": map[string]interface{}{
				"provider":    "anthropic",
				"model":       "claude-3-5-haiku-latest",
				"temperature": 0.3,
				"max_tokens":  float64(1024),
			},
		},
		ConfigKeyPrompts: map[string]interface{}{
			"system":    "You are a helpful assistant for this workspace. Answer using the project's indexed knowledge and cite sources where possible.",
			"summarize": "Summarize the following content in a concise paragraph, preserving key facts and terminology.",
			"title":     "Generate a short, descriptive title for the following conversation.",
		},
		ConfigKeyGraph: map[string]interface{}{
			"enabled":  false,
			"backend":  "neo4j",
			"url":      "bolt://localhost:7687",
			"database": "neo4j",
		},
		ConfigKeyRAG: map[string]interface{}{
			"match_count":   float64(5),
			"min_score":     0.35,
			"hybrid_search": true,
			"rerank":        false,
		},
		ConfigKeyLimits: map[string]interface{}{
			"max_projects":            float64(20),
			"max_secrets_per_project": float64(50),
			"request_timeout_seconds": float64(30),
		},
	}
}
