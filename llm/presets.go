package llm

import "context"

// preset describes an OpenAI-compatible service: where it lives and
// whether it needs an API key.
type preset struct {
	baseURL string
	prefix  string
	model   string
	hosted  bool
}

// presets lists the OpenAI-compatible backends reachable by name.
//
//	ollama      local, http://localhost:11434
//	lmstudio    local, http://localhost:1234
//	openrouter  hosted
//	groq        hosted, defaults to llama-3.3-70b-versatile
//	xai         hosted (Grok)
//	gemini      hosted, OpenAI-compatible endpoint without the /v1 prefix
//	zhipu       hosted, GLM models, /api/paas/v4 prefix
var presets = map[string]preset{
	"ollama":     {baseURL: "http://localhost:11434", prefix: "/v1"},
	"lmstudio":   {baseURL: "http://localhost:1234", prefix: "/v1"},
	"openrouter": {baseURL: "https://openrouter.ai/api", prefix: "/v1", hosted: true},
	"groq":       {baseURL: "https://api.groq.com/openai", prefix: "/v1", model: "llama-3.3-70b-versatile", hosted: true},
	"xai":        {baseURL: "https://api.x.ai", prefix: "/v1", hosted: true},
	"gemini":     {baseURL: "https://generativelanguage.googleapis.com/v1beta/openai", prefix: "", model: "gemini-2.0-flash", hosted: true},
	"zhipu":      {baseURL: "https://open.bigmodel.cn", prefix: "/api/paas/v4", model: "glm-4", hosted: true},
}

func (p preset) build(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = p.baseURL
	}
	if cfg.Model == "" {
		cfg.Model = p.model
	}
	return &presetProvider{ep: newEndpoint(cfg, p.prefix), name: cfg.Provider}
}

// presetProvider is a named OpenAI-compatible backend.
type presetProvider struct {
	ep   *endpoint
	name string
}

func (p *presetProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.ep.chat(ctx, req)
}
