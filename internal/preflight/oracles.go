package preflight

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/ragpipe/internal/config"
	"github.com/Aman-CERP/ragpipe/internal/embed"
	"github.com/Aman-CERP/ragpipe/internal/search"
)

// CheckEmbedder builds the document embedder the engine would use and
// embeds a probe string. Falling back to the static embedder under
// "auto" is reported as a warning.
func CheckEmbedder(ctx context.Context, cfg config.EmbeddingsConfig) CheckResult {
	result := CheckResult{Name: "embedder", Required: true}

	requested := embed.ProviderType(cfg.Provider)
	e, used, err := embed.NewEmbedder(ctx, requested, cfg.Model, cfg)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(ctx, "ragpipe preflight")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s: %v", used, err)
		return result
	}

	result.Message = fmt.Sprintf("%s %s (%d dims)", used, e.ModelName(), len(vec))
	if used == embed.ProviderStatic && requested != embed.ProviderStatic {
		result.Status = StatusWarn
		result.Details = fmt.Sprintf("Ollama not reachable at %s, using hash embeddings", cfg.OllamaHost)
		return result
	}
	result.Status = StatusPass
	return result
}

// CheckReranker builds the relevance oracle. Falling back to the lexical
// reranker under "auto" is reported as a warning.
func CheckReranker(ctx context.Context, cfg config.RerankerConfig) CheckResult {
	result := CheckResult{Name: "reranker", Required: true}

	r, err := search.NewRerankerFromConfig(ctx, cfg)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	defer func() { _ = r.Close() }()

	result.Message = r.Name()
	if r.Name() == "lexical" && cfg.Provider != "lexical" {
		result.Status = StatusWarn
		result.Details = fmt.Sprintf("no reranker at %s, using lexical overlap", cfg.Endpoint)
		return result
	}
	result.Status = StatusPass
	return result
}
