package llm

import (
	"context"
	"log/slog"
	"time"
)

type loggingProvider struct {
	inner Provider
}

// WithLogging logs every request's latency, token usage and outcome.
func WithLogging(p Provider) Provider {
	return &loggingProvider{inner: p}
}

func (l *loggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	schema := ""
	if req.Schema != nil {
		schema = req.Schema.Name
	}
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		slog.Warn("LLM request failed", "model", l.inner.ModelID(), "schema", schema, "elapsed", elapsed, "error", err)
		return nil, err
	}
	slog.Debug("LLM request",
		"model", resp.Model,
		"schema", schema,
		"elapsed", elapsed,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"stop", resp.StopReason,
	)
	return resp, nil
}

func (l *loggingProvider) ModelID() string {
	return l.inner.ModelID()
}
