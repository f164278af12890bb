// Package generate holds the pluggable text-generation backends and the
// streaming pipeline that carries their output to consumers.
package generate

import (
	"context"
	"time"
)

// Options tune a single generation call. Backends may ignore fields they do
// not support.
type Options struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Result is a complete buffered response.
type Result struct {
	Response   string    `json:"response"`
	TokensUsed int       `json:"tokensUsed"`
	Cost       float64   `json:"cost"`
	Backend    string    `json:"backend"`
	Timestamp  time.Time `json:"timestamp"`
}

// Backend produces text for a prompt, either whole or as a stream of
// fragments. Implementations form a closed set selected via the catalog.
type Backend interface {
	// ID returns the catalog identifier this backend serves.
	ID() string
	// GenerateFull produces the entire response in one call.
	GenerateFull(ctx context.Context, prompt string, opts Options) (Result, error)
	// GenerateStream produces a lazy, finite, non-restartable chunk
	// sequence. The caller must drain it to a terminal chunk or cancel ctx.
	GenerateStream(ctx context.Context, prompt string, opts Options) (*Stream, error)
}
