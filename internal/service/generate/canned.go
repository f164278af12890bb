package generate

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fluxchat/backend/internal/model/catalog"
)

// Canned is the development backend: deterministic scripted responses with
// word-level streaming. It needs no credentials and is the seed catalog's
// default.
type Canned struct {
	id    string
	cfg   catalog.Config
	meter *Meter
	// delay between streamed fragments; zero in tests.
	delay time.Duration
}

// NewCanned builds the canned backend for one catalog entry.
func NewCanned(cfg catalog.Config, meter *Meter, delay time.Duration) *Canned {
	return &Canned{id: cfg.Name, cfg: cfg, meter: meter, delay: delay}
}

func (c *Canned) ID() string { return c.id }

func (c *Canned) GenerateFull(ctx context.Context, prompt string, opts Options) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	response := c.compose(prompt, opts)
	tokens := c.meter.EstimateTokens(prompt + response)
	return Result{
		Response:   response,
		TokensUsed: tokens,
		Cost:       c.meter.Cost(tokens, c.id),
		Backend:    c.id,
		Timestamp:  time.Now().UTC(),
	}, nil
}

func (c *Canned) GenerateStream(ctx context.Context, prompt string, opts Options) (*Stream, error) {
	response := c.compose(prompt, opts)
	stream, writer, streamCtx := NewStream(ctx)

	go func() {
		words := strings.Split(response, " ")
		for i, word := range words {
			fragment := word
			if i < len(words)-1 {
				fragment += " "
			}
			if !writer.Emit(fragment) {
				writer.Close()
				return
			}
			if c.delay > 0 {
				select {
				case <-time.After(c.delay):
				case <-streamCtx.Done():
					writer.Close()
					return
				}
			}
		}
		tokens := c.meter.EstimateTokens(prompt + response)
		writer.Finish(tokens, c.meter.Cost(tokens, c.id))
	}()

	return stream, nil
}

// compose picks a scripted reply by prompt category, the same heuristic the
// development backend has always used.
func (c *Canned) compose(prompt string, opts Options) string {
	lower := strings.ToLower(prompt)

	var response string
	switch {
	case containsAny(lower, "code", "function", "bug", "implement"):
		response = fmt.Sprintf(
			"Here is a sketch from %s:\n\n```go\nfunc process(items []string) []string {\n\tout := make([]string, 0, len(items))\n\tfor _, it := range items {\n\t\tif it != \"\" {\n\t\t\tout = append(out, strings.TrimSpace(it))\n\t\t}\n\t}\n\treturn out\n}\n```\n\nAdjust the predicate to your input shape.",
			c.cfg.Name,
		)
	case containsAny(lower, "analyze", "analysis", "compare", "review"):
		response = fmt.Sprintf(
			"Analysis from %s: the input describes %q. Key observations: the trend is consistent, no anomalies stand out, and the correlations are positive. Recommended next step: validate against a second sample.",
			c.cfg.Name, truncate(prompt, 60),
		)
	default:
		response = fmt.Sprintf(
			"This is %s. You asked: %q. A reasonable starting point is to break the problem into smaller steps and verify each one independently. Happy to go deeper on any part.",
			c.cfg.Name, truncate(prompt, 100),
		)
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 || maxTokens > c.cfg.MaxTokens {
		maxTokens = c.cfg.MaxTokens
	}
	// The token estimate is length-based, so capping length caps tokens.
	if limit := maxTokens * 4; limit > 0 && len(response) > limit {
		response = cutOnRune(response, limit)
	}
	return response
}

// cutOnRune shortens s to at most n bytes without splitting a rune.
func cutOnRune(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return cutOnRune(s, n) + "..."
}
