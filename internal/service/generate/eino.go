package generate

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/fluxchat/backend/internal/model/catalog"
)

// Eino adapts a cloudwego/eino chat model (ark or openai provider) to the
// Backend interface.
type Eino struct {
	id        string
	cfg       catalog.Config
	chatModel model.ChatModel
	meter     *Meter
}

// NewEino wraps an eino chat model for one catalog entry.
func NewEino(cfg catalog.Config, chatModel model.ChatModel, meter *Meter) *Eino {
	return &Eino{id: cfg.Name, cfg: cfg, chatModel: chatModel, meter: meter}
}

func (e *Eino) ID() string { return e.id }

func (e *Eino) GenerateFull(ctx context.Context, prompt string, opts Options) (Result, error) {
	response, err := e.chatModel.Generate(ctx, e.messages(prompt), e.modelOptions(opts)...)
	if err != nil {
		return Result{}, err
	}

	tokens := e.usageTokens(response, prompt, response.Content)
	return Result{
		Response:   response.Content,
		TokensUsed: tokens,
		Cost:       e.meter.Cost(tokens, e.id),
		Backend:    e.id,
		Timestamp:  time.Now().UTC(),
	}, nil
}

func (e *Eino) GenerateStream(ctx context.Context, prompt string, opts Options) (*Stream, error) {
	reader, err := e.chatModel.Stream(ctx, e.messages(prompt), e.modelOptions(opts)...)
	if err != nil {
		return nil, err
	}

	stream, writer, streamCtx := NewStream(ctx)

	go func() {
		defer reader.Close()

		chunks := make([]*schema.Message, 0, 8)
		for {
			msg, recvErr := reader.Recv()
			if errors.Is(recvErr, io.EOF) {
				break
			}
			if recvErr != nil {
				writer.Fail(recvErr)
				return
			}
			if msg == nil {
				continue
			}

			chunks = append(chunks, msg)
			if msg.Content != "" && !writer.Emit(msg.Content) {
				writer.Close()
				return
			}
			if streamCtx.Err() != nil {
				writer.Close()
				return
			}
		}

		full, concatErr := schema.ConcatMessages(chunks)
		if concatErr != nil {
			writer.Fail(concatErr)
			return
		}

		tokens := e.usageTokens(full, prompt, full.Content)
		writer.Finish(tokens, e.meter.Cost(tokens, e.id))
	}()

	return stream, nil
}

func (e *Eino) messages(prompt string) []*schema.Message {
	return []*schema.Message{schema.UserMessage(prompt)}
}

func (e *Eino) modelOptions(opts Options) []model.Option {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 || maxTokens > e.cfg.MaxTokens {
		maxTokens = e.cfg.MaxTokens
	}
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = e.cfg.Temperature
	}
	topP := opts.TopP
	if topP == 0 {
		topP = e.cfg.TopP
	}

	return []model.Option{
		model.WithMaxTokens(maxTokens),
		model.WithTemperature(float32(temperature)),
		model.WithTopP(float32(topP)),
	}
}

// usageTokens prefers the provider-reported total, falling back to the
// meter's estimate over prompt plus response.
func (e *Eino) usageTokens(msg *schema.Message, prompt, response string) int {
	if msg != nil && msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		if total := msg.ResponseMeta.Usage.TotalTokens; total > 0 {
			return total
		}
	}
	return e.meter.EstimateTokens(prompt + response)
}
