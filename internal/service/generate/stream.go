package generate

import (
	"context"
	"sync"
)

// ChunkKind discriminates the streamed chunk union.
type ChunkKind int

const (
	// ChunkFragment carries one piece of response text.
	ChunkFragment ChunkKind = iota
	// ChunkError terminates a stream with a failure.
	ChunkError
	// ChunkDone terminates a stream with usage totals.
	ChunkDone
)

// Chunk is one unit of streamed output. Exactly one ChunkDone or ChunkError
// terminates every drained stream, and nothing follows the terminal chunk.
type Chunk struct {
	Kind   ChunkKind
	Text   string
	Err    error
	Tokens int
	Cost   float64
}

// Terminal reports whether the chunk ends its stream.
func (c Chunk) Terminal() bool {
	return c.Kind == ChunkError || c.Kind == ChunkDone
}

// Stream is a finite, non-restartable chunk sequence owned by a single
// consumer. Producers write through the paired Writer; consumers range over
// Chunks and stop at the terminal chunk, or call Cancel to stop the producer
// early.
type Stream struct {
	ch     chan Chunk
	cancel context.CancelFunc
}

// Writer is the producer side of a stream. It is not safe for concurrent
// use; a stream has one producing goroutine.
type Writer struct {
	ch       chan Chunk
	ctx      context.Context
	closed   sync.Once
	finished bool
}

// NewStream pairs a consumer stream with its producer writer. The returned
// context governs the producer: when the consumer cancels, the producer's
// ctx is done and further emits are dropped.
func NewStream(parent context.Context) (*Stream, *Writer, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan Chunk)
	return &Stream{ch: ch, cancel: cancel}, &Writer{ch: ch, ctx: ctx}, ctx
}

// Chunks exposes the consumer channel. It is closed after the terminal
// chunk, or after cancellation.
func (s *Stream) Chunks() <-chan Chunk {
	return s.ch
}

// Cancel stops the producer. The channel still gets closed by the producer
// side, so a draining consumer's range loop terminates.
func (s *Stream) Cancel() {
	s.cancel()
}

// Emit sends one text fragment. It reports false when the stream was
// cancelled or already terminated, at which point the producer should stop.
func (w *Writer) Emit(text string) bool {
	if w.finished {
		return false
	}
	select {
	case w.ch <- Chunk{Kind: ChunkFragment, Text: text}:
		return true
	case <-w.ctx.Done():
		return false
	}
}

// Finish terminates the stream with usage totals and closes it.
func (w *Writer) Finish(tokens int, cost float64) {
	w.terminate(Chunk{Kind: ChunkDone, Tokens: tokens, Cost: cost})
}

// Fail terminates the stream with an error and closes it.
func (w *Writer) Fail(err error) {
	w.terminate(Chunk{Kind: ChunkError, Err: err})
}

// Close releases the channel without a terminal chunk. Only used after
// cancellation, when no consumer is draining anymore.
func (w *Writer) Close() {
	w.closed.Do(func() { close(w.ch) })
}

func (w *Writer) terminate(chunk Chunk) {
	if w.finished {
		return
	}
	w.finished = true
	select {
	case w.ch <- chunk:
	case <-w.ctx.Done():
	}
	w.closed.Do(func() { close(w.ch) })
}
