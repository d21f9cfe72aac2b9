// Package relay forwards a streamed completion to the caller as event frames
// and accumulates the full text for storage.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Source yields text chunks and returns io.EOF once finished.
type Source interface {
	Recv() (string, error)
}

// Sink pushes frames to the caller.
type Sink interface {
	// Open starts the event stream.
	Open() error
	// Chunk sends a single text chunk.
	Chunk(text string) error
	// Done sends the terminal frame and ends the stream.
	Done() error
	// Fail reports an error after the stream has been opened and ends it.
	Fail(err error) error
}

// Frame is the payload of an event.
type Frame struct {
	Chunk string `json:"chunk,omitempty"`
	Done  bool   `json:"done,omitempty"`
	Error string `json:"error,omitempty"`
}

type State int

const (
	Idle State = iota
	Streaming
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result is the outcome of a relay.
type Result struct {
	// Text is the concatenation of every chunk received, even when the relay failed.
	Text   string
	State  State
	Chunks int
}

// Relay copies chunks from src to sink one at a time, in order. Each chunk is
// written before the next one is requested. It returns the accumulated text
// together with the first error found reading the source or writing the sink.
func Relay(ctx context.Context, src Source, sink Sink) (Result, error) {
	var sb strings.Builder
	res := Result{State: Idle}
	finish := func(state State, err error) (Result, error) {
		res.Text = sb.String()
		res.State = state
		return res, err
	}

	if err := sink.Open(); err != nil {
		return finish(Failed, fmt.Errorf("relay: couldn't open stream: %w", err))
	}
	for {
		if err := ctx.Err(); err != nil {
			_ = sink.Fail(err)
			return finish(Failed, err)
		}
		chunk, err := src.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = sink.Fail(err)
			return finish(Failed, fmt.Errorf("relay: couldn't receive chunk: %w", err))
		}
		res.State = Streaming
		res.Chunks++
		sb.WriteString(chunk)
		if err := sink.Chunk(chunk); err != nil {
			return finish(Failed, fmt.Errorf("relay: couldn't send chunk: %w", err))
		}
	}
	if err := sink.Done(); err != nil {
		return finish(Failed, fmt.Errorf("relay: couldn't send done: %w", err))
	}
	return finish(Done, nil)
}
