package window

import (
	"fmt"
	"sync"

	"github.com/igolaizola/igotutor/pkg/memory"
	"github.com/tiktoken-go/tokenizer"
)

// Reserve is the number of tokens left free for the response.
const Reserve = 1000

// Window drops the oldest history messages so that a prompt fits in a token budget.
type Window struct {
	maxTokens int
}

// New returns a window limited to maxTokens. Zero disables the limit.
func New(maxTokens int) *Window {
	return &Window{maxTokens: maxTokens}
}

// Fit assembles system + history + user and removes history messages from the
// front until the token count plus Reserve fits in the budget. The system and
// the user messages are always kept.
func (w *Window) Fit(system memory.Message, history []memory.Message, user memory.Message) ([]memory.Message, error) {
	rest := history
	if w != nil && w.maxTokens > 0 {
		for len(rest) > 0 {
			tokens, err := Tokens(assemble(system, rest, user))
			if err != nil {
				return nil, err
			}
			if tokens+Reserve <= w.maxTokens {
				break
			}
			rest = rest[1:]
		}
	}
	return assemble(system, rest, user), nil
}

func assemble(system memory.Message, history []memory.Message, user memory.Message) []memory.Message {
	msgs := make([]memory.Message, 0, len(history)+2)
	msgs = append(msgs, system)
	msgs = append(msgs, history...)
	return append(msgs, user)
}

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
	codecErr  error
)

// Tokens estimates the number of prompt tokens used by the messages.
func Tokens(messages []memory.Message) (int, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	if codecErr != nil {
		return 0, fmt.Errorf("window: couldn't get tokenizer: %w", codecErr)
	}

	text := ""
	for _, message := range messages {
		text += message.Content + "\n"
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("window: couldn't encode text: %w", err)
	}

	// Add 8 tokens extra per message
	return len(ids) + len(messages)*8, nil
}
