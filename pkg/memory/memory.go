package memory

import (
	"context"
	"errors"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// Store holds the ordered message history of each session.
// Unknown sessions read as empty and are created by the first append.
type Store interface {
	// Append adds the messages to the end of the session and returns its new length.
	Append(ctx context.Context, sessionID string, msgs ...Message) (int, error)
	// ReadAll returns the session messages, oldest first.
	ReadAll(ctx context.Context, sessionID string) ([]Message, error)
	// Trim keeps only the most recent maxLen messages.
	Trim(ctx context.Context, sessionID string, maxLen int) error
	// Clear removes the session. Clearing an unknown session is not an error.
	Clear(ctx context.Context, sessionID string) error
}

// ErrUnavailable is wrapped by stores when the backend can't be reached.
var ErrUnavailable = errors.New("memory: store unavailable")

const (
	// DefaultSessionID is used when the caller doesn't provide one.
	DefaultSessionID = "anon"
	// DefaultCap is the number of messages a session may hold before it is trimmed.
	DefaultCap = 48
	// TrimDivisor sets how much survives a trim: once the cap is exceeded
	// the session is cut down to cap/TrimDivisor messages.
	TrimDivisor = 2
)

// SessionID normalizes a caller provided session id.
func SessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return DefaultSessionID
	}
	return id
}

// Record appends a turn to the session and applies the trim policy.
func Record(ctx context.Context, s Store, sessionID string, limit int, msgs ...Message) error {
	n, err := s.Append(ctx, sessionID, msgs...)
	if err != nil {
		return err
	}
	if limit <= 0 || n <= limit {
		return nil
	}
	keep := limit / TrimDivisor
	if keep < 1 {
		keep = 1
	}
	return s.Trim(ctx, sessionID, keep)
}

// Turn returns the user and assistant messages of a single exchange.
func Turn(user, assistant string) []Message {
	return []Message{
		{Role: RoleUser, Content: user},
		{Role: RoleAssistant, Content: assistant},
	}
}
