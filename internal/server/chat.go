package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/igolaizola/igotutor/internal/prompt"
	"github.com/igolaizola/igotutor/internal/relay"
	"github.com/igolaizola/igotutor/pkg/memory"
	"github.com/igolaizola/igotutor/pkg/openai"
)

type chatRequest struct {
	SessionID string `json:"sessionId"`
	Subject   string `json:"subject"`
	Mode      string `json:"mode"`
	Tone      string `json:"tone"`
	Message   string `json:"message"`
}

type chatMeta struct {
	Model       string `json:"model,omitempty"`
	Version     string `json:"version,omitempty"`
	TotalTokens int    `json:"total_tokens,omitempty"`
}

type chatResponse struct {
	Reply string          `json:"reply"`
	Meta  chatMeta        `json:"meta"`
	Raw   json.RawMessage `json:"raw,omitempty"`
}

// turn is a validated chat request ready to be sent upstream.
type turn struct {
	session  string
	message  string
	messages []memory.Message
	// canned is set when the reply doesn't need the completion API.
	canned string
}

func (s *Server) prepare(ctx context.Context, req *chatRequest) (*turn, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, required("message")
	}
	if prompt.Unsafe(req.Message) {
		return nil, errSafety
	}
	t := &turn{
		session: memory.SessionID(req.SessionID),
		message: req.Message,
	}
	if prompt.IsAttribution(req.Message) {
		t.canned = s.prompts.Attribution()
		return t, nil
	}
	history, err := s.store.ReadAll(ctx, t.session)
	if err != nil {
		return nil, err
	}
	system := memory.Message{Role: memory.RoleSystem, Content: s.prompts.SystemPrompt(req.Subject, req.Tone)}
	user := memory.Message{Role: memory.RoleUser, Content: s.prompts.UserContent(req.Message, req.Mode)}
	t.messages, err = s.window.Fit(system, history, user)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Server) record(ctx context.Context, t *turn, reply string) error {
	return memory.Record(ctx, s.store, t.session, s.historyCap, memory.Turn(t.message, reply)...)
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decode(r, w, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	ctx := r.Context()
	t, err := s.prepare(ctx, &req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if t.canned != "" {
		if err := s.record(ctx, t, t.canned); err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, chatResponse{
			Reply: t.canned,
			Meta:  chatMeta{Version: s.version},
		})
		return
	}

	completion, err := s.gateway.Complete(ctx, t.messages, openai.Options{})
	if err != nil {
		s.fail(w, r, upstream(err))
		return
	}
	if err := s.record(ctx, t, completion.Text); err != nil {
		s.fail(w, r, err)
		return
	}
	meta := chatMeta{Model: s.gateway.Model(), TotalTokens: completion.TotalTokens}
	writeJSON(w, http.StatusOK, chatResponse{
		Reply: completion.Text,
		Meta:  meta,
		Raw:   completion.Raw,
	})
}

// textSource yields a single chunk.
type textSource struct {
	text string
	sent bool
}

func (t *textSource) Recv() (string, error) {
	if t.sent {
		return "", io.EOF
	}
	t.sent = true
	return t.text, nil
}

// source opens the upstream stream of a turn. The returned close function
// must always be called.
func (s *Server) source(ctx context.Context, t *turn) (relay.Source, func(), error) {
	if t.canned != "" {
		return &textSource{text: t.canned}, func() {}, nil
	}
	stream, err := s.gateway.Stream(ctx, t.messages, openai.Options{})
	if err != nil {
		return nil, nil, upstream(err)
	}
	return stream, func() { _ = stream.Close() }, nil
}

// relayTurn streams the reply to the sink and stores the turn once the relay
// is over. The store write outlives the caller connection.
func (s *Server) relayTurn(ctx context.Context, t *turn, src relay.Source, sink relay.Sink) {
	res, err := relay.Relay(ctx, src, sink)
	if err != nil {
		log.Printf("server: stream %s ended after %d chunks: %v", t.session, res.Chunks, err)
	}
	// A stream that failed before producing any text leaves no turn behind.
	if res.State != relay.Done && res.Text == "" {
		return
	}
	if err := s.record(context.WithoutCancel(ctx), t, res.Text); err != nil {
		log.Printf("server: couldn't record stream %s: %v", t.session, err)
	}
}

func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decode(r, w, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	ctx := r.Context()
	t, err := s.prepare(ctx, &req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	src, closeSrc, err := s.source(ctx, t)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer closeSrc()
	s.relayTurn(ctx, t, src, relay.NewSSE(w))
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamWebSocket reads a chat request as the first message of the socket and
// streams the reply back as frames.
func (s *Server) streamWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: couldn't upgrade websocket: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxBody)
	sink := relay.NewWebSocket(conn)

	var req chatRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = sink.Fail(errors.New("invalid json message"))
		return
	}
	ctx := r.Context()
	t, err := s.prepare(ctx, &req)
	if err != nil {
		s.failSocket(r, sink, err)
		return
	}
	src, closeSrc, err := s.source(ctx, t)
	if err != nil {
		s.failSocket(r, sink, err)
		return
	}
	defer closeSrc()
	s.relayTurn(ctx, t, src, sink)
}

func (s *Server) failSocket(r *http.Request, sink relay.Sink, err error) {
	e := classify(err)
	if e.Status >= http.StatusInternalServerError {
		logFailure(r, err)
	}
	msg := e.Message
	if e.Details != "" && e.Status == http.StatusBadGateway {
		msg += ": " + e.Details
	}
	_ = sink.Fail(errors.New(msg))
}
