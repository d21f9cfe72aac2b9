package relay

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SSE writes frames as server-sent events.
type SSE struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func NewSSE(w http.ResponseWriter) *SSE {
	return &SSE{
		w:  w,
		rc: http.NewResponseController(w),
	}
}

func (s *SSE) Open() error {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	return s.rc.Flush()
}

func (s *SSE) Chunk(text string) error {
	return s.write("", Frame{Chunk: text})
}

func (s *SSE) Done() error {
	return s.write("done", Frame{})
}

func (s *SSE) Fail(err error) error {
	return s.write("error", Frame{Error: err.Error()})
}

func (s *SSE) write(event string, f Frame) error {
	js, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", js); err != nil {
		return err
	}
	return s.rc.Flush()
}
