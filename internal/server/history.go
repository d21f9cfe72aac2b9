package server

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/igolaizola/igotutor/pkg/memory"
	"gopkg.in/yaml.v3"
)

type historyResponse struct {
	SessionID string           `json:"sessionId" yaml:"sessionId"`
	Messages  []memory.Message `json:"messages" yaml:"messages"`
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	session := memory.SessionID(q.Get("sessionId"))
	msgs, err := s.store.ReadAll(r.Context(), session)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []memory.Message{}
	}

	switch strings.ToLower(q.Get("format")) {
	case "", "json":
		writeJSON(w, http.StatusOK, historyResponse{SessionID: session, Messages: msgs})
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "history-"+session+".csv"))
		if err := WriteCSV(w, msgs); err != nil {
			log.Printf("server: couldn't write csv: %v", err)
		}
	case "yaml", "yml":
		w.Header().Set("Content-Type", "application/yaml")
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(historyResponse{SessionID: session, Messages: msgs}); err != nil {
			log.Printf("server: couldn't write yaml: %v", err)
		}
		_ = enc.Close()
	default:
		s.fail(w, r, &Error{Status: http.StatusBadRequest, Message: "unsupported format"})
	}
}

// WriteCSV renders messages as role,content rows. Every field is quoted and
// inner quotes are doubled.
func WriteCSV(w io.Writer, msgs []memory.Message) error {
	if _, err := io.WriteString(w, "role,content\n"); err != nil {
		return err
	}
	for _, m := range msgs {
		if _, err := fmt.Fprintf(w, "%s,%s\n", quote(string(m.Role)), quote(m.Content)); err != nil {
			return err
		}
	}
	return nil
}

func quote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

func (s *Server) clear(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if r.Method == http.MethodPost {
		if err := decode(r, w, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if req.SessionID == "" {
		req.SessionID = r.URL.Query().Get("sessionId")
	}
	if err := s.store.Clear(r.Context(), memory.SessionID(req.SessionID)); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
