package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/igolaizola/igotutor/internal/extract"
	"github.com/igolaizola/igotutor/pkg/memory"
	"github.com/igolaizola/igotutor/pkg/openai"
)

const documentMaxTokens = 600

type uploadSummary struct {
	ExtractedText string `json:"extracted_text"`
	Summary       string `json:"summary"`
}

type uploadStored struct {
	OK           bool   `json:"ok"`
	Filename     string `json:"filename"`
	OriginalName string `json:"originalname"`
}

// upload summarizes documents with readable text. Other files are kept in
// the upload directory, if any, under a generated name.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(w, r, &Error{Status: http.StatusRequestEntityTooLarge, Message: "file too large", Err: err})
			return
		}
		s.fail(w, r, required("file"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.fail(w, r, fmt.Errorf("server: couldn't read upload: %w", err))
		return
	}

	contentType := header.Header.Get("Content-Type")
	text, err := extract.Text(header.Filename, contentType, data)
	switch {
	case errors.Is(err, extract.ErrUnsupported):
		name, err := s.keep(header.Filename, data)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, uploadStored{
			OK:           true,
			Filename:     name,
			OriginalName: header.Filename,
		})
		return
	case err != nil:
		s.fail(w, r, &Error{
			Status:  http.StatusUnprocessableEntity,
			Message: "couldn't extract text",
			Details: err.Error(),
			Err:     err,
		})
		return
	}

	tpl := s.prompts.Document(text)
	msgs := []memory.Message{
		{Role: memory.RoleSystem, Content: tpl.System},
		{Role: memory.RoleUser, Content: tpl.User},
	}
	completion, err := s.gateway.Complete(r.Context(), msgs, openai.Options{MaxTokens: documentMaxTokens})
	if err != nil {
		s.fail(w, r, upstream(err))
		return
	}
	writeJSON(w, http.StatusOK, uploadSummary{
		ExtractedText: text,
		Summary:       completion.Text,
	})
}

// keep stores the file in the upload directory and returns its generated name.
func (s *Server) keep(original string, data []byte) (string, error) {
	name := uuid.NewString() + filepath.Ext(original)
	if s.uploadDir == "" {
		return name, nil
	}
	if err := os.MkdirAll(s.uploadDir, 0755); err != nil {
		return "", fmt.Errorf("server: couldn't create upload dir: %w", err)
	}
	path := filepath.Join(s.uploadDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("server: couldn't write upload: %w", err)
	}
	log.Printf("server: stored upload %q as %s", original, path)
	return name, nil
}
