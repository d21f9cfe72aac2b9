package server

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/igolaizola/igotutor/internal/google"
	"github.com/igolaizola/igotutor/internal/prompt"
	"github.com/igolaizola/igotutor/internal/structured"
	"github.com/igolaizola/igotutor/pkg/memory"
	"github.com/igolaizola/igotutor/pkg/openai"
)

const (
	maxQuizQuestions = 20
	maxFlashcards    = 50
	resourceLinks    = 5
)

type QuizQuestion struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation"`
}

type Flashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

type Grade struct {
	Score        float64  `json:"score"`
	Feedback     string   `json:"feedback"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

// generate runs a single-shot template with no history.
func (s *Server) generate(ctx context.Context, tpl prompt.Template) (string, error) {
	msgs := []memory.Message{
		{Role: memory.RoleSystem, Content: tpl.System},
		{Role: memory.RoleUser, Content: tpl.User},
	}
	completion, err := s.gateway.Complete(ctx, msgs, openai.Options{})
	if err != nil {
		return "", upstream(err)
	}
	return completion.Text, nil
}

func clamp(n, limit int) int {
	if n > limit {
		return limit
	}
	return n
}

func blank(v string) bool {
	return strings.TrimSpace(v) == ""
}

// structuredReply answers {key: v} when the text holds valid json, {raw: text} otherwise.
func structuredReply[T any](w http.ResponseWriter, key, text string) {
	var v T
	if err := structured.Extract(text, &v); err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"raw": text})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{key: v})
}

func (s *Server) quiz(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic      string `json:"topic"`
		Count      int    `json:"count"`
		Difficulty string `json:"difficulty"`
	}
	if err := decode(r, w, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if blank(req.Topic) {
		s.fail(w, r, required("topic"))
		return
	}
	text, err := s.generate(r.Context(), s.prompts.Quiz(req.Topic, clamp(req.Count, maxQuizQuestions), req.Difficulty))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	structuredReply[[]QuizQuestion](w, "quiz", text)
}

func (s *Server) flashcards(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic string `json:"topic"`
		Count int    `json:"count"`
	}
	if err := decode(r, w, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if blank(req.Topic) {
		s.fail(w, r, required("topic"))
		return
	}
	text, err := s.generate(r.Context(), s.prompts.Flashcards(req.Topic, clamp(req.Count, maxFlashcards)))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	structuredReply[[]Flashcard](w, "flashcards", text)
}

func (s *Server) gradeEssay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Essay  string `json:"essay"`
		Rubric string `json:"rubric"`
	}
	if err := decode(r, w, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if blank(req.Essay) {
		s.fail(w, r, required("essay"))
		return
	}
	text, err := s.generate(r.Context(), s.prompts.GradeEssay(req.Essay, req.Rubric))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	structuredReply[Grade](w, "grade", text)
}

// textReply runs a template and answers {key: text}.
func (s *Server) textReply(w http.ResponseWriter, r *http.Request, key string, tpl prompt.Template) {
	text, err := s.generate(r.Context(), tpl)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{key: text})
}

func (s *Server) summarize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text   string `json:"text"`
		Length string `json:"length"`
	}
	if err := decode(r, w, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if blank(req.Text) {
		s.fail(w, r, required("text"))
		return
	}
	s.textReply(w, r, "summary", s.prompts.Summary(req.Text, req.Length))
}

func (s *Server) translate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text   string `json:"text"`
		Target string `json:"target"`
	}
	if err := decode(r, w, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	switch {
	case blank(req.Text):
		s.fail(w, r, required("text"))
		return
	case blank(req.Target):
		s.fail(w, r, required("target"))
		return
	}
	s.textReply(w, r, "translation", s.prompts.Translate(req.Text, req.Target))
}

func (s *Server) reference(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string `json:"source"`
		Style  string `json:"style"`
	}
	if err := decode(r, w, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if blank(req.Source) {
		s.fail(w, r, required("source"))
		return
	}
	s.textReply(w, r, "reference", s.prompts.Reference(req.Source, req.Style))
}

func (s *Server) hint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Problem string `json:"problem"`
	}
	if err := decode(r, w, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if blank(req.Problem) {
		s.fail(w, r, required("problem"))
		return
	}
	s.textReply(w, r, "hint", s.prompts.Hint(req.Problem))
}

type resourcesResponse struct {
	Resources string                `json:"resources"`
	Links     []google.SearchResult `json:"links,omitempty"`
}

// resources recommends study material, adding web links when search is configured.
func (s *Server) resources(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic string `json:"topic"`
		Level string `json:"level"`
	}
	if err := decode(r, w, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if blank(req.Topic) {
		s.fail(w, r, required("topic"))
		return
	}
	ctx := r.Context()
	text, err := s.generate(ctx, s.prompts.Resources(req.Topic, req.Level))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := resourcesResponse{Resources: text}
	if s.searcher != nil {
		links, err := s.searcher.Search(ctx, req.Topic, resourceLinks)
		if err != nil {
			log.Printf("server: couldn't search resources: %v", err)
		}
		resp.Links = links
	}
	writeJSON(w, http.StatusOK, resp)
}
