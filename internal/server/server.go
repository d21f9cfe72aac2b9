package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/igolaizola/igotutor/internal/auth"
	"github.com/igolaizola/igotutor/internal/google"
	"github.com/igolaizola/igotutor/internal/memory/window"
	"github.com/igolaizola/igotutor/internal/prompt"
	"github.com/igolaizola/igotutor/internal/ratelimit"
	"github.com/igolaizola/igotutor/pkg/memory"
	"github.com/igolaizola/igotutor/pkg/openai"
)

// Completer is the completion gateway used by the handlers.
type Completer interface {
	Complete(ctx context.Context, msgs []memory.Message, opts openai.Options) (*openai.Completion, error)
	Stream(ctx context.Context, msgs []memory.Message, opts openai.Options) (*openai.Stream, error)
	Model() string
}

type Config struct {
	Store    memory.Store
	Gateway  Completer
	Prompts  *prompt.Builder
	Version  string
	Window   *window.Window
	Verifier auth.Verifier
	Limiter  *ratelimit.Limiter
	Searcher *google.Searcher

	// HistoryCap is the number of messages kept per session, see memory.Record.
	// Zero uses memory.DefaultCap and a negative value disables trimming.
	HistoryCap int
	// UploadDir keeps uploads that can't be summarized. Empty discards them.
	UploadDir string
	MaxUpload int64
	StaticDir string
}

type Server struct {
	store      memory.Store
	gateway    Completer
	prompts    *prompt.Builder
	version    string
	window     *window.Window
	verifier   auth.Verifier
	limiter    *ratelimit.Limiter
	searcher   *google.Searcher
	historyCap int
	uploadDir  string
	maxUpload  int64
	staticDir  string
}

const maxBody = 1 << 20

// New creates a new server.
func New(cfg *Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("server: store is required")
	}
	if cfg.Gateway == nil {
		return nil, errors.New("server: gateway is required")
	}
	prompts := cfg.Prompts
	if prompts == nil {
		prompts = &prompt.Builder{Version: cfg.Version}
	}
	historyCap := cfg.HistoryCap
	if historyCap == 0 {
		historyCap = memory.DefaultCap
	}
	maxUpload := cfg.MaxUpload
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &Server{
		store:      cfg.Store,
		gateway:    cfg.Gateway,
		prompts:    prompts,
		version:    cfg.Version,
		window:     cfg.Window,
		verifier:   cfg.Verifier,
		limiter:    cfg.Limiter,
		searcher:   cfg.Searcher,
		historyCap: historyCap,
		uploadDir:  cfg.UploadDir,
		maxUpload:  maxUpload,
		staticDir:  cfg.StaticDir,
	}, nil
}

// Handler returns the http handler with every route and middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	api := auth.Middleware(s.verifier, writeError)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, api(h))
	}

	mux.HandleFunc("GET /health", s.health)

	handle("POST /api/chat", s.chat)
	handle("POST /api/stream-fetch", s.streamSSE)
	handle("POST /api/stream", s.streamSSE)
	handle("GET /api/stream-ws", s.streamWebSocket)

	handle("POST /api/quiz", s.quiz)
	handle("POST /api/generate-quiz", s.quiz)
	handle("POST /api/flashcards", s.flashcards)
	handle("POST /api/summarize", s.summarize)
	handle("POST /api/translate", s.translate)
	handle("POST /api/grade-essay", s.gradeEssay)
	handle("POST /api/reference", s.reference)
	handle("POST /api/hint", s.hint)
	handle("POST /api/resources", s.resources)
	handle("POST /api/upload", s.upload)

	handle("GET /api/history", s.history)
	handle("DELETE /api/history", s.clear)
	handle("POST /api/clear", s.clear)

	if s.staticDir != "" {
		mux.Handle("GET /", s.static())
	}

	var h http.Handler = mux
	h = s.limitRequests(h)
	h = allowOrigins(h)
	h = secureHeaders(h)
	h = logRequests(h)
	return h
}

// ListenAndServe serves until the context is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Printf("server: listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return fmt.Errorf("server: couldn't listen: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: couldn't shutdown: %w", err)
	}
	log.Println("server: stopped")
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

// decode reads a JSON body into v. An empty body leaves v untouched so that
// field validation reports what is missing.
func decode(r *http.Request, w http.ResponseWriter, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return &Error{
			Status:  http.StatusBadRequest,
			Message: "invalid json body",
			Details: err.Error(),
			Err:     err,
		}
	}
	return nil
}
