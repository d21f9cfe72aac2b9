package igotutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/igolaizola/igotutor/internal/auth"
	"github.com/igolaizola/igotutor/internal/google"
	"github.com/igolaizola/igotutor/internal/memory/local"
	"github.com/igolaizola/igotutor/internal/memory/redis"
	"github.com/igolaizola/igotutor/internal/memory/window"
	"github.com/igolaizola/igotutor/internal/prompt"
	"github.com/igolaizola/igotutor/internal/ratelimit"
	"github.com/igolaizola/igotutor/internal/server"
	"github.com/igolaizola/igotutor/pkg/memory"
	"github.com/igolaizola/igotutor/pkg/openai"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr       string `yaml:"addr"`
	AppVersion string `yaml:"app-version"`
	Static     string `yaml:"static"`

	// Owner parameters
	OwnerName     string `yaml:"owner-name"`
	OwnerLocation string `yaml:"owner-location"`

	// Openai parameters
	OpenaiKey         string        `yaml:"openai-key"`
	OpenaiBaseURL     string        `yaml:"openai-base-url"`
	OpenaiTimeout     time.Duration `yaml:"openai-timeout"`
	Model             string        `yaml:"model"`
	Temperature       float64       `yaml:"temperature"`
	MaxTokens         int           `yaml:"max-tokens"`
	TopP              float64       `yaml:"top-p"`
	HistoryCap        int           `yaml:"history-cap"`
	HistoryTokens     int           `yaml:"history-tokens"`
	SessionID         string        `yaml:"session"`
	Format            string        `yaml:"format"`
	RedisURL          string        `yaml:"redis-url"`
	RedisTimeout      time.Duration `yaml:"redis-timeout"`
	FirebaseCredsFile string        `yaml:"firebase-credentials"`

	// Google parameters
	GoogleKey string `yaml:"google-key"`
	GoogleCX  string `yaml:"google-cx"`

	// Limits
	RateLimit  int           `yaml:"rate-limit"`
	RateWindow time.Duration `yaml:"rate-window"`
	UploadDir  string        `yaml:"upload-dir"`
	MaxUpload  int64         `yaml:"max-upload"`
}

func Run(ctx context.Context, action string, cfg *Config) error {
	switch action {
	case "serve":
		return Serve(ctx, cfg)
	case "history":
		return History(ctx, cfg, os.Stdout)
	case "clear":
		return Clear(ctx, cfg)
	default:
		return fmt.Errorf("igotutor: unknown action: %s", action)
	}
}

// Serve launches the http server until the context is canceled.
func Serve(ctx context.Context, cfg *Config) error {
	if cfg.OpenaiKey == "" {
		return errors.New("igotutor: openai key is required")
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	gateway := openai.New(cfg.OpenaiKey,
		openai.WithBaseURL(cfg.OpenaiBaseURL),
		openai.WithTimeout(cfg.OpenaiTimeout),
		openai.WithDefaults(openai.Options{
			Model:       cfg.Model,
			Temperature: openai.Float32(float32(cfg.Temperature)),
			MaxTokens:   cfg.MaxTokens,
			TopP:        openai.Float32(float32(cfg.TopP)),
		}),
	)

	var verifier auth.Verifier
	if cfg.FirebaseCredsFile != "" {
		creds, err := os.ReadFile(cfg.FirebaseCredsFile)
		if err != nil {
			return fmt.Errorf("igotutor: couldn't read firebase credentials: %w", err)
		}
		verifier, err = auth.NewFirebase(ctx, creds)
		if err != nil {
			return fmt.Errorf("igotutor: couldn't create firebase verifier: %w", err)
		}
		log.Println("igotutor: id token verification enabled")
	}

	srv, err := server.New(&server.Config{
		Store:   store,
		Gateway: gateway,
		Prompts: &prompt.Builder{
			Version:  cfg.AppVersion,
			Owner:    cfg.OwnerName,
			Location: cfg.OwnerLocation,
		},
		Version:    cfg.AppVersion,
		Window:     window.New(cfg.HistoryTokens),
		Verifier:   verifier,
		Limiter:    ratelimit.New(cfg.RateLimit, cfg.RateWindow),
		Searcher:   google.New(cfg.GoogleKey, cfg.GoogleCX),
		HistoryCap: cfg.HistoryCap,
		UploadDir:  cfg.UploadDir,
		MaxUpload:  cfg.MaxUpload,
		StaticDir:  cfg.Static,
	})
	if err != nil {
		return fmt.Errorf("igotutor: couldn't create server: %w", err)
	}
	log.Printf("igotutor: model %s, version %s", gateway.Model(), cfg.AppVersion)
	return srv.ListenAndServe(ctx, cfg.Addr)
}

// History writes the stored messages of a session to w.
func History(ctx context.Context, cfg *Config, w io.Writer) error {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	session := memory.SessionID(cfg.SessionID)
	msgs, err := store.ReadAll(ctx, session)
	if err != nil {
		return fmt.Errorf("igotutor: couldn't read history: %w", err)
	}
	switch cfg.Format {
	case "csv":
		err = server.WriteCSV(w, msgs)
	case "yaml":
		err = yaml.NewEncoder(w).Encode(msgs)
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(msgs)
	default:
		return fmt.Errorf("igotutor: unknown format: %s", cfg.Format)
	}
	if err != nil {
		return fmt.Errorf("igotutor: couldn't write history: %w", err)
	}
	return nil
}

// Clear removes the stored messages of a session.
func Clear(ctx context.Context, cfg *Config) error {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	session := memory.SessionID(cfg.SessionID)
	if err := store.Clear(ctx, session); err != nil {
		return fmt.Errorf("igotutor: couldn't clear history: %w", err)
	}
	log.Printf("igotutor: session %s cleared", session)
	return nil
}

// openStore returns the redis store when an url is configured and the
// process local store otherwise.
func openStore(ctx context.Context, cfg *Config) (memory.Store, func(), error) {
	if cfg.RedisURL == "" {
		log.Println("igotutor: using local session store")
		return local.New(), func() {}, nil
	}
	store, err := redis.New(ctx, cfg.RedisURL, cfg.RedisTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("igotutor: couldn't connect to redis: %w", err)
	}
	log.Println("igotutor: using redis session store")
	return store, func() {
		if err := store.Close(); err != nil {
			log.Printf("igotutor: couldn't close redis: %v", err)
		}
	}, nil
}
