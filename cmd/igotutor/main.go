package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/igolaizola/igotutor"
	"github.com/igolaizola/igotutor/pkg/memory"
	"github.com/igolaizola/igotutor/pkg/openai"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/peterbourgon/ff/v3/ffyaml"
)

// Build flags
var Version = ""
var Commit = ""
var Date = ""

func main() {
	// Create signal based context
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Launch command
	cmd := newCommand()
	if err := cmd.ParseAndRun(ctx, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func newCommand() *ffcli.Command {
	fs := flag.NewFlagSet("igotutor", flag.ExitOnError)

	return &ffcli.Command{
		ShortUsage: "igotutor [flags] <subcommand>",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return flag.ErrHelp
		},
		Subcommands: []*ffcli.Command{
			newServeCommand(),
			newSessionCommand("history", "print the stored messages of a session"),
			newSessionCommand("clear", "remove the stored messages of a session"),
			newVersionCommand(),
		},
	}
}

func newServeCommand() *ffcli.Command {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	_ = fs.String("config", "igotutor.yaml", "config file (optional)")

	cfg := &igotutor.Config{}
	fs.StringVar(&cfg.Addr, "addr", ":10000", "listen address")
	fs.StringVar(&cfg.AppVersion, "app-version", "v6.7", "version reported to clients")
	fs.StringVar(&cfg.Static, "static", "", "web client directory to serve (optional)")

	// Owner
	fs.StringVar(&cfg.OwnerName, "owner-name", "Akin S. Sokpah", "name given when asked who created the tutor")
	fs.StringVar(&cfg.OwnerLocation, "owner-location", "Liberia", "location given when asked who created the tutor")

	// OpenAI
	fs.StringVar(&cfg.OpenaiKey, "openai-key", "", "openai key")
	fs.StringVar(&cfg.OpenaiBaseURL, "openai-base-url", openai.DefaultBaseURL, "openai compatible api base url (optional)")
	fs.DurationVar(&cfg.OpenaiTimeout, "openai-timeout", 0, "timeout of openai requests, zero waits forever (optional)")
	fs.StringVar(&cfg.Model, "model", openai.DefaultModel, "model")
	fs.Float64Var(&cfg.Temperature, "temperature", openai.DefaultTemperature, "sampling temperature")
	fs.IntVar(&cfg.MaxTokens, "max-tokens", openai.DefaultMaxTokens, "max tokens per reply")
	fs.Float64Var(&cfg.TopP, "top-p", openai.DefaultTopP, "nucleus sampling")
	fs.IntVar(&cfg.HistoryTokens, "history-tokens", 0, "token budget of the prompt sent upstream, zero disables it (optional)")

	// Firebase
	fs.StringVar(&cfg.FirebaseCredsFile, "firebase-credentials", "", "firebase service account file, enables id token verification (optional)")

	// Google
	fs.StringVar(&cfg.GoogleKey, "google-key", "", "google api key, see https://developers.google.com/custom-search/v1/introduction (optional)")
	fs.StringVar(&cfg.GoogleCX, "google-cx", "", "google cx (search engine ID), see https://cse.google.com/cse/all (optional)")

	// Limits
	fs.IntVar(&cfg.RateLimit, "rate-limit", 60, "requests allowed per client and window, zero disables it")
	fs.DurationVar(&cfg.RateWindow, "rate-window", 10*time.Second, "rate limit window")
	fs.StringVar(&cfg.UploadDir, "upload-dir", "uploads", "directory for uploads that can't be summarized, empty discards them (optional)")
	fs.Int64Var(&cfg.MaxUpload, "max-upload", 10<<20, "max upload size in bytes")

	storeFlags(fs, cfg)

	return &ffcli.Command{
		Name:       "serve",
		ShortUsage: "igotutor serve [flags]",
		Options:    options(),
		ShortHelp:  "launch the tutor server",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return igotutor.Run(ctx, "serve", cfg)
		},
	}
}

func newSessionCommand(action, help string) *ffcli.Command {
	fs := flag.NewFlagSet(action, flag.ExitOnError)
	_ = fs.String("config", "igotutor.yaml", "config file (optional)")

	cfg := &igotutor.Config{}
	fs.StringVar(&cfg.SessionID, "session", memory.DefaultSessionID, "session id")
	if action == "history" {
		fs.StringVar(&cfg.Format, "format", "json", "output format (json, csv, yaml)")
	}
	storeFlags(fs, cfg)

	return &ffcli.Command{
		Name:       action,
		ShortUsage: fmt.Sprintf("igotutor %s [flags]", action),
		Options:    options(),
		ShortHelp:  help,
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return igotutor.Run(ctx, action, cfg)
		},
	}
}

func storeFlags(fs *flag.FlagSet, cfg *igotutor.Config) {
	fs.StringVar(&cfg.RedisURL, "redis-url", "", "redis url, sessions are kept in memory if empty (optional)")
	fs.DurationVar(&cfg.RedisTimeout, "redis-timeout", 5*time.Second, "timeout of redis calls")
	fs.IntVar(&cfg.HistoryCap, "history-cap", memory.DefaultCap, "messages kept per session, negative disables trimming")
}

func options() []ff.Option {
	return []ff.Option{
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ffyaml.Parser),
		ff.WithAllowMissingConfigFile(true),
		ff.WithEnvVarPrefix("IGOTUTOR"),
	}
}

func newVersionCommand() *ffcli.Command {
	return &ffcli.Command{
		Name:       "version",
		ShortUsage: "igotutor version",
		ShortHelp:  "print version",
		Exec: func(ctx context.Context, args []string) error {
			v := Version
			if v == "" {
				if buildInfo, ok := debug.ReadBuildInfo(); ok {
					v = buildInfo.Main.Version
				}
			}
			if v == "" {
				v = "dev"
			}
			versionFields := []string{v}
			if Commit != "" {
				versionFields = append(versionFields, Commit)
			}
			if Date != "" {
				versionFields = append(versionFields, Date)
			}
			fmt.Println(strings.Join(versionFields, " "))
			return nil
		},
	}
}
