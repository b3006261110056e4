package main

import (
	"errors"
	"log/slog"

	"github.com/dshills/diagfix/internal/adapter"
	"github.com/dshills/diagfix/internal/autofix"
	"github.com/dshills/diagfix/internal/config"
	"github.com/dshills/diagfix/internal/layout"
	"github.com/dshills/diagfix/internal/llm"
	"github.com/dshills/diagfix/internal/logger"
	"github.com/dshills/diagfix/internal/oracle"
	"github.com/dshills/diagfix/internal/patch"
)

// app is the wired engine for one command invocation.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	oracle   *oracle.Client
	adapters adapter.Registry
	engine   *layout.Engine
	fixer    *autofix.Fixer
}

func newApp(cfg *config.Config, noLLM bool) *app {
	log := logger.NewLogger(cfg.Log, nil)
	client := oracle.New(cfg.Oracle.URL, cfg.Oracle.Timeout, log)
	adapters := adapter.Default(client)
	engine := layout.New(log)
	engine.Jobs = cfg.Fix.Jobs

	fixer := &autofix.Fixer{
		Adapters:    adapters,
		Proposer:    patch.Default(engine),
		Logger:      log,
		MaxAttempts: cfg.Fix.MaxAttempts,
	}
	if cfg.LLM.Enabled && !noLLM {
		fixer.Rewriter = llm.NewRewriter(llm.Options{
			Provider:    cfg.LLM.Provider,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			Debug:       cfg.Log.Level == "debug",
		}, log)
	}

	return &app{
		cfg:      cfg,
		logger:   log,
		oracle:   client,
		adapters: adapters,
		engine:   engine,
		fixer:    fixer,
	}
}

// exitFor maps an engine error to the CLI exit code contract.
func exitFor(err error) error {
	if err == nil {
		return nil
	}
	var ee *exitError
	switch {
	case errors.As(err, &ee):
		return err
	case errors.Is(err, oracle.ErrTransport):
		return &exitError{code: exitCodeTransport, err: err}
	case errors.Is(err, adapter.ErrUnsupported),
		errors.Is(err, layout.ErrNoProcess),
		errors.Is(err, layout.ErrMalformed):
		return &exitError{code: exitCodeBadInput, err: err}
	default:
		return err
	}
}
