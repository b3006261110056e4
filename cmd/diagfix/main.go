package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dshills/diagfix/internal/config"
)

var version = "0.1.0"

// Exit codes.
const (
	exitCodeNotFixed  = 2
	exitCodeBadInput  = 3
	exitCodeTransport = 4
)

// exitError carries a process exit code through cobra's error return.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func badInput(format string, args ...any) error {
	return &exitError{code: exitCodeBadInput, err: fmt.Errorf(format, args...)}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "diagfix:", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

// cli holds the state shared by every subcommand.
type cli struct {
	v          *viper.Viper
	configPath string
}

// config resolves the configuration; failures are bad input.
func (c *cli) config() (*config.Config, error) {
	cfg, err := config.Load(c.v, c.configPath)
	if err != nil {
		return nil, &exitError{code: exitCodeBadInput, err: err}
	}
	return cfg, nil
}

func (c *cli) bind(key string, flag *pflag.Flag) {
	if err := c.v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind %s: %v", key, err))
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.New()}

	root := &cobra.Command{
		Use:           "diagfix",
		Short:         "Detect, validate and auto-fix BPMN, Mermaid and PlantUML diagrams",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "config file (default ./diagfix.{yaml,toml,json})")
	pf.String("oracle-url", "", "Kroki-compatible rendering service URL")
	pf.Duration("oracle-timeout", 0, "rendering service request timeout")
	pf.String("provider", "", "LLM provider: anthropic, openai or google")
	pf.String("model", "", "LLM model (default depends on provider)")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("log-format", "", "log format: text or json")
	c.bind("oracle.url", pf.Lookup("oracle-url"))
	c.bind("oracle.timeout", pf.Lookup("oracle-timeout"))
	c.bind("llm.provider", pf.Lookup("provider"))
	c.bind("llm.model", pf.Lookup("model"))
	c.bind("log.level", pf.Lookup("log-level"))
	c.bind("log.format", pf.Lookup("log-format"))

	root.AddCommand(
		newFixCmd(c),
		newDetectCmd(),
		newValidateCmd(c),
		newLayoutCmd(c),
		newRenderCmd(c),
		newServeCmd(c),
	)
	return root
}
