package servecmder

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/callflow/cmd/callflow/turnlog"
	"github.com/papercomputeco/callflow/pkg/config"
	"github.com/papercomputeco/callflow/pkg/llm"
	"github.com/papercomputeco/callflow/pkg/llm/ollama"
	"github.com/papercomputeco/callflow/pkg/llm/openai"
	"github.com/papercomputeco/callflow/pkg/logger"
	"github.com/papercomputeco/callflow/relay"
)

const serveLongDesc string = `Run the callflow relay.

POST /callflow takes the caller's text as the request body and an optional
call-id header. The call's recent turns are replayed to the completion
service, the reply is returned as plain text and the exchange is appended to
the turn log.

Settings come from the TOML config file; flags override it. Changes to the
persona prompt in the config file are applied without a restart.

Examples:
  callflow serve
  callflow serve --config /etc/callflow.toml --listen :8080
  callflow serve --provider ollama --upstream http://localhost:11434 --model llama3.2`

const serveShortDesc string = "Run the callflow relay"

type serveCommander struct {
	configPath string
	listen     string
	storePath  string
	driver     string
	provider   string
	model      string
	upstream   string
	debug      bool
}

func NewServeCmd() *cobra.Command {
	cmd, _ := newServeCmd()
	return cmd
}

func newServeCmd() (*cobra.Command, *serveCommander) {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", config.DefaultPath, "Path to TOML config file")
	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address to listen on")
	cmd.Flags().StringVarP(&cmder.storePath, "store", "s", "", "Path to the turn log")
	cmd.Flags().StringVar(&cmder.driver, "driver", "", "Turn log driver (jsonfile, sqlite)")
	cmd.Flags().StringVar(&cmder.provider, "provider", "", "Completion provider (openai, ollama)")
	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Completion model")
	cmd.Flags().StringVarP(&cmder.upstream, "upstream", "u", "", "Completion service base URL")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")

	return cmd, cmder
}

func (c *serveCommander) run(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}

	log := logger.NewLogger(cfg.Debug)
	defer log.Sync()

	log.Info("callflow relay starting",
		zap.String("listen", cfg.Listen),
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("store", cfg.Store.Path),
		zap.String("provider", cfg.Completion.Provider),
		zap.String("model", cfg.Completion.Model),
		zap.Bool("debug", cfg.Debug),
	)

	driver, err := turnlog.Open(ctx, cfg.Store.Driver, cfg.Store.Path, cfg.Store.HistoryLimit, log)
	if err != nil {
		return err
	}

	completer, err := NewCompleter(cfg.Completion, log)
	if err != nil {
		driver.Close()
		return err
	}

	srv := relay.New(relay.Config{
		ListenAddr: cfg.Listen,
		Persona:    cfg.Persona.Prompt,
	}, driver, completer, log)
	defer srv.Close()

	err = config.Watch(ctx, c.configPath, log, func(next *config.Config) {
		if next.Persona.Prompt == srv.Persona() {
			return
		}
		srv.SetPersona(next.Persona.Prompt)
		log.Info("persona reloaded", zap.String("config", c.configPath))
	})
	if err != nil {
		log.Warn("config reload disabled", zap.Error(err))
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down relay")
		if err := srv.Shutdown(); err != nil {
			log.Warn("shutdown failed", zap.Error(err))
		}
	}()

	if err := srv.Run(); err != nil {
		return fmt.Errorf("relay server failed: %w", err)
	}
	return nil
}

// loadConfig reads the config file and applies the flags the user set.
func (c *serveCommander) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Listen = c.listen
	}
	if flags.Changed("store") {
		cfg.Store.Path = c.storePath
	}
	if flags.Changed("driver") {
		cfg.Store.Driver = c.driver
	}
	if flags.Changed("provider") {
		cfg.Completion.Provider = c.provider
	}
	if flags.Changed("model") {
		cfg.Completion.Model = c.model
	}
	if flags.Changed("upstream") {
		cfg.Completion.BaseURL = c.upstream
	}
	if flags.Changed("debug") {
		cfg.Debug = c.debug
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return cfg, nil
}

// NewCompleter builds the completion backend named by cfg.Provider.
func NewCompleter(cfg config.CompletionConfig, log *zap.Logger) (llm.Completer, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		apiKey := os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("missing API key: set %s", cfg.APIKeyEnv)
		}
		c, err := openai.New(openai.Config{
			APIKey:      apiKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: float32(cfg.Temperature),
		}, log)
		if err != nil {
			return nil, err
		}
		return c, nil

	case config.ProviderOllama:
		temperature := cfg.Temperature
		c, err := ollama.New(ollama.Config{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: &temperature,
		}, log)
		if err != nil {
			return nil, err
		}
		return c, nil

	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
	}
}
