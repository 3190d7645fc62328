package main

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/tiered-sub-translator/internal/config"
	"github.com/MimeLyc/tiered-sub-translator/internal/llm"
	"github.com/MimeLyc/tiered-sub-translator/internal/service"
	"github.com/MimeLyc/tiered-sub-translator/internal/translator"
	"github.com/MimeLyc/tiered-sub-translator/pkg/log"
)

// commandContext carries state shared by every subcommand.
type commandContext struct {
	envFile string
	cfg     *config.Config

	// newClient builds the remote model client; tests replace it.
	newClient func(config.LLMConfig) (translator.Client, error)
}

func newRootCommand() *cobra.Command {
	return newRootCommandWith(&commandContext{newClient: newTranslatorClient})
}

func newRootCommandWith(ctx *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tiered-sub-translator",
		Short:         "Translate SRT subtitles through fast and quality model tiers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return ctx.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.envFile, "env-file", ".env", "Environment file loaded before reading configuration")

	rootCmd.AddCommand(newTranslateCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

// load reads the env file when present, then the configuration, and sets up
// logging.
func (c *commandContext) load() error {
	if c.cfg != nil {
		return nil
	}
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return service.WrapError(err, service.ErrConfig, "failed to load env file").WithContext("path", c.envFile)
		}
	}

	cfg, err := config.NewFromEnv()
	if err != nil {
		return service.WrapError(err, service.ErrConfig, "invalid configuration")
	}
	if err := log.InitLogger(log.ParseLevel(cfg.Log.Level), cfg.Log.File); err != nil {
		return service.WrapError(err, service.ErrConfig, "failed to open log file").WithContext("path", cfg.Log.File)
	}
	c.cfg = cfg
	return nil
}

func (c *commandContext) client() (translator.Client, error) {
	client, err := c.newClient(c.cfg.LLM)
	if err != nil {
		return nil, service.WrapError(err, service.ErrConfig, "failed to create model client").
			WithContext("provider", c.cfg.LLM.Provider)
	}
	return client, nil
}

func (c *commandContext) settings() (*config.SettingsStore, error) {
	store, err := config.NewSettingsStore(c.cfg.SettingsFile, config.Settings{Run: c.cfg.Pipeline.Defaults})
	if err != nil {
		return nil, service.WrapError(err, service.ErrConfig, "failed to load settings").WithContext("path", c.cfg.SettingsFile)
	}
	return store, nil
}

func newTranslatorClient(cfg config.LLMConfig) (translator.Client, error) {
	completer, err := llm.New(&llm.Config{
		Provider:     cfg.Provider,
		APIKey:       cfg.APIKey,
		APIURL:       cfg.APIURL,
		MaxTokens:    cfg.MaxTokens,
		Timeout:      cfg.Timeout,
		SiteURL:      cfg.SiteURL,
		AppName:      cfg.AppName,
		DefaultModel: cfg.FastModel,
	})
	if err != nil {
		return nil, err
	}
	client, err := translator.NewLLMClient(completer, translator.TierModels{
		Fast:    cfg.FastModel,
		Quality: cfg.QualityModel,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}
