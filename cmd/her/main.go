package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ZanzyTHEbar/her/internal/app"
	"github.com/ZanzyTHEbar/her/internal/config"
	"github.com/ZanzyTHEbar/her/internal/llm"
	"github.com/ZanzyTHEbar/her/internal/session"
)

const version = "0.2.0"

var (
	cfgFile string
	debug   bool
	logger  = logrus.New()
	v       = viper.New()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger.WithError(err).Error("her failed")
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var chatOpts app.ChatOptions

	rootCmd := &cobra.Command{
		Use:           "her [input...]",
		Short:         "A terminal assistant backed by a language model",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := build(cmd, true)
			if err != nil {
				return err
			}
			return a.Chat(cmd.Context(), args, chatOpts)
		},
	}

	v.SetEnvPrefix("HER")
	v.AutomaticEnv()

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default: $XDG_CONFIG_HOME/her/config.toml)")
	flags.BoolVar(&debug, "debug", false, "enable debug logging")
	flags.String("model", "", "model name")
	flags.String("history-file", "", "shell history file")
	flags.String("history-format", "", "history format: extended|plain")
	_ = v.BindPFlag("model", flags.Lookup("model"))
	_ = v.BindPFlag("history_file", flags.Lookup("history-file"))
	_ = v.BindPFlag("history_format", flags.Lookup("history-format"))

	rootCmd.Flags().BoolVar(&chatOpts.Persist, "save", false, "save this conversation as a session")
	rootCmd.Flags().BoolVar(&chatOpts.Resume, "resume", false, "continue the last saved session")

	rootCmd.AddCommand(
		newExplanationCmd(),
		newSuggestionsCmd(),
		newSummaryCmd(),
		newUsageCmd(),
		newHistoryCmd(),
		newConfigCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return rootCmd
}

func newExplanationCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:     "explanation [input...]",
		Aliases: []string{"explain"},
		Short:   "Explain a command or concept",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := build(cmd, true)
			if err != nil {
				return err
			}
			return a.Explain(cmd.Context(), args, verbose)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "longer explanation with examples")
	return cmd
}

func newSuggestionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggestions",
		Short: "Suggest aliases from recent shell history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := build(cmd, true)
			if err != nil {
				return err
			}
			return a.Suggestions(cmd.Context())
		},
	}
	cmd.Flags().IntP("lines", "n", 0, "history entries to send (default from config)")
	_ = v.BindPFlag("history_lines", cmd.Flags().Lookup("lines"))
	return cmd
}

func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <file>",
		Short: "Summarize a file and answer questions about it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := build(cmd, true)
			if err != nil {
				return err
			}
			return a.Summarize(cmd.Context(), args[0])
		},
	}
}

func newUsageCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show token usage for a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := time.Parse(time.DateOnly, date)
			if err != nil {
				return fmt.Errorf("invalid --date %q: %w", date, err)
			}
			a, _, err := build(cmd, true)
			if err != nil {
				return err
			}
			return a.Usage(cmd.Context(), day)
		},
	}
	cmd.Flags().StringVar(&date, "date", time.Now().Format(time.DateOnly), "day to report (YYYY-MM-DD)")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var (
		count  int
		follow bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the last shell history entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cfg, err := build(cmd, false)
			if err != nil {
				return err
			}
			if follow {
				return a.FollowHistory(cmd.Context())
			}
			if !cmd.Flags().Changed("count") {
				count = cfg.HistoryLines
			}
			return a.PrintHistory(count)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 10, "number of entries")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "print entries as they are appended")
	return cmd
}

// build loads config and wires the application to the command's streams.
// needAPI rejects configs without credentials.
func build(cmd *cobra.Command, needAPI bool) (*app.App, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if needAPI {
		if err := cfg.RequireAPI(); err != nil {
			return nil, nil, err
		}
	}

	store, err := session.Open(cfg.SessionDir, session.Options{
		MaxStoredMessages: cfg.MaxStoredMessages,
		MaxSessions:       cfg.MaxSessions,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	client := &llm.Client{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Logger:  logger,
	}

	return app.New(cmd.Context(), app.Options{
		Config:   cfg,
		Logger:   logger,
		LLM:      client,
		Sessions: store,
		In:       cmd.InOrStdin(),
		Out:      cmd.OutOrStdout(),
	}), cfg, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg.ApplyOverrides(v)
	setupLogger(cfg.LogLevel)
	return cfg, nil
}

func setupLogger(level string) {
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		logger.WithError(err).Warn("invalid log_level; using warn")
		lvl = logrus.WarnLevel
	}
	if debug {
		lvl = logrus.DebugLevel
	}
	logger.SetLevel(lvl)
}
