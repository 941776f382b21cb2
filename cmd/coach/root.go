package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Edjavier-collab/Main2MI-sub000/app/config"
)

var (
	cfgFile string
	verbose bool
	apiURL  string
	token   string
	mode    string

	logger *slog.Logger
	cfg    cliConfig
)

type commandContext struct {
	correlationID uuid.UUID
	startedAt     time.Time
}

type commandContextKey struct{}

var rootCmd = &cobra.Command{
	Use:   "mi-coach",
	Short: "Practice Motivational Interviewing from the terminal",
	Long: `mi-coach drives the practice coach API from the terminal.

It keeps a device store in ~/.mi-coach so anonymous sessions, the cached
tier and the current view survive between runs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig(cfgFile, os.Getenv)
		if err != nil {
			return err
		}
		applyFlags(cmd, &loaded)
		cfg = loaded

		if logger == nil {
			level := cfg.LogLevel
			if verbose {
				level = "debug"
			}
			logger = config.NewLoggerTo(os.Stderr, config.LogConfig{Style: cfg.LogStyle, Level: level})
		}

		info := commandContext{
			correlationID: uuid.New(),
			startedAt:     time.Now(),
		}
		cmd.SetContext(context.WithValue(cmd.Context(), commandContextKey{}, info))
		logger.Info("command start",
			"command", cmd.CommandPath(),
			"correlation_id", info.correlationID.String(),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		info, ok := cmd.Context().Value(commandContextKey{}).(commandContext)
		if !ok {
			return
		}
		logger.Info("command end",
			"command", cmd.CommandPath(),
			"correlation_id", info.correlationID.String(),
			"duration_ms", time.Since(info.startedAt).Milliseconds(),
		)
	},
}

// applyFlags lets explicit flags win over the file and environment.
func applyFlags(cmd *cobra.Command, c *cliConfig) {
	flags := cmd.Flags()
	if flags.Changed("api-url") {
		c.APIURL = apiURL
	}
	if flags.Changed("token") {
		c.Token = token
	}
	if flags.Changed("mode") {
		c.Mode = mode
	}
}

func Execute() {
	defer closeRuntime()
	if err := rootCmd.Execute(); err != nil {
		closeRuntime()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.mi-coach/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "access token of the signed-in user")
	rootCmd.PersistentFlags().StringVar(&mode, "mode", "", "online or offline-dev")
}
