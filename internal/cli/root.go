package cli

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"live-quiz-service/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "config/config.yaml"

var (
	port       string
	configPath string
	cfg        config.Config
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envPort := os.Getenv("PORT")
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = defaultConfigPath
	}

	cmd := &cobra.Command{
		Use:           "quiz-service",
		Short:         "Live quiz sessions over Gorilla WebSocket",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig(configPath, cmd.Flags().Changed("config") || os.Getenv("CONFIG_PATH") != "")
			if err != nil {
				return err
			}
			cfg = loaded
			setupLogging(cfg)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&port, "port", envPort, "port to listen on (overrides server.port)")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.AddCommand(NewStartCmd(&cfg, &port))
	cmd.AddCommand(NewMigrateCmd(&cfg))
	cmd.AddCommand(NewTokenCmd(&cfg))
	return cmd
}

// loadConfig reads path. A missing file falls back to defaults unless the path was
// chosen explicitly.
func loadConfig(path string, explicit bool) (config.Config, error) {
	loaded, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		loaded = config.Default()
		loaded.ApplyEnv()
		return loaded, nil
	}
	return loaded, err
}

func setupLogging(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil || cfg.Log.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Log.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
}
