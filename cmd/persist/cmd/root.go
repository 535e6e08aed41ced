package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aweris/persist"
)

var rootCmd = &cobra.Command{
	Use:           "persist",
	Short:         "Inspect and edit persist directory stores",
	Long:          "CLI for reading and writing directory-backed persist stores.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ~/.config/persist/config.yaml)")
	rootCmd.PersistentFlags().Bool("compress", false, "compress leaf files with zstd")
	rootCmd.PersistentFlags().Int("compression-level", persist.CompressionDefault, "zstd level: 1 fastest, 2 default, 3 best")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")

	viper.BindPFlag("compress", rootCmd.PersistentFlags().Lookup("compress"))
	viper.BindPFlag("compression_level", rootCmd.PersistentFlags().Lookup("compression-level"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("PERSIST")
	viper.AutomaticEnv()
	viper.SetDefault("compression_level", persist.CompressionDefault)
	viper.SetDefault("log_level", "warn")

	viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "persist")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "persist")
	}
	return ".persist"
}

func newLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	config.OutputPaths = []string{"stderr"}
	return config.Build()
}

// openStore opens dir with the options configured by flags, env and config file.
func openStore(dir string, writable bool) (*persist.Store, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}

	opts := []persist.Option{persist.WithLogger(logger)}
	if viper.GetBool("compress") {
		opts = append(opts, persist.WithCompression(viper.GetInt("compression_level")))
	}
	return persist.Open(dir, writable, opts...)
}

// closeStore closes s and reports its error unless err is already set.
func closeStore(s *persist.Store, err *error) {
	if cerr := s.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}
