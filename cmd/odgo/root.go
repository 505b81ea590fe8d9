package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vmunix/odgo/internal/config"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "odgo",
	Short: "Download OverDrive/Libby loans as audiobooks and ebooks",
	Long: `odgo - OverDrive/Libby loan downloader

Turns exported loan manifests into chaptered, ID3-tagged MP3/M4B
audiobooks and EPUB ebooks/magazines.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: standard search order)")

	rootCmd.Version = version
	rootCmd.SetVersionTemplate("odgo {{.Version}}\n")
}

// loadConfig resolves the --config flag against the discovery order. No
// config file anywhere means defaults.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		found, err := config.Discover()
		if err != nil {
			return config.Default(), nil
		}
		path = found
	}
	return config.Load(path)
}

// newLogger builds the process logger at the configured level.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
