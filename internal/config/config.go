// Package config handles TOML configuration loading with environment
// variable substitution.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config is the root configuration structure.
type Config struct {
	Output  OutputConfig  `toml:"output"`
	Audio   AudioConfig   `toml:"audio"`
	Tags    TagsConfig    `toml:"tags"`
	Network NetworkConfig `toml:"network"`
	FFmpeg  FFmpegConfig  `toml:"ffmpeg"`
	Log     LogConfig     `toml:"log"`
}

// OutputConfig controls where and how books land on disk.
type OutputConfig struct {
	DownloadDir      string `toml:"download_dir"`
	BookFolderFormat string `toml:"book_folder_format"`
	BookFileFormat   string `toml:"book_file_format"`
	NoBookFolder     bool   `toml:"no_book_folder"`
	KeepCover        bool   `toml:"keep_cover"`
	GenerateOPF      bool   `toml:"generate_opf"`
}

// AudioConfig controls audiobook post-processing.
type AudioConfig struct {
	Merge       bool   `toml:"merge"`
	MergeFormat string `toml:"merge_format"` // "mp3" or "m4b"
	MergeCodec  string `toml:"merge_codec"`
	Chapters    bool   `toml:"chapters"`
	KeepMP3     bool   `toml:"keep_mp3"`
}

// TagsConfig controls ID3 tagging.
type TagsConfig struct {
	Overwrite  bool   `toml:"overwrite"`
	Delimiter  string `toml:"delimiter"`
	ID3Version string `toml:"id3_version"` // "2.3" or "2.4"
}

// NetworkConfig controls HTTP behavior.
type NetworkConfig struct {
	TimeoutSeconds int    `toml:"timeout"`
	Retries        int    `toml:"retries"`
	UserAgent      string `toml:"user_agent"`
}

// FFmpegConfig locates the external tools.
type FFmpegConfig struct {
	Path      string `toml:"path"`
	ProbePath string `toml:"probe_path"`
}

// LogConfig controls logging and terminal output.
type LogConfig struct {
	Level        string `toml:"level"`
	HideProgress bool   `toml:"hide_progress"`
}

// Load reads and parses the configuration file. A .env file in the working
// directory is loaded first so ${VAR} references can come from it.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	content, missing := substituteEnvVars(string(data))
	if len(missing) > 0 {
		return nil, &ConfigError{Path: path, Missing: missing}
	}

	var cfg Config
	if _, err := toml.Decode(content, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, &ConfigError{Path: path, Errors: errs}
	}
	return &cfg, nil
}

// Default returns a config with all defaults applied, for running without a
// config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Output.DownloadDir == "" {
		c.Output.DownloadDir = "."
	}
	if c.Output.BookFolderFormat == "" {
		c.Output.BookFolderFormat = "{Title} - {Author}"
	}
	if c.Output.BookFileFormat == "" {
		c.Output.BookFileFormat = "{Title}"
	}
	if c.Audio.MergeFormat == "" {
		c.Audio.MergeFormat = "mp3"
	}
	if c.Audio.MergeCodec == "" {
		c.Audio.MergeCodec = "aac"
	}
	if c.Tags.Delimiter == "" {
		c.Tags.Delimiter = ";"
	}
	if c.Tags.ID3Version == "" {
		c.Tags.ID3Version = "2.4"
	}
	if c.Network.TimeoutSeconds == 0 {
		c.Network.TimeoutSeconds = 30
	}
	if c.Network.Retries == 0 {
		c.Network.Retries = 1
	}
	if c.FFmpeg.Path == "" {
		c.FFmpeg.Path = "ffmpeg"
	}
	if c.FFmpeg.ProbePath == "" {
		c.FFmpeg.ProbePath = "ffprobe"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
