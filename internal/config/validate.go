package config

import (
	"fmt"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true, "": true,
}

var validMergeFormats = map[string]bool{
	"mp3": true, "m4b": true,
}

var validID3Versions = map[string]bool{
	"2.3": true, "2.4": true,
}

// Validate checks the configuration for errors.
// Returns a slice of error messages (empty if valid).
func (c *Config) Validate() []string {
	var errs []string

	if !validLogLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level: must be one of debug, info, warn, error; got %q", c.Log.Level))
	}
	if !validMergeFormats[c.Audio.MergeFormat] {
		errs = append(errs, fmt.Sprintf("audio.merge_format: must be mp3 or m4b, got %q", c.Audio.MergeFormat))
	}
	if !validID3Versions[c.Tags.ID3Version] {
		errs = append(errs, fmt.Sprintf("tags.id3_version: must be 2.3 or 2.4, got %q", c.Tags.ID3Version))
	}
	if c.Network.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Sprintf("network.timeout: must not be negative, got %d", c.Network.TimeoutSeconds))
	}
	if c.Network.Retries < 0 {
		errs = append(errs, fmt.Sprintf("network.retries: must not be negative, got %d", c.Network.Retries))
	}
	for _, tmpl := range []struct{ key, value string }{
		{"output.book_folder_format", c.Output.BookFolderFormat},
		{"output.book_file_format", c.Output.BookFileFormat},
	} {
		if strings.Count(tmpl.value, "{") != strings.Count(tmpl.value, "}") {
			errs = append(errs, fmt.Sprintf("%s: unbalanced braces in %q", tmpl.key, tmpl.value))
		}
	}

	return errs
}
