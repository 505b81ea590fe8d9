package id3

import (
	"errors"
	"fmt"
	"os"
)

// ReadTag reads the ID3v2 tag at the start of an MP3 file. When the file
// has no tag, it returns (nil, nil) so callers can distinguish "untagged"
// from a read failure.
func ReadTag(path string) (*Tag, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("id3: read %s: %w", path, err)
	}
	tag, err := Parse(data)
	if errors.Is(err, errNoTag) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("id3: parse tag of %s: %w", path, err)
	}
	return tag, nil
}

// ReplaceTag rewrites path so its ID3v2 tag is exactly tag, preserving the
// audio data that follows any existing tag. The file is rewritten via a
// temp sibling and renamed, so a failure part-way leaves the original
// untouched.
func ReplaceTag(path string, tag Tag) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("id3: read %s: %w", path, err)
	}
	audio := data[TagSize(data):]

	rendered, err := Render(tag)
	if err != nil {
		return err
	}

	tmp := path + ".tagtmp"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("id3: create %s: %w", tmp, err)
	}
	if _, err = out.Write(rendered); err == nil {
		_, err = out.Write(audio)
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("id3: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("id3: replace %s: %w", path, err)
	}
	return nil
}
