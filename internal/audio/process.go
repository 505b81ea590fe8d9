package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/vmunix/odgo/internal/chapters"
	"github.com/vmunix/odgo/internal/ffmpeg"
	"github.com/vmunix/odgo/internal/id3"
)

// TagFile rewrites path's tag with fields under policy, optionally replacing
// its chapter marks. Chapter marks already present are kept unless the
// policy forces an overwrite.
func TagFile(path string, fields FieldSet, markers []chapters.Marker, p Policy) error {
	tag, err := id3.ReadTag(path)
	if err != nil {
		return fmt.Errorf("audio: read tag %s: %w", path, err)
	}
	if tag == nil {
		tag = &id3.Tag{}
	}
	tag.Version = p.Version

	WriteTags(tag, fields, p)
	if len(markers) > 0 && (p.AlwaysOverwrite || !HasChapters(tag)) {
		WriteChapters(tag, markers)
	}

	if err := id3.ReplaceTag(path, *tag); err != nil {
		return fmt.Errorf("audio: write tag %s: %w", path, err)
	}
	return nil
}

// ProbeBitrate returns the audio bitrate of path in kbit/s. Variable-bitrate
// files report 0; callers fall back to the encoder default.
func ProbeBitrate(ctx context.Context, runner ffmpeg.Runner, path string) (int, error) {
	out, err := runner.Probe(ctx, ffmpeg.ProbeBitrateArgs(path))
	if err != nil {
		return 0, err
	}

	var probe struct {
		Streams []struct {
			BitRate string `json:"bit_rate"`
		} `json:"streams"`
		Format struct {
			BitRate string `json:"bit_rate"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, fmt.Errorf("audio: parse probe output: %w", err)
	}

	raw := ""
	if len(probe.Streams) > 0 {
		raw = probe.Streams[0].BitRate
	}
	if raw == "" || raw == "N/A" {
		raw = probe.Format.BitRate
	}
	bps, err := strconv.Atoi(raw)
	if err != nil {
		// VBR streams report no usable rate
		return 0, nil
	}
	return bps / 1000, nil
}

// MergeParts concatenates the part files into a single MP3 at dest,
// writing through a temp file so dest never holds a half-merged book.
func MergeParts(ctx context.Context, runner ffmpeg.Runner, parts []string, bitrateKbps int, dest string) error {
	tmp := dest + ".part"
	if err := runner.Run(ctx, ffmpeg.MergeMP3Args(parts, bitrateKbps, tmp)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("audio: merge: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("audio: finalize %s: %w", dest, err)
	}
	return nil
}

// TranscodeM4B converts the merged MP3 at src into an M4B at dest, embedding
// coverPath as the attached picture when non-empty. src is removed only
// after the M4B lands.
func TranscodeM4B(ctx context.Context, runner ffmpeg.Runner, src, coverPath, codec string, bitrateKbps int, dest string) error {
	tmp := dest + ".part"
	if err := runner.Run(ctx, ffmpeg.TranscodeM4BArgs(src, coverPath, codec, bitrateKbps, tmp)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("audio: transcode m4b: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("audio: finalize %s: %w", dest, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("audio: remove intermediate %s: %w", src, err)
	}
	return nil
}
