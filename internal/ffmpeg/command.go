// Package ffmpeg wraps invocation of the external ffmpeg/ffprobe tools.
// It only builds argument lists and reports exit status; no codec logic
// lives in this repository.
package ffmpeg

import (
	"fmt"
	"strings"
)

// RemuxCopyArgs remuxes a container with stream copy. Origin encoders are
// known to append malformed LAME tags that confuse tag parsers; a copy
// remux drops them without touching the audio.
func RemuxCopyArgs(input, output string) []string {
	return []string{
		"-y", "-nostdin", "-hide_banner",
		"-i", input,
		"-c:a", "copy",
		"-c:v", "copy",
		output,
	}
}

// MergeMP3Args concatenates MP3 parts at the container level into one MP3.
// bitrateKbps of 0 selects the fixed 64k fallback (VBR sources report no
// usable fixed rate).
func MergeMP3Args(inputs []string, bitrateKbps int, output string) []string {
	return []string{
		"-y", "-nostdin", "-hide_banner",
		"-i", "concat:" + strings.Join(inputs, "|"),
		"-acodec", "copy",
		"-b:a", bitrateArg(bitrateKbps),
		"-f", "mp3",
		output,
	}
}

// TranscodeM4BArgs re-encodes a merged MP3 into an M4B, attaching cover as
// a video stream with the attached_pic disposition. cover may be empty.
func TranscodeM4BArgs(input, cover, codec string, bitrateKbps int, output string) []string {
	if codec == "" {
		codec = "aac"
	}
	args := []string{
		"-y", "-nostdin", "-hide_banner",
		"-i", input,
	}
	if cover != "" {
		args = append(args, "-i", cover)
	}
	args = append(args,
		"-map", "0:a",
		"-c:a", codec,
		"-b:a", bitrateArg(bitrateKbps),
	)
	if cover != "" {
		args = append(args,
			"-map", "1:v",
			"-c:v", "copy",
			"-disposition:v:0", "attached_pic",
		)
	}
	return append(args, "-f", "mp4", output)
}

// ProbeBitrateArgs asks ffprobe for the bit rate of the first audio stream.
func ProbeBitrateArgs(input string) []string {
	return []string{
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=bit_rate:format=bit_rate",
		"-of", "json",
		input,
	}
}

func bitrateArg(kbps int) string {
	if kbps <= 0 {
		kbps = 64
	}
	return fmt.Sprintf("%dk", kbps)
}
