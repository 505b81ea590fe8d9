package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/odgo/internal/chapters"
	"github.com/vmunix/odgo/internal/id3"
)

// fakeRunner answers probes from canned output and touches the output path
// of every run so renames succeed.
type fakeRunner struct {
	probeOut []byte
	runErr   error
	lastArgs []string
}

func (r *fakeRunner) Run(ctx context.Context, args []string) error {
	r.lastArgs = args
	if r.runErr != nil {
		return r.runErr
	}
	return os.WriteFile(args[len(args)-1], []byte("audio"), 0o644)
}

func (r *fakeRunner) Probe(ctx context.Context, args []string) ([]byte, error) {
	return r.probeOut, nil
}

func TestProbeBitrate(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want int
	}{
		{
			name: "stream rate",
			out:  `{"streams":[{"bit_rate":"64000"}],"format":{"bit_rate":"64036"}}`,
			want: 64,
		},
		{
			name: "format fallback",
			out:  `{"streams":[{}],"format":{"bit_rate":"128000"}}`,
			want: 128,
		},
		{
			name: "vbr reports zero",
			out:  `{"streams":[{"bit_rate":"N/A"}],"format":{}}`,
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRunner{probeOut: []byte(tt.out)}
			got, err := ProbeBitrate(context.Background(), r, "a.mp3")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeParts(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "book.mp3")
	r := &fakeRunner{}
	require.NoError(t, MergeParts(context.Background(), r, []string{"a.mp3", "b.mp3"}, 64, dest))

	assert.FileExists(t, dest)
	assert.NoFileExists(t, dest+".part")
	assert.Contains(t, r.lastArgs, "concat:a.mp3|b.mp3")
}

func TestMergeParts_EncoderFailure(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "book.mp3")
	r := &fakeRunner{runErr: fmt.Errorf("exit status 1")}
	err := MergeParts(context.Background(), r, []string{"a.mp3"}, 64, dest)
	assert.Error(t, err)
	assert.NoFileExists(t, dest)
}

func TestTranscodeM4B_RemovesIntermediateOnSuccess(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "book.mp3")
	dest := filepath.Join(dir, "book.m4b")
	require.NoError(t, os.WriteFile(src, []byte("mp3"), 0o644))

	r := &fakeRunner{}
	require.NoError(t, TranscodeM4B(context.Background(), r, src, "", "aac", 64, dest))
	assert.FileExists(t, dest)
	assert.NoFileExists(t, src, "merged mp3 is removed after a successful transcode")
}

func TestTranscodeM4B_KeepsIntermediateOnFailure(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "book.mp3")
	dest := filepath.Join(dir, "book.m4b")
	require.NoError(t, os.WriteFile(src, []byte("mp3"), 0o644))

	r := &fakeRunner{runErr: fmt.Errorf("exit status 1")}
	err := TranscodeM4B(context.Background(), r, src, "", "aac", 64, dest)
	assert.Error(t, err)
	assert.FileExists(t, src)
	assert.NoFileExists(t, dest)
}

func TestTagFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "part.mp3")
	audio := []byte{0xFF, 0xFB, 0x90, 0x00, 1, 2, 3, 4}
	require.NoError(t, os.WriteFile(path, audio, 0o644))

	fields := sampleFields()
	markers := []chapters.Marker{{Title: "Chapter 1", Start: 0, End: 60}}
	require.NoError(t, TagFile(path, fields, markers, Policy{Version: id3.V24}))

	tag, err := id3.ReadTag(path)
	require.NoError(t, err)
	require.NotNil(t, tag)
	assert.Equal(t, id3.V24, tag.Version)
	assert.Equal(t, "Ceremonials", tag.First(id3.FrameTitle).Text)
	assert.True(t, HasChapters(tag))
}

func TestTagFile_KeepsVendorChaptersByDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "part.mp3")
	require.NoError(t, os.WriteFile(path, []byte{0xFF, 0xFB, 0x90, 0x00}, 0o644))

	// first write lays down vendor-style chapters
	vendor := []chapters.Marker{{Title: "Vendor", Start: 0, End: 30}}
	require.NoError(t, TagFile(path, FieldSet{Title: "T"}, vendor, Policy{Version: id3.V24}))

	// second write must not clobber them without AlwaysOverwrite
	ours := []chapters.Marker{{Title: "Ours", Start: 0, End: 30}}
	require.NoError(t, TagFile(path, FieldSet{Title: "T"}, ours, Policy{Version: id3.V24}))

	tag, err := id3.ReadTag(path)
	require.NoError(t, err)
	var titles []string
	for _, f := range tag.Frames {
		if f.ID == id3.FrameChapter {
			titles = append(titles, f.SubFrames[0].Text)
		}
	}
	assert.Equal(t, []string{"Vendor"}, titles)

	// and overwriting replaces them
	require.NoError(t, TagFile(path, FieldSet{Title: "T"}, ours,
		Policy{Version: id3.V24, AlwaysOverwrite: true}))
	tag, err = id3.ReadTag(path)
	require.NoError(t, err)
	titles = nil
	for _, f := range tag.Frames {
		if f.ID == id3.FrameChapter {
			titles = append(titles, f.SubFrames[0].Text)
		}
	}
	assert.Equal(t, []string{"Ours"}, titles)
}
