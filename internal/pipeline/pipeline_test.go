package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/odgo/internal/config"
	"github.com/vmunix/odgo/internal/fetch"
	"github.com/vmunix/odgo/internal/id3"
	"github.com/vmunix/odgo/internal/overdrive"
)

const (
	part1Name = "{AAAAAAAA-BBBB-CCCC-DDDD-EEEEFFFF0000}Fmt425-Part01.mp3"
	part2Name = "{AAAAAAAA-BBBB-CCCC-DDDD-EEEEFFFF0000}Fmt425-Part02.mp3"
)

// fakeRunner touches the output path of every run so renames succeed and
// answers probes with a fixed CBR rate.
type fakeRunner struct{}

func (fakeRunner) Run(ctx context.Context, args []string) error {
	return os.WriteFile(args[len(args)-1], []byte{0xFF, 0xFB, 0x90, 0x00}, 0o644)
}

func (fakeRunner) Probe(ctx context.Context, args []string) ([]byte, error) {
	return []byte(`{"streams":[{"bit_rate":"64000"}]}`), nil
}

const mediaJSON = `{
	"id": "9999999",
	"title": "Ceremonials",
	"type": {"id": "audiobook"},
	"languages": [{"id": "en", "name": "English"}],
	"creators": [{"id": 1, "name": "A. Writer", "role": "Author", "sortName": "Writer, A."}],
	"publisher": {"name": "Island"},
	"publishDate": "2011-10-28T00:00:00Z"
}`

// vendorServer serves audio parts, ebook pages, and the catalog endpoint.
func vendorServer(t *testing.T, requests *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			requests.Add(1)
		}
		switch {
		case strings.HasPrefix(r.URL.Path, "/v2/media/"):
			w.Write([]byte(mediaJSON))
		case strings.HasSuffix(r.URL.Path, ".mp3"):
			w.Write([]byte("audio-bytes"))
		case strings.HasSuffix(r.URL.Path, ".jpg"):
			w.Write([]byte("\xff\xd8jpegdata"))
		case strings.HasSuffix(r.URL.Path, "cover.xhtml"):
			w.Write([]byte(`<html><head></head><body><img src="images/cover.jpg"/></body></html>`))
		case strings.HasSuffix(r.URL.Path, ".xhtml"):
			w.Write([]byte(`<html><head></head><body><p>Page</p></body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func audiobookFixtures() (*overdrive.LoanManifest, *overdrive.OpenBook) {
	loan := &overdrive.LoanManifest{
		ID:               "9999999",
		Title:            "Ceremonials",
		Series:           "Verses",
		PublishDate:      "2011-10-28T00:00:00Z",
		Type:             overdrive.TypeRef{ID: overdrive.TypeAudiobook},
		PublisherAccount: overdrive.NameRef{Name: "Island"},
		Subjects:         []overdrive.Subject{{Name: "Fiction"}},
	}
	audioBytes := int64(len("audio-bytes"))
	book := &overdrive.OpenBook{
		Title:    overdrive.BookTitle{Main: "Ceremonials"},
		Language: "en",
		Creators: []overdrive.Creator{
			{Name: "A. Writer", Role: "author"},
			{Name: "N. Reader", Role: "narrator"},
		},
		Nav: overdrive.Nav{TOC: []overdrive.TOCEntry{
			{Title: "Chapter 1", Path: part1Name},
			{Title: "Chapter 2", Path: part2Name},
		}},
		Spine: []overdrive.SpineItem{
			{Path: "part01.mp3", OriginalPath: part1Name, AudioDuration: 100, FileBytes: audioBytes, SpinePosition: 0},
			{Path: "part02.mp3", OriginalPath: part2Name, AudioDuration: 200, FileBytes: audioBytes, SpinePosition: 1},
		},
	}
	return loan, book
}

func newTestPipeline(t *testing.T, srv *httptest.Server, opts Options) *Pipeline {
	t.Helper()
	if opts.DownloadDir == "" {
		opts.DownloadDir = t.TempDir()
	}
	runner := fakeRunner{}
	return New(Deps{
		Client:  overdrive.NewClient(overdrive.WithBaseURL(srv.URL)),
		Fetcher: fetch.New(srv.Client(), runner, nil, nil),
		HTTP:    srv.Client(),
		Runner:  runner,
	}, opts)
}

func TestProcessAudiobook_TagsParts(t *testing.T) {
	srv := vendorServer(t, nil)
	loan, book := audiobookFixtures()
	dir := t.TempDir()
	p := newTestPipeline(t, srv, Options{
		DownloadDir: dir,
		Chapters:    true,
		ID3Version:  id3.V24,
	})

	err := p.ProcessAudiobook(context.Background(), AudiobookInput{
		Loan: loan, Book: book, BaseURL: srv.URL + "/",
	})
	require.NoError(t, err)

	bookDir := filepath.Join(dir, "Ceremonials - A. Writer")
	part1 := filepath.Join(bookDir, "ceremonials-part-01.mp3")
	part2 := filepath.Join(bookDir, "ceremonials-part-02.mp3")
	require.FileExists(t, part1)
	require.FileExists(t, part2)

	tag, err := id3.ReadTag(part1)
	require.NoError(t, err)
	require.NotNil(t, tag)
	assert.Equal(t, "Ceremonials", tag.First(id3.FrameTitle).Text)
	assert.Equal(t, "01/02", tag.First(id3.FrameTrack).Text)
	assert.True(t, tag.Has(id3.FrameChapter), "chapter marks written per part")
}

func TestProcessAudiobook_MergeToM4B(t *testing.T) {
	srv := vendorServer(t, nil)
	loan, book := audiobookFixtures()
	dir := t.TempDir()
	p := newTestPipeline(t, srv, Options{
		DownloadDir: dir,
		Merge:       true,
		MergeFormat: "m4b",
		MergeCodec:  "aac",
		Chapters:    true,
		GenerateOPF: true,
		ID3Version:  id3.V24,
	})

	err := p.ProcessAudiobook(context.Background(), AudiobookInput{
		Loan: loan, Book: book, BaseURL: srv.URL + "/",
	})
	require.NoError(t, err)

	bookDir := filepath.Join(dir, "Ceremonials - A. Writer")
	assert.FileExists(t, filepath.Join(bookDir, "Ceremonials.m4b"))
	assert.NoFileExists(t, filepath.Join(bookDir, "Ceremonials.mp3"),
		"intermediate merged mp3 is consumed by the m4b conversion")
	assert.NoFileExists(t, filepath.Join(bookDir, "ceremonials-part-01.mp3"),
		"part files are removed after the merge")

	opf, err := os.ReadFile(filepath.Join(bookDir, "Ceremonials.opf"))
	require.NoError(t, err)
	assert.Contains(t, string(opf), "<dc:title>Ceremonials</dc:title>")
	assert.Contains(t, string(opf), `href="Ceremonials.m4b"`)
	assert.Contains(t, string(opf), `idref="ceremonials"`)
}

func TestProcessAudiobook_KeepMP3(t *testing.T) {
	srv := vendorServer(t, nil)
	loan, book := audiobookFixtures()
	dir := t.TempDir()
	p := newTestPipeline(t, srv, Options{
		DownloadDir: dir,
		Merge:       true,
		MergeFormat: "mp3",
		KeepMP3:     true,
		ID3Version:  id3.V24,
	})

	err := p.ProcessAudiobook(context.Background(), AudiobookInput{
		Loan: loan, Book: book, BaseURL: srv.URL + "/",
	})
	require.NoError(t, err)

	bookDir := filepath.Join(dir, "Ceremonials - A. Writer")
	assert.FileExists(t, filepath.Join(bookDir, "Ceremonials.mp3"))
	assert.FileExists(t, filepath.Join(bookDir, "ceremonials-part-01.mp3"))
	assert.FileExists(t, filepath.Join(bookDir, "ceremonials-part-02.mp3"))
}

func TestProcessAudiobook_SkipsSavedMerge(t *testing.T) {
	var requests atomic.Int64
	srv := vendorServer(t, &requests)
	loan, book := audiobookFixtures()
	dir := t.TempDir()

	bookDir := filepath.Join(dir, "Ceremonials - A. Writer")
	require.NoError(t, os.MkdirAll(bookDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bookDir, "Ceremonials.mp3"), []byte("done"), 0o644))

	p := newTestPipeline(t, srv, Options{
		DownloadDir: dir,
		Merge:       true,
		MergeFormat: "mp3",
		ID3Version:  id3.V24,
	})
	err := p.ProcessAudiobook(context.Background(), AudiobookInput{
		Loan: loan, Book: book, BaseURL: srv.URL + "/",
	})
	require.NoError(t, err)
	assert.Zero(t, requests.Load(), "a finished book triggers no downloads")
}

func TestProcessEbook_PackagesEPUB(t *testing.T) {
	srv := vendorServer(t, nil)
	dir := t.TempDir()

	loan := &overdrive.LoanManifest{
		ID:    "9999999",
		Title: "Ceremonials",
		Type:  overdrive.TypeRef{ID: overdrive.TypeEBook},
	}
	book := &overdrive.OpenBook{
		Title:    overdrive.BookTitle{Main: "Ceremonials"},
		Creators: []overdrive.Creator{{Name: "A. Writer", Role: "author"}},
		Nav: overdrive.Nav{
			TOC: []overdrive.TOCEntry{
				{Title: "Chapter 1", Path: "ch01.xhtml"},
				{Title: "Chapter 2", Path: "ch02.xhtml"},
			},
			Landmarks: []overdrive.Landmark{{Type: "cover", Title: "Cover", Path: "cover.xhtml"}},
		},
		Spine: []overdrive.SpineItem{
			{OriginalPath: "cover.xhtml", SpinePosition: 0},
			{OriginalPath: "ch01.xhtml", SpinePosition: 1},
			{OriginalPath: "ch02.xhtml", SpinePosition: 2},
		},
	}
	rosters := []overdrive.Roster{{
		Group: "title-content",
		Entries: []overdrive.RosterEntry{
			{URL: srv.URL + "/cover.xhtml"},
			{URL: srv.URL + "/ch01.xhtml"},
			{URL: srv.URL + "/ch02.xhtml"},
			{URL: srv.URL + "/images/cover.jpg"},
		},
	}}

	p := newTestPipeline(t, srv, Options{DownloadDir: dir})
	err := p.ProcessEbook(context.Background(), EbookInput{Loan: loan, Book: book, Rosters: rosters})
	require.NoError(t, err)

	epubPath := filepath.Join(dir, "Ceremonials - A. Writer", "Ceremonials.epub")
	assert.FileExists(t, epubPath)
	assert.NoDirExists(t, filepath.Join(dir, "Ceremonials - A. Writer", "Ceremonials.staging"))
}

func TestProcessEbook_SkipsSavedBook(t *testing.T) {
	var requests atomic.Int64
	srv := vendorServer(t, &requests)
	dir := t.TempDir()

	loan := &overdrive.LoanManifest{ID: "9999999", Title: "Ceremonials", Type: overdrive.TypeRef{ID: overdrive.TypeEBook}}
	book := &overdrive.OpenBook{
		Title:    overdrive.BookTitle{Main: "Ceremonials"},
		Creators: []overdrive.Creator{{Name: "A. Writer", Role: "author"}},
	}

	bookDir := filepath.Join(dir, "Ceremonials - A. Writer")
	require.NoError(t, os.MkdirAll(bookDir, 0o755))
	target := filepath.Join(bookDir, "Ceremonials.epub")
	require.NoError(t, os.WriteFile(target, []byte("done"), 0o644))

	p := newTestPipeline(t, srv, Options{DownloadDir: dir})

	err := p.ProcessEbook(context.Background(), EbookInput{Loan: loan, Book: book})
	require.NoError(t, err)
	assert.Zero(t, requests.Load())
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Tags.ID3Version = "2.3"
	cfg.Audio.Merge = true
	cfg.Audio.MergeFormat = "m4b"
	cfg.Output.KeepCover = true

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, id3.V23, opts.ID3Version)
	assert.True(t, opts.Merge)
	assert.Equal(t, "m4b", opts.MergeFormat)
	assert.True(t, opts.KeepCover)
	assert.Equal(t, ";", opts.TagDelimiter)
}
