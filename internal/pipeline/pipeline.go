// Package pipeline drives a loan from manifest to finished file: part
// downloads, tagging, merge and M4B conversion for audiobooks, EPUB
// assembly for ebooks and magazines.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/vmunix/odgo/internal/config"
	"github.com/vmunix/odgo/internal/fetch"
	"github.com/vmunix/odgo/internal/ffmpeg"
	"github.com/vmunix/odgo/internal/id3"
	"github.com/vmunix/odgo/internal/naming"
	"github.com/vmunix/odgo/internal/overdrive"
)

// squareCoverSize is the edge length requested from the cover resizer.
const squareCoverSize = 510

// Deps are the external collaborators of a Pipeline. Tests inject fakes.
type Deps struct {
	Client  *overdrive.Client
	Fetcher *fetch.Fetcher
	HTTP    *http.Client
	Runner  ffmpeg.Runner
	Logger  *slog.Logger
}

// Options control output layout and processing behavior for one run.
type Options struct {
	DownloadDir  string
	FolderFormat string
	FileFormat   string
	NoBookFolder bool
	KeepCover    bool
	GenerateOPF  bool

	Merge       bool
	MergeFormat string // "mp3" or "m4b"
	MergeCodec  string
	Chapters    bool
	KeepMP3     bool

	OverwriteTags bool
	TagDelimiter  string
	ID3Version    id3.Version

	UserAgent string
}

// OptionsFromConfig maps a loaded configuration onto pipeline options.
func OptionsFromConfig(cfg *config.Config) Options {
	version := id3.V24
	if cfg.Tags.ID3Version == "2.3" {
		version = id3.V23
	}
	return Options{
		DownloadDir:   cfg.Output.DownloadDir,
		FolderFormat:  cfg.Output.BookFolderFormat,
		FileFormat:    cfg.Output.BookFileFormat,
		NoBookFolder:  cfg.Output.NoBookFolder,
		KeepCover:     cfg.Output.KeepCover,
		GenerateOPF:   cfg.Output.GenerateOPF,
		Merge:         cfg.Audio.Merge,
		MergeFormat:   cfg.Audio.MergeFormat,
		MergeCodec:    cfg.Audio.MergeCodec,
		Chapters:      cfg.Audio.Chapters,
		KeepMP3:       cfg.Audio.KeepMP3,
		OverwriteTags: cfg.Tags.Overwrite,
		TagDelimiter:  cfg.Tags.Delimiter,
		ID3Version:    version,
		UserAgent:     cfg.Network.UserAgent,
	}
}

// Pipeline processes loans according to its options.
type Pipeline struct {
	deps  Deps
	opts  Options
	namer *naming.Namer
}

// New creates a Pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if deps.HTTP == nil {
		deps.HTTP = http.DefaultClient
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Pipeline{
		deps:  deps,
		opts:  opts,
		namer: naming.NewNamer(opts.FolderFormat, opts.FileFormat),
	}
}

// bookPaths derives the book folder and base file name for a loan and
// creates the folder.
func (p *Pipeline) bookPaths(loan *overdrive.LoanManifest, authors []string) (dir, base string, err error) {
	fields := naming.Fields{
		Title:        loan.Title,
		Authors:      authors,
		Series:       loan.Series,
		Edition:      loan.Edition,
		ID:           loan.ID,
		ReadingOrder: loan.DetailedSeries.ReadingOrder,
	}
	dir = p.namer.BookFolder(p.opts.DownloadDir, fields)
	if p.opts.NoBookFolder {
		dir = p.opts.DownloadDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("pipeline: create book folder %s: %w", dir, err)
	}
	return dir, p.namer.BookFile(fields), nil
}

// downloadCover saves the loan's cover into the book folder and returns its
// path and bytes. A missing or failing cover is not fatal; both returns are
// empty then.
func (p *Pipeline) downloadCover(ctx context.Context, loan *overdrive.LoanManifest, bookDir string) (string, []byte) {
	href := loan.BestCoverURL()
	if href == "" {
		return "", nil
	}
	coverPath := filepath.Join(bookDir, "cover.jpg")
	if data, err := os.ReadFile(coverPath); err == nil {
		return coverPath, data
	}

	data, err := p.fetchAsset(ctx, overdrive.SquareCoverURL(href, squareCoverSize))
	if err != nil {
		// the resizer rejects some CDN paths; the original still works
		p.deps.Logger.Warn("square cover failed, using original", "error", err)
		data, err = p.fetchAsset(ctx, href)
	}
	if err != nil {
		p.deps.Logger.Warn("cover download failed", "url", href, "error", err)
		return "", nil
	}
	if err := os.WriteFile(coverPath, data, 0o644); err != nil {
		p.deps.Logger.Warn("cover save failed", "path", coverPath, "error", err)
		return "", nil
	}
	return coverPath, data
}

// fetchAsset downloads one URL into memory.
func (p *Pipeline) fetchAsset(ctx context.Context, assetURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("pipeline: build request for %s: %w", assetURL, err)
	}
	if ua := p.userAgent(); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	resp, err := p.deps.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pipeline: get %s: %w", assetURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pipeline: get %s: HTTP %d", assetURL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// userAgent picks the identity presented on asset downloads: the configured
// override, else the catalog client's.
func (p *Pipeline) userAgent() string {
	if p.opts.UserAgent != "" {
		return p.opts.UserAgent
	}
	if p.deps.Client != nil {
		return p.deps.Client.UserAgent()
	}
	return ""
}

// removeCover deletes the downloaded cover unless the run keeps it.
func (p *Pipeline) removeCover(coverPath string, keep bool) {
	if keep || coverPath == "" {
		return
	}
	if err := os.Remove(coverPath); err != nil && !os.IsNotExist(err) {
		p.deps.Logger.Warn("remove cover", "path", coverPath, "error", err)
	}
}
