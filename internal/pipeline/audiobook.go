package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmunix/odgo/internal/audio"
	"github.com/vmunix/odgo/internal/chapters"
	"github.com/vmunix/odgo/internal/epub"
	"github.com/vmunix/odgo/internal/fetch"
	"github.com/vmunix/odgo/internal/naming"
	"github.com/vmunix/odgo/internal/overdrive"
)

// AudiobookInput carries the manifests needed to process one audiobook loan.
type AudiobookInput struct {
	Loan *overdrive.LoanManifest
	Book *overdrive.OpenBook
	// BaseURL is the content root the openbook's spine paths resolve against.
	BaseURL string
}

// ProcessAudiobook downloads an audiobook's parts, tags them, and optionally
// merges them into a single MP3 or M4B.
func (p *Pipeline) ProcessAudiobook(ctx context.Context, in AudiobookInput) error {
	book := in.Book
	dir, base, err := p.bookPaths(in.Loan, book.Authors())
	if err != nil {
		return err
	}

	mergedName := base + ".mp3"
	if p.opts.MergeFormat == "m4b" {
		mergedName = base + ".m4b"
	}
	mergedPath := filepath.Join(dir, mergedName)
	if p.opts.Merge {
		if _, err := os.Stat(mergedPath); err == nil {
			p.deps.Logger.Info("already saved", "path", mergedPath)
			return nil
		}
	}

	parts, err := chapters.ParseTOC(in.BaseURL, navEntries(book.Nav.TOC), spineItems(book.Spine))
	if err != nil {
		return fmt.Errorf("pipeline: %s: %w", in.Loan.Title, err)
	}
	if len(parts) == 0 {
		return fmt.Errorf("pipeline: %s: loan has no audio parts", in.Loan.Title)
	}

	coverPath, coverBytes := p.downloadCover(ctx, in.Loan, dir)

	var headers http.Header
	if ua := p.userAgent(); ua != "" {
		headers = http.Header{}
		headers.Set("User-Agent", ua)
	}
	partPaths := make([]string, 0, len(parts))
	for i, part := range parts {
		name := naming.Slugify(fmt.Sprintf("%s - Part %02d", in.Loan.Title, i+1)) + ".mp3"
		dest := filepath.Join(dir, name)
		_, err := p.deps.Fetcher.Fetch(ctx, fetch.Task{
			URL:          part.URL,
			Dest:         dest,
			ExpectedSize: part.FileSize,
			Headers:      headers,
			RemuxAudio:   true,
		})
		if err != nil {
			return fmt.Errorf("pipeline: %s: %w", in.Loan.Title, err)
		}
		partPaths = append(partPaths, dest)
	}

	// one probe covers the book; vendor parts share an encoding
	bitrate, err := audio.ProbeBitrate(ctx, p.deps.Runner, partPaths[0])
	if err != nil {
		p.deps.Logger.Warn("bitrate probe failed, using encoder default", "error", err)
		bitrate = 0
	}

	fields := p.audioFields(in.Loan, book, coverBytes)
	policy := audio.Policy{
		AlwaysOverwrite: p.opts.OverwriteTags,
		Delimiter:       p.opts.TagDelimiter,
		Version:         p.opts.ID3Version,
	}

	tagFailed := false
	if p.opts.Merge {
		mergedMP3 := filepath.Join(dir, base+".mp3")
		if err := audio.MergeParts(ctx, p.deps.Runner, partPaths, bitrate, mergedMP3); err != nil {
			return fmt.Errorf("pipeline: %s: %w", in.Loan.Title, err)
		}
		var markers []chapters.Marker
		if p.opts.Chapters {
			markers = chapters.MergeTimelines(parts)
		}
		if err := audio.TagFile(mergedMP3, fields, markers, policy); err != nil {
			p.deps.Logger.Error("tagging failed", "path", mergedMP3, "error", err)
			tagFailed = true
		}
		if p.opts.MergeFormat == "m4b" {
			if err := audio.TranscodeM4B(ctx, p.deps.Runner, mergedMP3, coverPath, p.opts.MergeCodec, bitrate, mergedPath); err != nil {
				return fmt.Errorf("pipeline: %s: %w", in.Loan.Title, err)
			}
		}
		if !p.opts.KeepMP3 {
			for _, path := range partPaths {
				if err := os.Remove(path); err != nil {
					p.deps.Logger.Warn("remove part file", "path", path, "error", err)
				}
			}
		}
	} else {
		for i, path := range partPaths {
			f := fields
			f.PartNumber = i + 1
			f.TotalParts = len(partPaths)
			var markers []chapters.Marker
			if p.opts.Chapters {
				markers = parts[i].Markers
			}
			if err := audio.TagFile(path, f, markers, policy); err != nil {
				p.deps.Logger.Error("tagging failed", "path", path, "error", err)
				tagFailed = true
			}
		}
	}

	if p.opts.GenerateOPF {
		tracks := make([]string, 0, len(partPaths))
		if p.opts.Merge {
			tracks = append(tracks, mergedName)
		} else {
			for _, path := range partPaths {
				tracks = append(tracks, filepath.Base(path))
			}
		}
		opfPath := filepath.Join(dir, base+".opf")
		if err := p.writeAudiobookOPF(ctx, in.Loan, opfPath, coverPath != "", tracks); err != nil {
			p.deps.Logger.Warn("opf sidecar failed", "path", opfPath, "error", err)
		}
	}

	// a failed tag pass leaves the cover as the only usable artwork
	p.removeCover(coverPath, p.opts.KeepCover || tagFailed)
	return nil
}

// audioFields assembles the tag metadata for a loan.
func (p *Pipeline) audioFields(loan *overdrive.LoanManifest, book *overdrive.OpenBook, cover []byte) audio.FieldSet {
	var langs []string
	if book.Language != "" {
		langs = []string{book.Language}
	}
	return audio.FieldSet{
		Title:       loan.Title,
		Subtitle:    loan.Subtitle,
		Authors:     book.Authors(),
		Narrators:   book.Narrators(),
		Publisher:   loan.PublisherAccount.Name,
		Description: book.BestDescription(),
		Cover:       cover,
		Genres:      loan.SubjectNames(),
		Languages:   langs,
		PublishDate: loan.PublishDate,
		Series:      loan.Series,
		MediaID:     loan.ID,
		ISBN: overdrive.ExtractISBN(loan.Formats,
			[]string{overdrive.FormatAudiobookMP3, overdrive.FormatAudiobookLibby}),
	}
}

// writeAudiobookOPF writes a metadata sidecar listing the audio tracks,
// enriched from the catalog record.
func (p *Pipeline) writeAudiobookOPF(ctx context.Context, loan *overdrive.LoanManifest, path string, hasCover bool, tracks []string) error {
	if p.deps.Client == nil {
		return fmt.Errorf("pipeline: no catalog client configured")
	}
	media, err := p.deps.Client.Media(ctx, loan.ID)
	if err != nil {
		return err
	}

	pkg := epub.BuildPackage(media, epub.OPFVersion2, overdrive.FormatAudiobookMP3)
	manifest := pkg.Sub("manifest")
	if hasCover {
		manifest.Sub("item", "id", "cover", "href", "cover.jpg", "media-type", "image/jpeg")
	}
	spine := pkg.Sub("spine")
	for _, name := range tracks {
		id := naming.OPFID(strings.TrimSuffix(name, filepath.Ext(name)))
		manifest.Sub("item", "id", id, "href", name, "media-type", "audio/mpeg")
		spine.Sub("itemref", "idref", id)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return pkg.Encode(f)
}

// navEntries converts the vendor navigation toc for timeline parsing.
func navEntries(toc []overdrive.TOCEntry) []chapters.TOCEntry {
	out := make([]chapters.TOCEntry, 0, len(toc))
	for _, e := range toc {
		out = append(out, chapters.TOCEntry{
			Title:    e.Title,
			Path:     e.Path,
			Contents: navEntries(e.Contents),
		})
	}
	return out
}

// spineItems converts the vendor spine for timeline parsing.
func spineItems(spine []overdrive.SpineItem) []chapters.SpineItem {
	out := make([]chapters.SpineItem, 0, len(spine))
	for _, s := range spine {
		out = append(out, chapters.SpineItem{
			Path:          s.Path,
			OriginalPath:  s.OriginalPath,
			AudioDuration: s.AudioDuration,
			FileBytes:     s.FileBytes,
			SpinePosition: s.SpinePosition,
		})
	}
	return out
}
