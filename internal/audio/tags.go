// Package audio applies book metadata and chapter marks to MP3 parts and
// drives the external encoder for merge and M4B output.
//
// Tagging is split into a pure layer that edits an in-memory tag and a thin
// file layer, so the policy rules are testable without audio fixtures.
package audio

import (
	"fmt"
	"math"

	"github.com/vmunix/odgo/internal/chapters"
	"github.com/vmunix/odgo/internal/id3"
)

// FieldSet is the complete metadata for one audio file. Empty fields are
// never written.
type FieldSet struct {
	Title       string
	Subtitle    string
	Authors     []string
	Narrators   []string
	Publisher   string
	Description string
	Cover       []byte // JPEG bytes
	Genres      []string
	Languages   []string
	PublishDate string
	Series      string
	PartNumber  int // 1-based; 0 when the file is a whole book
	TotalParts  int
	MediaID     string
	ISBN        string
}

// Policy controls how FieldSet values interact with tags already present
// in the file.
type Policy struct {
	// AlwaysOverwrite replaces existing values instead of preserving them.
	AlwaysOverwrite bool
	// OverwriteTitle forces the title even when AlwaysOverwrite is off.
	// Vendor-supplied files often carry a working title.
	OverwriteTitle bool
	// Delimiter joins multi-value fields. Defaults to ";".
	Delimiter string
	// Version selects the ID3 revision for rendering.
	Version id3.Version
}

func (p Policy) delimiter() string {
	if p.Delimiter == "" {
		return ";"
	}
	return p.Delimiter
}

// WriteTags applies fields to tag under the given policy. A field lands only
// when it has a value and either overwriting is forced or the frame is not
// already present.
func WriteTags(tag *id3.Tag, fields FieldSet, p Policy) {
	delim := p.delimiter()
	join := func(vals []string) string {
		out := ""
		for i, v := range vals {
			if i > 0 {
				out += delim
			}
			out += v
		}
		return out
	}

	if p.AlwaysOverwrite || p.OverwriteTitle || !tag.Has(id3.FrameTitle) {
		setText(tag, id3.FrameTitle, fields.Title)
	}
	if fields.Subtitle != "" && (p.AlwaysOverwrite || !tag.Has(id3.FrameSubTitle)) {
		setText(tag, id3.FrameSubTitle, fields.Subtitle)
	}
	if p.AlwaysOverwrite || !tag.Has(id3.FrameAlbum) {
		setText(tag, id3.FrameAlbum, fields.Title)
	}
	if len(fields.Authors) > 0 {
		if p.AlwaysOverwrite || !tag.Has(id3.FrameArtist) {
			setText(tag, id3.FrameArtist, join(fields.Authors))
		}
		if p.AlwaysOverwrite || !tag.Has(id3.FrameAlbumArtist) {
			setText(tag, id3.FrameAlbumArtist, join(fields.Authors))
		}
	}
	if fields.PartNumber > 0 && (p.AlwaysOverwrite || !tag.Has(id3.FrameTrack)) {
		setText(tag, id3.FrameTrack, fmt.Sprintf("%02d/%02d", fields.PartNumber, fields.TotalParts))
	}
	if len(fields.Narrators) > 0 && (p.AlwaysOverwrite || !tag.Has(id3.FrameConductor)) {
		setText(tag, id3.FrameConductor, join(fields.Narrators))
	}
	if fields.Publisher != "" && (p.AlwaysOverwrite || !tag.Has(id3.FramePublisher)) {
		setText(tag, id3.FramePublisher, fields.Publisher)
	}
	if fields.Description != "" && (p.AlwaysOverwrite || !tag.Has(id3.FrameComment)) {
		tag.Remove(func(f id3.Frame) bool {
			return f.ID == id3.FrameComment && f.Description == "Description"
		})
		tag.Frames = append(tag.Frames, id3.Frame{
			ID:          id3.FrameComment,
			Language:    "eng",
			Description: "Description",
			Text:        fields.Description,
		})
	}
	if len(fields.Genres) > 0 && (p.AlwaysOverwrite || !tag.Has(id3.FrameGenre)) {
		setText(tag, id3.FrameGenre, join(fields.Genres))
	}
	if len(fields.Languages) > 0 && (p.AlwaysOverwrite || !tag.Has(id3.FrameLanguage)) {
		setText(tag, id3.FrameLanguage, join(fields.Languages))
	}
	if fields.PublishDate != "" && (p.AlwaysOverwrite || !tag.Has(id3.FrameReleaseDate)) {
		setText(tag, id3.FrameReleaseDate, fields.PublishDate)
	}
	if len(fields.Cover) > 0 {
		tag.Remove(func(f id3.Frame) bool { return f.ID == id3.FramePicture })
		tag.Frames = append(tag.Frames, id3.Frame{
			ID:          id3.FramePicture,
			MIMEType:    "image/jpeg",
			PictureType: id3.PictureCoverFront,
			Description: "Cover",
			Data:        fields.Cover,
		})
	}
	if fields.Series != "" {
		setUserText(tag, "Series", fields.Series)
	}
	if fields.MediaID != "" {
		desc := "OverDrive Reserve ID"
		if allDigits(fields.MediaID) {
			desc = "OverDrive Media ID"
		}
		setUserText(tag, desc, fields.MediaID)
	}
	if fields.ISBN != "" {
		setUserText(tag, "ISBN", fields.ISBN)
	}
}

// WriteChapters replaces tag's chapter structure with markers: one top-level
// ordered table of contents plus one chapter frame per marker. Existing
// chapter frames are removed first so the single-TOC shape holds.
func WriteChapters(tag *id3.Tag, markers []chapters.Marker) {
	tag.Remove(func(f id3.Frame) bool {
		return f.ID == id3.FrameTOC || f.ID == id3.FrameChapter
	})

	childIDs := make([]string, 0, len(markers))
	for i, m := range markers {
		elemID := fmt.Sprintf("ch%02d", i)
		childIDs = append(childIDs, elemID)
		tag.Frames = append(tag.Frames, id3.Frame{
			ID:        id3.FrameChapter,
			ElementID: elemID,
			StartMS:   uint32(math.Round(m.Start * 1000)),
			EndMS:     uint32(math.Round(m.End * 1000)),
			SubFrames: []id3.Frame{id3.TextFrame(id3.FrameTitle, m.Title)},
		})
	}
	tag.Frames = append(tag.Frames, id3.Frame{
		ID:        id3.FrameTOC,
		ElementID: "toc",
		TopLevel:  true,
		Ordered:   true,
		ChildIDs:  childIDs,
		SubFrames: []id3.Frame{id3.TextFrame(id3.FrameTitle, "Table of Contents")},
	})
}

// HasChapters reports whether tag already carries a table of contents.
func HasChapters(tag *id3.Tag) bool {
	return tag != nil && tag.Has(id3.FrameTOC)
}

func setText(tag *id3.Tag, id, text string) {
	tag.Remove(func(f id3.Frame) bool { return f.ID == id })
	tag.Frames = append(tag.Frames, id3.TextFrame(id, text))
}

func setUserText(tag *id3.Tag, desc, text string) {
	tag.Remove(func(f id3.Frame) bool {
		return f.ID == id3.FrameUserText && f.Description == desc
	})
	tag.Frames = append(tag.Frames, id3.Frame{
		ID:          id3.FrameUserText,
		Description: desc,
		Text:        text,
	})
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
