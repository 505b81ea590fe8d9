package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/odgo/internal/chapters"
	"github.com/vmunix/odgo/internal/id3"
)

func sampleFields() FieldSet {
	return FieldSet{
		Title:       "Ceremonials",
		Subtitle:    "A Novel",
		Authors:     []string{"A. Writer", "B. Writer"},
		Narrators:   []string{"N. Reader"},
		Publisher:   "Big House",
		Description: "About things.",
		Genres:      []string{"Fiction", "Fantasy"},
		Languages:   []string{"en"},
		PublishDate: "2020-01-02",
		Series:      "Verses",
		PartNumber:  2,
		TotalParts:  10,
		MediaID:     "9999999",
		ISBN:        "9780111222333",
	}
}

func textOf(t *testing.T, tag *id3.Tag, id string) string {
	t.Helper()
	f := tag.First(id)
	require.NotNil(t, f, "frame %s", id)
	return f.Text
}

func userText(tag *id3.Tag, desc string) string {
	for _, f := range tag.Frames {
		if f.ID == id3.FrameUserText && f.Description == desc {
			return f.Text
		}
	}
	return ""
}

func TestWriteTags_FreshTag(t *testing.T) {
	tag := &id3.Tag{Version: id3.V24}
	WriteTags(tag, sampleFields(), Policy{})

	assert.Equal(t, "Ceremonials", textOf(t, tag, id3.FrameTitle))
	assert.Equal(t, "A Novel", textOf(t, tag, id3.FrameSubTitle))
	assert.Equal(t, "Ceremonials", textOf(t, tag, id3.FrameAlbum))
	assert.Equal(t, "A. Writer;B. Writer", textOf(t, tag, id3.FrameArtist))
	assert.Equal(t, "A. Writer;B. Writer", textOf(t, tag, id3.FrameAlbumArtist))
	assert.Equal(t, "02/10", textOf(t, tag, id3.FrameTrack))
	assert.Equal(t, "N. Reader", textOf(t, tag, id3.FrameConductor))
	assert.Equal(t, "Big House", textOf(t, tag, id3.FramePublisher))
	assert.Equal(t, "Fiction;Fantasy", textOf(t, tag, id3.FrameGenre))
	assert.Equal(t, "2020-01-02", textOf(t, tag, id3.FrameReleaseDate))

	comm := tag.First(id3.FrameComment)
	require.NotNil(t, comm)
	assert.Equal(t, "Description", comm.Description)
	assert.Equal(t, "About things.", comm.Text)

	assert.Equal(t, "Verses", userText(tag, "Series"))
	assert.Equal(t, "9999999", userText(tag, "OverDrive Media ID"))
	assert.Equal(t, "9780111222333", userText(tag, "ISBN"))
}

func TestWriteTags_PreservesExistingByDefault(t *testing.T) {
	tag := &id3.Tag{Version: id3.V24, Frames: []id3.Frame{
		id3.TextFrame(id3.FrameTitle, "Working Title"),
		id3.TextFrame(id3.FrameArtist, "Old Artist"),
	}}
	WriteTags(tag, sampleFields(), Policy{})

	assert.Equal(t, "Working Title", textOf(t, tag, id3.FrameTitle))
	assert.Equal(t, "Old Artist", textOf(t, tag, id3.FrameArtist))
	// unset fields still land
	assert.Equal(t, "Big House", textOf(t, tag, id3.FramePublisher))
}

func TestWriteTags_AlwaysOverwrite(t *testing.T) {
	tag := &id3.Tag{Version: id3.V24, Frames: []id3.Frame{
		id3.TextFrame(id3.FrameTitle, "Working Title"),
		id3.TextFrame(id3.FrameArtist, "Old Artist"),
	}}
	WriteTags(tag, sampleFields(), Policy{AlwaysOverwrite: true})

	assert.Equal(t, "Ceremonials", textOf(t, tag, id3.FrameTitle))
	assert.Equal(t, "A. Writer;B. Writer", textOf(t, tag, id3.FrameArtist))

	// overwrite replaces rather than duplicates
	count := 0
	for _, f := range tag.Frames {
		if f.ID == id3.FrameTitle {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestWriteTags_OverwriteTitleOnly(t *testing.T) {
	tag := &id3.Tag{Version: id3.V24, Frames: []id3.Frame{
		id3.TextFrame(id3.FrameTitle, "Working Title"),
		id3.TextFrame(id3.FrameArtist, "Old Artist"),
	}}
	WriteTags(tag, sampleFields(), Policy{OverwriteTitle: true})

	assert.Equal(t, "Ceremonials", textOf(t, tag, id3.FrameTitle))
	assert.Equal(t, "Old Artist", textOf(t, tag, id3.FrameArtist))
}

func TestWriteTags_CustomDelimiter(t *testing.T) {
	tag := &id3.Tag{Version: id3.V24}
	WriteTags(tag, sampleFields(), Policy{Delimiter: ", "})
	assert.Equal(t, "A. Writer, B. Writer", textOf(t, tag, id3.FrameArtist))
}

func TestWriteTags_EmptyFieldsNeverLand(t *testing.T) {
	tag := &id3.Tag{Version: id3.V24}
	WriteTags(tag, FieldSet{Title: "T"}, Policy{})

	assert.False(t, tag.Has(id3.FrameSubTitle))
	assert.False(t, tag.Has(id3.FrameArtist))
	assert.False(t, tag.Has(id3.FrameTrack))
	assert.False(t, tag.Has(id3.FrameComment))
	assert.False(t, tag.Has(id3.FrameUserText))
}

func TestWriteTags_ReserveIDDescription(t *testing.T) {
	fields := FieldSet{Title: "T", MediaID: "0fef5121-bb1f-42a5-b62a-d9fded939d50"}
	tag := &id3.Tag{Version: id3.V24}
	WriteTags(tag, fields, Policy{})

	assert.Equal(t, fields.MediaID, userText(tag, "OverDrive Reserve ID"))
	assert.Equal(t, "", userText(tag, "OverDrive Media ID"))
}

func TestWriteTags_Cover(t *testing.T) {
	tag := &id3.Tag{Version: id3.V24}
	WriteTags(tag, FieldSet{Title: "T", Cover: []byte{0xFF, 0xD8}}, Policy{})

	pic := tag.First(id3.FramePicture)
	require.NotNil(t, pic)
	assert.Equal(t, "image/jpeg", pic.MIMEType)
	assert.Equal(t, id3.PictureCoverFront, pic.PictureType)
	assert.Equal(t, []byte{0xFF, 0xD8}, pic.Data)
}

func TestWriteChapters(t *testing.T) {
	tag := &id3.Tag{Version: id3.V24}
	WriteChapters(tag, []chapters.Marker{
		{Title: "Chapter 1", Start: 0, End: 3600},
		{Title: "Chapter 2", Start: 3600, End: 7255.5},
	})

	toc := tag.First(id3.FrameTOC)
	require.NotNil(t, toc)
	assert.True(t, toc.TopLevel)
	assert.True(t, toc.Ordered)
	assert.Equal(t, []string{"ch00", "ch01"}, toc.ChildIDs)

	var chaps []id3.Frame
	for _, f := range tag.Frames {
		if f.ID == id3.FrameChapter {
			chaps = append(chaps, f)
		}
	}
	require.Len(t, chaps, 2)
	assert.Equal(t, "ch00", chaps[0].ElementID)
	assert.Equal(t, uint32(0), chaps[0].StartMS)
	assert.Equal(t, uint32(3600000), chaps[0].EndMS)
	// fractional seconds are rounded, not truncated
	assert.Equal(t, uint32(7255500), chaps[1].EndMS)
	require.Len(t, chaps[0].SubFrames, 1)
	assert.Equal(t, "Chapter 1", chaps[0].SubFrames[0].Text)
}

func TestWriteChapters_ReplacesExisting(t *testing.T) {
	tag := &id3.Tag{Version: id3.V24}
	WriteChapters(tag, []chapters.Marker{
		{Title: "Old 1", Start: 0, End: 10},
		{Title: "Old 2", Start: 10, End: 20},
		{Title: "Old 3", Start: 20, End: 30},
	})
	WriteChapters(tag, []chapters.Marker{{Title: "New", Start: 0, End: 30}})

	tocs, chaps := 0, 0
	for _, f := range tag.Frames {
		switch f.ID {
		case id3.FrameTOC:
			tocs++
		case id3.FrameChapter:
			chaps++
		}
	}
	assert.Equal(t, 1, tocs, "exactly one top-level table of contents")
	assert.Equal(t, 1, chaps)
}
