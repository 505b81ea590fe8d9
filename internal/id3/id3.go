// Package id3 implements reading and writing of ID3v2.3 and ID3v2.4 tags.
//
// The package is deliberately small: it models a tag as an immutable list of
// frames and renders it to bytes in one pass. It covers the frame types the
// downloader needs (text frames, comments, user text, attached pictures, and
// the CHAP/CTOC chapter frames) and preserves unrecognized frames opaquely
// so a rewrite does not discard them.
package id3

import "fmt"

// Version selects the on-disk tag format.
type Version int

const (
	// V23 is ID3v2.3: UTF-16 text, plain big-endian frame sizes.
	V23 Version = 3
	// V24 is ID3v2.4: UTF-8 text, syncsafe frame sizes.
	V24 Version = 4
)

// Frame IDs used by the downloader.
const (
	FrameTitle       = "TIT2"
	FrameSubTitle    = "TIT3"
	FrameAlbum       = "TALB"
	FrameArtist      = "TPE1"
	FrameAlbumArtist = "TPE2"
	FrameTrack       = "TRCK"
	FramePublisher   = "TPUB"
	FrameComment     = "COMM"
	FrameGenre       = "TCON"
	FrameConductor   = "TPE3"
	FrameLanguage    = "TLAN"
	FrameReleaseDate = "TDRL"
	FrameUserText    = "TXXX"
	FramePicture     = "APIC"
	FrameChapter     = "CHAP"
	FrameTOC         = "CTOC"
)

// PictureCoverFront is the APIC picture type for a front cover.
const PictureCoverFront byte = 3

// IgnoredOffset is written to the CHAP byte-offset fields to indicate that
// only the time fields are meaningful.
const IgnoredOffset uint32 = 0xFFFFFFFF

// Frame is a single ID3v2 frame. Which fields are meaningful depends on ID:
// text frames use Text; COMM uses Language, Description and Text; TXXX uses
// Description and Text; APIC uses MIMEType, PictureType, Description and
// Data; CHAP uses ElementID, StartMS, EndMS and SubFrames; CTOC uses
// ElementID, TopLevel, Ordered, ChildIDs and SubFrames. Frames with IDs this
// package does not understand carry their raw payload in Data.
type Frame struct {
	ID          string
	Text        string
	Description string
	Language    string
	MIMEType    string
	PictureType byte
	Data        []byte
	ElementID   string
	StartMS     uint32
	EndMS       uint32
	TopLevel    bool
	Ordered     bool
	ChildIDs    []string
	SubFrames   []Frame
}

// TextFrame builds a simple text frame.
func TextFrame(id, text string) Frame {
	return Frame{ID: id, Text: text}
}

// Tag is a complete ID3v2 tag.
type Tag struct {
	Version Version
	Frames  []Frame
}

// Has reports whether the tag contains at least one frame with the given ID.
func (t *Tag) Has(id string) bool {
	for _, f := range t.Frames {
		if f.ID == id {
			return true
		}
	}
	return false
}

// First returns the first frame with the given ID, or nil.
func (t *Tag) First(id string) *Frame {
	for i := range t.Frames {
		if t.Frames[i].ID == id {
			return &t.Frames[i]
		}
	}
	return nil
}

// Remove returns the tag's frames with every frame matching the predicate
// dropped.
func (t *Tag) Remove(match func(Frame) bool) {
	kept := t.Frames[:0]
	for _, f := range t.Frames {
		if !match(f) {
			kept = append(kept, f)
		}
	}
	t.Frames = kept
}

func (v Version) valid() bool { return v == V23 || v == V24 }

func (v Version) headerByte() byte {
	if v == V23 {
		return 3
	}
	return 4
}

func (v Version) String() string {
	return fmt.Sprintf("ID3v2.%d", int(v))
}
