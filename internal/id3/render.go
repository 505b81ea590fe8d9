package id3

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"unicode/utf16"
)

// text encoding bytes per the ID3v2 spec
const (
	encLatin1  byte = 0
	encUTF16   byte = 1
	encUTF16BE byte = 2
	encUTF8    byte = 3
)

// Render serializes the tag to its binary form, including the 10-byte tag
// header. Rendering is deterministic: frames are written in their slice
// order, except CHAP frames which are sorted by start time because some
// transcoders corrupt chapter data when CHAPs appear out of order.
func Render(tag Tag) ([]byte, error) {
	if !tag.Version.valid() {
		return nil, fmt.Errorf("id3: unsupported version %d", tag.Version)
	}

	frames := orderFrames(tag.Frames)
	var body bytes.Buffer
	for _, f := range frames {
		b, err := renderFrame(tag.Version, f)
		if err != nil {
			return nil, err
		}
		body.Write(b)
	}

	out := make([]byte, 0, 10+body.Len())
	out = append(out, 'I', 'D', '3', tag.Version.headerByte(), 0, 0)
	out = appendSyncsafe(out, uint32(body.Len()))
	out = append(out, body.Bytes()...)
	return out, nil
}

// orderFrames moves CHAP frames into start-time order while leaving the
// relative order of everything else untouched.
func orderFrames(frames []Frame) []Frame {
	ordered := make([]Frame, len(frames))
	copy(ordered, frames)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].ID == FrameChapter && ordered[j].ID == FrameChapter {
			return ordered[i].StartMS < ordered[j].StartMS
		}
		return false
	})
	return ordered
}

func renderFrame(v Version, f Frame) ([]byte, error) {
	if len(f.ID) != 4 {
		return nil, fmt.Errorf("id3: invalid frame id %q", f.ID)
	}

	payload, err := renderPayload(v, f)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 10+len(payload))
	out = append(out, f.ID...)
	if v == V24 {
		out = appendSyncsafe(out, uint32(len(payload)))
	} else {
		out = binary.BigEndian.AppendUint32(out, uint32(len(payload)))
	}
	out = append(out, 0, 0) // frame flags
	out = append(out, payload...)
	return out, nil
}

func renderPayload(v Version, f Frame) ([]byte, error) {
	switch f.ID {
	case FrameComment:
		return renderComment(v, f), nil
	case FrameUserText:
		return renderUserText(v, f), nil
	case FramePicture:
		return renderPicture(v, f), nil
	case FrameChapter:
		return renderChapter(v, f)
	case FrameTOC:
		return renderTOC(v, f)
	default:
		if f.Text != "" || f.Data == nil {
			return renderText(v, f.Text), nil
		}
		// opaque frame preserved from a parsed tag
		return f.Data, nil
	}
}

func renderText(v Version, text string) []byte {
	enc, encoded := encodeText(v, text)
	out := []byte{enc}
	return append(out, encoded...)
}

func renderComment(v Version, f Frame) []byte {
	enc, desc := encodeText(v, f.Description)
	_, text := encodeText(v, f.Text)
	lang := f.Language
	if len(lang) != 3 {
		lang = "eng"
	}
	out := []byte{enc}
	out = append(out, lang...)
	out = append(out, desc...)
	out = append(out, terminator(enc)...)
	out = append(out, text...)
	return out
}

func renderUserText(v Version, f Frame) []byte {
	enc, desc := encodeText(v, f.Description)
	_, text := encodeText(v, f.Text)
	out := []byte{enc}
	out = append(out, desc...)
	out = append(out, terminator(enc)...)
	out = append(out, text...)
	return out
}

func renderPicture(v Version, f Frame) []byte {
	enc, desc := encodeText(v, f.Description)
	out := []byte{enc}
	out = append(out, f.MIMEType...)
	out = append(out, 0)
	out = append(out, f.PictureType)
	out = append(out, desc...)
	out = append(out, terminator(enc)...)
	out = append(out, f.Data...)
	return out
}

func renderChapter(v Version, f Frame) ([]byte, error) {
	out := []byte(f.ElementID)
	out = append(out, 0)
	out = binary.BigEndian.AppendUint32(out, f.StartMS)
	out = binary.BigEndian.AppendUint32(out, f.EndMS)
	out = binary.BigEndian.AppendUint32(out, IgnoredOffset)
	out = binary.BigEndian.AppendUint32(out, IgnoredOffset)
	for _, sub := range f.SubFrames {
		b, err := renderFrame(v, sub)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

func renderTOC(v Version, f Frame) ([]byte, error) {
	if len(f.ChildIDs) > 255 {
		return nil, fmt.Errorf("id3: CTOC %q has too many children (%d)", f.ElementID, len(f.ChildIDs))
	}
	out := []byte(f.ElementID)
	out = append(out, 0)
	var flags byte
	if f.TopLevel {
		flags |= 0x02
	}
	if f.Ordered {
		flags |= 0x01
	}
	out = append(out, flags, byte(len(f.ChildIDs)))
	for _, id := range f.ChildIDs {
		out = append(out, id...)
		out = append(out, 0)
	}
	for _, sub := range f.SubFrames {
		b, err := renderFrame(v, sub)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// encodeText encodes a string using the version's preferred text encoding:
// UTF-16 with BOM for v2.3 (which has no UTF-8 encoding), UTF-8 for v2.4.
func encodeText(v Version, s string) (byte, []byte) {
	if v == V24 {
		return encUTF8, []byte(s)
	}
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, 2+len(units)*2)
	out = append(out, 0xFF, 0xFE) // little-endian BOM
	for _, u := range units {
		out = append(out, byte(u), byte(u>>8))
	}
	return encUTF16, out
}

// terminator returns the string terminator for the given encoding byte.
func terminator(enc byte) []byte {
	if enc == encUTF16 {
		return []byte{0, 0}
	}
	return []byte{0}
}

// appendSyncsafe appends a 28-bit syncsafe integer (4 bytes, 7 bits each).
func appendSyncsafe(out []byte, n uint32) []byte {
	return append(out,
		byte(n>>21&0x7F),
		byte(n>>14&0x7F),
		byte(n>>7&0x7F),
		byte(n&0x7F),
	)
}
