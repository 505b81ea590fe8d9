package id3

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"
)

// ErrNoTag is wrapped by ReadTag when the file carries no ID3v2 header.
var errNoTag = fmt.Errorf("id3: no tag")

// tagHeader is the parsed 10-byte ID3v2 header.
type tagHeader struct {
	version Version
	flags   byte
	size    int // tag body size, excluding header and footer
}

// parseHeader reads the 10-byte header from data. Returns errNoTag if data
// does not begin with an ID3v2 header.
func parseHeader(data []byte) (tagHeader, error) {
	if len(data) < 10 || data[0] != 'I' || data[1] != 'D' || data[2] != '3' {
		return tagHeader{}, errNoTag
	}
	var v Version
	switch data[3] {
	case 3:
		v = V23
	case 4:
		v = V24
	default:
		return tagHeader{}, fmt.Errorf("id3: unsupported tag version 2.%d", data[3])
	}
	return tagHeader{
		version: v,
		flags:   data[5],
		size:    int(readSyncsafe(data[6:10])),
	}, nil
}

// TagSize returns the total byte length of the ID3v2 tag at the start of
// data (header, body, and footer when present), or 0 if there is none.
func TagSize(data []byte) int {
	h, err := parseHeader(data)
	if err != nil {
		return 0
	}
	total := 10 + h.size
	if h.flags&0x10 != 0 { // footer present
		total += 10
	}
	return total
}

// Parse decodes an ID3v2.3/2.4 tag from the start of data.
func Parse(data []byte) (*Tag, error) {
	h, err := parseHeader(data)
	if err != nil {
		return nil, err
	}
	if h.flags&0x80 != 0 {
		return nil, fmt.Errorf("id3: unsynchronised tags are not supported")
	}
	if len(data) < 10+h.size {
		return nil, fmt.Errorf("id3: truncated tag: declared %d bytes, have %d", h.size, len(data)-10)
	}
	body := data[10 : 10+h.size]

	// skip the extended header if present
	if h.flags&0x40 != 0 {
		if len(body) < 4 {
			return nil, fmt.Errorf("id3: truncated extended header")
		}
		var extLen int
		if h.version == V24 {
			extLen = int(readSyncsafe(body[:4]))
		} else {
			extLen = int(binary.BigEndian.Uint32(body[:4])) + 4
		}
		if extLen > len(body) {
			return nil, fmt.Errorf("id3: extended header overruns tag")
		}
		body = body[extLen:]
	}

	frames, err := parseFrames(h.version, body)
	if err != nil {
		return nil, err
	}
	return &Tag{Version: h.version, Frames: frames}, nil
}

func parseFrames(v Version, body []byte) ([]Frame, error) {
	var frames []Frame
	for len(body) >= 10 {
		if body[0] == 0 {
			break // padding
		}
		id := string(body[0:4])
		var size int
		if v == V24 {
			size = int(readSyncsafe(body[4:8]))
		} else {
			size = int(binary.BigEndian.Uint32(body[4:8]))
		}
		if size < 0 || 10+size > len(body) {
			return nil, fmt.Errorf("id3: frame %q overruns tag (%d bytes)", id, size)
		}
		payload := body[10 : 10+size]
		f, err := parsePayload(v, id, payload)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
		body = body[10+size:]
	}
	return frames, nil
}

func parsePayload(v Version, id string, payload []byte) (Frame, error) {
	switch {
	case id == FrameComment:
		return parseComment(id, payload)
	case id == FrameUserText:
		return parseUserText(id, payload)
	case id == FramePicture:
		return parsePicture(id, payload)
	case id == FrameChapter:
		return parseChapter(v, id, payload)
	case id == FrameTOC:
		return parseTOC(v, id, payload)
	case strings.HasPrefix(id, "T"):
		if len(payload) < 1 {
			return Frame{ID: id}, nil
		}
		text, _ := decodeText(payload[0], payload[1:])
		return Frame{ID: id, Text: text}, nil
	default:
		raw := make([]byte, len(payload))
		copy(raw, payload)
		return Frame{ID: id, Data: raw}, nil
	}
}

func parseComment(id string, payload []byte) (Frame, error) {
	if len(payload) < 4 {
		return Frame{}, fmt.Errorf("id3: short COMM frame")
	}
	enc := payload[0]
	lang := string(payload[1:4])
	desc, rest := splitTerminated(enc, payload[4:])
	text, _ := decodeText(enc, rest)
	return Frame{ID: id, Language: lang, Description: desc, Text: text}, nil
}

func parseUserText(id string, payload []byte) (Frame, error) {
	if len(payload) < 1 {
		return Frame{}, fmt.Errorf("id3: short TXXX frame")
	}
	enc := payload[0]
	desc, rest := splitTerminated(enc, payload[1:])
	text, _ := decodeText(enc, rest)
	return Frame{ID: id, Description: desc, Text: text}, nil
}

func parsePicture(id string, payload []byte) (Frame, error) {
	if len(payload) < 2 {
		return Frame{}, fmt.Errorf("id3: short APIC frame")
	}
	enc := payload[0]
	rest := payload[1:]
	i := bytes.IndexByte(rest, 0)
	if i < 0 || len(rest) < i+2 {
		return Frame{}, fmt.Errorf("id3: malformed APIC frame")
	}
	mime := string(rest[:i])
	picType := rest[i+1]
	desc, data := splitTerminated(enc, rest[i+2:])
	raw := make([]byte, len(data))
	copy(raw, data)
	return Frame{ID: id, MIMEType: mime, PictureType: picType, Description: desc, Data: raw}, nil
}

func parseChapter(v Version, id string, payload []byte) (Frame, error) {
	i := bytes.IndexByte(payload, 0)
	if i < 0 || len(payload) < i+17 {
		return Frame{}, fmt.Errorf("id3: malformed CHAP frame")
	}
	elementID := string(payload[:i])
	rest := payload[i+1:]
	start := binary.BigEndian.Uint32(rest[0:4])
	end := binary.BigEndian.Uint32(rest[4:8])
	subs, err := parseFrames(v, rest[16:])
	if err != nil {
		return Frame{}, err
	}
	return Frame{ID: id, ElementID: elementID, StartMS: start, EndMS: end, SubFrames: subs}, nil
}

func parseTOC(v Version, id string, payload []byte) (Frame, error) {
	i := bytes.IndexByte(payload, 0)
	if i < 0 || len(payload) < i+3 {
		return Frame{}, fmt.Errorf("id3: malformed CTOC frame")
	}
	elementID := string(payload[:i])
	rest := payload[i+1:]
	flags := rest[0]
	count := int(rest[1])
	rest = rest[2:]
	childIDs := make([]string, 0, count)
	for n := 0; n < count; n++ {
		j := bytes.IndexByte(rest, 0)
		if j < 0 {
			return Frame{}, fmt.Errorf("id3: malformed CTOC child list")
		}
		childIDs = append(childIDs, string(rest[:j]))
		rest = rest[j+1:]
	}
	subs, err := parseFrames(v, rest)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		ID:        id,
		ElementID: elementID,
		TopLevel:  flags&0x02 != 0,
		Ordered:   flags&0x01 != 0,
		ChildIDs:  childIDs,
		SubFrames: subs,
	}, nil
}

// splitTerminated splits off the leading terminated string for the given
// encoding, returning the decoded string and the remaining bytes.
func splitTerminated(enc byte, data []byte) (string, []byte) {
	if enc == encUTF16 || enc == encUTF16BE {
		for i := 0; i+1 < len(data); i += 2 {
			if data[i] == 0 && data[i+1] == 0 {
				s, _ := decodeText(enc, data[:i])
				return s, data[i+2:]
			}
		}
		s, _ := decodeText(enc, data)
		return s, nil
	}
	if i := bytes.IndexByte(data, 0); i >= 0 {
		s, _ := decodeText(enc, data[:i])
		return s, data[i+1:]
	}
	s, _ := decodeText(enc, data)
	return s, nil
}

// decodeText decodes frame text in the given ID3 encoding. Trailing
// terminators are stripped.
func decodeText(enc byte, data []byte) (string, error) {
	switch enc {
	case encLatin1:
		data = bytes.TrimRight(data, "\x00")
		runes := make([]rune, len(data))
		for i, b := range data {
			runes[i] = rune(b)
		}
		return string(runes), nil
	case encUTF8:
		return string(bytes.TrimRight(data, "\x00")), nil
	case encUTF16, encUTF16BE:
		bigEndian := enc == encUTF16BE
		if enc == encUTF16 && len(data) >= 2 {
			switch {
			case data[0] == 0xFF && data[1] == 0xFE:
				data = data[2:]
			case data[0] == 0xFE && data[1] == 0xFF:
				bigEndian = true
				data = data[2:]
			}
		}
		units := make([]uint16, 0, len(data)/2)
		for i := 0; i+1 < len(data); i += 2 {
			var u uint16
			if bigEndian {
				u = uint16(data[i])<<8 | uint16(data[i+1])
			} else {
				u = uint16(data[i+1])<<8 | uint16(data[i])
			}
			if u == 0 {
				break
			}
			units = append(units, u)
		}
		return string(utf16.Decode(units)), nil
	default:
		return "", fmt.Errorf("id3: unknown text encoding %d", enc)
	}
}

// readSyncsafe decodes a 28-bit syncsafe integer from 4 bytes.
func readSyncsafe(b []byte) uint32 {
	return uint32(b[0]&0x7F)<<21 | uint32(b[1]&0x7F)<<14 | uint32(b[2]&0x7F)<<7 | uint32(b[3]&0x7F)
}
