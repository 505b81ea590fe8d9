// Package chapters builds chapter timelines for multi-part audiobooks.
//
// OverDrive describes an audiobook as an ordered list of audio parts, with
// the navigation table of contents pointing into parts via fragment offsets
// ("{GUID}Fmt425-Part03.mp3#3000"). Chapters routinely span part boundaries,
// so a per-part timeline and a merged book-level timeline are distinct views
// that both have to be derivable from the same toc data.
package chapters

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Marker is one chapter in a timeline. Offsets are in the unit supplied by
// the caller (seconds for direct loans). PartName is empty once a marker has
// been merged into a book-level timeline.
type Marker struct {
	Title    string
	PartName string
	Start    float64
	End      float64
}

// Part is one downloadable audio segment with its chapter timeline.
type Part struct {
	Name          string
	URL           string
	Duration      float64
	FileSize      int64
	SpinePosition int
	Markers       []Marker
}

// partPathRE matches toc paths like
// {AAAAAAAA-BBBB-CCCC-9999-ABCDEF123456}Fmt425-Part03.mp3#3000
// where the fragment is the start offset in seconds.
var partPathRE = regexp.MustCompile(`^(?P<part_name>\{[A-F0-9-]{36}\}[^#]+)(#(?P<second_stamp>\d+))?$`)

// ParsePartPath extracts the part name and start offset from a toc path.
func ParsePartPath(title string, partPath string) (Marker, error) {
	m := partPathRE.FindStringSubmatch(partPath)
	if m == nil {
		return Marker{}, fmt.Errorf("%w: unexpected path format: %q", ErrParse, partPath)
	}
	start := 0.0
	if stamp := m[partPathRE.SubexpIndex("second_stamp")]; stamp != "" {
		n, err := strconv.ParseInt(stamp, 10, 64)
		if err != nil {
			return Marker{}, fmt.Errorf("%w: bad offset in %q: %v", ErrParse, partPath, err)
		}
		start = float64(n)
	}
	return Marker{
		Title:    title,
		PartName: m[partPathRE.SubexpIndex("part_name")],
		Start:    start,
	}, nil
}

// ParseDuration parses "H:MM:SS[.fff]" or "MM:SS[.fff]" into seconds.
func ParseDuration(text string) (float64, error) {
	fields := strings.Split(strings.TrimSpace(text), ":")
	if len(fields) != 2 && len(fields) != 3 {
		return 0, fmt.Errorf("%w: unexpected duration format: %q", ErrParse, text)
	}
	var total float64
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("%w: unexpected duration format: %q", ErrParse, text)
		}
		total = total*60 + v
	}
	return total, nil
}

// BuildPartTimeline turns the ordered markers of one part into a contiguous
// timeline: marker i ends where marker i+1 starts, and the last marker ends
// at the part duration. Consecutive same-title entries are de-duplicated
// (the vendor sometimes emits timestamped duplicates for one chapter).
//
// If the first marker starts past zero the part begins mid-chapter, and a
// leading marker titled leadInTitle is synthesized at offset 0. When
// leadInTitle is empty the first marker's own title is used.
func BuildPartTimeline(entries []Marker, partDuration float64, leadInTitle string) []Marker {
	var markers []Marker
	for _, e := range entries {
		if len(markers) > 0 && markers[len(markers)-1].Title == e.Title {
			continue
		}
		markers = append(markers, e)
	}
	if len(markers) == 0 {
		return nil
	}
	if markers[0].Start > 0 {
		title := leadInTitle
		if title == "" {
			title = markers[0].Title
		}
		lead := Marker{Title: title, PartName: markers[0].PartName}
		if title == markers[0].Title {
			// the synthesized lead and the first marker describe the same
			// chapter, so they collapse into one
			markers[0].Start = 0
		} else {
			markers = append([]Marker{lead}, markers...)
		}
	}
	for i := range markers {
		if i < len(markers)-1 {
			markers[i].End = markers[i+1].Start
		} else {
			markers[i].End = partDuration
		}
	}
	return markers
}

// MergeTimelines merges per-part timelines into one book-level timeline,
// offsetting each part by the accumulated duration of the parts before it.
// When a chapter spans a part boundary the vendor repeats its title as the
// last marker of one part and the first marker of the next; those are
// coalesced into a single chapter. The result is strictly monotonic.
func MergeTimelines(parts []Part) []Marker {
	var merged []Marker
	var offset float64
	for _, part := range parts {
		for _, m := range part.Markers {
			shifted := Marker{
				Title: m.Title,
				Start: offset + m.Start,
				End:   offset + m.End,
			}
			if len(merged) > 0 && merged[len(merged)-1].Title == shifted.Title {
				merged[len(merged)-1].End = shifted.End
				continue
			}
			merged = append(merged, shifted)
		}
		offset += part.Duration
	}
	return merged
}
