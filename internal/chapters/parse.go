package chapters

import (
	"fmt"
	"net/url"
	"sort"
)

// TOCEntry is one navigation table-of-contents item. Nested Contents
// entries occur when a chapter's audio continues into further parts.
type TOCEntry struct {
	Title    string
	Path     string
	Contents []TOCEntry
}

// SpineItem is one entry of the openbook spine.
type SpineItem struct {
	Path          string
	OriginalPath  string
	AudioDuration float64
	FileBytes     int64
	SpinePosition int
}

// ParseTOC reconciles the navigation toc against the spine and returns the
// audiobook's parts in spine order, each with a contiguous chapter timeline.
//
// Nested toc entries inherit the parent entry's title so that one chapter
// spanning several parts yields same-titled markers that MergeTimelines can
// later coalesce.
func ParseTOC(baseURL string, toc []TOCEntry, spine []SpineItem) ([]Part, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base url %q: %v", ErrParse, baseURL, err)
	}

	var order []string
	byPart := make(map[string][]Marker)
	add := func(title, path string) error {
		m, err := ParsePartPath(title, path)
		if err != nil {
			return err
		}
		existing, seen := byPart[m.PartName]
		if !seen {
			order = append(order, m.PartName)
		}
		// de-dup timestamped duplicate titles for the same chapter
		if len(existing) > 0 && existing[len(existing)-1].Title == m.Title {
			return nil
		}
		byPart[m.PartName] = append(existing, m)
		return nil
	}
	for _, item := range toc {
		if err := add(item.Title, item.Path); err != nil {
			return nil, err
		}
		for _, content := range item.Contents {
			// the parent title is used instead of the content's own so that
			// spanning chapters de-duplicate across parts
			if err := add(item.Title, content.Path); err != nil {
				return nil, err
			}
		}
	}

	spineByPath := make(map[string]SpineItem, len(spine))
	for _, s := range spine {
		spineByPath[s.OriginalPath] = s
	}

	parts := make([]Part, 0, len(order))
	for _, name := range order {
		s, ok := spineByPath[name]
		if !ok {
			return nil, fmt.Errorf("%w: toc references part %q missing from spine", ErrParse, name)
		}
		ref, err := url.Parse(s.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: bad spine path %q: %v", ErrParse, s.Path, err)
		}
		parts = append(parts, Part{
			Name:          name,
			URL:           base.ResolveReference(ref).String(),
			Duration:      s.AudioDuration,
			FileSize:      s.FileBytes,
			SpinePosition: s.SpinePosition,
			Markers:       byPart[name],
		})
	}
	sort.SliceStable(parts, func(i, j int) bool {
		return parts[i].SpinePosition < parts[j].SpinePosition
	})

	// build timelines in spine order so each part can inherit the previous
	// part's trailing chapter title as its lead-in
	leadIn := ""
	for i := range parts {
		parts[i].Markers = BuildPartTimeline(parts[i].Markers, parts[i].Duration, leadIn)
		if n := len(parts[i].Markers); n > 0 {
			leadIn = parts[i].Markers[n-1].Title
		}
	}
	return parts, nil
}
