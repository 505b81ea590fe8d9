package chapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePartPath(t *testing.T) {
	m, err := ParsePartPath("Chapter 3", "{AAAAAAAA-BBBB-CCCC-9999-ABCDEF123456}Fmt425-Part03.mp3#3000")
	require.NoError(t, err)
	assert.Equal(t, "Chapter 3", m.Title)
	assert.Equal(t, "{AAAAAAAA-BBBB-CCCC-9999-ABCDEF123456}Fmt425-Part03.mp3", m.PartName)
	assert.Equal(t, 3000.0, m.Start)
}

func TestParsePartPath_NoOffset(t *testing.T) {
	m, err := ParsePartPath("Chapter 1", "{AAAAAAAA-BBBB-CCCC-9999-ABCDEF123456}Fmt425-Part01.mp3")
	require.NoError(t, err)
	assert.Equal(t, 0.0, m.Start)
}

func TestParsePartPath_Malformed(t *testing.T) {
	_, err := ParsePartPath("Chapter 1", "not-a-part-path.mp3")
	assert.ErrorIs(t, err, ErrParse)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"12:34", 754},
		{"12:34.5", 754.5},
		{"1:02:03", 3723},
		{"0:00:00.25", 0.25},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.input)
		require.NoError(t, err, "ParseDuration(%q)", tt.input)
		assert.InDelta(t, tt.want, got, 1e-9, "ParseDuration(%q)", tt.input)
	}
}

func TestParseDuration_Malformed(t *testing.T) {
	for _, input := range []string{"", "12", "a:b", "1:2:3:4", "-1:00"} {
		_, err := ParseDuration(input)
		assert.ErrorIs(t, err, ErrParse, "ParseDuration(%q)", input)
	}
}

func TestBuildPartTimeline_Contiguity(t *testing.T) {
	entries := []Marker{
		{Title: "Ch1", Start: 0},
		{Title: "Ch2", Start: 900},
		{Title: "Ch3", Start: 2400},
	}
	markers := BuildPartTimeline(entries, 3600, "")
	require.Len(t, markers, 3)
	for i := 0; i < len(markers)-1; i++ {
		assert.Equal(t, markers[i].End, markers[i+1].Start)
	}
	assert.Equal(t, 3600.0, markers[len(markers)-1].End)
}

func TestBuildPartTimeline_DedupsConsecutiveTitles(t *testing.T) {
	// vendor sometimes emits "Chapter 2 (00:00)" style duplicates that have
	// already been re-titled to the parent chapter name
	entries := []Marker{
		{Title: "Ch1", Start: 0},
		{Title: "Ch2", Start: 1000},
		{Title: "Ch2", Start: 1500},
	}
	markers := BuildPartTimeline(entries, 2000, "")
	require.Len(t, markers, 2)
	assert.Equal(t, 1000.0, markers[1].Start)
	assert.Equal(t, 2000.0, markers[1].End)
}

func TestBuildPartTimeline_SynthesizesLeadIn(t *testing.T) {
	// the part begins mid-chapter, continuing "Ch4" from the previous part
	entries := []Marker{
		{Title: "Ch5", Start: 120},
	}
	markers := BuildPartTimeline(entries, 1800, "Ch4")
	require.Len(t, markers, 2)
	assert.Equal(t, Marker{Title: "Ch4", Start: 0, End: 120}, markers[0])
	assert.Equal(t, Marker{Title: "Ch5", Start: 120, End: 1800}, markers[1])
}

func TestBuildPartTimeline_LeadInSameTitleCollapses(t *testing.T) {
	entries := []Marker{
		{Title: "Ch4", Start: 120},
	}
	markers := BuildPartTimeline(entries, 1800, "Ch4")
	require.Len(t, markers, 1)
	assert.Equal(t, Marker{Title: "Ch4", Start: 0, End: 1800}, markers[0])
}

func TestMergeTimelines_CoalescesBoundarySpanningChapters(t *testing.T) {
	// 3 parts, "Ch2" spans the part 1->2 boundary; must merge into exactly
	// 4 chapters
	parts := []Part{
		{
			Duration: 3600,
			Markers:  BuildPartTimeline([]Marker{{Title: "Ch1", Start: 0}}, 3600, ""),
		},
		{
			Duration: 3660,
			Markers:  BuildPartTimeline([]Marker{{Title: "Ch2", Start: 0}}, 3660, "Ch1"),
		},
		{
			Duration: 3720,
			Markers: BuildPartTimeline([]Marker{
				{Title: "Ch2", Start: 0},
				{Title: "Ch3", Start: 2140},
				{Title: "Ch4", Start: 3000},
			}, 3720, "Ch2"),
		},
	}

	merged := MergeTimelines(parts)
	require.Len(t, merged, 4)
	assert.Equal(t, Marker{Title: "Ch1", Start: 0, End: 3600}, merged[0])
	assert.Equal(t, Marker{Title: "Ch2", Start: 3600, End: 9400}, merged[1])
	assert.Equal(t, Marker{Title: "Ch3", Start: 9400, End: 10260}, merged[2])
	assert.Equal(t, Marker{Title: "Ch4", Start: 10260, End: 10980}, merged[3])
}

func TestMergeTimelines_Monotonic(t *testing.T) {
	parts := []Part{
		{Duration: 100, Markers: BuildPartTimeline([]Marker{
			{Title: "A", Start: 0}, {Title: "B", Start: 40},
		}, 100, "")},
		{Duration: 50, Markers: BuildPartTimeline([]Marker{
			{Title: "C", Start: 0},
		}, 50, "B")},
		{Duration: 75, Markers: BuildPartTimeline([]Marker{
			{Title: "D", Start: 10},
		}, 75, "C")},
	}
	merged := MergeTimelines(parts)
	require.NotEmpty(t, merged)
	for i, m := range merged {
		assert.Less(t, m.Start, m.End, "marker %d", i)
		if i > 0 {
			assert.GreaterOrEqual(t, m.Start, merged[i-1].End, "marker %d", i)
		}
	}
	assert.Equal(t, 225.0, merged[len(merged)-1].End)
}
