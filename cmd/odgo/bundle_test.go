package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/odgo/internal/config"
	"github.com/vmunix/odgo/internal/overdrive"
)

func writeBundle(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loan.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadBundle(t *testing.T) {
	path := writeBundle(t, `{
		"loan": {"id": "9999999", "title": "Ceremonials", "type": {"id": "audiobook"}},
		"openbook": {"title": {"main": "Ceremonials"}},
		"rosters": [{"group": "title-content", "entries": [{"url": "http://cdn/a.mp3"}]}],
		"openbookBase": "http://cdn/"
	}`)

	b, err := loadBundle(path)
	require.NoError(t, err)
	assert.Equal(t, "Ceremonials", b.Loan.Title)
	assert.Equal(t, overdrive.TypeAudiobook, b.Loan.Type.ID)
	assert.Equal(t, "http://cdn/", b.BaseURL)
	require.Len(t, b.Rosters, 1)
}

func TestLoadBundle_RejectsIncomplete(t *testing.T) {
	path := writeBundle(t, `{"openbook": {}}`)
	_, err := loadBundle(path)
	assert.Error(t, err)
}

func TestLoadBundle_MissingFile(t *testing.T) {
	_, err := loadBundle(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestSelectByTitle(t *testing.T) {
	bundles := []*Bundle{
		{Loan: overdrive.LoanManifest{Title: "Ceremonials"}},
		{Loan: overdrive.LoanManifest{Title: "How Big, How Blue, How Beautiful"}},
		{Loan: overdrive.LoanManifest{Title: "High as Hope"}},
	}

	got, err := selectByTitle(bundles, "ceremonials")
	require.NoError(t, err)
	assert.Equal(t, "Ceremonials", got.Loan.Title)

	got, err = selectByTitle(bundles, "high as hope")
	require.NoError(t, err)
	assert.Equal(t, "High as Hope", got.Loan.Title)
}

func TestSelectByTitle_NoMatch(t *testing.T) {
	bundles := []*Bundle{
		{Loan: overdrive.LoanManifest{Title: "Ceremonials"}},
	}
	_, err := selectByTitle(bundles, "zzzzzz")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Ceremonials")
}

func TestApplyDownloadFlags(t *testing.T) {
	cmd := &cobra.Command{}
	addDownloadFlags(cmd)
	require.NoError(t, cmd.Flags().Set("merge", "true"))
	require.NoError(t, cmd.Flags().Set("merge-format", "m4b"))
	require.NoError(t, cmd.Flags().Set("no-chapters", "true"))

	cfg := config.Default()
	cfg.Audio.Chapters = true
	applyDownloadFlags(cmd, cfg)

	assert.True(t, cfg.Audio.Merge)
	assert.Equal(t, "m4b", cfg.Audio.MergeFormat)
	assert.False(t, cfg.Audio.Chapters, "no-chapters wins over the config toggle")
}
