package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/vmunix/odgo/internal/overdrive"
)

// Bundle is one exported loan: the manifests a Libby session saves to disk.
// odgo does not talk to the vendor's auth endpoints itself; the bundle is
// produced by whatever holds the session.
type Bundle struct {
	Loan    overdrive.LoanManifest `json:"loan"`
	Book    overdrive.OpenBook     `json:"openbook"`
	Rosters []overdrive.Roster     `json:"rosters"`
	// BaseURL is the content root the openbook's spine paths resolve against.
	BaseURL string `json:"openbookBase"`
}

// loadBundle reads and decodes one exported loan file.
func loadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading loan file: %w", err)
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parsing loan file %s: %w", path, err)
	}
	if b.Loan.ID == "" || b.Loan.Title == "" {
		return nil, fmt.Errorf("loan file %s: missing loan id or title", path)
	}
	return &b, nil
}

// minMatchScore is the similarity floor below which a title query is
// considered to match nothing.
const minMatchScore = 0.7

// selectByTitle picks the bundle whose loan title best matches query.
func selectByTitle(bundles []*Bundle, query string) (*Bundle, error) {
	var best *Bundle
	bestScore := 0.0
	for _, b := range bundles {
		score := float64(edlib.JaroWinklerSimilarity(
			strings.ToLower(query), strings.ToLower(b.Loan.Title)))
		if score > bestScore {
			best = b
			bestScore = score
		}
	}
	if best == nil || bestScore < minMatchScore {
		titles := make([]string, 0, len(bundles))
		for _, b := range bundles {
			titles = append(titles, b.Loan.Title)
		}
		return nil, fmt.Errorf("no loan matches %q; have: %s", query, strings.Join(titles, ", "))
	}
	return best, nil
}
