// Package overdrive is the typed ingestion boundary for the vendor API.
// The loosely-shaped JSON the endpoints return is decoded into explicit
// records here; no raw maps escape this package.
package overdrive

import "sort"

// Media type ids used by the vendor.
const (
	TypeAudiobook = "audiobook"
	TypeEBook     = "ebook"
	TypeMagazine  = "magazine"
)

// Format ids relevant to direct downloads.
const (
	FormatAudiobookMP3   = "audiobook-mp3"
	FormatAudiobookLibby = "audiobook-overdrive"
	FormatEBookLibby     = "ebook-overdrive"
	FormatMagazineLibby  = "magazine-overdrive"
)

// TypeRef is the vendor's {"id": ..., "name": ...} type descriptor.
type TypeRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Cover is one cover-image candidate.
type Cover struct {
	Href   string `json:"href"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Subject is a catalog subject heading.
type Subject struct {
	Name string `json:"name"`
}

// NameRef is a named entity with a vendor id.
type NameRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Identifier is an ISBN/ASIN style identifier attached to a format.
type Identifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// FormatDescriptor describes one downloadable format of a title.
type FormatDescriptor struct {
	ID          string       `json:"id"`
	ISBN        string       `json:"isbn"`
	Identifiers []Identifier `json:"identifiers"`
}

// LoanManifest identifies a checked-out title.
type LoanManifest struct {
	ID               string             `json:"id"`
	Title            string             `json:"title"`
	Subtitle         string             `json:"subtitle"`
	Series           string             `json:"series"`
	DetailedSeries   DetailedSeries     `json:"detailedSeries"`
	Edition          string             `json:"edition"`
	PublishDate      string             `json:"publishDate"`
	Type             TypeRef            `json:"type"`
	PublisherAccount NameRef            `json:"publisherAccount"`
	Covers           map[string]Cover   `json:"covers"`
	Subjects         []Subject          `json:"subjects"`
	Formats          []FormatDescriptor `json:"formats"`
	CardID           string             `json:"cardId"`
}

// BestCoverURL returns the highest-resolution cover candidate, or "".
func (l *LoanManifest) BestCoverURL() string {
	covers := make([]Cover, 0, len(l.Covers))
	for _, c := range l.Covers {
		covers = append(covers, c)
	}
	sort.Slice(covers, func(i, j int) bool { return covers[i].Width > covers[j].Width })
	if len(covers) == 0 {
		return ""
	}
	return covers[0].Href
}

// SubjectNames returns the non-empty subject names in catalog order.
func (l *LoanManifest) SubjectNames() []string {
	var names []string
	for _, s := range l.Subjects {
		if s.Name != "" {
			names = append(names, s.Name)
		}
	}
	return names
}

// Creator is a contributor with a vendor role ("author", "narrator", ...).
type Creator struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	SortName string `json:"sortName"`
}

// Description carries the long/short description pair of an openbook.
type Description struct {
	Full  string `json:"full"`
	Short string `json:"short"`
}

// TOCEntry is one navigation table-of-contents item of an openbook.
type TOCEntry struct {
	Title        string     `json:"title"`
	Path         string     `json:"path"`
	Contents     []TOCEntry `json:"contents"`
	PageRange    string     `json:"pageRange"`
	FeatureImage string     `json:"featureImage"`
}

// Landmark is a structural navigation hint ("cover", "toc", ...).
type Landmark struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Path  string `json:"path"`
}

// Nav groups an openbook's navigation structures.
type Nav struct {
	TOC       []TOCEntry `json:"toc"`
	Landmarks []Landmark `json:"landmarks"`
}

// SpineItem is one entry of an openbook spine.
type SpineItem struct {
	Path          string  `json:"path"`
	MediaType     string  `json:"media-type"`
	AudioDuration float64 `json:"audio-duration"`
	OriginalPath  string  `json:"-odread-original-path"`
	FileBytes     int64   `json:"-odread-file-bytes"`
	SpinePosition int     `json:"-odread-spine-position"`
}

// BookTitle is the openbook title block.
type BookTitle struct {
	Main     string `json:"main"`
	Subtitle string `json:"subtitle"`
}

// OpenBook is the vendor's book-level manifest for a direct loan.
type OpenBook struct {
	Title       BookTitle   `json:"title"`
	Creators    []Creator   `json:"creator"`
	Language    string      `json:"language"`
	Description Description `json:"description"`
	Nav         Nav         `json:"nav"`
	Spine       []SpineItem `json:"spine"`
}

// Authors returns author names, falling back to editors, then to all
// creators, mirroring how the vendor leaves roles unset for some titles.
func (b *OpenBook) Authors() []string {
	if names := b.creatorNames("author"); len(names) > 0 {
		return names
	}
	if names := b.creatorNames("editor"); len(names) > 0 {
		return names
	}
	return b.creatorNames("")
}

// Narrators returns narrator names.
func (b *OpenBook) Narrators() []string {
	return b.creatorNames("narrator")
}

func (b *OpenBook) creatorNames(role string) []string {
	var names []string
	for _, c := range b.Creators {
		if role == "" || c.Role == role {
			names = append(names, c.Name)
		}
	}
	return names
}

// BestDescription prefers the full description over the short one.
func (b *OpenBook) BestDescription() string {
	if b.Description.Full != "" {
		return b.Description.Full
	}
	return b.Description.Short
}

// RosterEntry is one downloadable content asset.
type RosterEntry struct {
	URL string `json:"url"`
}

// Roster is a grouped list of content assets.
type Roster struct {
	Group   string        `json:"group"`
	Entries []RosterEntry `json:"entries"`
}

// TitleContent returns the "title-content" roster, or nil.
func TitleContent(rosters []Roster) *Roster {
	for i := range rosters {
		if rosters[i].Group == "title-content" {
			return &rosters[i]
		}
	}
	return nil
}

// BISAC is a BISAC subject classification.
type BISAC struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Language is a catalog language record.
type Language struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DetailedSeries carries series membership from the catalog.
type DetailedSeries struct {
	SeriesName   string `json:"seriesName"`
	ReadingOrder string `json:"readingOrder"`
}

// MediaInfo is the catalog record for a title, used to enrich OPF metadata.
type MediaInfo struct {
	ID                   string             `json:"id"`
	ReserveID            string             `json:"reserveId"`
	Title                string             `json:"title"`
	Subtitle             string             `json:"subtitle"`
	Edition              string             `json:"edition"`
	Description          string             `json:"description"`
	Type                 TypeRef            `json:"type"`
	Languages            []Language         `json:"languages"`
	Creators             []Creator          `json:"creators"`
	Publisher            NameRef            `json:"publisher"`
	Subjects             []Subject          `json:"subject"`
	Keywords             []string           `json:"keywords"`
	BISAC                []BISAC            `json:"bisac"`
	PublishDate          string             `json:"publishDate"`
	EstimatedReleaseDate string             `json:"estimatedReleaseDate"`
	Series               string             `json:"series"`
	DetailedSeries       DetailedSeries     `json:"detailedSeries"`
	Formats              []FormatDescriptor `json:"formats"`
}

// ExtractISBN finds the best ISBN for the given format ids: a format's own
// isbn value first, then "LibraryISBN" identifiers, then plain "ISBN".
func ExtractISBN(formats []FormatDescriptor, formatIDs []string) string {
	matches := func(id string) bool {
		for _, want := range formatIDs {
			if id == want {
				return true
			}
		}
		return false
	}
	for _, f := range formats {
		if matches(f.ID) && f.ISBN != "" {
			return f.ISBN
		}
	}
	for _, idType := range []string{"LibraryISBN", "ISBN"} {
		for _, f := range formats {
			if !matches(f.ID) {
				continue
			}
			for _, ident := range f.Identifiers {
				if ident.Type == idType && ident.Value != "" {
					return ident.Value
				}
			}
		}
	}
	return ""
}

// ExtractASIN finds an Amazon ASIN identifier in any format.
func ExtractASIN(formats []FormatDescriptor) string {
	for _, f := range formats {
		for _, ident := range f.Identifiers {
			if ident.Type == "ASIN" && ident.Value != "" {
				return ident.Value
			}
		}
	}
	return ""
}
