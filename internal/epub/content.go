package epub

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/vmunix/odgo/internal/overdrive"
)

// payloadRe matches the script wrapper the vendor uses to hide the real
// page body inside a base64 string.
var payloadRe = regexp.MustCompile(`parent\.__bif_cfc0\(self,'(?P<base64_text>.+)'\)`)

// magazineCSSRe strips "overflow-x: hidden" from the #article-body rule,
// which breaks paged mode in some readers.
var magazineCSSRe = regexp.MustCompile(`(#article-body\s*\{[^{}]+?)overflow-x:\s*hidden;([^{}]+?})`)

// MediaType guesses the MIME type of an asset path from its extension.
func MediaType(assetPath string) string {
	mt := mime.TypeByExtension(path.Ext(assetPath))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = mt[:i]
	}
	switch path.Ext(assetPath) {
	case ".xhtml":
		return "application/xhtml+xml"
	case ".ncx":
		return "application/x-dtbncx+xml"
	case ".otf":
		return "font/otf"
	case ".ttf":
		return "font/ttf"
	}
	return mt
}

func isHTML(mediaType string) bool {
	return mediaType == "application/xhtml+xml" || mediaType == "text/html"
}

// FilterContent reports whether a roster entry belongs in the book. For
// magazines the roster carries page scans and thumbnails that duplicate the
// article HTML; for ebooks the /_d/ tree holds reader-app internals.
func FilterContent(entryURL string, mediaTypeID string, tocPages []string) bool {
	u, err := url.Parse(entryURL)
	if err != nil {
		return false
	}
	mt := MediaType(u.Path)

	if mediaTypeID == overdrive.TypeMagazine && mt != "" {
		if strings.HasPrefix(mt, "image/") &&
			(strings.HasPrefix(u.Path, "/pages/") || strings.HasPrefix(u.Path, "/thumbnails/")) {
			return false
		}
		if isHTML(mt) && !containsString(tocPages, strings.TrimPrefix(u.Path, "/")) {
			return false
		}
	}

	if strings.HasPrefix(u.Path, "/_d/") {
		return false
	}
	return true
}

// extensionsRank orders roster downloads so HTML pages come before images;
// cover detection needs the page parsed before its image arrives.
var extensionsRank = []string{".xhtml", ".html", ".htm", ".jpg", ".jpeg", ".png", ".gif"}

// SortTitleContents orders roster entries for processing.
func SortTitleContents(entries []overdrive.RosterEntry) {
	rank := func(u string) int {
		ext := path.Ext(urlPath(u))
		for i, e := range extensionsRank {
			if e == ext {
				return i
			}
		}
		return 999
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].URL, entries[j].URL
		ra, rb := rank(a), rank(b)
		if ra != rb {
			return ra < rb
		}
		aExt, bExt := path.Ext(urlPath(a)), path.Ext(urlPath(b))
		if aExt != bExt {
			return aExt < bExt
		}
		return urlPath(a) < urlPath(b)
	})
}

// SortSpine orders spine entries by their table-of-contents position, then
// by the vendor's spine position. Magazine spines are sometimes laid out in
// an order that disagrees with the printed contents.
func SortSpine(spine []overdrive.SpineItem, tocPages []string) {
	tocIndex := func(p string) int {
		for i, t := range tocPages {
			if t == p {
				return i
			}
		}
		return 999
	}
	sort.SliceStable(spine, func(i, j int) bool {
		a, b := tocIndex(spine[i].OriginalPath), tocIndex(spine[j].OriginalPath)
		if a != b {
			return a < b
		}
		return spine[i].SpinePosition < spine[j].SpinePosition
	})
}

// TOCPagePaths returns the fragment-stripped page path of every toc entry.
func TOCPagePaths(toc []overdrive.TOCEntry) []string {
	pages := make([]string, 0, len(toc))
	for _, item := range toc {
		p := item.Path
		if i := strings.Index(p, "#"); i >= 0 {
			p = p[:i]
		}
		pages = append(pages, p)
	}
	return pages
}

// DecodePage parses a downloaded page, swapping in the base64 body payload
// when the vendor's script wrapper is present.
func DecodePage(raw string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("epub: parse page: %w", err)
	}

	var payload string
	doc.Find(`script[type="text/javascript"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := payloadRe.FindStringSubmatch(s.Text()); m != nil {
			payload = m[1]
			return false
		}
		return true
	})
	if payload == "" {
		return doc, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("epub: decode page payload: %w", err)
	}
	inner, err := goquery.NewDocumentFromReader(strings.NewReader(string(decoded)))
	if err != nil {
		return nil, fmt.Errorf("epub: parse page payload: %w", err)
	}

	outerBody := doc.Find("body")
	innerBody := inner.Find("body")
	if outerBody.Length() > 0 && innerBody.Length() > 0 {
		outerBody.ReplaceWithNodes(innerBody.Nodes...)
	}
	return doc, nil
}

// v2StripAttrs are attributes EPUB 2 validators reject.
var v2StripAttrs = []string{
	"aria-label",
	"data-loc",
	"data-epub-type",
	"data-document-status",
	"data-xml-lang",
	"lang",
	"role",
	"epub:type",
	"epub:prefix",
}

// CleanupPage fixes up a content page for the target EPUB version.
func CleanupPage(doc *goquery.Document, version string) {
	if version == OPFVersion2 {
		doc.Find("*").Each(func(_ int, s *goquery.Selection) {
			for _, attr := range v2StripAttrs {
				s.RemoveAttr(attr)
			}
		})
		renameAll(doc, "nav", "div")
		renameAll(doc, "section", "div")
	}

	doc.Find("svg").Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr("xmlns"); !ok {
			s.SetAttr("xmlns", "http://www.w3.org/2000/svg")
		}
		if _, ok := s.Attr("xmlns:xlink"); !ok {
			s.SetAttr("xmlns:xlink", "http://www.w3.org/1999/xlink")
		}
	})
	renameAll(doc, "figcaption", "div")
	doc.Find("base").Remove()

	doc.Find("html").Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr("xmlns"); !ok {
			s.SetAttr("xmlns", "http://www.w3.org/1999/xhtml")
		}
	})
}

// PatchMagazineCSS removes the overflow-x rule that breaks paged layout.
func PatchMagazineCSS(css string) string {
	return magazineCSSRe.ReplaceAllString(css, "$1$2")
}

// ReplaceCoverSVG rewrites a magazine cover page, replacing its svg viewer
// shell with a plain img tag pointing at imgSrc.
func ReplaceCoverSVG(doc *goquery.Document, imgSrc string) bool {
	if doc.Find("svg").Length() == 0 {
		return false
	}
	doc.Find("svg").Remove()
	body := doc.Find("body")
	body.Children().Remove()
	body.AppendHtml(fmt.Sprintf(`<img src=%q alt="Cover"/>`, imgSrc))
	doc.Find("head").AppendHtml(
		"<style>img { max-width: 100%; margin-left: auto; margin-right: auto; }</style>")
	return true
}

// RenderPage serializes the document back to markup.
func RenderPage(doc *goquery.Document) (string, error) {
	var b strings.Builder
	for _, n := range doc.Nodes {
		if err := html.Render(&b, n); err != nil {
			return "", fmt.Errorf("epub: render page: %w", err)
		}
	}
	return b.String(), nil
}

// HasNavTOC reports whether the page declares itself an EPUB nav document.
func HasNavTOC(doc *goquery.Document) bool {
	found := false
	doc.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := s.Attr("epub:type"); ok && v == "toc" {
			found = true
			return false
		}
		return true
	})
	return found
}

// FirstImageSrc returns the src of the first img on the page, or "".
func FirstImageSrc(doc *goquery.Document) string {
	src, _ := doc.Find("img[src]").First().Attr("src")
	return src
}

// HasSVG reports whether the page embeds svg content.
func HasSVG(doc *goquery.Document) bool {
	return doc.Find("svg").Length() > 0
}

func renameAll(doc *goquery.Document, from, to string) {
	doc.Find(from).Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			if n.Type == html.ElementNode {
				n.Data = to
				n.DataAtom = 0
			}
		}
	})
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
