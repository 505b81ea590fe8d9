package epub

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vmunix/odgo/internal/naming"
	"github.com/vmunix/odgo/internal/overdrive"
)

// OPF versions supported by the package builder.
const (
	OPFVersion2 = "2.0"
	OPFVersion3 = "3.0"
)

// marcRoles maps the vendor's creator roles to OPF/MARC relator codes.
var marcRoles = []struct {
	media string
	opf   string
}{
	{"Author", "aut"},
	{"Narrator", "nrt"},
	{"Editor", "edt"},
	{"Translator", "trl"},
	{"Illustrator", "ill"},
	{"Photographer", "pht"},
	{"Artist", "art"},
	{"Collaborator", "clb"},
	{"Other", "oth"},
	{"Publisher", "pbl"},
}

// BuildPackage builds the OPF package element (metadata only; manifest,
// spine and guide are appended by the assembler) from the catalog record.
func BuildPackage(media *overdrive.MediaInfo, version, loanFormat string) *Element {
	directEPUB := loanFormat == overdrive.FormatEBookLibby || loanFormat == overdrive.FormatMagazineLibby
	isMagazine := loanFormat == overdrive.FormatMagazineLibby

	pkg := NewElement("package",
		"version", version,
		"xmlns", "http://www.idpf.org/2007/opf",
		"unique-identifier", "publication-id",
	)
	md := pkg.Sub("metadata",
		"xmlns:dc", "http://purl.org/dc/elements/1.1/",
		"xmlns:opf", "http://www.idpf.org/2007/opf",
	)

	title := md.Sub("dc:title")
	title.Text = media.Title
	if isMagazine && media.Edition != "" {
		// editions disambiguate otherwise identically titled issues
		title.Text = fmt.Sprintf("%s - %s", media.Title, media.Edition)
	}
	if version == OPFVersion3 {
		title.SetAttr("id", "main-title")
		md.Sub("meta", "refines", "#main-title", "property", "title-type").Text = "main"
	}

	if media.Subtitle != "" {
		switch {
		case version == OPFVersion2 && !directEPUB:
			md.Sub("dc:subtitle").Text = media.Subtitle
		case version == OPFVersion3:
			sub := md.Sub("dc:title", "id", "sub-title")
			sub.Text = media.Subtitle
			md.Sub("meta", "refines", "#sub-title", "property", "title-type").Text = "subtitle"
		}
	}
	if version == OPFVersion3 && media.Edition != "" {
		ed := md.Sub("dc:title", "id", "edition")
		ed.Text = media.Edition
		md.Sub("meta", "refines", "#edition", "property", "title-type").Text = "edition"
	}

	if len(media.Languages) > 0 {
		md.Sub("dc:language").Text = media.Languages[0].ID
	}

	ident := md.Sub("dc:identifier", "id", "publication-id")
	isbn := overdrive.ExtractISBN(media.Formats, []string{loanFormat})
	if isbn != "" {
		ident.Text = isbn
		if version == OPFVersion2 {
			ident.SetAttr("opf:scheme", "ISBN")
		}
		if version == OPFVersion3 && (len(isbn) == 10 || len(isbn) == 13) {
			onix := "02"
			if len(isbn) == 13 {
				onix = "15"
			}
			md.Sub("meta",
				"refines", "#publication-id",
				"property", "identifier-type",
				"scheme", "onix:codelist5",
			).Text = onix
		}
	} else if media.ID != "" {
		ident.Text = media.ID
		if version == OPFVersion2 {
			ident.SetAttr("opf:scheme", "overdrive")
		}
	} else {
		// no stable identifier anywhere; mint one so readers can still
		// de-duplicate the publication
		ident.Text = "urn:uuid:" + uuid.NewString()
	}

	if asin := overdrive.ExtractASIN(media.Formats); asin != "" {
		at := md.Sub("dc:identifier", "id", "asin")
		at.Text = asin
		if version == OPFVersion2 {
			at.SetAttr("opf:scheme", "ASIN")
		}
		if version == OPFVersion3 {
			md.Sub("meta", "refines", "#asin", "property", "identifier-type").Text = "ASIN"
		}
	}

	odID := md.Sub("dc:identifier", "id", "overdrive-id")
	odID.Text = media.ID
	odReserve := md.Sub("dc:identifier", "id", "overdrive-reserve-id")
	odReserve.Text = media.ReserveID
	if version == OPFVersion2 {
		odID.SetAttr("opf:scheme", "OverDriveId")
		odReserve.SetAttr("opf:scheme", "OverDriveReserveId")
	}
	if version == OPFVersion3 {
		md.Sub("meta", "refines", "#overdrive-id", "property", "identifier-type").Text = "overdrive-id"
		md.Sub("meta", "refines", "#overdrive-reserve-id", "property", "identifier-type").Text = "overdrive-reserve-id"
	}

	creators := media.Creators
	if len(creators) == 0 && media.Publisher.Name != "" {
		// magazines carry no creators; surface the publisher instead
		creators = []overdrive.Creator{{Name: media.Publisher.Name, Role: "Publisher"}}
	}
	for _, role := range marcRoles {
		for _, c := range creators {
			if c.Role != role.media {
				continue
			}
			creator := md.Sub("dc:creator")
			creator.Text = c.Name
			if version == OPFVersion2 {
				creator.SetAttr("opf:role", role.opf)
				if c.SortName != "" {
					creator.SetAttr("opf:file-as", c.SortName)
				}
			}
			if version == OPFVersion3 {
				ref := fmt.Sprintf("creator_%d", c.ID)
				creator.SetAttr("id", ref)
				if c.SortName != "" {
					md.Sub("meta", "refines", "#"+ref, "property", "file-as").Text = c.SortName
				}
				md.Sub("meta",
					"refines", "#"+ref,
					"property", "role",
					"scheme", "marc:relators",
				).Text = role.opf
			}
		}
	}

	if media.Publisher.Name != "" {
		md.Sub("dc:publisher").Text = media.Publisher.Name
	}
	if media.Description != "" {
		md.Sub("dc:description").Text = media.Description
	}
	for _, s := range media.Subjects {
		md.Sub("dc:subject").Text = s.Name
	}
	if version == OPFVersion2 && !directEPUB {
		for _, k := range media.Keywords {
			md.Sub("dc:tag").Text = k
		}
	}
	if version == OPFVersion3 {
		for i, bisac := range media.BISAC {
			ref := fmt.Sprintf("subject_%d", i+1)
			subj := md.Sub("dc:subject", "id", ref)
			subj.Text = bisac.Description
			md.Sub("meta", "refines", "#"+ref, "property", "authority").Text = "BISAC"
			md.Sub("meta", "refines", "#"+ref, "property", "term").Text = bisac.Code
		}
	}

	publishDate := media.PublishDate
	if publishDate == "" {
		publishDate = media.EstimatedReleaseDate
	}
	if publishDate != "" {
		date := md.Sub("dc:date")
		date.Text = publishDate
		if version == OPFVersion2 {
			date.SetAttr("opf:event", "publication")
		}
		if version == OPFVersion3 {
			md.Sub("meta", "property", "dcterms:modified").Text = publishDate
		}
	}

	seriesName := media.DetailedSeries.SeriesName
	if seriesName == "" {
		seriesName = media.Series
	}
	if seriesName == "" && isMagazine {
		seriesName = media.Title
	}
	if seriesName != "" {
		md.Sub("meta", "name", "calibre:series", "content", seriesName)
		if version == OPFVersion3 {
			sn := md.Sub("meta", "id", "series-name", "property", "belongs-to-collection")
			sn.Text = seriesName
			md.Sub("meta", "refines", "#series-name", "property", "collection-type").Text = "series"
		}

		readingOrder := media.DetailedSeries.ReadingOrder
		if readingOrder == "" && isMagazine && media.EstimatedReleaseDate != "" {
			if t, err := time.Parse("2006-01-02T15:04:05Z", media.EstimatedReleaseDate); err == nil {
				// pseudo reading order from the release date, yyddd
				readingOrder = fmt.Sprintf("%02d%03d", t.Year()%100, t.YearDay())
			}
		}
		if readingOrder != "" {
			md.Sub("meta", "name", "calibre:series_index", "content", readingOrder)
			if version == OPFVersion3 {
				md.Sub("meta", "refines", "#series-name", "property", "group-position").Text = readingOrder
			}
		}
	}

	return pkg
}

// BuildNCX synthesizes an NCX document from the openbook navigation, for
// readers that predate EPUB 3 nav documents.
func BuildNCX(media *overdrive.MediaInfo, book *overdrive.OpenBook) *Element {
	uid := overdrive.ExtractISBN(media.Formats,
		[]string{overdrive.FormatEBookLibby, overdrive.FormatMagazineLibby})
	if uid == "" {
		uid = media.ID
	}

	ncx := NewElement("ncx",
		"version", "2005-1",
		"xmlns", "http://www.daisy.org/z3986/2005/ncx/",
		"xml:lang", "en",
	)
	head := ncx.Sub("head")
	head.Sub("meta", "content", uid, "name", "dtb:uid")

	ncx.Sub("docTitle").Sub("text").Text = book.Title.Main
	if len(book.Creators) > 0 {
		ncx.Sub("docAuthor").Sub("text").Text = book.Creators[0].Name
	}

	navMap := ncx.Sub("navMap")
	for i, item := range book.Nav.TOC {
		point := navMap.Sub("navPoint", "id", fmt.Sprintf("navPoint%d", i+1))
		point.Sub("navLabel").Sub("text").Text = item.Title
		point.Sub("content", "src", item.Path)
	}
	return ncx
}

// BuildNavXHTML synthesizes an EPUB 3 navigation document listing the
// openbook table of contents.
func BuildNavXHTML(title string, toc []overdrive.TOCEntry) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n")
	b.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">`)
	b.WriteString("\n<head><title>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</title></head>\n<body>\n")
	b.WriteString("<nav epub:type=\"toc\">\n<h1>Contents</h1>\n<ol id=\"toc\">")
	for _, item := range toc {
		b.WriteString(fmt.Sprintf("\n<li><a href=%q>%s</a></li>",
			item.Path, html.EscapeString(item.Title)))
	}
	b.WriteString("\n</ol>\n</nav>\n</body>\n</html>")
	return b.String()
}

// BuildContainer builds the META-INF/container.xml document pointing at the
// package file.
func BuildContainer(opfPath string) *Element {
	container := NewElement("container",
		"version", "1.0",
		"xmlns", "urn:oasis:names:tc:opendocument:xmlns:container",
	)
	container.Sub("rootfiles").Sub("rootfile",
		"full-path", opfPath,
		"media-type", "application/oebps-package+xml",
	)
	return container
}

// OPFID converts an asset path into a valid OPF manifest id.
func OPFID(path string) string {
	return naming.OPFID(path)
}
