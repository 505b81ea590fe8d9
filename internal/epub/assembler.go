package epub

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/vmunix/odgo/internal/overdrive"
)

// ErrUnsupportedLayout is returned for fixed-layout (pre-paginated)
// magazines, whose roster carries no usable article pages.
var ErrUnsupportedLayout = errors.New("epub: unsupported fixed-layout format")

// FetchFunc downloads one asset. The pipeline injects an HTTP-backed
// implementation; tests inject fakes.
type FetchFunc func(ctx context.Context, assetURL string) ([]byte, error)

// Input carries everything needed to assemble one book.
type Input struct {
	Loan       *overdrive.LoanManifest
	Media      *overdrive.MediaInfo
	Book       *overdrive.OpenBook
	Rosters    []overdrive.Roster
	WorkDir    string // staging folder, cleaned up after packaging
	OutputPath string // where the .epub lands
	CoverPath  string // downloaded API cover; "" when absent
	// GenerateOPF writes a metadata-only .opf sidecar next to the epub.
	GenerateOPF bool
	// KeepStaging leaves the unpacked book tree in WorkDir.
	KeepStaging bool
}

// manifestItem is one OPF manifest entry.
type manifestItem struct {
	id         string
	href       string
	mediaType  string
	properties string
}

// Assembler builds EPUB files from roster content.
type Assembler struct {
	fetch  FetchFunc
	logger *slog.Logger
}

// NewAssembler creates an Assembler.
func NewAssembler(fetch FetchFunc, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{fetch: fetch, logger: logger}
}

const (
	metaDirName    = "META-INF"
	contentDirName = "OEBPS"
	opfFileName    = "package.opf"
	epubVersion    = OPFVersion3
)

// Assemble downloads the book content and packages it as an EPUB at
// in.OutputPath. Already-downloaded assets in the staging folder are reused
// so an interrupted run resumes where it stopped.
func (a *Assembler) Assemble(ctx context.Context, in Input) error {
	isMagazine := in.Loan.Type.ID == overdrive.TypeMagazine
	toc := in.Book.Nav.TOC
	if isMagazine && len(toc) <= 1 {
		return ErrUnsupportedLayout
	}

	roster := overdrive.TitleContent(in.Rosters)
	if roster == nil {
		return fmt.Errorf("epub: loan has no title-content roster")
	}

	metaDir := filepath.Join(in.WorkDir, metaDirName)
	contentDir := filepath.Join(in.WorkDir, contentDirName)
	for _, d := range []string{metaDir, contentDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("epub: create %s: %w", d, err)
		}
	}

	// magazine covers are named in the toc; ebook covers hide behind a
	// landmark page whose image must be sniffed out of the html
	var coverTOCItem *overdrive.TOCEntry
	for i := range toc {
		if toc[i].PageRange == "Cover" && toc[i].FeatureImage != "" {
			coverTOCItem = &toc[i]
			break
		}
	}
	var coverLandmark *overdrive.Landmark
	for i := range in.Book.Nav.Landmarks {
		if in.Book.Nav.Landmarks[i].Type == "cover" {
			coverLandmark = &in.Book.Nav.Landmarks[i]
			break
		}
	}

	tocPages := TOCPagePaths(toc)

	entries := make([]overdrive.RosterEntry, 0, len(roster.Entries))
	for _, e := range roster.Entries {
		if FilterContent(e.URL, in.Media.Type.ID, tocPages) {
			entries = append(entries, e)
		}
	}
	SortTitleContents(entries)

	var (
		manifest      []manifestItem
		hasNCX        bool
		hasNav        bool
		coverImgID    string
		coverImgHref  string
	)

	for _, entry := range entries {
		u, err := url.Parse(entry.URL)
		if err != nil {
			return fmt.Errorf("epub: bad roster url %q: %w", entry.URL, err)
		}
		relPath := strings.TrimPrefix(u.Path, "/")
		mediaType := MediaType(relPath)
		if mediaType == "application/x-dtbncx+xml" {
			hasNCX = true
		}

		item := manifestItem{href: relPath, mediaType: mediaType}
		if mediaType == "application/x-dtbncx+xml" {
			item.id = "ncx"
		} else {
			item.id = OPFID(relPath)
		}

		// the toc-referenced cover image counts only once it is seen in
		// the roster, proving the manifest actually carries it
		if coverTOCItem != nil && item.id == OPFID(coverTOCItem.FeatureImage) {
			coverImgID = item.id
			coverImgHref = relPath
		}

		assetPath := filepath.Join(contentDir, filepath.FromSlash(relPath))
		if err := os.MkdirAll(filepath.Dir(assetPath), 0o755); err != nil {
			return fmt.Errorf("epub: create asset folder: %w", err)
		}

		var doc *goquery.Document
		if _, statErr := os.Stat(assetPath); statErr == nil {
			a.logger.Debug("already saved", "asset", relPath)
			if isHTML(mediaType) {
				raw, err := os.ReadFile(assetPath)
				if err != nil {
					return fmt.Errorf("epub: reread %s: %w", assetPath, err)
				}
				if doc, err = goquery.NewDocumentFromReader(strings.NewReader(string(raw))); err != nil {
					return fmt.Errorf("epub: reparse %s: %w", assetPath, err)
				}
			}
		} else {
			a.logger.Debug("downloading", "asset", relPath)
			raw, err := a.fetch(ctx, entry.URL)
			if err != nil {
				return fmt.Errorf("epub: download %s: %w", entry.URL, err)
			}

			switch {
			case isMagazine && mediaType == "text/css":
				raw = []byte(PatchMagazineCSS(string(raw)))
			case isHTML(mediaType):
				if doc, err = DecodePage(string(raw)); err != nil {
					return err
				}
				CleanupPage(doc, epubVersion)
				if coverTOCItem != nil && item.id == OPFID(pageOf(coverTOCItem.Path)) {
					imgSrc := relativeHref(relPath, coverTOCItem.FeatureImage)
					ReplaceCoverSVG(doc, imgSrc)
				}
				page, err := RenderPage(doc)
				if err != nil {
					return err
				}
				raw = []byte(page)
			}
			if err := os.WriteFile(assetPath, raw, 0o644); err != nil {
				return fmt.Errorf("epub: save %s: %w", assetPath, err)
			}
		}

		if doc != nil {
			switch {
			case coverImgID == "" && coverLandmark != nil && coverLandmark.Path == relPath:
				if src := FirstImageSrc(doc); src != "" {
					coverImgID = OPFID(resolveHref(coverLandmark.Path, src))
				}
			case !hasNav && HasNavTOC(doc):
				item.properties = "nav"
				hasNav = true
			case HasSVG(doc):
				item.properties = "svg"
			}
		}

		if coverImgID != "" && coverImgID == item.id {
			item.properties = "cover-image"
			coverImgHref = relPath
		}
		manifest = append(manifest, item)
	}

	// a cover id sniffed from the landmark page is only trusted when the
	// image itself showed up in the roster
	if coverImgHref == "" {
		coverImgID = ""
	}

	// keep the roster's high-res cover for the caller when one was found
	if coverImgHref != "" && in.CoverPath != "" {
		if err := copyFile(filepath.Join(contentDir, filepath.FromSlash(coverImgHref)), in.CoverPath); err != nil {
			a.logger.Warn("replace cover with roster image", "error", err)
		}
	}

	if !hasNav {
		// magazines ship without a nav document
		navName := fmt.Sprintf("nav_%s.xhtml", in.Loan.ID)
		nav := BuildNavXHTML(in.Loan.Title, toc)
		if err := os.WriteFile(filepath.Join(contentDir, navName), []byte(nav), 0o644); err != nil {
			return fmt.Errorf("epub: save nav: %w", err)
		}
		manifest = append(manifest, manifestItem{
			id: "nav", href: navName, mediaType: "application/xhtml+xml", properties: "nav",
		})
	}

	if !hasNCX {
		ncxName := fmt.Sprintf("toc_%s.ncx", in.Loan.ID)
		if err := writeXML(filepath.Join(contentDir, ncxName), BuildNCX(in.Media, in.Book)); err != nil {
			return err
		}
		manifest = append(manifest, manifestItem{
			id: "ncx", href: ncxName, mediaType: "application/x-dtbncx+xml",
		})
		hasNCX = true
	}

	loanFormat := overdrive.FormatEBookLibby
	if isMagazine {
		loanFormat = overdrive.FormatMagazineLibby
	}
	pkg := BuildPackage(in.Media, epubVersion, loanFormat)

	if in.GenerateOPF {
		// sidecar keeps only metadata; manifest and spine are meaningless
		// outside the archive
		sidecar := strings.TrimSuffix(in.OutputPath, filepath.Ext(in.OutputPath)) + ".opf"
		if err := writeXML(sidecar, pkg); err != nil {
			return err
		}
		a.logger.Info("saved", "path", sidecar)
	}

	manifestEle := pkg.Sub("manifest")
	for _, item := range manifest {
		ie := manifestEle.Sub("item", "href", item.href, "id", item.id, "media-type", item.mediaType)
		if item.properties != "" {
			ie.SetAttr("properties", item.properties)
		}
	}

	if coverImgID == "" && in.CoverPath != "" {
		// no roster asset was identified as the cover; embed the API cover
		coverName := fmt.Sprintf("cover_%d.jpg", time.Now().Unix())
		if err := copyFile(in.CoverPath, filepath.Join(contentDir, coverName)); err != nil {
			return fmt.Errorf("epub: embed cover: %w", err)
		}
		coverImgID = "coverimage"
		manifestEle.Sub("item",
			"id", coverImgID,
			"href", coverName,
			"media-type", "image/jpeg",
			"properties", "cover-image",
		)
	}
	if coverImgID != "" {
		if md := pkg.Find("metadata"); md != nil {
			md.Sub("meta", "name", "cover", "content", coverImgID)
		}
	}

	spineEle := pkg.Sub("spine")
	if hasNCX {
		spineEle.SetAttr("toc", "ncx")
	}
	spine := make([]overdrive.SpineItem, 0, len(in.Book.Spine))
	for _, s := range in.Book.Spine {
		if isMagazine && !containsString(tocPages, s.OriginalPath) {
			continue
		}
		spine = append(spine, s)
	}
	SortSpine(spine, tocPages)
	for _, s := range spine {
		spineEle.Sub("itemref", "idref", OPFID(s.OriginalPath))
	}

	if len(in.Book.Nav.Landmarks) > 0 {
		guide := pkg.Sub("guide")
		for _, lm := range in.Book.Nav.Landmarks {
			guide.Sub("reference", "href", lm.Path, "title", lm.Title, "type", lm.Type)
		}
	}

	if err := writeXML(filepath.Join(contentDir, opfFileName), pkg); err != nil {
		return err
	}
	container := BuildContainer(path.Join(contentDirName, opfFileName))
	if err := writeXML(filepath.Join(metaDir, "container.xml"), container); err != nil {
		return err
	}

	if err := writeArchive(in.OutputPath, in.WorkDir, metaDir, contentDir); err != nil {
		return err
	}
	a.logger.Info("saved", "path", in.OutputPath)

	if !in.KeepStaging {
		for _, d := range []string{metaDir, contentDir} {
			if err := os.RemoveAll(d); err != nil {
				a.logger.Warn("cleanup staging", "path", d, "error", err)
			}
		}
	}
	return nil
}

// writeArchive zips the staging tree into an EPUB. The mimetype entry must
// come first and be stored uncompressed.
func writeArchive(outputPath, workDir string, dirs ...string) error {
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("epub: create %s: %w", outputPath, err)
	}
	zw := zip.NewWriter(out)

	mt, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err == nil {
		_, err = mt.Write([]byte("application/epub+zip"))
	}
	if err != nil {
		out.Close()
		return fmt.Errorf("epub: write mimetype: %w", err)
	}

	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			rel, err := filepath.Rel(workDir, p)
			if err != nil {
				return err
			}
			w, err := zw.Create(filepath.ToSlash(rel))
			if err != nil {
				return err
			}
			f, err := os.Open(p)
			if err != nil {
				return err
			}
			_, err = io.Copy(w, f)
			f.Close()
			return err
		})
		if err != nil {
			zw.Close()
			out.Close()
			return fmt.Errorf("epub: archive %s: %w", dir, err)
		}
	}

	if err := zw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("epub: finalize archive: %w", err)
	}
	return out.Close()
}

func writeXML(path string, e *Element) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("epub: create %s: %w", path, err)
	}
	if err := e.Encode(f); err != nil {
		f.Close()
		return fmt.Errorf("epub: write %s: %w", path, err)
	}
	return f.Close()
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// pageOf strips a fragment from a toc path.
func pageOf(p string) string {
	if i := strings.Index(p, "#"); i >= 0 {
		return p[:i]
	}
	return p
}

// resolveHref resolves an image src relative to the page that contains it.
func resolveHref(pagePath, src string) string {
	base, err := url.Parse(pagePath)
	if err != nil {
		return src
	}
	ref, err := url.Parse(src)
	if err != nil {
		return src
	}
	return base.ResolveReference(ref).Path
}

// relativeHref computes the src needed on page relPath to reach target,
// both given relative to the content root.
func relativeHref(fromPage, target string) string {
	rel, err := filepath.Rel(path.Dir(fromPage), target)
	if err != nil {
		return target
	}
	return filepath.ToSlash(rel)
}
