// Package naming derives deterministic book folder and file names from
// loan metadata and user-configurable templates.
package naming

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Default naming templates.
const (
	DefaultFolderTemplate = "{Title} - {Author}"
	DefaultFileTemplate   = "{Title}"
)

// Fields holds the substitutable values for a naming template.
type Fields struct {
	Title        string
	Authors      []string
	Series       string
	Edition      string
	ID           string
	ReadingOrder string
}

// Namer applies naming templates to generate book paths.
type Namer struct {
	folderTemplate string
	fileTemplate   string
}

// NewNamer creates a Namer with the given templates.
// Empty strings use default templates.
func NewNamer(folderTemplate, fileTemplate string) *Namer {
	if folderTemplate == "" {
		folderTemplate = DefaultFolderTemplate
	}
	if fileTemplate == "" {
		fileTemplate = DefaultFileTemplate
	}
	return &Namer{
		folderTemplate: folderTemplate,
		fileTemplate:   fileTemplate,
	}
}

// BookFolder generates the book folder path under downloadDir.
// Template fields are sanitized individually so that path separators in
// the template itself are preserved.
func (n *Namer) BookFolder(downloadDir string, f Fields) string {
	name := applyTemplate(n.folderTemplate, map[string]string{
		"Title":        Sanitize(f.Title),
		"Author":       Sanitize(strings.Join(f.Authors, ", ")),
		"Series":       Sanitize(f.Series),
		"Edition":      Sanitize(f.Edition),
		"ID":           Sanitize(f.ID),
		"ReadingOrder": Sanitize(f.ReadingOrder),
	})
	return filepath.Join(downloadDir, name)
}

// BookFile generates the base file name (no extension) inside the book
// folder. Unlike BookFolder, the whole expanded name is sanitized as a
// single component, so separators from any field are stripped.
func (n *Namer) BookFile(f Fields) string {
	name := applyTemplate(n.fileTemplate, map[string]string{
		"Title":        f.Title,
		"Author":       strings.Join(f.Authors, ", "),
		"Series":       f.Series,
		"Edition":      f.Edition,
		"ID":           f.ID,
		"ReadingOrder": f.ReadingOrder,
	})
	return Sanitize(name)
}

// formatPattern matches {Name} style placeholders.
var formatPattern = regexp.MustCompile(`\{(\w+)\}`)

// applyTemplate substitutes variables into a template string.
// Unknown placeholders are left untouched.
func applyTemplate(template string, vars map[string]string) string {
	return formatPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1 : len(match)-1]
		val, ok := vars[name]
		if !ok {
			return match
		}
		return val
	})
}
