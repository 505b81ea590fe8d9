package naming

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// illegalChars are characters not allowed in filenames on common filesystems.
var illegalChars = regexp.MustCompile(`[<>:"/\\|?*\x00]`)

// multiSpace matches multiple consecutive spaces.
var multiSpace = regexp.MustCompile(`\s+`)

// multiDot matches multiple consecutive dots.
var multiDot = regexp.MustCompile(`\.{2,}`)

// Sanitize removes or replaces characters that are unsafe for filenames.
// Input is NFC-normalized first so that visually identical titles from
// different vendor endpoints produce identical paths.
func Sanitize(name string) string {
	name = norm.NFC.String(name)

	// Remove null bytes
	name = strings.ReplaceAll(name, "\x00", "")

	// Replace path separators with space
	name = strings.ReplaceAll(name, "/", " ")
	name = strings.ReplaceAll(name, "\\", " ")

	// Replace illegal characters with space
	name = illegalChars.ReplaceAllString(name, " ")

	// Collapse multiple dots to single dot
	name = multiDot.ReplaceAllString(name, ".")

	// Collapse multiple spaces to single space
	name = multiSpace.ReplaceAllString(name, " ")

	// Trim leading/trailing whitespace and dots
	name = strings.Trim(name, " .")

	return name
}

var slugStrip = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
var slugCollapse = regexp.MustCompile(`[-\s]+`)

// Slugify converts a title into a lowercase hyphenated identifier suitable
// for file names and OPF manifest ids. Unicode letters are kept (NFKC form).
func Slugify(value string) string {
	value = norm.NFKC.String(value)
	value = slugStrip.ReplaceAllString(value, "")
	value = strings.ToLower(strings.TrimSpace(value))
	return slugCollapse.ReplaceAllString(value, "-")
}

// OPFID sanitizes a path into a valid OPF manifest id. OPF ids cannot
// start with a digit.
func OPFID(path string) string {
	id := Slugify(path)
	if id != "" {
		r := []rune(id)[0]
		if unicode.IsDigit(r) {
			return "id_" + id
		}
	}
	return id
}
