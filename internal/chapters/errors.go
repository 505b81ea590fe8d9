package chapters

import "errors"

// Sentinel errors for the chapters package.
var (
	// ErrParse is returned for malformed timestamps or part paths.
	ErrParse = errors.New("chapters: parse error")
)
