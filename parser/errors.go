package parser

import "errors"

var (
	// ErrInvalidUTF8 is reported for note files that are not valid UTF-8.
	ErrInvalidUTF8 = errors.New("file is not valid UTF-8")

	// ErrFrontMatter is reported for note files whose YAML front matter cannot be decoded.
	ErrFrontMatter = errors.New("invalid front matter")
)
