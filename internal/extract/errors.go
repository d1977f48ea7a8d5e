package extract

import (
	"errors"
	"fmt"

	"codegraph/internal/textutil"
)

// Sentinel errors for the extraction seam. Callers skip the offending
// file on either of these; neither aborts a batch.
var (
	// ErrUnsupportedLanguage means no extractor variant is registered
	// for the language tag.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrPathOutsideWorkspace means the file path does not resolve
	// under the workspace root, even after symlink canonicalization.
	ErrPathOutsideWorkspace = textutil.ErrOutsideWorkspace
)

// ParseError reports a parser adapter failure for one file. The
// extraction layer treats it as "extract nothing, log, continue".
type ParseError struct {
	Path string
	Lang string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s (%s): %v", e.Path, e.Lang, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
