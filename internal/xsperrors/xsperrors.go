// Package xsperrors defines the error taxonomy shared by every xsp-files
// package: a small set of orthogonal sentinel codes that callers can test
// for with errors.Is, each carrying the failing operation's own message and
// (when relevant) a wrapped cause.
package xsperrors

import "fmt"

// Code is one flag of the XSP error taxonomy (spec §7).
type Code int

const (
	// InputParsing signals a header decode failure or a bad length.
	InputParsing Code = iota
	// ArgsOutOfBounds signals a position or length outside current geometry.
	ArgsOutOfBounds
	// UnknownSeg signals a segment id that doesn't exist in writer/reader.
	UnknownSeg
	// SegsPacked signals an attempt to mutate or repack already-sealed bytes.
	SegsPacked
	// HeaderPacked signals a geometry-changing call after the header sealed.
	HeaderPacked
	// ConcurrentIteration signals a segmentInfos iterator that observed a
	// rebuild of the Locations index mid-iteration.
	ConcurrentIteration
	// VersionMismatch signals a reader header whose nonce delta from
	// zerothHeaderNonce didn't match the version it was opened with.
	VersionMismatch
	// NonceMismatch signals a reader header whose nonce lanes disagree with
	// zerothHeaderNonce entirely (not just a version offset).
	NonceMismatch
)

func (c Code) String() string {
	switch c {
	case InputParsing:
		return "inputParsing"
	case ArgsOutOfBounds:
		return "argsOutOfBounds"
	case UnknownSeg:
		return "unknownSeg"
	case SegsPacked:
		return "segsPacked"
	case HeaderPacked:
		return "headerPacked"
	case ConcurrentIteration:
		return "concurrentIteration"
	case VersionMismatch:
		return "versionMismatch"
	case NonceMismatch:
		return "nonceMismatch"
	default:
		return "unknown"
	}
}

// XspException is the common error carrier for every flag above.
type XspException struct {
	Code Code
	Msg  string
	Err  error
}

func (e *XspException) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("xsp: %s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("xsp: %s: %s", e.Code, e.Msg)
}

func (e *XspException) Unwrap() error { return e.Err }

// Is allows errors.Is(err, xsperrors.ErrInputParsing) style matching: it
// matches any *XspException target with the same Code, such as the Err*
// sentinels below.
func (e *XspException) Is(target error) bool {
	t, ok := target.(*XspException)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New builds an *XspException carrying no wrapped cause.
func New(code Code, msg string) error {
	return &XspException{Code: code, Msg: msg}
}

// Newf builds an *XspException with a formatted message.
func Newf(code Code, format string, args ...interface{}) error {
	return &XspException{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *XspException that wraps cause.
func Wrap(code Code, msg string, cause error) error {
	return &XspException{Code: code, Msg: msg, Err: cause}
}

// sentinels for errors.Is comparisons against a specific code, e.g.
//
//	if errors.Is(err, xsperrors.ErrSegsPacked) { ... }
var (
	ErrInputParsing        = &XspException{Code: InputParsing}
	ErrArgsOutOfBounds     = &XspException{Code: ArgsOutOfBounds}
	ErrUnknownSeg          = &XspException{Code: UnknownSeg}
	ErrSegsPacked          = &XspException{Code: SegsPacked}
	ErrHeaderPacked        = &XspException{Code: HeaderPacked}
	ErrConcurrentIteration = &XspException{Code: ConcurrentIteration}
	ErrVersionMismatch     = &XspException{Code: VersionMismatch}
	ErrNonceMismatch       = &XspException{Code: NonceMismatch}
)
