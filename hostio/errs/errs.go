// Package errs defines the error taxonomy that host adapters surface
// to the protocol engines, and the small amount of machinery needed
// to classify a wrapped error against it.
package errs

import "github.com/pkg/errors"

// Sentinel errors. Adapters wrap these with errors.Wrapf to attach
// context; callers classify with Is.
var (
	// InvalidPath is the sole failure mode of the path layer: a NUL
	// byte, an over-length result, or an empty result.
	InvalidPath = errors.New("invalid path")

	// NotFound means the target does not exist.
	NotFound = errors.New("not found")
	// Exists means a create-only operation targeted an existing path.
	Exists = errors.New("already exists")
	// NotEmpty means a directory removal targeted a non-empty directory.
	NotEmpty = errors.New("directory not empty")
	// IsDir means a file operation targeted a directory.
	IsDir = errors.New("is a directory")

	// Io is any other adapter-level failure: host I/O, corrupt state.
	Io = errors.New("i/o error")

	// WouldBlock means a non-blocking network operation had nothing
	// ready; callers recover locally by returning from the tick.
	WouldBlock = errors.New("would block")
	// Closed means the peer closed the connection.
	Closed = errors.New("connection closed")

	// BadRequest, LineTooLong and BadChunkedEncoding are HTTP framing
	// failures.
	BadRequest         = errors.New("bad request")
	LineTooLong        = errors.New("request line or header too long")
	BadChunkedEncoding = errors.New("malformed chunked encoding")

	// UnexpectedEndOfStream means the peer closed mid-frame.
	UnexpectedEndOfStream = errors.New("unexpected end of stream")

	// CrossDevice means rename is not supported across the requested
	// paths; the caller is responsible for any copy+delete fallback,
	// the engine itself never attempts one.
	CrossDevice = errors.New("cross-device rename not supported")
)

// Is reports whether err, or anything it wraps, is the given
// sentinel. It is a thin rename of errors.Is kept local to this
// package so call sites read as "errs.Is(err, errs.NotFound)" rather
// than mixing import aliases.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Wrap returns sentinel wrapped with msg and err's text, for adapters
// translating a lower-level failure (e.g. a raw *os.PathError) into
// one of the sentinels above. Is matches the sentinel; err itself is
// kept only as text and is not part of the Is/As chain.
func Wrap(err error, sentinel error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(sentinel, "%s: %s", msg, err)
}
