package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrSizeMismatch is returned by sinks that must know an entry's length up
// front when the stream does not match the declared size.
var ErrSizeMismatch = errors.New("entry size does not match declared size")

// Entry describes one archive member.
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Sink is a sequential archive writer. AddEntry drains r into a new entry;
// Close writes the container trailer. A sink is used by one writer at a
// time.
type Sink interface {
	AddEntry(ctx context.Context, e Entry, r io.Reader) error
	Close() error
}

// Aborter is implemented by sinks that hold resources which must be
// released when the archive is abandoned without Close.
type Aborter interface {
	Abort() error
}

// Format names an archive container.
type Format string

const (
	FormatZip     Format = "zip"
	FormatTar     Format = "tar"
	FormatTarZstd Format = "tar.zst"
)

// ParseFormat parses a format name. The empty string selects zip.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "zip":
		return FormatZip, nil
	case "tar":
		return FormatTar, nil
	case "tar.zst", "tzst", "zstd":
		return FormatTarZstd, nil
	default:
		return "", fmt.Errorf("unsupported archive format %q", s)
	}
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatTar:
		return "application/x-tar"
	case FormatTarZstd:
		return "application/zstd"
	default:
		return "application/zip"
	}
}

// Extension returns the file extension for f without a leading dot.
func (f Format) Extension() string {
	return string(f)
}

// NewSink returns a sink writing format f to w.
func NewSink(f Format, w io.Writer) (Sink, error) {
	switch f {
	case FormatZip:
		return NewZipSink(w), nil
	case FormatTar:
		return NewTarSink(w), nil
	case FormatTarZstd:
		return NewTarZstdSink(w)
	default:
		return nil, fmt.Errorf("unsupported archive format %q", f)
	}
}
