package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// TarSink writes a ustar/PAX archive. Tar headers carry the size, so each
// entry must deliver exactly its declared length.
type TarSink struct {
	tw *tar.Writer
}

// NewTarSink returns a tar sink writing to w.
func NewTarSink(w io.Writer) *TarSink {
	return &TarSink{tw: tar.NewWriter(w)}
}

// AddEntry writes one regular file member.
func (s *TarSink) AddEntry(_ context.Context, e Entry, r io.Reader) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     e.Name,
		Size:     e.Size,
		Mode:     0644,
		ModTime:  e.ModTime,
	}
	if err := s.tw.WriteHeader(hdr); err != nil {
		return err
	}

	n, err := io.CopyN(s.tw, r, e.Size)
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: %w (declared %d, read %d)", e.Name, ErrSizeMismatch, e.Size, n)
	}
	if err != nil {
		return err
	}

	// The stream must end exactly at the declared size.
	var extra [1]byte
	switch _, err := io.ReadFull(r, extra[:]); {
	case err == nil:
		return fmt.Errorf("%s: %w (stream longer than declared %d)", e.Name, ErrSizeMismatch, e.Size)
	case errors.Is(err, io.EOF):
		return nil
	default:
		return err
	}
}

// Close writes the end-of-archive blocks.
func (s *TarSink) Close() error {
	return s.tw.Close()
}

// TarZstdSink is a TarSink compressed with zstd.
type TarZstdSink struct {
	TarSink
	enc *zstd.Encoder
}

// NewTarZstdSink returns a tar.zst sink writing to w.
func NewTarZstdSink(w io.Writer) (*TarZstdSink, error) {
	enc, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return &TarZstdSink{TarSink: TarSink{tw: tar.NewWriter(enc)}, enc: enc}, nil
}

// Close finishes the tar stream and the zstd frame.
func (s *TarZstdSink) Close() error {
	if err := s.tw.Close(); err != nil {
		s.Abort()
		return err
	}
	return s.enc.Close()
}

// Abort releases the encoder without completing the frame.
func (s *TarZstdSink) Abort() error {
	s.enc.Reset(io.Discard)
	return s.enc.Close()
}
