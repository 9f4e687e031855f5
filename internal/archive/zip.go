package archive

import (
	"context"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// ZipSink writes a zip archive. Entries are deflated and streamed with data
// descriptors, so sizes need not be known in advance.
type ZipSink struct {
	zw *zip.Writer
}

// NewZipSink returns a zip sink writing to w.
func NewZipSink(w io.Writer) *ZipSink {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})
	return &ZipSink{zw: zw}
}

// AddEntry writes one deflated member.
func (s *ZipSink) AddEntry(_ context.Context, e Entry, r io.Reader) error {
	fh := &zip.FileHeader{
		Name:     e.Name,
		Method:   zip.Deflate,
		Modified: e.ModTime,
	}
	fh.SetMode(0644)

	w, err := s.zw.CreateHeader(fh)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		return err
	}
	// Push the finished member past zip's internal buffer.
	return s.zw.Flush()
}

// Close writes the central directory.
func (s *ZipSink) Close() error {
	return s.zw.Close()
}
