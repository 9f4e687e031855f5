package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
)

func readTar(t *testing.T, r io.Reader) map[string]string {
	t.Helper()
	tr := tar.NewReader(r)
	out := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("tar: %v", err)
		}
		b, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("read %s: %v", hdr.Name, err)
		}
		out[hdr.Name] = string(b)
	}
}

func writeEntries(t *testing.T, s Sink) {
	t.Helper()
	ctx := context.Background()
	mt := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, e := range []struct{ name, body string }{{"a.txt", "alpha"}, {"dir/b.txt", "bravo!"}} {
		err := s.AddEntry(ctx, Entry{Name: e.name, Size: int64(len(e.body)), ModTime: mt}, strings.NewReader(e.body))
		if err != nil {
			t.Fatalf("AddEntry %s: %v", e.name, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestTarSink(t *testing.T) {
	var buf bytes.Buffer
	writeEntries(t, NewTarSink(&buf))

	got := readTar(t, &buf)
	if got["a.txt"] != "alpha" || got["dir/b.txt"] != "bravo!" || len(got) != 2 {
		t.Errorf("entries = %v", got)
	}
}

func TestTarZstdSink(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewTarZstdSink(&buf)
	if err != nil {
		t.Fatalf("NewTarZstdSink: %v", err)
	}
	writeEntries(t, s)

	dec, err := zstd.NewReader(&buf)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()

	got := readTar(t, dec)
	if got["a.txt"] != "alpha" || got["dir/b.txt"] != "bravo!" {
		t.Errorf("entries = %v", got)
	}
}

func TestTarSinkSizeMismatch(t *testing.T) {
	var buf bytes.Buffer
	s := NewTarSink(&buf)

	err := s.AddEntry(context.Background(), Entry{Name: "short", Size: 10}, strings.NewReader("abc"))
	if !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("err = %v, want ErrSizeMismatch", err)
	}
}

func TestTarSinkOversize(t *testing.T) {
	for _, f := range []Format{FormatTar, FormatTarZstd} {
		t.Run(string(f), func(t *testing.T) {
			var buf bytes.Buffer
			s, err := NewSink(f, &buf)
			if err != nil {
				t.Fatal(err)
			}
			err = s.AddEntry(context.Background(), Entry{Name: "grown", Size: 3}, strings.NewReader("hello world"))
			if !errors.Is(err, ErrSizeMismatch) {
				t.Errorf("err = %v, want ErrSizeMismatch", err)
			}
		})
	}
}

func TestTarSinkExactSize(t *testing.T) {
	var buf bytes.Buffer
	s := NewTarSink(&buf)
	if err := s.AddEntry(context.Background(), Entry{Name: "exact", Size: 5}, strings.NewReader("hello")); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := s.AddEntry(context.Background(), Entry{Name: "empty"}, strings.NewReader("")); err != nil {
		t.Fatalf("AddEntry empty: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestTarZstdAbort(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewTarZstdSink(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddEntry(context.Background(), Entry{Name: "x", Size: 1}, strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	if err := s.Abort(); err != nil {
		t.Errorf("Abort: %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatZip, false},
		{"ZIP", FormatZip, false},
		{"tar", FormatTar, false},
		{"tar.zst", FormatTarZstd, false},
		{"zstd", FormatTarZstd, false},
		{"rar", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatMetadata(t *testing.T) {
	if FormatZip.ContentType() != "application/zip" || FormatZip.Extension() != "zip" {
		t.Errorf("zip metadata wrong")
	}
	if FormatTarZstd.Extension() != "tar.zst" {
		t.Errorf("tar.zst extension = %q", FormatTarZstd.Extension())
	}
	if _, err := NewSink(Format("7z"), io.Discard); err == nil {
		t.Error("expected error for unknown format")
	}
}
