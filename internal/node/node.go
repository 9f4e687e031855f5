// Package node defines the file and directory handles that providers hand
// to the archive builder.
package node

import (
	"bytes"
	"context"
	"io"
	"time"
)

// Node is a resolved file or directory.
type Node interface {
	Name() string
}

// File is a node with readable content of a declared size.
type File interface {
	Node
	Size() int64
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Directory is a node with an ordered listing of children.
type Directory interface {
	Node
	Children(ctx context.Context) ([]Node, error)
}

// ModTimer is implemented by nodes that know their modification time.
type ModTimer interface {
	ModTime() time.Time
}

// OpenFunc opens a file's content.
type OpenFunc func(ctx context.Context) (io.ReadCloser, error)

// ListFunc lists a directory's children.
type ListFunc func(ctx context.Context) ([]Node, error)

type file struct {
	name    string
	size    int64
	modTime time.Time
	open    OpenFunc
}

// NewFile returns a File backed by open.
func NewFile(name string, size int64, modTime time.Time, open OpenFunc) File {
	return &file{name: name, size: size, modTime: modTime, open: open}
}

func (f *file) Name() string       { return f.name }
func (f *file) Size() int64        { return f.size }
func (f *file) ModTime() time.Time { return f.modTime }
func (f *file) Open(ctx context.Context) (io.ReadCloser, error) {
	return f.open(ctx)
}

type dir struct {
	name    string
	modTime time.Time
	list    ListFunc
}

// NewDirectory returns a Directory backed by list.
func NewDirectory(name string, modTime time.Time, list ListFunc) Directory {
	return &dir{name: name, modTime: modTime, list: list}
}

func (d *dir) Name() string       { return d.name }
func (d *dir) ModTime() time.Time { return d.modTime }
func (d *dir) Children(ctx context.Context) ([]Node, error) {
	return d.list(ctx)
}

// Bytes returns an in-memory File holding data.
func Bytes(name string, data []byte) File {
	return NewFile(name, int64(len(data)), time.Time{}, func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

// Dir returns an in-memory Directory with a fixed listing.
func Dir(name string, children ...Node) Directory {
	return NewDirectory(name, time.Time{}, func(context.Context) ([]Node, error) {
		return children, nil
	})
}

// Kind describes n for logs and CLI output.
func Kind(n Node) string {
	switch n.(type) {
	case File:
		return "file"
	case Directory:
		return "dir"
	default:
		return "unknown"
	}
}

// ModTime returns n's modification time, or the zero time.
func ModTime(n Node) time.Time {
	if m, ok := n.(ModTimer); ok {
		return m.ModTime()
	}
	return time.Time{}
}
