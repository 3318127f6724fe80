package container

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Writer stages entries for a new container and commits them atomically:
// everything is written to a temp file next to the destination, which is
// renamed over it only after every staged entry succeeded. A failed commit
// or an Abort leaves the destination untouched.
type Writer struct {
	dest  string
	tmp   *os.File
	zw    *zip.Writer
	names map[string]bool
	done  bool
}

// NewWriter starts staging a container that will replace dest on Commit.
func NewWriter(dest string) (*Writer, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".dawproject-*")
	if err != nil {
		return nil, err
	}
	return &Writer{
		dest:  dest,
		tmp:   tmp,
		zw:    zip.NewWriter(tmp),
		names: make(map[string]bool),
	}, nil
}

// Create stages a new entry and returns the writer for its content. The
// name is validated against path traversal before anything is written.
func (w *Writer) Create(name string) (io.Writer, error) {
	if w.done {
		return nil, errors.New("archive writer already finished")
	}
	cleaned, err := CleanEntryName(name)
	if err != nil {
		return nil, &FormatError{Path: w.dest, Err: err}
	}
	if w.names[cleaned] {
		return nil, &FormatError{Path: w.dest, Err: fmt.Errorf("duplicate entry %q", cleaned)}
	}
	w.names[cleaned] = true
	return w.zw.Create(cleaned)
}

// WriteEntry stages a complete entry from a byte slice.
func (w *Writer) WriteEntry(name string, data []byte) error {
	ew, err := w.Create(name)
	if err != nil {
		return err
	}
	if _, err := ew.Write(data); err != nil {
		return err
	}
	return nil
}

// Has reports whether an entry with the given name has been staged.
func (w *Writer) Has(name string) bool { return w.names[name] }

// Commit finishes the archive and renames it over the destination. On any
// failure the temp file is removed and the destination keeps its previous
// content.
func (w *Writer) Commit() error {
	if w.done {
		return errors.New("archive writer already finished")
	}
	w.done = true
	if err := w.zw.Close(); err != nil {
		w.discard()
		return err
	}
	if err := w.tmp.Sync(); err != nil {
		w.discard()
		return err
	}
	if err := w.tmp.Close(); err != nil {
		os.Remove(w.tmp.Name())
		return err
	}
	if err := os.Rename(w.tmp.Name(), w.dest); err != nil {
		os.Remove(w.tmp.Name())
		return err
	}
	return nil
}

// Abort discards everything staged so far. Safe to call after Commit; it
// then does nothing.
func (w *Writer) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.discard()
}

func (w *Writer) discard() {
	w.zw.Close()
	w.tmp.Close()
	os.Remove(w.tmp.Name())
}
