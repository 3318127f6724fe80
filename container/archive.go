// Package container reads and writes the ZIP container of a project file:
// entry listing, random-access extraction, forward-only entry streams and a
// staged writer with atomic commit. Size ceilings and entry-name sanitation
// guard against decompression bombs and path traversal.
package container

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Limits bounds how much a single archive may make the engine allocate.
// The zero value is not valid; use DefaultLimits as a starting point.
type Limits struct {
	// MaxEntrySize caps the uncompressed size of any single entry.
	MaxEntrySize uint64 `yaml:"max_entry_size"`
	// MaxDocumentSize caps the staged primary document of a streaming
	// writer before finalize.
	MaxDocumentSize uint64 `yaml:"max_document_size"`
}

// DefaultLimits returns the stock ceilings: 100 MiB per entry, 10 MiB for a
// staged document.
func DefaultLimits() Limits {
	return Limits{
		MaxEntrySize:    100 << 20,
		MaxDocumentSize: 10 << 20,
	}
}

// Entry describes one archive member.
type Entry struct {
	Name             string
	CompressedSize   uint64
	UncompressedSize uint64
	Modified         time.Time
	IsDir            bool
}

// Archive provides read access to an open container. It is safe for
// concurrent readers; Close invalidates all of them.
type Archive struct {
	path   string
	rc     *zip.ReadCloser
	limits Limits
	byName map[string]*zip.File
}

// Open reads the central directory of the container at path. A corrupt
// container yields a *FormatError; a missing file surfaces the underlying
// *fs.PathError.
func Open(p string, limits Limits) (*Archive, error) {
	rc, err := zip.OpenReader(p)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) || errors.Is(err, zip.ErrChecksum) {
			return nil, &FormatError{Path: p, Err: err}
		}
		return nil, err
	}
	a := &Archive{path: p, rc: rc, limits: limits, byName: make(map[string]*zip.File, len(rc.File))}
	for _, f := range rc.File {
		if _, err := CleanEntryName(f.Name); err != nil {
			rc.Close()
			return nil, &FormatError{Path: p, Err: err}
		}
		a.byName[f.Name] = f
	}
	return a, nil
}

// Path returns the filesystem path the archive was opened from.
func (a *Archive) Path() string { return a.path }

// Entries lists all members in central-directory order.
func (a *Archive) Entries() []Entry {
	entries := make([]Entry, 0, len(a.rc.File))
	for _, f := range a.rc.File {
		entries = append(entries, Entry{
			Name:             f.Name,
			CompressedSize:   f.CompressedSize64,
			UncompressedSize: f.UncompressedSize64,
			Modified:         f.Modified,
			IsDir:            f.FileInfo().IsDir(),
		})
	}
	return entries
}

// Has reports whether a named entry exists.
func (a *Archive) Has(name string) bool {
	_, ok := a.byName[name]
	return ok
}

// ReadEntry extracts a named entry into memory. The declared uncompressed
// size is checked against the limit before extraction, and the actual
// decompressed stream is re-checked against the declaration, so a lying
// header cannot expand past the ceiling.
func (a *Archive) ReadEntry(name string) ([]byte, error) {
	f, ok := a.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	if f.UncompressedSize64 > a.limits.MaxEntrySize {
		return nil, &LimitError{Entry: name, Size: f.UncompressedSize64, Limit: a.limits.MaxEntrySize}
	}
	r, err := f.Open()
	if err != nil {
		return nil, &FormatError{Path: a.path, Err: fmt.Errorf("entry %s: %w", name, err)}
	}
	defer r.Close()
	data, err := io.ReadAll(io.LimitReader(r, int64(f.UncompressedSize64)+1))
	if err != nil {
		return nil, &FormatError{Path: a.path, Err: fmt.Errorf("entry %s: %w", name, err)}
	}
	if uint64(len(data)) > f.UncompressedSize64 {
		return nil, &FormatError{Path: a.path, Err: fmt.Errorf("entry %s: data larger than declared size", name)}
	}
	return data, nil
}

// OpenEntry returns a forward-only stream over a named entry. The stream is
// capped at the entry size ceiling; reading past it fails.
func (a *Archive) OpenEntry(name string) (io.ReadCloser, error) {
	f, ok := a.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	if f.UncompressedSize64 > a.limits.MaxEntrySize {
		return nil, &LimitError{Entry: name, Size: f.UncompressedSize64, Limit: a.limits.MaxEntrySize}
	}
	r, err := f.Open()
	if err != nil {
		return nil, &FormatError{Path: a.path, Err: fmt.Errorf("entry %s: %w", name, err)}
	}
	return &limitedEntry{r: r, remaining: int64(a.limits.MaxEntrySize), entry: name, limit: a.limits.MaxEntrySize}, nil
}

// Close releases the underlying file handle.
func (a *Archive) Close() error { return a.rc.Close() }

type limitedEntry struct {
	r         io.ReadCloser
	remaining int64
	entry     string
	limit     uint64
}

func (l *limitedEntry) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		return 0, &LimitError{Entry: l.entry, Size: l.limit + 1, Limit: l.limit}
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}

func (l *limitedEntry) Close() error { return l.r.Close() }

// CleanEntryName validates and normalizes an entry name: no absolute paths,
// no backslashes, no parent-directory segments, nothing outside the archive
// root. The returned name is slash-separated and cleaned.
func CleanEntryName(name string) (string, error) {
	if name == "" {
		return "", errors.New("empty entry name")
	}
	if strings.ContainsRune(name, '\\') {
		return "", fmt.Errorf("entry name contains backslash: %q", name)
	}
	if strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("absolute entry name: %q", name)
	}
	cleaned := path.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("entry name escapes archive root: %q", name)
	}
	return cleaned, nil
}
