// Package engine is the public entry point of the data access layer. It
// composes the archive, XML, DOM, streaming and session components behind
// one API; hosts construct an Engine with explicit options instead of
// reaching for process-wide state.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/dawtools/dawproject"
	"github.com/dawtools/dawproject/container"
	"github.com/dawtools/dawproject/dom"
	"github.com/dawtools/dawproject/session"
	"github.com/dawtools/dawproject/stream"
)

// Engine provides DOM loading and saving, streaming access, stand-alone
// validation and session creation over project containers. Safe for
// concurrent use; every call works on its own file handles.
type Engine struct {
	opts Options

	mu sync.Mutex
	// origins remembers which container each loaded graph came from, so
	// Save can carry its resource entries to a new destination.
	origins map[*dawproject.Project]string
}

// New returns an engine with the given options; zero-value limits are
// replaced by defaults.
func New(opts Options) *Engine {
	if opts.Limits == (container.Limits{}) {
		opts.Limits = container.DefaultLimits()
	}
	return &Engine{opts: opts, origins: make(map[*dawproject.Project]string)}
}

// Options returns the effective configuration.
func (e *Engine) Options() Options { return e.opts }

// Load materializes the whole project graph for random access (DOM mode).
// The validation result carries warnings even on success; on error the
// project is nil and nothing half-built escapes.
func (e *Engine) Load(path string) (*dawproject.Project, *dawproject.ValidationResult, error) {
	p, result, err := dom.Load(path, dom.Options{
		Limits:     e.opts.Limits,
		Strict:     e.opts.Strict,
		InlineMIDI: e.opts.InlineMIDI,
	})
	if err != nil {
		return nil, result, err
	}
	e.mu.Lock()
	e.origins[p] = path
	e.mu.Unlock()
	return p, result, nil
}

// Save serializes a graph into the container at path, replacing it only on
// full success. Resource entries are carried over from the container the
// graph was loaded from, so saving to a new path keeps them; unreferenced
// entries are kept or dropped per the configured retention mode. After a
// successful save, path becomes the graph's origin.
func (e *Engine) Save(p *dawproject.Project, path string) error {
	e.mu.Lock()
	source := e.origins[p]
	e.mu.Unlock()
	err := dom.Save(p, path, dom.SaveOptions{
		Limits:     e.opts.Limits,
		Retention:  e.opts.Retention.mode(),
		EncodeMIDI: e.opts.EncodeMIDI,
		Source:     source,
	})
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.origins[p] = path
	e.mu.Unlock()
	return nil
}

// OpenStreamReader starts a forward-only, bounded-memory read. The context
// cancels the pass between element boundaries.
func (e *Engine) OpenStreamReader(ctx context.Context, path string) (*stream.Reader, error) {
	return stream.OpenReader(ctx, path, stream.Options{Limits: e.opts.Limits, Strict: e.opts.Strict})
}

// NewStreamWriter starts a forward-only write; nothing reaches path until
// Finalize succeeds.
func (e *Engine) NewStreamWriter(ctx context.Context, path string) (*stream.Writer, error) {
	return stream.NewWriter(ctx, path, stream.Options{Limits: e.opts.Limits, Strict: e.opts.Strict})
}

// NewSession wraps a loaded project for multi-reader single-writer access.
// The caller hands over ownership of p.
func (e *Engine) NewSession(p *dawproject.Project) *session.Session {
	return session.NewSession(p)
}

// ValidateFile audits a container without retaining the graph: it streams
// through the document running the same structural, semantic and
// referential checks as a DOM load. I/O and format failures are folded
// into the result as structural findings, so the result alone tells
// whether the file is usable.
func (e *Engine) ValidateFile(path string) *dawproject.ValidationResult {
	res := &dawproject.ValidationResult{}
	r, err := e.OpenStreamReader(context.Background(), path)
	if err != nil {
		res.AddError(dawproject.Structural, path, "%v", err)
		return res
	}
	defer r.Close()

	trackIDs := make(map[string]bool)
	clipIDs := make(map[string]bool)
	orders := make(map[int]int)
	tracks := 0
	for r.HasMoreTracks() {
		t, err := r.ReadNextTrack()
		if err != nil {
			res.Merge(r.Issues())
			res.AddError(dawproject.Structural, path, "%v", err)
			return res
		}
		tracks++
		tpath := fmt.Sprintf("track[%s]", t.ID)
		if trackIDs[t.ID] {
			res.AddError(dawproject.Structural, tpath, "duplicate track ID %q", t.ID)
		}
		trackIDs[t.ID] = true
		orders[t.Order]++
		devices := make(map[string]bool, len(t.Devices))
		for _, d := range t.Devices {
			devices[d.ID] = true
		}
		for r.HasMoreClips(t.ID) {
			c, err := r.ReadNextClip()
			if err != nil {
				res.Merge(r.Issues())
				res.AddError(dawproject.Structural, tpath, "%v", err)
				return res
			}
			cpath := fmt.Sprintf("%s/clip[%s]", tpath, c.ID)
			if clipIDs[c.ID] {
				res.AddError(dawproject.Structural, cpath, "duplicate clip ID %q", c.ID)
			}
			clipIDs[c.ID] = true
			if c.DeviceID != "" && !devices[c.DeviceID] {
				if e.opts.Strict {
					res.AddError(dawproject.Referential, cpath, "clip references unknown device %q", c.DeviceID)
				} else {
					res.AddWarning(dawproject.Referential, cpath, "clip references unknown device %q", c.DeviceID)
				}
			}
		}
	}
	for order, n := range orders {
		if order < 0 || order >= tracks || n > 1 {
			res.AddError(dawproject.Structural, "project", "track order %d is not a unique index in [0..%d)", order, tracks)
		}
	}
	res.Merge(r.Issues())
	return res
}

// IsValidProjectFile is the cheap boolean probe over ValidateFile.
func (e *Engine) IsValidProjectFile(path string) bool {
	return e.ValidateFile(path).OK()
}
