// Package dawproject holds the in-memory model of a project-exchange file: a
// project graph of tracks, lanes, clips and devices, together with its
// validation rules and the mapping to and from the container's XML document.
//
// The model is pure data with no I/O. Everything reachable from a Project
// that has been handed to a reader is treated as immutable; edits go through
// deep copies (see Copy and the session package).
package dawproject

import (
	"reflect"
	"time"
)

type (
	// Project is the root of the graph and owns everything below it: the
	// ordered tracks, the free-form metadata block and the song-level
	// properties. Timestamps are incidental; they are ignored by Equal so
	// that save/load round trips compare clean.
	Project struct {
		Title         string
		Artist        string
		Album         string
		Genre         string
		Key           string
		Tempo         float64
		TimeSignature TimeSignature
		Created       time.Time
		Modified      time.Time
		Tracks        []Track
		Metadata      []MetaEntry
	}

	// TimeSignature is the song meter, e.g. 4/4 or 7/8.
	TimeSignature struct {
		Numerator   int
		Denominator int
	}

	// MetaEntry is one name/value pair of the project metadata block.
	// Entries are ordered and names may repeat.
	MetaEntry struct {
		Name  string
		Value string
	}

	// ResourceRef points at content outside the primary document: a path
	// inside the archive ("audio/kick.wav") or an external absolute path.
	// A reference that resolves to nothing is a recoverable condition and
	// surfaces as a referential warning, not a failed load.
	ResourceRef string
)

// IsExternal reports whether the reference points outside the archive.
func (r ResourceRef) IsExternal() bool {
	return len(r) > 0 && (r[0] == '/' || (len(r) > 1 && r[1] == ':'))
}

// Copy returns a deep copy sharing no mutable state with the original.
func (p *Project) Copy() *Project {
	ret := *p
	ret.Tracks = make([]Track, len(p.Tracks))
	for i := range p.Tracks {
		ret.Tracks[i] = p.Tracks[i].Copy()
	}
	ret.Metadata = append([]MetaEntry(nil), p.Metadata...)
	return &ret
}

// Equal reports entity equality, ignoring the Created and Modified
// timestamps which change on every save.
func (p *Project) Equal(o *Project) bool {
	if p == nil || o == nil {
		return p == o
	}
	a, b := p.Copy(), o.Copy()
	a.Created, a.Modified = time.Time{}, time.Time{}
	b.Created, b.Modified = time.Time{}, time.Time{}
	return reflect.DeepEqual(a, b)
}

// ResourcePaths returns every archive-internal resource the graph
// references, in first-use order without duplicates. External references
// are not included.
func (p *Project) ResourcePaths() []string {
	var ret []string
	seen := make(map[ResourceRef]bool)
	add := func(r ResourceRef) {
		if r == "" || r.IsExternal() || seen[r] {
			return
		}
		seen[r] = true
		ret = append(ret, string(r))
	}
	for i := range p.Tracks {
		t := &p.Tracks[i]
		add(t.AudioFile)
		for j := range t.Lanes {
			for k := range t.Lanes[j].Clips {
				add(t.Lanes[j].Clips[k].File)
			}
		}
		for j := range t.Devices {
			add(t.Devices[j].Preset)
		}
	}
	return ret
}
