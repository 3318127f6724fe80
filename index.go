package dawproject

type (
	// Index provides O(1) lookup of tracks, clips and devices by ID over a
	// loaded project. The index borrows pointers into the project it was
	// built from; rebuild it after replacing the graph.
	Index struct {
		tracks  map[string]*Track
		clips   map[string]*Clip
		devices map[string]*Device

		// clipTrack maps a clip ID to the track owning it.
		clipTrack map[string]*Track
	}
)

// BuildIndex indexes the graph by entity ID. Duplicate IDs (a validation
// error) keep the first occurrence.
func (p *Project) BuildIndex() *Index {
	ix := &Index{
		tracks:    make(map[string]*Track, len(p.Tracks)),
		clips:     make(map[string]*Clip),
		devices:   make(map[string]*Device),
		clipTrack: make(map[string]*Track),
	}
	for i := range p.Tracks {
		t := &p.Tracks[i]
		if _, ok := ix.tracks[t.ID]; !ok {
			ix.tracks[t.ID] = t
		}
		for j := range t.Devices {
			d := &t.Devices[j]
			if _, ok := ix.devices[d.ID]; !ok {
				ix.devices[d.ID] = d
			}
		}
		for j := range t.Lanes {
			for k := range t.Lanes[j].Clips {
				c := &t.Lanes[j].Clips[k]
				if _, ok := ix.clips[c.ID]; !ok {
					ix.clips[c.ID] = c
					ix.clipTrack[c.ID] = t
				}
			}
		}
	}
	return ix
}

// TrackByID returns the track with the given ID, or nil.
func (ix *Index) TrackByID(id string) *Track { return ix.tracks[id] }

// ClipByID returns the clip with the given ID, or nil.
func (ix *Index) ClipByID(id string) *Clip { return ix.clips[id] }

// DeviceByID returns the device with the given ID, or nil.
func (ix *Index) DeviceByID(id string) *Device { return ix.devices[id] }

// TrackOfClip returns the track owning the given clip ID, or nil.
func (ix *Index) TrackOfClip(id string) *Track { return ix.clipTrack[id] }
