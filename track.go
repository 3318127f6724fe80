package dawproject

// TrackType tells what kind of content a track carries. Always lowercase in
// the document.
type TrackType string

const (
	TrackAudio      TrackType = "audio"
	TrackInstrument TrackType = "instrument"
	TrackGroup      TrackType = "group"
	TrackReturn     TrackType = "return"
)

// Valid reports whether t is one of the four known track types.
func (t TrackType) Valid() bool {
	switch t {
	case TrackAudio, TrackInstrument, TrackGroup, TrackReturn:
		return true
	}
	return false
}

// Track is one mixer channel of the project: an ID stable across save/load,
// the ordered lanes holding its clips, and the devices attached to it.
// Order is the position of the track in the project; across a project the
// Order values must form a permutation of [0..N).
type Track struct {
	ID     string
	Name   string
	Color  string
	Type   TrackType
	Volume float64
	Pan    float64
	Muted  bool
	Soloed bool
	Order  int

	// InstrumentID names the device acting as the main instrument of an
	// instrument track; empty otherwise.
	InstrumentID string

	// AudioFile is the default audio resource of an audio track; empty
	// otherwise.
	AudioFile ResourceRef

	Lanes   []Lane
	Devices []Device
}

// Copy returns a deep copy of the track.
func (t *Track) Copy() Track {
	ret := *t
	ret.Lanes = make([]Lane, len(t.Lanes))
	for i := range t.Lanes {
		ret.Lanes[i] = t.Lanes[i].Copy()
	}
	ret.Devices = make([]Device, len(t.Devices))
	for i := range t.Devices {
		ret.Devices[i] = t.Devices[i].Copy()
	}
	return ret
}
