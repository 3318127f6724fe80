package dawproject

// ClipType distinguishes the two clip variants.
type ClipType string

const (
	ClipAudio ClipType = "audio"
	ClipMIDI  ClipType = "midi"
)

// Valid reports whether t is a known clip type.
func (t ClipType) Valid() bool { return t == ClipAudio || t == ClipMIDI }

type (
	// Clip is a time-bounded unit of content on a lane. Times are in
	// beats: Start >= 0, Duration > 0, Rate > 0, and the fades must fit
	// inside the clip. An audio clip references a resource file; a MIDI
	// clip carries its notes inline, or in an archived Standard MIDI File
	// when File is set instead.
	Clip struct {
		ID       string
		Name     string
		Type     ClipType
		Start    float64
		Duration float64
		Rate     float64
		FadeIn   float64
		FadeOut  float64

		// File is the audio resource of an audio clip, or an optional
		// SMF resource of a MIDI clip.
		File ResourceRef

		// DeviceID optionally binds the clip to a device on its track,
		// e.g. the instrument the notes are played on. A dangling ID is
		// a referential warning.
		DeviceID string

		Notes []Note
	}

	// Note is one MIDI note event of a clip, time and duration in beats
	// relative to the clip start.
	Note struct {
		Time     float64
		Duration float64
		Key      uint8
		Velocity uint8
		Channel  uint8
	}
)

// End returns the end time of the clip on its lane, in beats.
func (c *Clip) End() float64 { return c.Start + c.Duration }

// Copy returns a deep copy of the clip.
func (c *Clip) Copy() Clip {
	ret := *c
	ret.Notes = append([]Note(nil), c.Notes...)
	return ret
}
