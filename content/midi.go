// Package content converts between clip content and the resource formats
// stored in the archive. MIDI clips may keep their notes in an embedded
// Standard MIDI File instead of inline in the document; this package maps
// those bytes to and from model notes.
package content

import (
	"bytes"
	"fmt"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/dawtools/dawproject"
)

// ticksPerBeat is the SMF resolution used when encoding. Any resolution is
// accepted when decoding.
const ticksPerBeat = 960

// NotesToSMF encodes clip notes as a single-track Standard MIDI File.
// Note times and durations are in beats relative to the clip start.
func NotesToSMF(notes []dawproject.Note) ([]byte, error) {
	type boundary struct {
		tick uint32
		on   bool
		note dawproject.Note
	}
	events := make([]boundary, 0, 2*len(notes))
	for _, n := range notes {
		if n.Time < 0 || n.Duration <= 0 {
			return nil, fmt.Errorf("note at %v with duration %v cannot be encoded", n.Time, n.Duration)
		}
		events = append(events,
			boundary{tick: uint32(n.Time * ticksPerBeat), on: true, note: n},
			boundary{tick: uint32((n.Time + n.Duration) * ticksPerBeat), on: false, note: n})
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		// note-offs before note-ons at the same tick, so retriggered
		// notes do not merge
		return !events[i].on && events[j].on
	})

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(ticksPerBeat)
	var tr smf.Track
	var last uint32
	for _, ev := range events {
		delta := ev.tick - last
		last = ev.tick
		if ev.on {
			tr.Add(delta, midi.NoteOn(ev.note.Channel, ev.note.Key, ev.note.Velocity))
		} else {
			tr.Add(delta, midi.NoteOff(ev.note.Channel, ev.note.Key))
		}
	}
	tr.Close(0)
	if err := s.Add(tr); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NotesFromSMF decodes a Standard MIDI File into clip notes, pairing
// note-ons with their note-offs. All tracks of the file are merged; notes
// left open at the end of the file are dropped with an error.
func NotesFromSMF(data []byte) ([]dawproject.Note, error) {
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("reading SMF: %w", err)
	}
	ticks, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("unsupported SMF time format %v", s.TimeFormat)
	}
	perBeat := float64(ticks.Resolution())

	type openKey struct {
		channel, key uint8
	}
	var notes []dawproject.Note
	open := make(map[openKey][]int) // indices into notes, FIFO per key
	for _, tr := range s.Tracks {
		var abs uint64
		for _, ev := range tr {
			abs += uint64(ev.Delta)
			var channel, key, velocity uint8
			switch {
			case ev.Message.GetNoteOn(&channel, &key, &velocity) && velocity > 0:
				notes = append(notes, dawproject.Note{
					Time:     float64(abs) / perBeat,
					Key:      key,
					Velocity: velocity,
					Channel:  channel,
				})
				k := openKey{channel, key}
				open[k] = append(open[k], len(notes)-1)
			case ev.Message.GetNoteOff(&channel, &key, &velocity),
				ev.Message.GetNoteOn(&channel, &key, &velocity): // velocity 0 note-on
				k := openKey{channel, key}
				if len(open[k]) == 0 {
					continue
				}
				idx := open[k][0]
				open[k] = open[k][1:]
				notes[idx].Duration = float64(abs)/perBeat - notes[idx].Time
			}
		}
		for k, pending := range open {
			if len(pending) > 0 {
				return nil, fmt.Errorf("note key %d channel %d never released", k.key, k.channel)
			}
		}
	}
	sort.SliceStable(notes, func(i, j int) bool { return notes[i].Time < notes[j].Time })
	return notes, nil
}
