package content_test

import (
	"bytes"
	"reflect"
	"testing"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/dawtools/dawproject"
	"github.com/dawtools/dawproject/content"
)

func TestNotesRoundTrip(t *testing.T) {
	notes := []dawproject.Note{
		{Time: 0, Duration: 1, Key: 60, Velocity: 100},
		{Time: 0.5, Duration: 0.25, Key: 64, Velocity: 90, Channel: 1},
		{Time: 1, Duration: 2, Key: 67, Velocity: 80},
		{Time: 3.25, Duration: 0.5, Key: 72, Velocity: 127, Channel: 15},
	}
	data, err := content.NotesToSMF(notes)
	if err != nil {
		t.Fatalf("encoding failed: %v", err)
	}
	got, err := content.NotesFromSMF(data)
	if err != nil {
		t.Fatalf("decoding failed: %v", err)
	}
	if !reflect.DeepEqual(got, notes) {
		t.Fatalf("notes did not survive the round trip:\nwant %+v\ngot  %+v", notes, got)
	}
}

func TestRetriggeredNote(t *testing.T) {
	// back-to-back notes on the same key must not merge
	notes := []dawproject.Note{
		{Time: 0, Duration: 1, Key: 60, Velocity: 100},
		{Time: 1, Duration: 1, Key: 60, Velocity: 100},
	}
	data, err := content.NotesToSMF(notes)
	if err != nil {
		t.Fatal(err)
	}
	got, err := content.NotesFromSMF(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Duration != 1 || got[1].Duration != 1 || got[1].Time != 1 {
		t.Fatalf("retriggered notes merged or lost: %+v", got)
	}
}

func TestOverlappingSameKey(t *testing.T) {
	// note-offs pair first-in-first-out with their note-ons
	notes := []dawproject.Note{
		{Time: 0, Duration: 2, Key: 60, Velocity: 100},
		{Time: 1, Duration: 2, Key: 60, Velocity: 100},
	}
	data, err := content.NotesToSMF(notes)
	if err != nil {
		t.Fatal(err)
	}
	got, err := content.NotesFromSMF(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Time != 0 || got[0].Duration != 2 || got[1].Time != 1 || got[1].Duration != 2 {
		t.Fatalf("overlapping notes paired wrong: %+v", got)
	}
}

func TestEncodeRejectsUnrepresentableNotes(t *testing.T) {
	for _, notes := range [][]dawproject.Note{
		{{Time: -1, Duration: 1, Key: 60, Velocity: 100}},
		{{Time: 0, Duration: 0, Key: 60, Velocity: 100}},
	} {
		if _, err := content.NotesToSMF(notes); err == nil {
			t.Errorf("encoding %+v should have failed", notes)
		}
	}
}

func TestDecodeVelocityZeroNoteOn(t *testing.T) {
	// a velocity-0 note-on is a note-off
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(480)
	var tr smf.Track
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(480, midi.NoteOn(0, 60, 0))
	tr.Close(0)
	if err := s.Add(tr); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := content.NotesFromSMF(buf.Bytes())
	if err != nil {
		t.Fatalf("decoding failed: %v", err)
	}
	if len(got) != 1 || got[0].Duration != 1 {
		t.Fatalf("velocity-0 note-on was not treated as a note-off: %+v", got)
	}
}

func TestDecodeUnreleasedNote(t *testing.T) {
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(480)
	var tr smf.Track
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Close(480)
	if err := s.Add(tr); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	if _, err := content.NotesFromSMF(buf.Bytes()); err == nil {
		t.Fatalf("a note without a note-off should fail to decode")
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := content.NotesFromSMF([]byte("not a midi file")); err == nil {
		t.Fatalf("garbage should not decode")
	}
}

func TestEmptyNotes(t *testing.T) {
	data, err := content.NotesToSMF(nil)
	if err != nil {
		t.Fatalf("encoding no notes failed: %v", err)
	}
	got, err := content.NotesFromSMF(data)
	if err != nil || len(got) != 0 {
		t.Fatalf("empty file should decode to no notes: %v %v", got, err)
	}
}
