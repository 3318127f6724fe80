package stream_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/dawtools/dawproject"
	"github.com/dawtools/dawproject/container"
	"github.com/dawtools/dawproject/dom"
	"github.com/dawtools/dawproject/stream"
)

func header() *dawproject.Project {
	return &dawproject.Project{
		Title: "Streamed", Artist: "Someone", Tempo: 140,
		TimeSignature: dawproject.TimeSignature{Numerator: 3, Denominator: 4},
		Metadata:      []dawproject.MetaEntry{{Name: "origin", Value: "test"}},
	}
}

func track(id string, order int) dawproject.Track {
	return dawproject.Track{ID: id, Name: "Track " + id, Type: dawproject.TrackInstrument, Volume: 1, Order: order}
}

func clip(id string, start float64) dawproject.Clip {
	return dawproject.Clip{ID: id, Type: dawproject.ClipMIDI, Start: start, Duration: 2, Rate: 1,
		Notes: []dawproject.Note{{Time: 0, Duration: 1, Key: 60, Velocity: 100}}}
}

// writeStreamed emits a container with the given number of tracks, two clips
// per track, through the streaming writer.
func writeStreamed(t *testing.T, path string, tracks int) {
	t.Helper()
	w, err := stream.NewWriter(context.Background(), path, stream.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteProjectInfo(header()); err != nil {
		t.Fatalf("writing project info failed: %v", err)
	}
	for i := 0; i < tracks; i++ {
		tr := track(fmt.Sprintf("t%d", i), i)
		tr.Lanes = []dawproject.Lane{{Automation: []dawproject.AutomationPoint{{Time: 0, Value: 0.5}, {Time: 1, Value: 1}}}}
		if err := w.WriteTrack(tr); err != nil {
			t.Fatalf("writing track %d failed: %v", i, err)
		}
		for j := 0; j < 2; j++ {
			if err := w.WriteClip(0, clip(fmt.Sprintf("t%dc%d", i, j), float64(j*2))); err != nil {
				t.Fatalf("writing clip failed: %v", err)
			}
		}
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamed.dawproject")
	writeStreamed(t, path, 3)

	r, err := stream.OpenReader(context.Background(), path, stream.Options{})
	if err != nil {
		t.Fatalf("opening reader failed: %v", err)
	}
	defer r.Close()

	info := r.ProjectInfo()
	if info.Title != "Streamed" || info.Tempo != 140 || len(info.Metadata) != 1 {
		t.Fatalf("project info mismatch: %+v", info)
	}
	if len(info.Tracks) != 0 {
		t.Fatalf("project info must not materialize tracks")
	}

	var trackIDs, clipIDs []string
	for r.HasMoreTracks() {
		tr, err := r.ReadNextTrack()
		if err != nil {
			t.Fatalf("reading track failed: %v", err)
		}
		trackIDs = append(trackIDs, tr.ID)
		if len(tr.Lanes) != 0 {
			t.Fatalf("track shell must not contain lanes: %+v", tr)
		}
		if auto := r.LaneAutomation(); len(auto) != 2 || auto[1].Value != 1 {
			t.Fatalf("lane automation missing for track %s: %v", tr.ID, auto)
		}
		for r.HasMoreClips(tr.ID) {
			c, err := r.ReadNextClip()
			if err != nil {
				t.Fatalf("reading clip failed: %v", err)
			}
			clipIDs = append(clipIDs, c.ID)
			if len(c.Notes) != 1 || c.Notes[0].Key != 60 {
				t.Fatalf("clip notes mismatch: %+v", c)
			}
		}
	}
	if fmt.Sprint(trackIDs) != "[t0 t1 t2]" {
		t.Fatalf("tracks out of order: %v", trackIDs)
	}
	if fmt.Sprint(clipIDs) != "[t0c0 t0c1 t1c0 t1c1 t2c0 t2c1]" {
		t.Fatalf("clips out of order: %v", clipIDs)
	}
	if _, err := r.ReadNextTrack(); !errors.Is(err, stream.ErrNoMore) {
		t.Fatalf("expected ErrNoMore past the last track, got %v", err)
	}
	if !r.Issues().OK() {
		t.Fatalf("clean file produced errors: %v", r.Issues().Errors())
	}
}

func TestStreamedFileLoadsInDOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamed.dawproject")
	writeStreamed(t, path, 2)
	p, _, err := dom.Load(path, dom.Options{})
	if err != nil {
		t.Fatalf("DOM load of a streamed file failed: %v", err)
	}
	if len(p.Tracks) != 2 || len(p.Tracks[0].Lanes) != 1 || len(p.Tracks[0].Lanes[0].Clips) != 2 {
		t.Fatalf("streamed structure mismatch: %+v", p.Tracks)
	}
	if len(p.Tracks[1].Lanes[0].Automation) != 2 {
		t.Fatalf("automation lost in streaming: %+v", p.Tracks[1].Lanes[0])
	}
}

func TestSkippingClipsAdvancesToNextTrack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamed.dawproject")
	writeStreamed(t, path, 2)
	r, err := stream.OpenReader(context.Background(), path, stream.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	first, err := r.ReadNextTrack()
	if err != nil {
		t.Fatal(err)
	}
	// read no clips; the next track call drops the unread ones
	second, err := r.ReadNextTrack()
	if err != nil {
		t.Fatalf("skipping to the next track failed: %v", err)
	}
	if first.ID != "t0" || second.ID != "t1" {
		t.Fatalf("unexpected tracks: %s %s", first.ID, second.ID)
	}
	if r.HasMoreClips(first.ID) {
		t.Fatalf("clips of a passed track must be gone")
	}
	c, err := r.ReadNextClip()
	if err != nil || c.ID != "t1c0" {
		t.Fatalf("expected the first clip of t1, got %v %v", c.ID, err)
	}
}

func TestDeclaredCounts(t *testing.T) {
	dir := t.TempDir()
	streamed := filepath.Join(dir, "streamed.dawproject")
	writeStreamed(t, streamed, 2)
	r, err := stream.OpenReader(context.Background(), streamed, stream.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if r.TrackCount() != -1 || r.ClipCount() != -1 {
		t.Fatalf("streamed files declare no counts, got %d/%d", r.TrackCount(), r.ClipCount())
	}
	r.Close()

	// DOM saves declare both counts
	p, _, err := dom.Load(streamed, dom.Options{})
	if err != nil {
		t.Fatal(err)
	}
	saved := filepath.Join(dir, "saved.dawproject")
	if err := dom.Save(p, saved, dom.SaveOptions{}); err != nil {
		t.Fatal(err)
	}
	r, err = stream.OpenReader(context.Background(), saved, stream.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if r.TrackCount() != 2 || r.ClipCount() != 4 {
		t.Fatalf("expected declared counts 2/4, got %d/%d", r.TrackCount(), r.ClipCount())
	}
}

func TestWriterOrderEnforcement(t *testing.T) {
	dir := t.TempDir()
	w, err := stream.NewWriter(context.Background(), filepath.Join(dir, "a.dawproject"), stream.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Abort()
	if err := w.WriteTrack(track("t0", 0)); !errors.Is(err, stream.ErrInvalidState) {
		t.Fatalf("track before project info should fail with ErrInvalidState, got %v", err)
	}
	if err := w.WriteClip(0, clip("c0", 0)); !errors.Is(err, stream.ErrInvalidState) {
		t.Fatalf("clip with no open track should fail with ErrInvalidState, got %v", err)
	}
	if err := w.WriteProjectInfo(header()); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteProjectInfo(header()); !errors.Is(err, stream.ErrInvalidState) {
		t.Fatalf("double project info should fail with ErrInvalidState, got %v", err)
	}
	if err := w.WriteTrack(track("t0", 0)); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteClip(1, clip("c1", 0)); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteClip(0, clip("c2", 0)); !errors.Is(err, stream.ErrInvalidState) {
		t.Fatalf("lane indices must be non-decreasing, got %v", err)
	}
}

func TestWriterRejectsInvalidElements(t *testing.T) {
	w, err := stream.NewWriter(context.Background(), filepath.Join(t.TempDir(), "a.dawproject"), stream.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Abort()
	bad := header()
	bad.Tempo = 0
	if err := w.WriteProjectInfo(bad); err == nil {
		t.Fatalf("invalid header should fail")
	}
	if err := w.WriteProjectInfo(header()); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteTrack(dawproject.Track{ID: "", Type: "bogus"}); err == nil {
		t.Fatalf("invalid track should fail")
	}
}

func TestAbortLeavesNothingBehind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never.dawproject")
	w, err := stream.NewWriter(context.Background(), path, stream.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteProjectInfo(header()); err != nil {
		t.Fatal(err)
	}
	w.Abort()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("aborted write must not create the destination: %v", err)
	}
	if err := w.Finalize(); !errors.Is(err, stream.ErrInvalidState) {
		t.Fatalf("finalize after abort should fail with ErrInvalidState, got %v", err)
	}
}

func TestDocumentSizeCeiling(t *testing.T) {
	limits := container.Limits{MaxEntrySize: 100 << 20, MaxDocumentSize: 512}
	w, err := stream.NewWriter(context.Background(), filepath.Join(t.TempDir(), "big.dawproject"), stream.Options{Limits: limits})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Abort()
	if err := w.WriteProjectInfo(header()); err != nil {
		t.Fatal(err)
	}
	var limitErr *container.LimitError
	for i := 0; ; i++ {
		if i > 1000 {
			t.Fatalf("document ceiling was never enforced")
		}
		if err := w.WriteTrack(track(fmt.Sprintf("t%d", i), i)); err != nil {
			if !errors.As(err, &limitErr) {
				t.Fatalf("expected *LimitError, got %v", err)
			}
			break
		}
	}
}

func TestContextCancellation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamed.dawproject")
	writeStreamed(t, path, 3)

	ctx, cancel := context.WithCancel(context.Background())
	r, err := stream.OpenReader(ctx, path, stream.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if _, err := r.ReadNextTrack(); err != nil {
		t.Fatal(err)
	}
	cancel()
	for {
		_, err := r.ReadNextClip()
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("expected context.Canceled, got %v", err)
			}
			break
		}
	}

	cancelled, cancel2 := context.WithCancel(context.Background())
	cancel2()
	w, err := stream.NewWriter(cancelled, filepath.Join(t.TempDir(), "w.dawproject"), stream.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Abort()
	if err := w.WriteProjectInfo(header()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled from the writer, got %v", err)
	}
}

func TestUnknownElementWarningsMatchDOM(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<Project tempo="120" timeSigNumerator="4" timeSigDenominator="4">
  <Tracks>
    <Track id="t1" type="instrument" volume="1" order="0">
      <Lane>
        <Mystery/>
        <Clip id="c1" type="midi" start="0" duration="4" rate="1"/>
      </Lane>
    </Track>
  </Tracks>
</Project>`
	path := filepath.Join(t.TempDir(), "mystery.dawproject")
	w, err := container.NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteEntry(stream.PrimaryDocument, []byte(doc)); err != nil {
		t.Fatal(err)
	}
	if err := w.Commit(); err != nil {
		t.Fatal(err)
	}

	_, domRes, err := dom.Load(path, dom.Options{})
	if err != nil {
		t.Fatalf("DOM load failed: %v", err)
	}
	domWarn := domRes.Warnings()
	if len(domWarn) != 1 || !strings.Contains(domWarn[0].Msg, "Mystery") {
		t.Fatalf("expected one DOM warning about <Mystery>, got %v", domWarn)
	}

	r, err := stream.OpenReader(context.Background(), path, stream.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	for r.HasMoreTracks() {
		tr, err := r.ReadNextTrack()
		if err != nil {
			t.Fatal(err)
		}
		for r.HasMoreClips(tr.ID) {
			if _, err := r.ReadNextClip(); err != nil {
				t.Fatal(err)
			}
		}
	}
	streamWarn := r.Issues().Warnings()
	if len(streamWarn) != len(domWarn) || !strings.Contains(streamWarn[0].Msg, "Mystery") {
		t.Fatalf("streaming pass reports different warnings than DOM:\nDOM    %v\nstream %v", domWarn, streamWarn)
	}
}

// writeSynthetic emits a container with the given shape through the
// streaming writer, with every ID unique across the document.
func writeSynthetic(t *testing.T, path string, tracks, clipsPerTrack int) {
	t.Helper()
	w, err := stream.NewWriter(context.Background(), path, stream.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteProjectInfo(header()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < tracks; i++ {
		if err := w.WriteTrack(track(fmt.Sprintf("t%03d", i), i)); err != nil {
			t.Fatal(err)
		}
		for j := 0; j < clipsPerTrack; j++ {
			c := clip(fmt.Sprintf("t%03dc%04d", i, j), float64(j*2))
			c.Name = fmt.Sprintf("Clip %04d of track %03d", j, i)
			if err := w.WriteClip(0, c); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := w.Finalize(); err != nil {
		t.Fatal(err)
	}
}

func documentSize(t *testing.T, path string) uint64 {
	t.Helper()
	arc, err := container.Open(path, container.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	defer arc.Close()
	for _, e := range arc.Entries() {
		if e.Name == stream.PrimaryDocument {
			return e.UncompressedSize
		}
	}
	t.Fatalf("no primary document in %s", path)
	return 0
}

// streamPeak drains the whole container through the streaming reader and
// returns the highest live-heap growth observed along the way.
func streamPeak(t *testing.T, path string) uint64 {
	t.Helper()
	runtime.GC()
	var base runtime.MemStats
	runtime.ReadMemStats(&base)

	r, err := stream.OpenReader(context.Background(), path, stream.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	var peak uint64
	tracks := 0
	for r.HasMoreTracks() {
		tr, err := r.ReadNextTrack()
		if err != nil {
			t.Fatal(err)
		}
		for r.HasMoreClips(tr.ID) {
			if _, err := r.ReadNextClip(); err != nil {
				t.Fatal(err)
			}
		}
		if tracks++; tracks%4 == 0 {
			runtime.GC()
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			if ms.HeapAlloc > base.HeapAlloc && ms.HeapAlloc-base.HeapAlloc > peak {
				peak = ms.HeapAlloc - base.HeapAlloc
			}
		}
	}
	return peak
}

func TestStreamingMemoryStaysBounded(t *testing.T) {
	dir := t.TempDir()
	small := filepath.Join(dir, "small.dawproject")
	large := filepath.Join(dir, "large.dawproject")
	writeSynthetic(t, small, 8, 64)
	writeSynthetic(t, large, 128, 96)

	docSize := documentSize(t, large)
	if docSize < 1<<20 {
		t.Fatalf("synthetic document ended up too small to be meaningful: %d bytes", docSize)
	}

	peakSmall := streamPeak(t, small)
	peakLarge := streamPeak(t, large)
	if peakLarge > docSize/4 {
		t.Fatalf("reading a %d byte document kept %d bytes live", docSize, peakLarge)
	}
	if peakLarge > peakSmall+(256<<10) {
		t.Fatalf("live heap grows with document size: small %d, large %d", peakSmall, peakLarge)
	}
}

func TestResourcesAlongsideStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mixed.dawproject")
	w, err := stream.NewWriter(context.Background(), path, stream.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteProjectInfo(header()); err != nil {
		t.Fatal(err)
	}
	tr := track("t0", 0)
	tr.AudioFile = "audio/kick.wav"
	if err := w.WriteTrack(tr); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteResource("audio/kick.wav", []byte("RIFF")); err != nil {
		t.Fatalf("staging a resource mid-stream failed: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatal(err)
	}
	arc, err := container.Open(path, container.DefaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	defer arc.Close()
	if !arc.Has("audio/kick.wav") || !arc.Has(stream.PrimaryDocument) {
		t.Fatalf("entries missing: %v", arc.Entries())
	}
}
