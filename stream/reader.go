// Package stream processes project containers sequentially: a forward-only
// reader whose memory use is bounded by the current element, and a mirrored
// writer that emits elements in the same order while keeping at most one
// track open. Both support cooperative cancellation between element
// boundaries via a context.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/dawtools/dawproject"
	"github.com/dawtools/dawproject/container"
	"github.com/dawtools/dawproject/xmltree"
)

// PrimaryDocument is the fixed name of the project graph entry.
const PrimaryDocument = "project.xml"

var (
	// ErrInvalidState is returned when a reader or writer method is
	// called after Close/Finalize or out of the required order.
	ErrInvalidState = errors.New("invalid stream state")

	// ErrNoMore is returned by ReadNextTrack and ReadNextClip when the
	// cursor is past the last element of that kind.
	ErrNoMore = errors.New("no more elements")
)

// Options configures a streaming pass.
type Options struct {
	Limits container.Limits
	Strict bool
}

// Reader walks a container forward-only: project header first, then each
// track shell, then the clips of that track lane by lane. Only the current
// element subtree is ever materialized.
type Reader struct {
	ctx    context.Context
	arc    *container.Archive
	entry  io.ReadCloser
	cur    *xmltree.Cursor
	opts   Options
	issues *dawproject.ValidationResult

	header     dawproject.Project
	trackCount int
	clipCount  int

	// pending is the one-event lookahead that HasMoreTracks and
	// HasMoreClips peek at.
	pending    *xmltree.StartEvent
	inTrack    bool
	curTrackID string
	lane       int
	laneAuto   []dawproject.AutomationPoint
	closed     bool
	finished   bool
}

// OpenReader opens the container at path and eagerly parses the project
// header (attributes and metadata block), leaving the cursor before the
// first track.
func OpenReader(ctx context.Context, path string, opts Options) (*Reader, error) {
	if opts.Limits == (container.Limits{}) {
		opts.Limits = container.DefaultLimits()
	}
	arc, err := container.Open(path, opts.Limits)
	if err != nil {
		return nil, err
	}
	entry, err := arc.OpenEntry(PrimaryDocument)
	if err != nil {
		arc.Close()
		return nil, fmt.Errorf("primary document: %w", err)
	}
	r := &Reader{
		ctx:        ctx,
		arc:        arc,
		entry:      entry,
		cur:        xmltree.NewCursor(entry),
		opts:       opts,
		issues:     &dawproject.ValidationResult{},
		trackCount: -1,
		clipCount:  -1,
	}
	if err := r.readHeader(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) readHeader() error {
	ev, err := r.cur.Next()
	if err != nil {
		return headerErr(err)
	}
	start, ok := ev.(xmltree.StartEvent)
	if !ok || start.Name != dawproject.ElemProject {
		return &dawproject.SchemaError{Path: "/", Msg: "document does not start with <" + dawproject.ElemProject + ">"}
	}
	r.header = dawproject.HeaderFromAttrs(start.Attr, r.issues)
	if hr := r.header.ValidateHeader(dawproject.ValidateOptions{Strict: r.opts.Strict}); !hr.OK() {
		r.issues.Merge(hr)
		return r.issues.Err()
	}

	// consume children until the first Track, materializing only the
	// small always-present header parts
	for {
		ev, err := r.cur.Next()
		if err == io.EOF {
			r.finished = true
			return nil
		}
		if err != nil {
			return err
		}
		switch e := ev.(type) {
		case xmltree.StartEvent:
			switch e.Name {
			case dawproject.ElemMetadata:
				node, err := r.cur.Subtree(e)
				if err != nil {
					return err
				}
				dawproject.MetadataFromNode(node, &r.header)
			case dawproject.ElemTracks:
				if v := attr(e, "count"); v != "" {
					if n, err := strconv.Atoi(v); err == nil {
						r.trackCount = n
					}
				}
				if v := attr(e, "clips"); v != "" {
					if n, err := strconv.Atoi(v); err == nil {
						r.clipCount = n
					}
				}
				return r.advance()
			default:
				r.issues.AddWarning(dawproject.Structural, dawproject.ElemProject,
					"ignoring unknown element <%s>", e.Name)
				if err := r.cur.Skip(); err != nil {
					return err
				}
			}
		case xmltree.EndEvent:
			// </Project> before any Tracks element
			r.finished = true
			return nil
		}
	}
}

// advance moves the lookahead to the next Track or Clip start, skipping and
// collecting everything else in between. Automation elements passed on the
// way are captured for LaneAutomation.
func (r *Reader) advance() error {
	r.pending = nil
	for {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		ev, err := r.cur.Next()
		if err == io.EOF {
			r.finished = true
			return nil
		}
		if err != nil {
			return err
		}
		switch e := ev.(type) {
		case xmltree.StartEvent:
			switch e.Name {
			case dawproject.ElemTrack, dawproject.ElemClip:
				ev := e
				r.pending = &ev
				return nil
			case dawproject.ElemLane:
				if r.inTrack {
					r.lane++
					r.laneAuto = nil
					continue
				}
				r.issues.AddWarning(dawproject.Structural, r.elementPath(), "ignoring unknown element <%s>", e.Name)
				if err := r.cur.Skip(); err != nil {
					return err
				}
			case dawproject.ElemAutomation:
				node, err := r.cur.Subtree(e)
				if err != nil {
					return err
				}
				r.laneAuto = dawproject.AutomationFromNode(node, r.curTrackID, r.issues)
			default:
				r.issues.AddWarning(dawproject.Structural, r.elementPath(), "ignoring unknown element <%s>", e.Name)
				if err := r.cur.Skip(); err != nil {
					return err
				}
			}
		case xmltree.EndEvent:
			switch e.Name {
			case dawproject.ElemTrack:
				r.inTrack = false
				r.curTrackID = ""
				r.lane = -1
				r.laneAuto = nil
			case dawproject.ElemProject:
				r.finished = true
				return nil
			}
		}
	}
}

// ProjectInfo returns the always-materialized header: song properties and
// metadata, no tracks.
func (r *Reader) ProjectInfo() *dawproject.Project {
	header := r.header.Copy()
	return header
}

// Issues returns the findings collected so far. The set grows as the
// cursor advances.
func (r *Reader) Issues() *dawproject.ValidationResult { return r.issues }

// TrackCount returns the declared number of tracks, or -1 when the
// document does not declare it (streamed writers cannot know it upfront).
func (r *Reader) TrackCount() int { return r.trackCount }

// ClipCount returns the declared total number of clips, or -1.
func (r *Reader) ClipCount() int { return r.clipCount }

// HasMoreTracks reports whether a ReadNextTrack call will succeed.
func (r *Reader) HasMoreTracks() bool {
	return !r.closed && r.pending != nil && r.pending.Name == dawproject.ElemTrack
}

// HasMoreClips reports whether the current track has clips left. The
// trackID must name the track most recently returned by ReadNextTrack;
// clips of a track the cursor has moved past are gone.
func (r *Reader) HasMoreClips(trackID string) bool {
	return !r.closed && r.inTrack && r.curTrackID == trackID &&
		r.pending != nil && r.pending.Name == dawproject.ElemClip
}

// ReadNextTrack advances to the next track and returns its shell: all
// attributes and devices, but no lanes. Clips are read with ReadNextClip
// before moving to the following track. Returns ErrNoMore past the last
// track and ErrInvalidState after Close.
func (r *Reader) ReadNextTrack() (dawproject.Track, error) {
	if r.closed {
		return dawproject.Track{}, ErrInvalidState
	}
	for r.pending != nil && r.pending.Name == dawproject.ElemClip {
		// caller skips the remaining clips of the current track
		if _, err := r.ReadNextClip(); err != nil {
			return dawproject.Track{}, err
		}
	}
	if r.pending == nil || r.pending.Name != dawproject.ElemTrack {
		return dawproject.Track{}, ErrNoMore
	}
	start := *r.pending
	// materialize only the shell: stop at the first Lane
	node := &xmltree.Node{Name: start.Name, Attr: start.Attr}
	for {
		ev, err := r.cur.Next()
		if err != nil {
			return dawproject.Track{}, trackErr(err)
		}
		stop := false
		switch e := ev.(type) {
		case xmltree.StartEvent:
			if e.Name == dawproject.ElemDevices {
				devices, err := r.cur.Subtree(e)
				if err != nil {
					return dawproject.Track{}, err
				}
				node.Children = append(node.Children, devices)
				continue
			}
			// first lane (or unknown element): shell is complete
			r.inTrack = true
			r.lane = -1
			if e.Name == dawproject.ElemLane {
				r.lane = 0
				r.laneAuto = nil
			} else {
				r.issues.AddWarning(dawproject.Structural, "track["+node.Get("id")+"]",
					"ignoring unknown element <%s>", e.Name)
				if err := r.cur.Skip(); err != nil {
					return dawproject.Track{}, err
				}
			}
			stop = true
		case xmltree.EndEvent:
			// empty track
			stop = true
			r.inTrack = false
		}
		if stop {
			break
		}
	}
	track := dawproject.TrackShellFromNode(node, r.issues)
	track.Validate(dawproject.ValidateOptions{Strict: r.opts.Strict, Resolve: r.arc.Has}, r.issues, nil, nil)
	if r.inTrack {
		r.curTrackID = track.ID
	}
	if err := r.advance(); err != nil {
		return dawproject.Track{}, err
	}
	return track, nil
}

// ReadNextClip returns the next clip of the current track, materializing
// just that clip's subtree. Returns ErrNoMore when the current track has
// no clips left.
func (r *Reader) ReadNextClip() (dawproject.Clip, error) {
	if r.closed {
		return dawproject.Clip{}, ErrInvalidState
	}
	if r.pending == nil || r.pending.Name != dawproject.ElemClip || !r.inTrack {
		return dawproject.Clip{}, ErrNoMore
	}
	node, err := r.cur.Subtree(*r.pending)
	if err != nil {
		return dawproject.Clip{}, err
	}
	clip := dawproject.ClipFromNode(node, r.issues)
	path := fmt.Sprintf("track[%s]/clip[%s]", r.curTrackID, clip.ID)
	clip.Validate(dawproject.ValidateOptions{Strict: r.opts.Strict, Resolve: r.arc.Has}, r.issues, path)
	if err := r.advance(); err != nil {
		return dawproject.Clip{}, err
	}
	return clip, nil
}

// elementPath names the position of the cursor for findings about skipped
// elements, mirroring the paths the tree mapper reports.
func (r *Reader) elementPath() string {
	if r.inTrack {
		if r.lane >= 0 {
			return fmt.Sprintf("track[%s]/lane", r.curTrackID)
		}
		return fmt.Sprintf("track[%s]", r.curTrackID)
	}
	return dawproject.ElemProject + "/" + dawproject.ElemTracks
}

// CurrentLane returns the zero-based lane index the cursor is in within
// the current track, or -1 outside any lane.
func (r *Reader) CurrentLane() int {
	if !r.inTrack {
		return -1
	}
	return r.lane
}

// LaneAutomation returns the automation curve of the current lane, or nil.
func (r *Reader) LaneAutomation() []dawproject.AutomationPoint {
	return r.laneAuto
}

// Close releases the archive. Any reader method after Close fails with
// ErrInvalidState.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.entry.Close()
	return r.arc.Close()
}

func attr(e xmltree.StartEvent, name string) string {
	for _, a := range e.Attr {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

func headerErr(err error) error {
	if err == io.EOF {
		return &dawproject.SchemaError{Path: "/", Msg: "empty document"}
	}
	return err
}

func trackErr(err error) error {
	if err == io.EOF {
		return &xmltree.SyntaxError{Msg: "unexpected end of document inside a track"}
	}
	return err
}
