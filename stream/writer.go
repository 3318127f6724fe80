package stream

import (
	"context"
	"fmt"

	"github.com/dawtools/dawproject"
	"github.com/dawtools/dawproject/container"
	"github.com/dawtools/dawproject/xmltree"
)

// Writer emits a project container in forward order: header first, then
// tracks, then the clips of the open track. At most one track element is
// open at a time. The primary document is staged in memory up to the
// configured document ceiling, because the archive can hold only one open
// entry and resources may arrive at any point; nothing reaches the
// destination path until Finalize commits atomically.
type Writer struct {
	ctx  context.Context
	w    *container.Writer
	opts Options

	doc       []byte // staged primary document
	wroteInfo bool
	openTrack bool
	openLane  bool
	lanes     []dawproject.Lane // pending lane shells of the open track
	lane      int               // index of the open lane, -1 when none
	finished  bool
}

// NewWriter starts a streaming write of the container at path.
func NewWriter(ctx context.Context, path string, opts Options) (*Writer, error) {
	if opts.Limits == (container.Limits{}) {
		opts.Limits = container.DefaultLimits()
	}
	cw, err := container.NewWriter(path)
	if err != nil {
		return nil, err
	}
	return &Writer{ctx: ctx, w: cw, opts: opts, lane: -1}, nil
}

func (w *Writer) emit(fragment []byte) error {
	if uint64(len(w.doc))+uint64(len(fragment)) > w.opts.Limits.MaxDocumentSize {
		return &container.LimitError{
			Entry: PrimaryDocument,
			Size:  uint64(len(w.doc)) + uint64(len(fragment)),
			Limit: w.opts.Limits.MaxDocumentSize,
		}
	}
	w.doc = append(w.doc, fragment...)
	return nil
}

// WriteProjectInfo emits the project header and metadata block. Must be
// the first call, exactly once.
func (w *Writer) WriteProjectInfo(p *dawproject.Project) error {
	if w.finished {
		return ErrInvalidState
	}
	if w.wroteInfo {
		return fmt.Errorf("%w: project info already written", ErrInvalidState)
	}
	if err := w.ctx.Err(); err != nil {
		return err
	}
	if hr := p.ValidateHeader(dawproject.ValidateOptions{}); !hr.OK() {
		return hr.Err()
	}
	w.wroteInfo = true
	root := &xmltree.Node{Name: dawproject.ElemProject, Attr: p.HeaderAttrs()}
	if err := w.emit([]byte(xmlHeader)); err != nil {
		return err
	}
	if err := w.emit(xmltree.OpenTag(root, 0)); err != nil {
		return err
	}
	if meta := p.MetadataNode(); meta != nil {
		if err := w.emit(xmltree.Fragment(meta, 1)); err != nil {
			return err
		}
	}
	return w.emit(xmltree.OpenTag(&xmltree.Node{Name: dawproject.ElemTracks}, 1))
}

// WriteTrack opens the next track, emitting its attributes and devices.
// The lanes of t supply per-lane automation; any clips already present in
// them are written immediately, and WriteClip appends further clips to the
// still-open track.
func (w *Writer) WriteTrack(t dawproject.Track) error {
	if w.finished {
		return ErrInvalidState
	}
	if !w.wroteInfo {
		return fmt.Errorf("%w: write the project info first", ErrInvalidState)
	}
	if err := w.ctx.Err(); err != nil {
		return err
	}
	res := &dawproject.ValidationResult{}
	t.Validate(dawproject.ValidateOptions{}, res, nil, nil)
	if !res.OK() {
		return res.Err()
	}
	if err := w.closeTrack(); err != nil {
		return err
	}
	w.openTrack = true
	w.lane = -1
	w.lanes = make([]dawproject.Lane, len(t.Lanes))
	for i := range t.Lanes {
		w.lanes[i] = dawproject.Lane{Automation: t.Lanes[i].Automation}
	}
	shell := t.ShellNode()
	if err := w.emit(xmltree.OpenTag(shell, 2)); err != nil {
		return err
	}
	for _, c := range shell.Children {
		if err := w.emit(xmltree.Fragment(c, 3)); err != nil {
			return err
		}
	}
	for li := range t.Lanes {
		for _, c := range t.Lanes[li].Clips {
			if err := w.WriteClip(li, c); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteClip appends a clip to the given lane of the open track. Lane
// indices must be non-decreasing; moving to a later lane closes the
// current one, writing any skipped lanes with just their automation.
func (w *Writer) WriteClip(lane int, c dawproject.Clip) error {
	if w.finished {
		return ErrInvalidState
	}
	if !w.openTrack {
		return fmt.Errorf("%w: no open track", ErrInvalidState)
	}
	if lane < 0 || lane < w.lane {
		return fmt.Errorf("%w: lane %d is before the open lane %d", ErrInvalidState, lane, w.lane)
	}
	if err := w.ctx.Err(); err != nil {
		return err
	}
	res := &dawproject.ValidationResult{}
	c.Validate(dawproject.ValidateOptions{}, res, fmt.Sprintf("clip[%s]", c.ID))
	if !res.OK() {
		return res.Err()
	}
	if err := w.advanceLane(lane); err != nil {
		return err
	}
	return w.emit(xmltree.Fragment(c.ToNode(), 4))
}

// advanceLane closes lanes up to the target index, emitting automation of
// lanes it opens on the way.
func (w *Writer) advanceLane(target int) error {
	for w.lane < target {
		if w.openLane {
			if err := w.emit(xmltree.CloseTag(dawproject.ElemLane, 3)); err != nil {
				return err
			}
			w.openLane = false
		}
		w.lane++
		if err := w.emit(xmltree.OpenTag(&xmltree.Node{Name: dawproject.ElemLane}, 3)); err != nil {
			return err
		}
		w.openLane = true
		if w.lane < len(w.lanes) {
			if auto := w.lanes[w.lane].AutomationNode(); auto != nil {
				if err := w.emit(xmltree.Fragment(auto, 4)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// closeTrack finishes the open track, writing out any pending lanes whose
// automation was supplied but which received no clips.
func (w *Writer) closeTrack() error {
	if !w.openTrack {
		return nil
	}
	if err := w.advanceLane(len(w.lanes) - 1); err != nil {
		return err
	}
	if w.openLane {
		if err := w.emit(xmltree.CloseTag(dawproject.ElemLane, 3)); err != nil {
			return err
		}
		w.openLane = false
	}
	w.openTrack = false
	w.lane = -1
	w.lanes = nil
	return w.emit(xmltree.CloseTag(dawproject.ElemTrack, 2))
}

// WriteResource stages an archive entry next to the primary document, e.g.
// an audio file or an SMF blob a clip references.
func (w *Writer) WriteResource(name string, data []byte) error {
	if w.finished {
		return ErrInvalidState
	}
	if uint64(len(data)) > w.opts.Limits.MaxEntrySize {
		return &container.LimitError{Entry: name, Size: uint64(len(data)), Limit: w.opts.Limits.MaxEntrySize}
	}
	return w.w.WriteEntry(name, data)
}

// Finalize closes all open elements, stages the primary document and
// commits the archive. The destination appears only if everything
// succeeded; afterwards the writer only accepts Abort (a no-op).
func (w *Writer) Finalize() error {
	if w.finished {
		return ErrInvalidState
	}
	if !w.wroteInfo {
		w.Abort()
		return fmt.Errorf("%w: nothing was written", ErrInvalidState)
	}
	if err := w.ctx.Err(); err != nil {
		w.Abort()
		return err
	}
	w.finished = true
	if err := w.closeTrack(); err != nil {
		w.w.Abort()
		return err
	}
	if err := w.emit(xmltree.CloseTag(dawproject.ElemTracks, 1)); err != nil {
		w.w.Abort()
		return err
	}
	if err := w.emit(xmltree.CloseTag(dawproject.ElemProject, 0)); err != nil {
		w.w.Abort()
		return err
	}
	if err := w.w.WriteEntry(PrimaryDocument, w.doc); err != nil {
		w.w.Abort()
		return err
	}
	return w.w.Commit()
}

// Abort discards everything; the destination path is left untouched.
func (w *Writer) Abort() {
	if w.finished {
		return
	}
	w.finished = true
	w.w.Abort()
}

const xmlHeader = "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n"
