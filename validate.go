package dawproject

import (
	"fmt"
	"math"
)

// MaxProjectLength is the end of the representable timeline, in beats.
// Clips must lie entirely inside [0, MaxProjectLength).
const MaxProjectLength = 1e9

// Severity splits findings into hard failures and recoverable conditions.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

// Category tells which validation pass produced a finding. Structural and
// Semantic findings are errors; Referential findings default to warnings
// and are promoted to errors in strict mode.
type Category int

const (
	Structural Category = iota
	Referential
	Semantic
)

func (c Category) String() string {
	switch c {
	case Structural:
		return "structural"
	case Referential:
		return "referential"
	default:
		return "semantic"
	}
}

type (
	// Issue is a single validation finding with its location in the
	// entity graph.
	Issue struct {
		Severity Severity
		Category Category
		Path     string
		Msg      string
	}

	// ValidationResult collects the findings of one validation pass.
	// Validating the same input twice yields an identical result.
	ValidationResult struct {
		Issues []Issue
	}

	// ValidateOptions configures a validation pass. Resolve, when
	// non-nil, answers whether an archive-internal resource path exists;
	// nil skips resource resolution (pure model validation). Strict
	// promotes referential findings to hard errors.
	ValidateOptions struct {
		Strict  bool
		Resolve func(path string) bool
	}
)

func (i Issue) String() string {
	sev := "warning"
	if i.Severity == SeverityError {
		sev = "error"
	}
	return fmt.Sprintf("%s (%s) at %s: %s", sev, i.Category, i.Path, i.Msg)
}

func (r *ValidationResult) add(sev Severity, cat Category, path, format string, args ...interface{}) {
	r.Issues = append(r.Issues, Issue{Severity: sev, Category: cat, Path: path, Msg: fmt.Sprintf(format, args...)})
}

// AddError records a hard failure.
func (r *ValidationResult) AddError(cat Category, path, format string, args ...interface{}) {
	r.add(SeverityError, cat, path, format, args...)
}

// AddWarning records a recoverable finding.
func (r *ValidationResult) AddWarning(cat Category, path, format string, args ...interface{}) {
	r.add(SeverityWarning, cat, path, format, args...)
}

// Merge appends all findings of other.
func (r *ValidationResult) Merge(other *ValidationResult) {
	r.Issues = append(r.Issues, other.Issues...)
}

// OK reports whether the pass found no hard failures. Warnings are allowed.
func (r *ValidationResult) OK() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Errors returns the hard failures only.
func (r *ValidationResult) Errors() []Issue {
	var ret []Issue
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			ret = append(ret, i)
		}
	}
	return ret
}

// Warnings returns the recoverable findings only.
func (r *ValidationResult) Warnings() []Issue {
	var ret []Issue
	for _, i := range r.Issues {
		if i.Severity == SeverityWarning {
			ret = append(ret, i)
		}
	}
	return ret
}

// Err folds the hard failures into a single error, or nil when the result
// is usable.
func (r *ValidationResult) Err() error {
	errs := r.Errors()
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return fmt.Errorf("validation failed: %s", errs[0])
	}
	return fmt.Errorf("validation failed: %s (and %d more)", errs[0], len(errs)-1)
}

// refSeverity is the severity of referential findings under opts.
func (o ValidateOptions) refSeverity() Severity {
	if o.Strict {
		return SeverityError
	}
	return SeverityWarning
}

// Validate runs every invariant of the model over the whole graph: value
// ranges, ID uniqueness, track order, automation ordering and, when a
// resolver is supplied, resource resolution.
func (p *Project) Validate(opts ValidateOptions) *ValidationResult {
	res := &ValidationResult{}
	p.validateHeader(opts, res)

	trackIDs := make(map[string]bool)
	clipIDs := make(map[string]bool)
	deviceIDs := make(map[string]bool)
	orders := make(map[int]bool)
	for i := range p.Tracks {
		t := &p.Tracks[i]
		path := fmt.Sprintf("track[%s]", t.ID)
		if trackIDs[t.ID] {
			res.AddError(Structural, path, "duplicate track ID %q", t.ID)
		}
		trackIDs[t.ID] = true
		if t.Order < 0 || t.Order >= len(p.Tracks) || orders[t.Order] {
			res.AddError(Structural, path, "track order %d is not a unique index in [0..%d)", t.Order, len(p.Tracks))
		}
		orders[t.Order] = true
		t.Validate(opts, res, clipIDs, deviceIDs)
	}
	return res
}

func (p *Project) validateHeader(opts ValidateOptions, res *ValidationResult) {
	if p.Tempo <= 0 || math.IsNaN(p.Tempo) || math.IsInf(p.Tempo, 0) {
		res.AddError(Semantic, "project", "tempo must be > 0, got %v", p.Tempo)
	}
	if p.TimeSignature.Numerator <= 0 || p.TimeSignature.Denominator <= 0 {
		res.AddError(Semantic, "project", "time signature must be positive, got %d/%d",
			p.TimeSignature.Numerator, p.TimeSignature.Denominator)
	}
}

// ValidateHeader checks only the song-level properties, for streaming
// validation where the tracks are not materialized yet.
func (p *Project) ValidateHeader(opts ValidateOptions) *ValidationResult {
	res := &ValidationResult{}
	p.validateHeader(opts, res)
	return res
}

// Validate checks the track, its lanes, clips and devices. clipIDs and
// deviceIDs accumulate IDs across tracks for uniqueness checking; either
// may be nil to check this track in isolation.
func (t *Track) Validate(opts ValidateOptions, res *ValidationResult, clipIDs, deviceIDs map[string]bool) {
	path := fmt.Sprintf("track[%s]", t.ID)
	if t.ID == "" {
		res.AddError(Structural, path, "track has no ID")
	}
	if !t.Type.Valid() {
		res.AddError(Semantic, path, "unknown track type %q", t.Type)
	}
	if t.Volume < 0 || math.IsNaN(t.Volume) {
		res.AddError(Semantic, path, "volume must be >= 0, got %v", t.Volume)
	}
	if t.Pan < -1 || t.Pan > 1 || math.IsNaN(t.Pan) {
		res.AddError(Semantic, path, "pan must be in [-1, 1], got %v", t.Pan)
	}
	if deviceIDs == nil {
		deviceIDs = make(map[string]bool)
	}
	if clipIDs == nil {
		clipIDs = make(map[string]bool)
	}
	local := make(map[string]bool, len(t.Devices))
	for i := range t.Devices {
		d := &t.Devices[i]
		if deviceIDs[d.ID] {
			res.AddError(Structural, path+fmt.Sprintf("/device[%s]", d.ID), "duplicate device ID %q", d.ID)
		}
		deviceIDs[d.ID] = true
		local[d.ID] = true
		d.Validate(opts, res, path)
	}
	if t.InstrumentID != "" && !local[t.InstrumentID] {
		res.add(opts.refSeverity(), Referential, path, "instrument %q is not a device on this track", t.InstrumentID)
	}
	resolveRef(opts, res, path, t.AudioFile)
	for li := range t.Lanes {
		l := &t.Lanes[li]
		lpath := fmt.Sprintf("%s/lane[%d]", path, li)
		for pi := 1; pi < len(l.Automation); pi++ {
			if l.Automation[pi].Time <= l.Automation[pi-1].Time {
				res.AddError(Semantic, lpath, "automation point %d: time %v not after %v",
					pi, l.Automation[pi].Time, l.Automation[pi-1].Time)
			}
		}
		for ci := range l.Clips {
			c := &l.Clips[ci]
			cpath := fmt.Sprintf("%s/clip[%s]", lpath, c.ID)
			if clipIDs[c.ID] {
				res.AddError(Structural, cpath, "duplicate clip ID %q", c.ID)
			}
			clipIDs[c.ID] = true
			c.Validate(opts, res, cpath)
			if c.DeviceID != "" && !local[c.DeviceID] {
				res.add(opts.refSeverity(), Referential, cpath, "clip references unknown device %q", c.DeviceID)
			}
		}
	}
}

// Validate checks the clip's time range and content reference.
func (c *Clip) Validate(opts ValidateOptions, res *ValidationResult, path string) {
	if c.ID == "" {
		res.AddError(Structural, path, "clip has no ID")
	}
	if !c.Type.Valid() {
		res.AddError(Semantic, path, "unknown clip type %q", c.Type)
	}
	if c.Start < 0 || math.IsNaN(c.Start) {
		res.AddError(Semantic, path, "start must be >= 0, got %v", c.Start)
	}
	if c.Duration <= 0 || math.IsNaN(c.Duration) {
		res.AddError(Semantic, path, "duration must be > 0, got %v", c.Duration)
	}
	if c.Rate <= 0 || math.IsNaN(c.Rate) {
		res.AddError(Semantic, path, "playback rate must be > 0, got %v", c.Rate)
	}
	if c.FadeIn < 0 || c.FadeIn > c.Duration || math.IsNaN(c.FadeIn) {
		res.AddError(Semantic, path, "fade-in %v outside [0, %v]", c.FadeIn, c.Duration)
	}
	if c.FadeOut < 0 || c.FadeOut > c.Duration || math.IsNaN(c.FadeOut) {
		res.AddError(Semantic, path, "fade-out %v outside [0, %v]", c.FadeOut, c.Duration)
	}
	if c.End() > MaxProjectLength || math.IsInf(c.End(), 0) {
		res.AddError(Semantic, path, "clip ends at %v, past the representable project length", c.End())
	}
	if c.Type == ClipAudio && c.File == "" {
		res.AddError(Structural, path, "audio clip has no resource reference")
	}
	resolveRef(opts, res, path, c.File)
}

// Validate checks the device fields and its preset reference.
func (d *Device) Validate(opts ValidateOptions, res *ValidationResult, trackPath string) {
	path := fmt.Sprintf("%s/device[%s]", trackPath, d.ID)
	if d.ID == "" {
		res.AddError(Structural, path, "device has no ID")
	}
	for name, v := range d.Parameters {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			res.AddError(Semantic, path, "parameter %q has non-finite value", name)
		}
	}
	resolveRef(opts, res, path, d.Preset)
}

func resolveRef(opts ValidateOptions, res *ValidationResult, path string, ref ResourceRef) {
	if ref == "" || ref.IsExternal() || opts.Resolve == nil {
		return
	}
	if !opts.Resolve(string(ref)) {
		res.add(opts.refSeverity(), Referential, path, "resource %q not found in archive", ref)
	}
}
