package dawproject

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dawtools/dawproject/xmltree"
)

// Element and attribute names of the primary document. The layout is fixed
// by the exchange format: inside a Track the devices come before the lanes,
// and inside a Lane the automation comes before the clips, so that a
// forward-only reader never has to look back.
const (
	ElemProject    = "Project"
	ElemMetadata   = "Metadata"
	ElemMeta       = "Meta"
	ElemTracks     = "Tracks"
	ElemTrack      = "Track"
	ElemDevices    = "Devices"
	ElemDevice     = "Device"
	ElemParam      = "Param"
	ElemLane       = "Lane"
	ElemAutomation = "Automation"
	ElemPoint      = "Point"
	ElemClip       = "Clip"
	ElemNote       = "Note"
)

// FromTree maps a parsed document to a typed Project and validates it.
// Structural failures (wrong root, unparsable values) and invariant
// violations make the load fail: the returned project is nil and the result
// carries the findings. Referential findings are warnings unless opts is
// strict; the project is returned alongside them.
func FromTree(root *xmltree.Node, opts ValidateOptions) (*Project, *ValidationResult, error) {
	if root.Name != ElemProject {
		err := &SchemaError{Path: root.Name, Msg: fmt.Sprintf("root element must be <%s>", ElemProject)}
		return nil, nil, err
	}
	res := &ValidationResult{}
	p := HeaderFromAttrs(root.Attr, res)
	if meta := root.Child(ElemMetadata); meta != nil {
		MetadataFromNode(meta, &p)
	}
	if tracks := root.Child(ElemTracks); tracks != nil {
		for _, tn := range tracks.ChildrenNamed(ElemTrack) {
			p.Tracks = append(p.Tracks, TrackFromNode(tn, res))
		}
		for _, c := range tracks.Children {
			if c.Name != ElemTrack {
				res.AddWarning(Structural, ElemProject+"/"+ElemTracks, "ignoring unknown element <%s>", c.Name)
			}
		}
	}
	for _, c := range root.Children {
		if c.Name != ElemMetadata && c.Name != ElemTracks {
			res.AddWarning(Structural, ElemProject, "ignoring unknown element <%s>", c.Name)
		}
	}
	res.Merge(p.Validate(opts))
	if !res.OK() {
		return nil, res, res.Err()
	}
	return &p, res, nil
}

// ToTree is the structural inverse of FromTree: for any valid project p,
// FromTree(ToTree(p)) is entity-equal to p.
func (p *Project) ToTree() *xmltree.Node {
	root := &xmltree.Node{Name: ElemProject, Attr: p.HeaderAttrs()}
	if meta := p.MetadataNode(); meta != nil {
		root.Append(meta)
	}
	tracks := root.Append(&xmltree.Node{Name: ElemTracks})
	tracks.Set("count", strconv.Itoa(len(p.Tracks)))
	clips := 0
	for i := range p.Tracks {
		for j := range p.Tracks[i].Lanes {
			clips += len(p.Tracks[i].Lanes[j].Clips)
		}
	}
	tracks.Set("clips", strconv.Itoa(clips))
	for i := range p.Tracks {
		tracks.Append(p.Tracks[i].ToNode())
	}
	return root
}

// HeaderAttrs renders the song-level properties as Project attributes.
func (p *Project) HeaderAttrs() []xmltree.Attr {
	var attr []xmltree.Attr
	add := func(name, value string) {
		if value != "" {
			attr = append(attr, xmltree.Attr{Name: name, Value: value})
		}
	}
	add("title", p.Title)
	add("artist", p.Artist)
	add("album", p.Album)
	add("genre", p.Genre)
	add("key", p.Key)
	attr = append(attr, xmltree.Attr{Name: "tempo", Value: ftoa(p.Tempo)})
	attr = append(attr,
		xmltree.Attr{Name: "timeSigNumerator", Value: strconv.Itoa(p.TimeSignature.Numerator)},
		xmltree.Attr{Name: "timeSigDenominator", Value: strconv.Itoa(p.TimeSignature.Denominator)})
	if !p.Created.IsZero() {
		add("created", p.Created.UTC().Format(time.RFC3339))
	}
	if !p.Modified.IsZero() {
		add("modified", p.Modified.UTC().Format(time.RFC3339))
	}
	return attr
}

// HeaderFromAttrs builds the track-less project header from the Project
// element attributes.
func HeaderFromAttrs(attr []xmltree.Attr, res *ValidationResult) Project {
	var p Project
	for _, a := range attr {
		switch a.Name {
		case "title":
			p.Title = a.Value
		case "artist":
			p.Artist = a.Value
		case "album":
			p.Album = a.Value
		case "genre":
			p.Genre = a.Value
		case "key":
			p.Key = a.Value
		case "tempo":
			p.Tempo = atof(a.Value, ElemProject, "tempo", res)
		case "timeSigNumerator":
			p.TimeSignature.Numerator = atoi(a.Value, ElemProject, "timeSigNumerator", res)
		case "timeSigDenominator":
			p.TimeSignature.Denominator = atoi(a.Value, ElemProject, "timeSigDenominator", res)
		case "created":
			p.Created = atotime(a.Value, "created", res)
		case "modified":
			p.Modified = atotime(a.Value, "modified", res)
		default:
			res.AddWarning(Structural, ElemProject, "ignoring unknown attribute %q", a.Name)
		}
	}
	return p
}

// MetadataNode renders the metadata block, or nil when there is none.
func (p *Project) MetadataNode() *xmltree.Node {
	if len(p.Metadata) == 0 {
		return nil
	}
	meta := &xmltree.Node{Name: ElemMetadata}
	for _, m := range p.Metadata {
		meta.Append(&xmltree.Node{Name: ElemMeta, Attr: []xmltree.Attr{
			{Name: "name", Value: m.Name},
			{Name: "value", Value: m.Value},
		}})
	}
	return meta
}

// MetadataFromNode fills the metadata block from its element.
func MetadataFromNode(n *xmltree.Node, p *Project) {
	for _, m := range n.ChildrenNamed(ElemMeta) {
		p.Metadata = append(p.Metadata, MetaEntry{Name: m.Get("name"), Value: m.Get("value")})
	}
}

// ToNode renders the full track subtree, devices first, then lanes.
func (t *Track) ToNode() *xmltree.Node {
	n := t.ShellNode()
	for i := range t.Lanes {
		n.Append(t.Lanes[i].ToNode())
	}
	return n
}

// ShellNode renders the track element with its attributes and devices but
// without any lanes, for writers that stream clips separately.
func (t *Track) ShellNode() *xmltree.Node {
	n := &xmltree.Node{Name: ElemTrack}
	n.Set("id", t.ID)
	if t.Name != "" {
		n.Set("name", t.Name)
	}
	n.Set("type", string(t.Type))
	if t.Color != "" {
		n.Set("color", t.Color)
	}
	n.Set("volume", ftoa(t.Volume))
	n.Set("pan", ftoa(t.Pan))
	if t.Muted {
		n.Set("muted", "true")
	}
	if t.Soloed {
		n.Set("soloed", "true")
	}
	n.Set("order", strconv.Itoa(t.Order))
	if t.InstrumentID != "" {
		n.Set("instrumentId", t.InstrumentID)
	}
	if t.AudioFile != "" {
		n.Set("audioFile", string(t.AudioFile))
	}
	if len(t.Devices) > 0 {
		devices := n.Append(&xmltree.Node{Name: ElemDevices})
		for i := range t.Devices {
			devices.Append(t.Devices[i].ToNode())
		}
	}
	return n
}

// TrackFromNode maps a full track element, including any lanes present.
func TrackFromNode(n *xmltree.Node, res *ValidationResult) Track {
	t := TrackShellFromNode(n, res)
	for _, c := range n.Children {
		switch c.Name {
		case ElemLane:
			t.Lanes = append(t.Lanes, LaneFromNode(c, t.ID, res))
		case ElemDevices:
			// consumed by TrackShellFromNode
		default:
			res.AddWarning(Structural, "track["+t.ID+"]", "ignoring unknown element <%s>", c.Name)
		}
	}
	return t
}

// TrackShellFromNode maps the track attributes and devices only.
func TrackShellFromNode(n *xmltree.Node, res *ValidationResult) Track {
	var t Track
	t.ID = n.Get("id")
	path := "track[" + t.ID + "]"
	t.Name = n.Get("name")
	t.Type = TrackType(n.Get("type"))
	t.Color = n.Get("color")
	t.Volume = atof(n.Get("volume"), path, "volume", res)
	t.Pan = atofDefault(n.Get("pan"), path, "pan", 0, res)
	t.Muted = n.Get("muted") == "true"
	t.Soloed = n.Get("soloed") == "true"
	t.Order = atoi(n.Get("order"), path, "order", res)
	t.InstrumentID = n.Get("instrumentId")
	t.AudioFile = ResourceRef(n.Get("audioFile"))
	if devices := n.Child(ElemDevices); devices != nil {
		for _, dn := range devices.ChildrenNamed(ElemDevice) {
			t.Devices = append(t.Devices, DeviceFromNode(dn, path, res))
		}
	}
	return t
}

// ToNode renders a lane, automation first, then the clips.
func (l *Lane) ToNode() *xmltree.Node {
	n := &xmltree.Node{Name: ElemLane}
	if auto := l.AutomationNode(); auto != nil {
		n.Append(auto)
	}
	for i := range l.Clips {
		n.Append(l.Clips[i].ToNode())
	}
	return n
}

// AutomationNode renders the automation curve, or nil when there is none.
func (l *Lane) AutomationNode() *xmltree.Node {
	if len(l.Automation) == 0 {
		return nil
	}
	auto := &xmltree.Node{Name: ElemAutomation}
	for _, pt := range l.Automation {
		auto.Append(&xmltree.Node{Name: ElemPoint, Attr: []xmltree.Attr{
			{Name: "time", Value: ftoa(pt.Time)},
			{Name: "value", Value: ftoa(pt.Value)},
		}})
	}
	return auto
}

// LaneFromNode maps a lane element with its automation and clips.
func LaneFromNode(n *xmltree.Node, trackID string, res *ValidationResult) Lane {
	var l Lane
	for _, c := range n.Children {
		switch c.Name {
		case ElemAutomation:
			l.Automation = AutomationFromNode(c, trackID, res)
		case ElemClip:
			l.Clips = append(l.Clips, ClipFromNode(c, res))
		default:
			res.AddWarning(Structural, "track["+trackID+"]/lane", "ignoring unknown element <%s>", c.Name)
		}
	}
	return l
}

// AutomationFromNode maps an automation element to its points.
func AutomationFromNode(n *xmltree.Node, trackID string, res *ValidationResult) []AutomationPoint {
	var pts []AutomationPoint
	path := "track[" + trackID + "]/automation"
	for _, pn := range n.ChildrenNamed(ElemPoint) {
		pts = append(pts, AutomationPoint{
			Time:  atof(pn.Get("time"), path, "time", res),
			Value: atof(pn.Get("value"), path, "value", res),
		})
	}
	return pts
}

// ToNode renders the clip element with its notes.
func (c *Clip) ToNode() *xmltree.Node {
	n := &xmltree.Node{Name: ElemClip}
	n.Set("id", c.ID)
	if c.Name != "" {
		n.Set("name", c.Name)
	}
	n.Set("type", string(c.Type))
	n.Set("start", ftoa(c.Start))
	n.Set("duration", ftoa(c.Duration))
	n.Set("rate", ftoa(c.Rate))
	n.Set("fadeIn", ftoa(c.FadeIn))
	n.Set("fadeOut", ftoa(c.FadeOut))
	if c.File != "" {
		n.Set("file", string(c.File))
	}
	if c.DeviceID != "" {
		n.Set("deviceId", c.DeviceID)
	}
	for _, note := range c.Notes {
		n.Append(&xmltree.Node{Name: ElemNote, Attr: []xmltree.Attr{
			{Name: "time", Value: ftoa(note.Time)},
			{Name: "dur", Value: ftoa(note.Duration)},
			{Name: "key", Value: strconv.Itoa(int(note.Key))},
			{Name: "vel", Value: strconv.Itoa(int(note.Velocity))},
			{Name: "chan", Value: strconv.Itoa(int(note.Channel))},
		}})
	}
	return n
}

// ClipFromNode maps a clip element.
func ClipFromNode(n *xmltree.Node, res *ValidationResult) Clip {
	var c Clip
	c.ID = n.Get("id")
	path := "clip[" + c.ID + "]"
	c.Name = n.Get("name")
	c.Type = ClipType(n.Get("type"))
	c.Start = atof(n.Get("start"), path, "start", res)
	c.Duration = atof(n.Get("duration"), path, "duration", res)
	c.Rate = atofDefault(n.Get("rate"), path, "rate", 1, res)
	c.FadeIn = atofDefault(n.Get("fadeIn"), path, "fadeIn", 0, res)
	c.FadeOut = atofDefault(n.Get("fadeOut"), path, "fadeOut", 0, res)
	c.File = ResourceRef(n.Get("file"))
	c.DeviceID = n.Get("deviceId")
	for _, nn := range n.ChildrenNamed(ElemNote) {
		c.Notes = append(c.Notes, Note{
			Time:     atof(nn.Get("time"), path, "note time", res),
			Duration: atof(nn.Get("dur"), path, "note dur", res),
			Key:      atob(nn.Get("key"), path, "note key", res),
			Velocity: atob(nn.Get("vel"), path, "note vel", res),
			Channel:  atob(nn.Get("chan"), path, "note chan", res),
		})
	}
	return c
}

// ToNode renders the device element with its parameters in sorted order.
func (d *Device) ToNode() *xmltree.Node {
	n := &xmltree.Node{Name: ElemDevice}
	n.Set("id", d.ID)
	if d.Name != "" {
		n.Set("name", d.Name)
	}
	if d.Kind != "" {
		n.Set("kind", d.Kind)
	}
	if d.Preset != "" {
		n.Set("preset", string(d.Preset))
	}
	names := make([]string, 0, len(d.Parameters))
	for name := range d.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		n.Append(&xmltree.Node{Name: ElemParam, Attr: []xmltree.Attr{
			{Name: "name", Value: name},
			{Name: "value", Value: ftoa(d.Parameters[name])},
		}})
	}
	return n
}

// DeviceFromNode maps a device element.
func DeviceFromNode(n *xmltree.Node, trackPath string, res *ValidationResult) Device {
	var d Device
	d.ID = n.Get("id")
	d.Name = n.Get("name")
	d.Kind = n.Get("kind")
	d.Preset = ResourceRef(n.Get("preset"))
	params := n.ChildrenNamed(ElemParam)
	if len(params) > 0 {
		d.Parameters = make(map[string]float64, len(params))
		path := trackPath + "/device[" + d.ID + "]"
		for _, pn := range params {
			d.Parameters[pn.Get("name")] = atof(pn.Get("value"), path, pn.Get("name"), res)
		}
	}
	return d
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func atof(s, path, field string, res *ValidationResult) float64 {
	if s == "" {
		res.AddError(Structural, path, "missing required attribute %q", field)
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		res.AddError(Structural, path, "attribute %q is not a number: %q", field, s)
		return 0
	}
	return v
}

func atofDefault(s, path, field string, def float64, res *ValidationResult) float64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		res.AddError(Structural, path, "attribute %q is not a number: %q", field, s)
		return def
	}
	return v
}

func atoi(s, path, field string, res *ValidationResult) int {
	if s == "" {
		res.AddError(Structural, path, "missing required attribute %q", field)
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		res.AddError(Structural, path, "attribute %q is not an integer: %q", field, s)
		return 0
	}
	return v
}

func atob(s, path, field string, res *ValidationResult) uint8 {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		res.AddError(Structural, path, "attribute %q is not a byte value: %q", field, s)
		return 0
	}
	return uint8(v)
}

func atotime(s, field string, res *ValidationResult) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		res.AddWarning(Structural, ElemProject, "attribute %q is not an RFC 3339 timestamp: %q", field, s)
		return time.Time{}
	}
	return t
}
