package dawproject_test

import (
	"strings"
	"testing"
	"time"

	"github.com/dawtools/dawproject"
	"github.com/dawtools/dawproject/xmltree"
)

func TestTreeRoundTrip(t *testing.T) {
	p := testProject()
	p.Created = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p.Modified = time.Date(2024, 3, 2, 8, 30, 0, 0, time.UTC)

	data := xmltree.Serialize(p.ToTree())
	tree, err := xmltree.Parse(data)
	if err != nil {
		t.Fatalf("parsing serialized project failed: %v", err)
	}
	got, res, err := dawproject.FromTree(tree, dawproject.ValidateOptions{})
	if err != nil {
		t.Fatalf("mapping parsed project failed: %v (%v)", err, res.Issues)
	}
	if !got.Equal(p) {
		t.Fatalf("project did not survive the round trip:\nwant %+v\ngot  %+v", p, got)
	}
	if !got.Created.Equal(p.Created) || !got.Modified.Equal(p.Modified) {
		t.Fatalf("timestamps did not survive: %v %v", got.Created, got.Modified)
	}
}

func TestToTreeCounts(t *testing.T) {
	tree := testProject().ToTree()
	tracks := tree.Child("Tracks")
	if tracks == nil {
		t.Fatalf("no Tracks element")
	}
	if tracks.Get("count") != "2" || tracks.Get("clips") != "3" {
		t.Fatalf("wrong counts: count=%q clips=%q", tracks.Get("count"), tracks.Get("clips"))
	}
}

func TestToTreeOrdering(t *testing.T) {
	tree := testProject().ToTree()
	lead := tree.Child("Tracks").ChildrenNamed("Track")[1]
	if len(lead.Children) < 2 || lead.Children[0].Name != "Devices" || lead.Children[1].Name != "Lane" {
		names := make([]string, len(lead.Children))
		for i, c := range lead.Children {
			names[i] = c.Name
		}
		t.Fatalf("devices must precede lanes, got %v", names)
	}
	drums := tree.Child("Tracks").ChildrenNamed("Track")[0]
	lane := drums.Child("Lane")
	if lane.Children[0].Name != "Automation" {
		t.Fatalf("automation must precede clips, got %v", lane.Children[0].Name)
	}
}

func TestDeviceParametersSorted(t *testing.T) {
	d := dawproject.Device{ID: "d", Parameters: map[string]float64{"z": 1, "a": 2, "m": 3}}
	n := d.ToNode()
	var names []string
	for _, pn := range n.ChildrenNamed("Param") {
		names = append(names, pn.Get("name"))
	}
	if strings.Join(names, ",") != "a,m,z" {
		t.Fatalf("parameters must serialize in sorted order, got %v", names)
	}
}

func TestFromTreeRejectsWrongRoot(t *testing.T) {
	tree, err := xmltree.Parse([]byte(`<Song tempo="120"/>`))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := dawproject.FromTree(tree, dawproject.ValidateOptions{}); err == nil {
		t.Fatalf("wrong root element should have failed")
	}
}

func TestFromTreeMissingAttributes(t *testing.T) {
	doc := `<Project tempo="120" timeSigNumerator="4" timeSigDenominator="4">
  <Tracks>
    <Track id="t1" type="audio" order="0"/>
  </Tracks>
</Project>`
	tree, err := xmltree.Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	_, res, err := dawproject.FromTree(tree, dawproject.ValidateOptions{})
	if err == nil {
		t.Fatalf("missing volume attribute should have failed")
	}
	found := false
	for _, issue := range res.Errors() {
		if strings.Contains(issue.Msg, "volume") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an error about the missing volume, got %v", res.Errors())
	}
}

func TestFromTreeUnknownElementsAreWarnings(t *testing.T) {
	doc := `<Project tempo="120" timeSigNumerator="4" timeSigDenominator="4">
  <Future/>
  <Tracks count="0" clips="0"/>
</Project>`
	tree, err := xmltree.Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	p, res, err := dawproject.FromTree(tree, dawproject.ValidateOptions{})
	if err != nil {
		t.Fatalf("unknown elements should not fail the load: %v", err)
	}
	if p == nil || len(res.Warnings()) == 0 {
		t.Fatalf("expected the project plus a warning, got %v", res.Issues)
	}
}

func TestDefaultedAttributes(t *testing.T) {
	doc := `<Project tempo="120" timeSigNumerator="4" timeSigDenominator="4">
  <Tracks>
    <Track id="t1" type="instrument" volume="1" order="0">
      <Lane>
        <Clip id="c1" type="midi" start="0" duration="4"/>
      </Lane>
    </Track>
  </Tracks>
</Project>`
	tree, err := xmltree.Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	p, _, err := dawproject.FromTree(tree, dawproject.ValidateOptions{})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	clip := p.Tracks[0].Lanes[0].Clips[0]
	if clip.Rate != 1 || clip.FadeIn != 0 || clip.FadeOut != 0 || p.Tracks[0].Pan != 0 {
		t.Fatalf("optional attributes did not default: %+v", clip)
	}
}

func TestCopyIsDeep(t *testing.T) {
	p := testProject()
	c := p.Copy()
	c.Tracks[0].Name = "changed"
	c.Tracks[1].Devices[0].Parameters["cutoff"] = 0
	c.Tracks[0].Lanes[0].Clips[0].Start = 99
	c.Metadata[0].Value = "changed"
	if p.Tracks[0].Name == "changed" || p.Tracks[1].Devices[0].Parameters["cutoff"] == 0 ||
		p.Tracks[0].Lanes[0].Clips[0].Start == 99 || p.Metadata[0].Value == "changed" {
		t.Fatalf("copy shares state with the original")
	}
	if !p.Equal(testProject()) {
		t.Fatalf("original was mutated")
	}
}

func TestEqualIgnoresTimestamps(t *testing.T) {
	a, b := testProject(), testProject()
	a.Created = time.Now()
	b.Modified = time.Now().Add(time.Hour)
	if !a.Equal(b) {
		t.Fatalf("timestamps must not affect equality")
	}
	b.Title = "different"
	if a.Equal(b) {
		t.Fatalf("different titles must not compare equal")
	}
}

func TestIndexLookups(t *testing.T) {
	p := testProject()
	ix := p.BuildIndex()
	if ix.TrackByID("t2") == nil || ix.TrackByID("t2").Name != "Lead" {
		t.Fatalf("track lookup failed")
	}
	if ix.ClipByID("c3") == nil || ix.DeviceByID("d1") == nil {
		t.Fatalf("clip or device lookup failed")
	}
	if got := ix.TrackOfClip("c1"); got == nil || got.ID != "t1" {
		t.Fatalf("clip-to-track lookup failed: %v", got)
	}
	if ix.TrackByID("nope") != nil || ix.ClipByID("nope") != nil {
		t.Fatalf("missing IDs must return nil")
	}
}

func TestResourcePaths(t *testing.T) {
	p := testProject()
	p.Tracks[1].Devices[0].Preset = "presets/synth.blob"
	p.Tracks[1].Lanes[0].Clips[0].File = "/external/notes.mid"
	got := p.ResourcePaths()
	want := []string{"audio/drums.wav", "presets/synth.blob"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("resource paths = %v, want %v", got, want)
	}
}
