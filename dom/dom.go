// Package dom materializes whole project graphs: it loads a container into
// a fully resolved, validated Project for random access and editing, and
// serializes an edited Project back into a container with atomic
// replace-on-success semantics.
package dom

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dawtools/dawproject"
	"github.com/dawtools/dawproject/container"
	"github.com/dawtools/dawproject/content"
	"github.com/dawtools/dawproject/xmltree"
)

// PrimaryDocument is the fixed name of the project graph entry.
const PrimaryDocument = "project.xml"

// ErrInvalidState is returned when a Document method is called in a state
// that does not allow it.
var ErrInvalidState = errors.New("invalid document state")

// Retention decides what happens to archive entries that exist in the
// source container but are no longer referenced by the graph being saved.
// There is no implicit default behavior; callers pick one.
type Retention int

const (
	// RetainAll copies every entry of the source container, referenced or
	// not, byte for byte.
	RetainAll Retention = iota
	// DropUnreferenced copies only entries the saved graph references.
	DropUnreferenced
)

type (
	// Options configures loading.
	Options struct {
		Limits container.Limits
		// Strict promotes referential findings to hard failures.
		Strict bool
		// InlineMIDI decodes SMF resources referenced by MIDI clips that
		// carry no inline notes, so the loaded graph is self-contained.
		InlineMIDI bool
	}

	// SaveOptions configures saving.
	SaveOptions struct {
		Limits    container.Limits
		Retention Retention
		// EncodeMIDI writes the notes of MIDI clips that reference an SMF
		// resource back into that resource entry.
		EncodeMIDI bool
		// Source names the container to carry resource entries from,
		// usually the one the graph was loaded from. Empty means the
		// destination itself, when it already exists.
		Source string
	}
)

// State tracks the lifecycle of a Document. Transitions are
// Closed -> Loading -> Loaded or Failed, and Loaded -> Saving -> Loaded or
// Failed. A failed document keeps no partial graph.
type State int

const (
	Closed State = iota
	Loading
	Loaded
	Saving
	Failed
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Saving:
		return "saving"
	default:
		return "failed"
	}
}

// Document is a DOM-mode handle on one project file: load it, inspect and
// edit the graph, save it back. Not safe for concurrent use; wrap the
// project in a session.Session for that.
type Document struct {
	state   State
	project *dawproject.Project
	index   *dawproject.Index
	result  *dawproject.ValidationResult
	source  string
	err     error
}

// New returns a closed document.
func New() *Document { return &Document{state: Closed} }

// State returns the current lifecycle state.
func (d *Document) State() State { return d.state }

// Project returns the loaded graph, or nil unless the state is Loaded.
func (d *Document) Project() *dawproject.Project { return d.project }

// Index returns ID-based lookups over the loaded graph, or nil.
func (d *Document) Index() *dawproject.Index { return d.index }

// Result returns the validation findings of the last load.
func (d *Document) Result() *dawproject.ValidationResult { return d.result }

// Err returns the error that moved the document to Failed, or nil.
func (d *Document) Err() error { return d.err }

// Load opens the container at path, parses and validates the primary
// document, resolves references and materializes the graph. On failure the
// document holds no partial state. The validation result is returned even
// on failure when validation is what failed.
func (d *Document) Load(path string, opts Options) (*dawproject.ValidationResult, error) {
	if d.state != Closed && d.state != Loaded {
		return nil, fmt.Errorf("%w: cannot load while %s", ErrInvalidState, d.state)
	}
	d.state = Loading
	d.project, d.index, d.result = nil, nil, nil
	project, result, err := load(path, opts)
	if err != nil {
		d.state = Failed
		d.err = err
		d.result = result
		return result, err
	}
	d.state = Loaded
	d.err = nil
	d.project = project
	d.index = project.BuildIndex()
	d.result = result
	d.source = path
	return result, nil
}

// Save serializes the loaded graph into the container at path. Resources
// are carried over from the source container per the retention policy; the
// destination is replaced only after every entry was staged successfully.
func (d *Document) Save(path string, opts SaveOptions) error {
	if d.state != Loaded {
		return fmt.Errorf("%w: cannot save while %s", ErrInvalidState, d.state)
	}
	d.state = Saving
	source := d.source
	if opts.Source != "" {
		source = opts.Source
	}
	if err := save(d.project, source, path, opts); err != nil {
		// the in-memory graph is still intact, keep it usable
		d.state = Loaded
		return err
	}
	d.state = Loaded
	d.source = path
	return nil
}

// Load is the one-shot form: load the container at path and return the
// graph, the validation findings, and the first error encountered. The
// returned project is nil whenever err is non-nil.
func Load(path string, opts Options) (*dawproject.Project, *dawproject.ValidationResult, error) {
	return load(path, opts)
}

// Save is the one-shot form. Resource entries are carried over from
// opts.Source; when no source is given, an existing destination is used as
// its own source, so overwriting a container in place keeps its resources.
func Save(p *dawproject.Project, path string, opts SaveOptions) error {
	source := opts.Source
	if source == "" {
		if _, err := os.Stat(path); err == nil {
			source = path
		}
	}
	return save(p, source, path, opts)
}

func load(path string, opts Options) (*dawproject.Project, *dawproject.ValidationResult, error) {
	if opts.Limits == (container.Limits{}) {
		opts.Limits = container.DefaultLimits()
	}
	arc, err := container.Open(path, opts.Limits)
	if err != nil {
		return nil, nil, err
	}
	defer arc.Close()

	doc, err := arc.ReadEntry(PrimaryDocument)
	if err != nil {
		return nil, nil, fmt.Errorf("primary document: %w", err)
	}
	tree, err := xmltree.Parse(doc)
	if err != nil {
		return nil, nil, err
	}
	project, result, err := dawproject.FromTree(tree, dawproject.ValidateOptions{
		Strict:  opts.Strict,
		Resolve: arc.Has,
	})
	if err != nil {
		return nil, result, err
	}
	if opts.InlineMIDI {
		if err := inlineMIDI(project, arc); err != nil {
			return nil, result, err
		}
	}
	return project, result, nil
}

// inlineMIDI fills the notes of MIDI clips whose content lives in an SMF
// resource entry. A missing entry was already reported as a referential
// warning; a present but undecodable entry fails the load.
func inlineMIDI(p *dawproject.Project, arc *container.Archive) error {
	for i := range p.Tracks {
		for j := range p.Tracks[i].Lanes {
			clips := p.Tracks[i].Lanes[j].Clips
			for k := range clips {
				c := &clips[k]
				if c.Type != dawproject.ClipMIDI || c.File == "" || len(c.Notes) > 0 {
					continue
				}
				if c.File.IsExternal() || !arc.Has(string(c.File)) {
					continue
				}
				data, err := arc.ReadEntry(string(c.File))
				if err != nil {
					return fmt.Errorf("clip %s: %w", c.ID, err)
				}
				notes, err := content.NotesFromSMF(data)
				if err != nil {
					return fmt.Errorf("clip %s: %w", c.ID, err)
				}
				c.Notes = notes
			}
		}
	}
	return nil
}

func save(p *dawproject.Project, source, dest string, opts SaveOptions) error {
	if opts.Limits == (container.Limits{}) {
		opts.Limits = container.DefaultLimits()
	}
	if result := p.Validate(dawproject.ValidateOptions{}); !result.OK() {
		return result.Err()
	}

	w, err := container.NewWriter(dest)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			w.Abort()
		}
	}()

	if err := w.WriteEntry(PrimaryDocument, xmltree.Serialize(p.ToTree())); err != nil {
		return err
	}
	if opts.EncodeMIDI {
		if err := encodeMIDI(p, w); err != nil {
			return err
		}
	}
	if source != "" {
		if err := carryResources(p, source, w, opts); err != nil {
			return err
		}
	}
	if err := w.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// encodeMIDI stages an SMF entry for every MIDI clip that references one
// and carries inline notes; the staged entry wins over any source copy.
func encodeMIDI(p *dawproject.Project, w *container.Writer) error {
	for i := range p.Tracks {
		for j := range p.Tracks[i].Lanes {
			clips := p.Tracks[i].Lanes[j].Clips
			for k := range clips {
				c := &clips[k]
				if c.Type != dawproject.ClipMIDI || c.File == "" || c.File.IsExternal() || len(c.Notes) == 0 {
					continue
				}
				data, err := content.NotesToSMF(c.Notes)
				if err != nil {
					return fmt.Errorf("clip %s: %w", c.ID, err)
				}
				if err := w.WriteEntry(string(c.File), data); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// carryResources copies entries from the source container into the staged
// one, skipping the primary document and anything already staged, and
// honoring the retention policy for unreferenced entries.
func carryResources(p *dawproject.Project, source string, w *container.Writer, opts SaveOptions) error {
	arc, err := container.Open(source, opts.Limits)
	if err != nil {
		return err
	}
	defer arc.Close()

	referenced := make(map[string]bool)
	for _, path := range p.ResourcePaths() {
		referenced[path] = true
	}
	for _, entry := range arc.Entries() {
		if entry.Name == PrimaryDocument || entry.IsDir || w.Has(entry.Name) {
			continue
		}
		if opts.Retention == DropUnreferenced && !referenced[entry.Name] {
			continue
		}
		if err := copyEntry(arc, w, entry.Name); err != nil {
			return err
		}
	}
	return nil
}

func copyEntry(arc *container.Archive, w *container.Writer, name string) error {
	r, err := arc.OpenEntry(name)
	if err != nil {
		return err
	}
	defer r.Close()
	ew, err := w.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(ew, r)
	return err
}
