package dawproject

import "fmt"

// SchemaError reports a document that does not match the project schema:
// wrong root element, a missing required attribute, or a value that cannot
// be parsed at all. Path locates the offending element, e.g.
// "Project/Tracks/Track[2]".
type SchemaError struct {
	Path string
	Msg  string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema violation at %s: %s", e.Path, e.Msg)
}

// SemanticError reports a well-formed value outside its allowed range.
type SemanticError struct {
	Field      string
	Value      string
	Constraint string
}

func (e *SemanticError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Constraint)
}
