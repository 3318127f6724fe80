package xmltree

import "fmt"

// SyntaxError reports a malformed document with its location. Col is 0 when
// only the line is known (cursor-based parsing does not track columns).
type SyntaxError struct {
	Line int
	Col  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	if e.Col > 0 {
		return fmt.Sprintf("xml syntax error at line %d, column %d: %s", e.Line, e.Col, e.Msg)
	}
	return fmt.Sprintf("xml syntax error at line %d: %s", e.Line, e.Msg)
}
