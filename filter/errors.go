package filter

import "fmt"

// ValidationError reports a malformed filter expression. Path points at
// the offending key, dot-joined from the expression root.
type ValidationError struct {
	Path string
	Msg  string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid filter: %s", e.Msg)
	}
	return fmt.Sprintf("invalid filter at %s: %s", e.Path, e.Msg)
}

func validationErrf(path, format string, args ...any) error {
	return &ValidationError{Path: path, Msg: fmt.Sprintf(format, args...)}
}
