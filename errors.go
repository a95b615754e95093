package recdex

import (
	"errors"
	"fmt"
)

// UnsupportedError reports an operation a backend legitimately cannot
// perform, as opposed to a failure. Callers branch on it with
// IsUnsupported.
type UnsupportedError struct {
	Kind string // backend or component kind
	Op   string // operation name
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s does not support %s", e.Kind, e.Op)
}

// IsUnsupported reports whether err is an expected unsupported-operation
// result.
func IsUnsupported(err error) bool {
	var ue *UnsupportedError
	return errors.As(err, &ue)
}
