package core

import (
	"errors"
	"fmt"
)

// ErrUnknownTool is returned by the registry when the requested tool
// name is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// ValidationError reports a rejected mutation or tool input. It is
// surfaced to the caller as a structured error, never silently dropped.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
