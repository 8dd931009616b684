package access

import (
	"fmt"

	"github.com/rotisserie/eris"
)

var (
	// ErrInvalidParameters marks malformed input. Callers should fix the
	// request rather than retry.
	ErrInvalidParameters = eris.New("invalid parameters")

	// ErrCollaborator marks a failed or timed-out provider or solver call.
	// The request may succeed when retried.
	ErrCollaborator = eris.New("collaborator failure")

	// ErrUnknownReference marks a reference to an infrastructure that is not
	// part of the session's last result.
	ErrUnknownReference = eris.New("unknown reference")
)

// CollaboratorError wraps an error returned by an external collaborator for
// one infrastructure. It matches both ErrCollaborator and the cause.
type CollaboratorError struct {
	Infrastructure string
	Err            error
}

// NewCollaboratorError wraps err as a collaborator failure for infrastructure.
func NewCollaboratorError(infrastructure string, err error) *CollaboratorError {
	return &CollaboratorError{Infrastructure: infrastructure, Err: err}
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("collaborator failure for %q: %v", e.Infrastructure, e.Err)
}

func (e *CollaboratorError) Unwrap() []error {
	return []error{ErrCollaborator, e.Err}
}

// UnknownInfrastructure returns an ErrUnknownReference for name.
func UnknownInfrastructure(name string) error {
	return eris.Wrapf(ErrUnknownReference, "access: infrastructure %q", name)
}
