package services

import (
	"fmt"
	"strings"

	"example.com/jonoshongjog/services/relief/internal/repositories"

	"github.com/pkg/errors"
)

// ValidationError reports malformed or missing input
type ValidationError struct {
	Message string
	Details map[string]interface{}
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NotFoundError reports a referenced entity that does not exist
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// PreconditionFailedError reports an entity in the wrong status for the requested change
type PreconditionFailedError struct {
	Entity  string
	Status  string
	Allowed []string
	Reason  string
}

func (e *PreconditionFailedError) Error() string {
	msg := fmt.Sprintf("%s is %s", e.Entity, e.Status)
	if len(e.Allowed) > 0 {
		msg += fmt.Sprintf(", expected one of: %s", strings.Join(e.Allowed, ", "))
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// AuthError reports missing, invalid or insufficient credentials
type AuthError struct {
	Message   string
	Forbidden bool
}

func (e *AuthError) Error() string {
	return e.Message
}

// ConflictError reports a uniqueness violation
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// UpstreamError wraps a store or external service failure
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func notFound(entity string, id fmt.Stringer) error {
	return &NotFoundError{Entity: entity, ID: id.String()}
}

func precondition[S ~string](entity string, status S, allowed []S, reason string) error {
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}
	return &PreconditionFailedError{Entity: entity, Status: string(status), Allowed: names, Reason: reason}
}

// upstream classifies a repository error, keeping typed service errors as they are
func upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	if isServiceError(err) {
		return err
	}
	if repositories.IsDuplicateKey(err) {
		return &ConflictError{Message: op + ": already exists"}
	}
	return &UpstreamError{Op: op, Err: err}
}

func isServiceError(err error) bool {
	var (
		v *ValidationError
		n *NotFoundError
		p *PreconditionFailedError
		a *AuthError
		c *ConflictError
		u *UpstreamError
	)
	return errors.As(err, &v) || errors.As(err, &n) || errors.As(err, &p) ||
		errors.As(err, &a) || errors.As(err, &c) || errors.As(err, &u)
}

// lookup turns a repository not-found into a NotFoundError and anything else into an UpstreamError
func lookup(entity string, id fmt.Stringer, err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return notFound(entity, id)
	}
	return upstream("failed to load "+entity, err)
}
