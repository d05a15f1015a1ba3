package clients

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrTransport = errors.New("analysis transport error")
	ErrService   = errors.New("analysis service error")
)

// TransportError means the request never produced a usable reply.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: transport: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// ServiceError is an error reported by the analysis service itself.
type ServiceError struct {
	Op      string
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: service %d %s", e.Op, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s: service %d: %s", e.Op, e.Status, e.Message)
}

func (e *ServiceError) Is(target error) bool {
	return target == ErrService
}
