package connectivity

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every *Error matches exactly one of them with errors.Is.
var (
	ErrNotRoutable    = errors.New("service not routable")
	ErrNoTransport    = errors.New("no transport for strategy")
	ErrTransportBuild = errors.New("transport build failed")
	ErrTimeout        = errors.New("call timeout")
	ErrCircuitOpen    = errors.New("circuit open")
	ErrRemoteStatus   = errors.New("remote error status")
)

// Error is a failed call, or a route that could not be built.
type Error struct {
	Kind     error
	Service  string
	Strategy string
	Endpoint string
	// Status and Body are set for ErrRemoteStatus. Body is the raw answer,
	// often an HTML error page.
	Status int
	Body   string
	Cause  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("connectivity: ")
	if e.Service != "" {
		b.WriteString(e.Service + ": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Strategy != "" {
		fmt.Fprintf(&b, " %q", e.Strategy)
	}
	if e.Endpoint != "" {
		b.WriteString(" at " + e.Endpoint)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " %d: %s", e.Status, e.Body)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// RemoteStatus returns the HTTP status of a remote error answer.
func RemoteStatus(err error) (int, bool) {
	var e *Error
	if errors.As(err, &e) && errors.Is(e.Kind, ErrRemoteStatus) {
		return e.Status, true
	}
	return 0, false
}
