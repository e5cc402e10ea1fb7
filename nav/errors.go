package nav

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable means the planner found no path between the requested
	// landmarks.
	ErrUnreachable = errors.New("no path between landmarks")

	// ErrMissingEdge means a recorded segment expected during stitching is
	// not in the graph.
	ErrMissingEdge = errors.New("missing recorded segment")

	// ErrRouteTooShort means fewer than two landmarks were requested.
	ErrRouteTooShort = errors.New("route needs at least two landmarks")

	// ErrUnknownLandmark means an id is not registered in the graph.
	ErrUnknownLandmark = errors.New("unknown landmark")

	// ErrGeoAnchorUnavailable means an outdoor start was requested but no
	// terrain anchor could be created for it.
	ErrGeoAnchorUnavailable = errors.New("terrain anchor unavailable")
)

// PlanError describes a failed planning step. The active route is never
// modified when one is returned.
type PlanError struct {
	Op   string
	From string
	To   string
	Err  error
}

func (e *PlanError) Error() string {
	switch {
	case e.From != "" && e.To != "":
		return fmt.Sprintf("%s %s -> %s: %v", e.Op, e.From, e.To, e.Err)
	case e.From != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.From, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *PlanError) Unwrap() error { return e.Err }
