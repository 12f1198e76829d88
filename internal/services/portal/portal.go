// Package portal abstracts jurisdiction submission portals behind a driver
// interface. Real integrations and offline mocks register under the driver
// names that jurisdiction packs reference.
package portal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/permitsync/permitsync/internal/jurisdiction"
	"github.com/permitsync/permitsync/internal/services/packaging"
)

var (
	// ErrUnknownDriver is returned when a pack references a driver no one registered.
	ErrUnknownDriver = errors.New("unknown portal driver")
	// ErrUnknownCase is returned when a portal case ID is not recognized.
	ErrUnknownCase = errors.New("unknown portal case")
)

// SubmitResult is what a portal returns on a successful filing.
type SubmitResult struct {
	PortalCaseID string `json:"portal_case_id"`
	Receipt      string `json:"receipt,omitempty"`
}

// Driver is one portal integration.
type Driver interface {
	Name() string
	Submit(ctx context.Context, manifest packaging.Manifest) (SubmitResult, error)
	PollStatus(ctx context.Context, portalCaseID string) (string, error)
	RequestInspection(ctx context.Context, portalCaseID, inspectionType string, notBefore time.Time) (time.Time, error)
}

// Registry maps driver names to registered drivers.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
	byKind  map[jurisdiction.PortalKind]string
}

func NewRegistry() *Registry {
	return &Registry{
		drivers: make(map[string]Driver),
		byKind:  make(map[jurisdiction.PortalKind]string),
	}
}

// Register adds a driver under its own name.
func (r *Registry) Register(d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[d.Name()] = d
}

// SetDefault maps a portal kind to the driver used when a permit type does not
// name one explicitly.
func (r *Registry) SetDefault(kind jurisdiction.PortalKind, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKind[kind] = name
}

// ForSubmission picks the driver for one permit type in one pack: the permit
// type's named driver if set, otherwise the default for the pack's portal kind.
func (r *Registry) ForSubmission(pack *jurisdiction.Pack, permitType string) (Driver, error) {
	name := ""
	if def, ok := pack.PermitTypes[permitType]; ok {
		name = def.Submission.PortalDriver
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.byKind[pack.Portal.Kind]
	}
	d, ok := r.drivers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q for portal kind %s", ErrUnknownDriver, name, pack.Portal.Kind)
	}
	return d, nil
}

// NextSlot returns the first time at or after notBefore that satisfies the
// scheduling window. A nil window means next business morning.
func NextSlot(window *jurisdiction.SchedulingWindow, notBefore time.Time) time.Time {
	day := notBefore.Truncate(24 * time.Hour)
	minOut, maxOut := 1, 30
	allowed := map[time.Weekday]bool{
		time.Monday: true, time.Tuesday: true, time.Wednesday: true,
		time.Thursday: true, time.Friday: true,
	}
	if window != nil {
		if window.MinDaysOut > 0 {
			minOut = window.MinDaysOut
		}
		if window.MaxDaysOut > 0 {
			maxOut = window.MaxDaysOut
		}
		if len(window.AvailableDays) > 0 {
			allowed = make(map[time.Weekday]bool, len(window.AvailableDays))
			for _, d := range window.AvailableDays {
				allowed[d] = true
			}
		}
	}
	for out := minOut; out <= maxOut; out++ {
		candidate := day.AddDate(0, 0, out)
		if allowed[candidate.Weekday()] {
			return candidate.Add(9 * time.Hour)
		}
	}
	// No allowed weekday inside the window; fall back to the window's far edge.
	return day.AddDate(0, 0, maxOut).Add(9 * time.Hour)
}
