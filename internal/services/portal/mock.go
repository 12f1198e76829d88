package portal

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/permitsync/permitsync/internal/services/packaging"
)

// MockDriver simulates a municipal portal in memory. Each submitted case
// advances one step through statusFlow per poll, which is enough to exercise
// the full submit/poll/inspect workflow offline.
type MockDriver struct {
	name   string
	prefix string

	mu    sync.Mutex
	cases map[string]*mockCase
}

type mockCase struct {
	polls       int
	inspections []string
}

var statusFlow = []string{"submitted", "pending", "approved"}

// NewMockDriver builds a mock portal. prefix becomes the portal case ID
// prefix, e.g. "ACC" yields IDs like "ACC-1a2b3c4d".
func NewMockDriver(name, prefix string) *MockDriver {
	return &MockDriver{name: name, prefix: prefix, cases: make(map[string]*mockCase)}
}

func (d *MockDriver) Name() string { return d.name }

func (d *MockDriver) Submit(_ context.Context, _ packaging.Manifest) (SubmitResult, error) {
	id := fmt.Sprintf("%s-%s", d.prefix, strings.Split(uuid.New().String(), "-")[0])
	d.mu.Lock()
	d.cases[id] = &mockCase{}
	d.mu.Unlock()
	return SubmitResult{
		PortalCaseID: id,
		Receipt:      fmt.Sprintf("receipt for %s accepted by %s", id, d.name),
	}, nil
}

func (d *MockDriver) PollStatus(_ context.Context, portalCaseID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.cases[portalCaseID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCase, portalCaseID)
	}
	status := statusFlow[len(statusFlow)-1]
	if c.polls < len(statusFlow) {
		status = statusFlow[c.polls]
		c.polls++
	}
	return status, nil
}

func (d *MockDriver) RequestInspection(_ context.Context, portalCaseID, inspectionType string, notBefore time.Time) (time.Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.cases[portalCaseID]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrUnknownCase, portalCaseID)
	}
	c.inspections = append(c.inspections, inspectionType)
	return NextSlot(nil, notBefore), nil
}
