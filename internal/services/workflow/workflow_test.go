package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permitsync/permitsync/internal/jurisdiction"
	"github.com/permitsync/permitsync/internal/models"
	"github.com/permitsync/permitsync/internal/services/portal"
	"github.com/permitsync/permitsync/internal/services/queue"
)

type fakeStore struct {
	cases       map[uuid.UUID]*models.PermitCase
	inspections map[uuid.UUID][]models.Inspection
	events      []models.Event
}

func newFakeStore(c *models.PermitCase) *fakeStore {
	return &fakeStore{
		cases:       map[uuid.UUID]*models.PermitCase{c.ID: c},
		inspections: map[uuid.UUID][]models.Inspection{},
	}
}

func (f *fakeStore) GetPermitCase(_ context.Context, id uuid.UUID) (*models.PermitCase, error) {
	c, ok := f.cases[id]
	if !ok {
		return nil, errors.New("case not found")
	}
	copied := *c
	return &copied, nil
}

func (f *fakeStore) GetCasesByStatus(_ context.Context, status models.CaseStatus) ([]models.PermitCase, error) {
	var out []models.PermitCase
	for _, c := range f.cases {
		if c.Status == status {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateCaseWithEvent(_ context.Context, id uuid.UUID, patch models.CasePatch, event models.Event) (*models.PermitCase, error) {
	c := f.cases[id]
	if patch.Status != nil {
		c.Status = *patch.Status
	}
	if patch.PortalCaseID != nil {
		c.PortalCaseID = patch.PortalCaseID
	}
	f.events = append(f.events, event)
	copied := *c
	return &copied, nil
}

func (f *fakeStore) CreateInspection(_ context.Context, inspection *models.Inspection) error {
	f.inspections[inspection.CaseID] = append(f.inspections[inspection.CaseID], *inspection)
	return nil
}

func (f *fakeStore) GetInspectionsByCase(_ context.Context, caseID uuid.UUID) ([]models.Inspection, error) {
	return f.inspections[caseID], nil
}

type fakeLoader struct {
	pack *jurisdiction.Pack
}

func (f *fakeLoader) Load(_ context.Context, _ jurisdiction.Key) (*jurisdiction.Pack, error) {
	return f.pack, nil
}

type fakeNotifier struct {
	statusUpdates       []string
	inspectionReminders []string
}

func (f *fakeNotifier) SendStatusUpdate(_ context.Context, _, _, status string) error {
	f.statusUpdates = append(f.statusUpdates, status)
	return nil
}

func (f *fakeNotifier) SendInspectionReminder(_ context.Context, _, _, inspectionType, _ string) error {
	f.inspectionReminders = append(f.inspectionReminders, inspectionType)
	return nil
}

func deckPack() *jurisdiction.Pack {
	return &jurisdiction.Pack{
		Key:    "us/md/gaithersburg",
		Portal: jurisdiction.PortalInfo{Kind: jurisdiction.PortalAccelaLike},
		PermitTypes: map[string]jurisdiction.PermitTypeDef{
			"deck_construction": {
				Forms:       []string{"building_permit_application"},
				Attachments: []string{"plans"},
			},
		},
		Inspections: []jurisdiction.InspectionRule{
			{Type: "framing"},
			{Type: "final", Prerequisites: []string{"framing"}},
		},
	}
}

func packagedCase() *models.PermitCase {
	uri := "s3://bucket/plans.pdf"
	return &models.PermitCase{
		ID:         uuid.New(),
		OrgID:      uuid.New(),
		AHJKey:     "us/md/gaithersburg",
		PermitType: "deck_construction",
		Status:     models.StatusPackaged,
		Forms: map[string]models.FormEntry{
			"building_permit_application": {Filled: true, Required: true},
		},
		Attachments: map[string]models.AttachmentEntry{
			"plans": {Uploaded: true, Required: true, URI: &uri},
		},
	}
}

func newTestWorkflow(t *testing.T, store *fakeStore) (*Workflow, *fakeNotifier, *queue.Queue) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := portal.NewRegistry()
	registry.Register(portal.NewMockDriver("accela_mock", "ACC"))
	registry.SetDefault(jurisdiction.PortalAccelaLike, "accela_mock")

	q := queue.New(1, logger)
	notifier := &fakeNotifier{}
	w := New(store, &fakeLoader{pack: deckPack()}, registry, q, notifier, logger)
	w.RegisterHandlers()
	return w, notifier, q
}

func payload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestHandleSubmit(t *testing.T) {
	t.Run("should file the case and record the portal ID", func(t *testing.T) {
		pc := packagedCase()
		store := newFakeStore(pc)
		w, notifier, _ := newTestWorkflow(t, store)

		err := w.handleSubmit(context.Background(),
			payload(t, SubmitPayload{CaseID: pc.ID, Actor: "alex@contractor.test"}))
		require.NoError(t, err)

		assert.Equal(t, models.StatusSubmitted, store.cases[pc.ID].Status)
		require.NotNil(t, store.cases[pc.ID].PortalCaseID)
		assert.Contains(t, *store.cases[pc.ID].PortalCaseID, "ACC-")
		require.Len(t, store.events, 1)
		assert.Equal(t, "PERMIT_SUBMITTED", store.events[0].Action)
		assert.Contains(t, notifier.statusUpdates, "submitted")
	})

	t.Run("should be a no-op when already submitted", func(t *testing.T) {
		pc := packagedCase()
		portalID := "ACC-existing"
		pc.PortalCaseID = &portalID
		store := newFakeStore(pc)
		w, _, _ := newTestWorkflow(t, store)

		err := w.handleSubmit(context.Background(),
			payload(t, SubmitPayload{CaseID: pc.ID, Actor: "alex@contractor.test"}))
		require.NoError(t, err)
		assert.Empty(t, store.events, "retry after partial failure does not double-file")
	})

	t.Run("should refuse an unpackaged case", func(t *testing.T) {
		pc := packagedCase()
		pc.Status = models.StatusDraft
		store := newFakeStore(pc)
		w, _, _ := newTestWorkflow(t, store)

		err := w.handleSubmit(context.Background(),
			payload(t, SubmitPayload{CaseID: pc.ID, Actor: "alex@contractor.test"}))
		assert.ErrorIs(t, err, ErrNotPackaged)
	})

	t.Run("should refuse a case missing required items", func(t *testing.T) {
		pc := packagedCase()
		pc.Attachments["plans"] = models.AttachmentEntry{Required: true}
		store := newFakeStore(pc)
		w, _, _ := newTestWorkflow(t, store)

		err := w.handleSubmit(context.Background(),
			payload(t, SubmitPayload{CaseID: pc.ID, Actor: "alex@contractor.test"}))
		require.Error(t, err)
		assert.Nil(t, store.cases[pc.ID].PortalCaseID)
	})
}

func TestHandlePoll(t *testing.T) {
	submitTestCase := func(t *testing.T) (*fakeStore, *Workflow, uuid.UUID) {
		pc := packagedCase()
		store := newFakeStore(pc)
		w, _, _ := newTestWorkflow(t, store)
		require.NoError(t, w.handleSubmit(context.Background(),
			payload(t, SubmitPayload{CaseID: pc.ID, Actor: "system"})))
		return store, w, pc.ID
	}

	t.Run("should advance status as the portal progresses", func(t *testing.T) {
		store, w, caseID := submitTestCase(t)

		// First poll returns "submitted", which matches the current status.
		require.NoError(t, w.handlePoll(context.Background(),
			payload(t, PollPayload{CaseID: caseID, Actor: "system"})))
		assert.Equal(t, models.StatusSubmitted, store.cases[caseID].Status)

		require.NoError(t, w.handlePoll(context.Background(),
			payload(t, PollPayload{CaseID: caseID, Actor: "system"})))
		assert.Equal(t, models.StatusPending, store.cases[caseID].Status)

		require.NoError(t, w.handlePoll(context.Background(),
			payload(t, PollPayload{CaseID: caseID, Actor: "system"})))
		assert.Equal(t, models.StatusApproved, store.cases[caseID].Status)
	})

	t.Run("should fail for unsubmitted cases", func(t *testing.T) {
		pc := packagedCase()
		store := newFakeStore(pc)
		w, _, _ := newTestWorkflow(t, store)

		err := w.handlePoll(context.Background(),
			payload(t, PollPayload{CaseID: pc.ID, Actor: "system"}))
		assert.ErrorIs(t, err, ErrNotSubmitted)
	})
}

func TestHandleInspection(t *testing.T) {
	submittedFixture := func(t *testing.T) (*fakeStore, *Workflow, *models.PermitCase) {
		pc := packagedCase()
		store := newFakeStore(pc)
		w, _, _ := newTestWorkflow(t, store)
		require.NoError(t, w.handleSubmit(context.Background(),
			payload(t, SubmitPayload{CaseID: pc.ID, Actor: "system"})))
		return store, w, pc
	}

	t.Run("should schedule an inspection", func(t *testing.T) {
		store, w, pc := submittedFixture(t)

		err := w.handleInspection(context.Background(),
			payload(t, InspectionPayload{CaseID: pc.ID, Type: "framing", Actor: "alex@contractor.test"}))
		require.NoError(t, err)

		inspections := store.inspections[pc.ID]
		require.Len(t, inspections, 1)
		assert.Equal(t, "framing", inspections[0].Type)
		require.NotNil(t, inspections[0].ScheduledFor)
		assert.True(t, inspections[0].ScheduledFor.After(time.Now()))
	})

	t.Run("should enforce prerequisites", func(t *testing.T) {
		store, w, pc := submittedFixture(t)

		err := w.handleInspection(context.Background(),
			payload(t, InspectionPayload{CaseID: pc.ID, Type: "final", Actor: "system"}))
		assert.ErrorIs(t, err, ErrPrerequisites, "final needs a passing framing first")

		pass := "pass"
		store.inspections[pc.ID] = []models.Inspection{
			{CaseID: pc.ID, Type: "framing", Result: &pass},
		}
		err = w.handleInspection(context.Background(),
			payload(t, InspectionPayload{CaseID: pc.ID, Type: "final", Actor: "system"}))
		assert.NoError(t, err)
	})

	t.Run("should reject unknown inspection types", func(t *testing.T) {
		_, w, pc := submittedFixture(t)

		err := w.handleInspection(context.Background(),
			payload(t, InspectionPayload{CaseID: pc.ID, Type: "plumbing_rough", Actor: "system"}))
		assert.ErrorIs(t, err, ErrUnknownInspection)
	})
}

func TestQueueIntegration(t *testing.T) {
	t.Run("submit job chains a status poll", func(t *testing.T) {
		pc := packagedCase()
		store := newFakeStore(pc)
		w, _, q := newTestWorkflow(t, store)
		q.Start(context.Background())
		defer q.Stop()

		job, err := w.EnqueueSubmit(pc.ID, "alex@contractor.test")
		require.NoError(t, err)

		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if done, ok := q.Get(job.ID); ok && done.Status == queue.StatusSucceeded {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}

		done, ok := q.Get(job.ID)
		require.True(t, ok)
		assert.Equal(t, queue.StatusSucceeded, done.Status)
		assert.Equal(t, models.StatusSubmitted, store.cases[pc.ID].Status)
	})
}

func TestPollActiveCases(t *testing.T) {
	t.Run("should enqueue polls only for cases awaiting a decision", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))

		submitted := packagedCase()
		submitted.Status = models.StatusSubmitted
		approved := packagedCase()
		approved.Status = models.StatusApproved
		draft := packagedCase()
		draft.Status = models.StatusDraft

		store := newFakeStore(submitted)
		store.cases[approved.ID] = approved
		store.cases[draft.ID] = draft

		var polled atomic.Int32
		q := queue.New(1, logger)
		q.Register(queue.JobPollStatus, func(_ context.Context, _ json.RawMessage) error {
			polled.Add(1)
			return nil
		})

		w := New(store, &fakeLoader{pack: deckPack()}, portal.NewRegistry(), q, &fakeNotifier{}, logger)
		w.PollActiveCases(context.Background())

		q.Start(context.Background())
		defer q.Stop()

		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) && polled.Load() < 1 {
			time.Sleep(5 * time.Millisecond)
		}
		assert.Equal(t, int32(1), polled.Load(), "approved and draft cases are not polled")
	})
}
