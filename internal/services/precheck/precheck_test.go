package precheck

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permitsync/permitsync/internal/jurisdiction"
	"github.com/permitsync/permitsync/internal/models"
	"github.com/permitsync/permitsync/internal/repository"
)

type fakeStore struct {
	cases      map[uuid.UUID]*models.PermitCase
	projects   map[uuid.UUID]*models.Project
	events     []models.Event
	failUpdate bool
}

func (f *fakeStore) GetPermitCase(_ context.Context, id uuid.UUID) (*models.PermitCase, error) {
	c, ok := f.cases[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *fakeStore) GetProject(_ context.Context, id uuid.UUID) (*models.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (f *fakeStore) UpdateCaseWithEvent(_ context.Context, id uuid.UUID, patch models.CasePatch, event models.Event) (*models.PermitCase, error) {
	if f.failUpdate {
		return nil, errors.New("database unavailable")
	}
	c := f.cases[id]
	if patch.Status != nil {
		c.Status = *patch.Status
	}
	if patch.FeeEstimateUSD != nil {
		c.FeeEstimateUSD = patch.FeeEstimateUSD
	}
	f.events = append(f.events, event)
	copied := *c
	return &copied, nil
}

type fakeLoader struct {
	pack *jurisdiction.Pack
	err  error
}

func (f *fakeLoader) Load(_ context.Context, _ jurisdiction.Key) (*jurisdiction.Pack, error) {
	return f.pack, f.err
}

func floatPtr(f float64) *float64 { return &f }

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func kitchenPack() *jurisdiction.Pack {
	return &jurisdiction.Pack{
		Key:  "us/md/gaithersburg",
		Name: "City of Gaithersburg, MD",
		PermitTypes: map[string]jurisdiction.PermitTypeDef{
			"residential_kitchen_remodel": {
				Label:       "Residential Kitchen Remodel",
				Attachments: []string{"plans"},
				Fields: map[string]jurisdiction.FieldRule{
					"valuation_usd": {Required: true, Min: floatPtr(500)},
				},
			},
		},
		Fees: []jurisdiction.FeeRule{
			{
				ID: "base_residential_kitchen_remodel", Kind: jurisdiction.FeeFlat,
				Amount: decimal.NewFromInt(125), PermitType: "residential_kitchen_remodel",
			},
			{
				ID: "valuation_tier_0", Kind: jurisdiction.FeeValuation,
				TierMin: decimal.Zero, TierMax: decPtr(10000),
				Rate: decimal.RequireFromString("0.015"),
			},
			{
				ID: "additional_plan_review", Kind: jurisdiction.FeeConditional,
				Amount: decimal.NewFromInt(75), FeeType: "plan_review",
			},
			{
				ID: "additional_inspection_fee", Kind: jurisdiction.FeeConditional,
				Amount: decimal.NewFromInt(50), FeeType: "inspection_fee",
			},
		},
	}
}

func testFixture(valuation int64, plansUploaded bool) (*fakeStore, uuid.UUID) {
	caseID := uuid.New()
	projectID := uuid.New()
	orgID := uuid.New()

	uri := "s3://bucket/plans.pdf"
	attachment := models.AttachmentEntry{Required: true}
	if plansUploaded {
		attachment.Uploaded = true
		attachment.URI = &uri
	}

	store := &fakeStore{
		cases: map[uuid.UUID]*models.PermitCase{
			caseID: {
				ID:         caseID,
				OrgID:      orgID,
				ProjectID:  projectID,
				AHJKey:     "us/md/gaithersburg",
				PermitType: "residential_kitchen_remodel",
				Status:     models.StatusDraft,
				Attachments: map[string]models.AttachmentEntry{
					"plans": attachment,
				},
			},
		},
		projects: map[uuid.UUID]*models.Project{
			projectID: {ID: projectID, OrgID: orgID, ValuationUSD: &valuation},
		},
	}
	return store, caseID
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOrchestratorRun(t *testing.T) {
	t.Run("should advance a ready case and store the estimate", func(t *testing.T) {
		store, caseID := testFixture(5000, true)
		orch := NewOrchestrator(store, &fakeLoader{pack: kitchenPack()}, testLogger())

		result, err := orch.Run(context.Background(), caseID, "alex@contractor.test")
		require.NoError(t, err)

		assert.True(t, result.Validation.IsValid)
		assert.True(t, result.Fees.TotalFee.Equal(decimal.NewFromInt(325)))
		assert.Equal(t, models.StatusPrecheckReady, result.Case.Status)
		require.NotNil(t, result.Case.FeeEstimateUSD)
		assert.Equal(t, int64(325), *result.Case.FeeEstimateUSD)

		require.Len(t, store.events, 1)
		assert.Equal(t, "PRECHECK_COMPLETED", store.events[0].Action)
		assert.Equal(t, "alex@contractor.test", store.events[0].Actor)
	})

	t.Run("should surface failures in the checklist without blocking", func(t *testing.T) {
		store, caseID := testFixture(25000, false)
		orch := NewOrchestrator(store, &fakeLoader{pack: kitchenPack()}, testLogger())

		result, err := orch.Run(context.Background(), caseID, "alex@contractor.test")
		require.NoError(t, err, "an incomplete case still gets its report")

		assert.False(t, result.Validation.IsValid)
		var failed, warned int
		for _, item := range result.Checklist {
			switch item.Status {
			case StatusFailed:
				failed++
			case StatusWarning:
				warned++
			}
		}
		assert.Equal(t, 1, failed, "plans attachment missing")
		assert.Equal(t, 1, warned, "energy code advisory above 10000")

		assert.Equal(t, models.StatusPrecheckReady, store.cases[caseID].Status,
			"case still advances; readiness is reported, not enforced")
	})

	t.Run("should validate clean when every field is answered", func(t *testing.T) {
		store, caseID := testFixture(5000, true)
		store.cases[caseID].Forms = map[string]models.FormEntry{
			"building_permit_application": {
				Filled:   true,
				Required: true,
				Fields: map[string]any{
					"contractor_license":    "MHIC-12345",
					"scope_description":     "Full kitchen remodel with new circuits and plumbing",
					"water_heater_replaced": "no",
				},
			},
		}
		pack := kitchenPack()
		def := pack.PermitTypes["residential_kitchen_remodel"]
		def.Fields = map[string]jurisdiction.FieldRule{
			"valuation_usd":         {Required: true, Min: floatPtr(500)},
			"contractor_license":    {Required: true, Pattern: `^MHIC-[0-9]{5,6}$`},
			"scope_description":     {Required: true, Min: floatPtr(20), Max: floatPtr(2000)},
			"water_heater_replaced": {Options: []string{"yes", "no"}},
		}
		pack.PermitTypes["residential_kitchen_remodel"] = def
		orch := NewOrchestrator(store, &fakeLoader{pack: pack}, testLogger())

		result, err := orch.Run(context.Background(), caseID, "alex@contractor.test")
		require.NoError(t, err)

		assert.True(t, result.Validation.IsValid)
		assert.Empty(t, result.Validation.Errors)
		for _, item := range result.Checklist {
			assert.NotEqual(t, StatusFailed, item.Status, item.Item)
		}
	})

	t.Run("should project trade tags into the form data", func(t *testing.T) {
		store, caseID := testFixture(5000, true)
		project := store.projects[store.cases[caseID].ProjectID]
		project.TradeTags = []string{"electrical", "plumbing"}

		form := buildForm(project, store.cases[caseID])
		tags, ok := form.Field("trade_tags").AsString()
		require.True(t, ok)
		assert.Equal(t, "electrical,plumbing", tags)
	})

	t.Run("should be idempotent for an unchanged case", func(t *testing.T) {
		store, caseID := testFixture(5000, true)
		orch := NewOrchestrator(store, &fakeLoader{pack: kitchenPack()}, testLogger())

		first, err := orch.Run(context.Background(), caseID, "alex@contractor.test")
		require.NoError(t, err)
		second, err := orch.Run(context.Background(), caseID, "alex@contractor.test")
		require.NoError(t, err)

		assert.Equal(t, *first.Case.FeeEstimateUSD, *second.Case.FeeEstimateUSD)
		assert.Equal(t, first.Checklist, second.Checklist)
		assert.Len(t, store.events, 2, "each run appends its own audit event")
	})

	t.Run("should report a missing case as not found", func(t *testing.T) {
		store, _ := testFixture(5000, true)
		orch := NewOrchestrator(store, &fakeLoader{pack: kitchenPack()}, testLogger())

		_, err := orch.Run(context.Background(), uuid.New(), "alex@contractor.test")
		assert.ErrorIs(t, err, repository.ErrNotFound)
		assert.Empty(t, store.events)
	})

	t.Run("should reject a permit type the pack does not offer", func(t *testing.T) {
		store, caseID := testFixture(5000, true)
		store.cases[caseID].PermitType = "helipad_construction"
		orch := NewOrchestrator(store, &fakeLoader{pack: kitchenPack()}, testLogger())

		_, err := orch.Run(context.Background(), caseID, "alex@contractor.test")
		assert.ErrorIs(t, err, ErrInvalidPermitType)
		assert.Equal(t, models.StatusDraft, store.cases[caseID].Status, "case left untouched")
		assert.Empty(t, store.events)
	})

	t.Run("should propagate pack load failures", func(t *testing.T) {
		store, caseID := testFixture(5000, true)
		orch := NewOrchestrator(store, &fakeLoader{err: jurisdiction.ErrPackNotFound}, testLogger())

		_, err := orch.Run(context.Background(), caseID, "alex@contractor.test")
		assert.ErrorIs(t, err, jurisdiction.ErrPackNotFound)
		assert.Equal(t, models.StatusDraft, store.cases[caseID].Status)
	})

	t.Run("should leave the case untouched when persistence fails", func(t *testing.T) {
		store, caseID := testFixture(5000, true)
		store.failUpdate = true
		orch := NewOrchestrator(store, &fakeLoader{pack: kitchenPack()}, testLogger())

		_, err := orch.Run(context.Background(), caseID, "alex@contractor.test")
		require.Error(t, err)
		assert.Equal(t, models.StatusDraft, store.cases[caseID].Status)
		assert.Nil(t, store.cases[caseID].FeeEstimateUSD)
	})
}
