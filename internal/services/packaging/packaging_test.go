package packaging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permitsync/permitsync/internal/jurisdiction"
	"github.com/permitsync/permitsync/internal/models"
)

type fakeStore struct {
	cases  map[uuid.UUID]*models.PermitCase
	events []models.Event
}

func (f *fakeStore) GetPermitCase(_ context.Context, id uuid.UUID) (*models.PermitCase, error) {
	c, ok := f.cases[id]
	if !ok {
		return nil, errors.New("case not found")
	}
	copied := *c
	return &copied, nil
}

func (f *fakeStore) UpdateCaseWithEvent(_ context.Context, id uuid.UUID, patch models.CasePatch, event models.Event) (*models.PermitCase, error) {
	c := f.cases[id]
	if patch.Status != nil {
		c.Status = *patch.Status
	}
	f.events = append(f.events, event)
	copied := *c
	return &copied, nil
}

type fakeLoader struct {
	pack *jurisdiction.Pack
}

func (f *fakeLoader) Load(_ context.Context, _ jurisdiction.Key) (*jurisdiction.Pack, error) {
	return f.pack, nil
}

func deckPack() *jurisdiction.Pack {
	return &jurisdiction.Pack{
		Key:    "us/md/gaithersburg",
		Portal: jurisdiction.PortalInfo{Kind: jurisdiction.PortalAccelaLike},
		PermitTypes: map[string]jurisdiction.PermitTypeDef{
			"deck_construction": {
				Label:       "Deck Construction",
				Forms:       []string{"building_permit_application"},
				Attachments: []string{"plans", "site_plan"},
			},
		},
	}
}

func readyCase() *models.PermitCase {
	uri := "s3://bucket/plans.pdf"
	estimate := int64(275)
	return &models.PermitCase{
		ID:             uuid.New(),
		OrgID:          uuid.New(),
		AHJKey:         "us/md/gaithersburg",
		PermitType:     "deck_construction",
		Status:         models.StatusPrecheckReady,
		FeeEstimateUSD: &estimate,
		Forms: map[string]models.FormEntry{
			"building_permit_application": {Filled: true, Required: true},
		},
		Attachments: map[string]models.AttachmentEntry{
			"plans":     {Uploaded: true, Required: true, URI: &uri},
			"site_plan": {Uploaded: true, Required: true, URI: &uri},
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuilderBuild(t *testing.T) {
	t.Run("should package a complete case", func(t *testing.T) {
		pc := readyCase()
		store := &fakeStore{cases: map[uuid.UUID]*models.PermitCase{pc.ID: pc}}
		builder := NewBuilder(store, &fakeLoader{pack: deckPack()}, testLogger())

		manifest, updated, err := builder.Build(context.Background(), pc.ID, "alex@contractor.test")
		require.NoError(t, err)

		assert.Equal(t, models.StatusPackaged, updated.Status)
		assert.Equal(t, jurisdiction.PortalAccelaLike, manifest.PortalKind)
		require.Len(t, manifest.Forms, 1)
		assert.True(t, manifest.Forms[0].Filled)
		require.Len(t, manifest.Attachments, 2)
		assert.Equal(t, "s3://bucket/plans.pdf", manifest.Attachments[0].URI)
		require.NotNil(t, manifest.FeeEstimateUSD)
		assert.Equal(t, int64(275), *manifest.FeeEstimateUSD)

		require.Len(t, store.events, 1)
		assert.Equal(t, "PACKAGE_BUILT", store.events[0].Action)
	})

	t.Run("should refuse a draft case", func(t *testing.T) {
		pc := readyCase()
		pc.Status = models.StatusDraft
		store := &fakeStore{cases: map[uuid.UUID]*models.PermitCase{pc.ID: pc}}
		builder := NewBuilder(store, &fakeLoader{pack: deckPack()}, testLogger())

		_, _, err := builder.Build(context.Background(), pc.ID, "alex@contractor.test")
		assert.ErrorIs(t, err, ErrNotPrechecked)
		assert.Empty(t, store.events)
	})

	t.Run("should report missing items and leave the case untouched", func(t *testing.T) {
		pc := readyCase()
		pc.Forms["building_permit_application"] = models.FormEntry{Required: true}
		pc.Attachments["site_plan"] = models.AttachmentEntry{Required: true}
		store := &fakeStore{cases: map[uuid.UUID]*models.PermitCase{pc.ID: pc}}
		builder := NewBuilder(store, &fakeLoader{pack: deckPack()}, testLogger())

		manifest, _, err := builder.Build(context.Background(), pc.ID, "alex@contractor.test")
		require.ErrorIs(t, err, ErrIncomplete)
		assert.Contains(t, err.Error(), "form:building_permit_application")
		assert.Contains(t, err.Error(), "attachment:site_plan")
		assert.NotNil(t, manifest, "partial manifest returned for display")
		assert.Equal(t, models.StatusPrecheckReady, store.cases[pc.ID].Status)
		assert.Empty(t, store.events)
	})
}

func TestBuildManifest(t *testing.T) {
	t.Run("should list missing items sorted", func(t *testing.T) {
		pc := readyCase()
		pc.Forms = map[string]models.FormEntry{}
		pc.Attachments = map[string]models.AttachmentEntry{}

		manifest, missing, err := BuildManifest(pc, deckPack())
		require.NoError(t, err)
		assert.Equal(t, []string{
			"attachment:plans",
			"attachment:site_plan",
			"form:building_permit_application",
		}, missing)
		assert.Len(t, manifest.Forms, 1)
		assert.Len(t, manifest.Attachments, 2)
	})

	t.Run("should reject unknown permit types", func(t *testing.T) {
		pc := readyCase()
		pc.PermitType = "helipad_construction"
		_, _, err := BuildManifest(pc, deckPack())
		assert.Error(t, err)
	})
}
