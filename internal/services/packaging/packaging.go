// Package packaging assembles a case's submission package: the manifest of
// forms and attachments a portal submission will carry.
package packaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/permitsync/permitsync/internal/jurisdiction"
	"github.com/permitsync/permitsync/internal/models"
)

var (
	// ErrNotPrechecked is returned when packaging is attempted before a
	// successful pre-check.
	ErrNotPrechecked = errors.New("case has not passed pre-check")
	// ErrIncomplete is returned when required forms or attachments are missing.
	ErrIncomplete = errors.New("case is missing required items")
)

// Storage is the persistence surface the builder needs.
type Storage interface {
	GetPermitCase(ctx context.Context, id uuid.UUID) (*models.PermitCase, error)
	UpdateCaseWithEvent(ctx context.Context, id uuid.UUID, patch models.CasePatch, event models.Event) (*models.PermitCase, error)
}

// PackLoader resolves jurisdiction keys to loaded packs.
type PackLoader interface {
	Load(ctx context.Context, key jurisdiction.Key) (*jurisdiction.Pack, error)
}

// ManifestForm is one form line in the package manifest.
type ManifestForm struct {
	Name   string `json:"name"`
	Filled bool   `json:"filled"`
}

// ManifestAttachment is one attachment line in the package manifest.
type ManifestAttachment struct {
	Kind     string `json:"kind"`
	Uploaded bool   `json:"uploaded"`
	URI      string `json:"uri,omitempty"`
}

// Manifest describes everything a portal submission will include.
type Manifest struct {
	CaseID         uuid.UUID               `json:"case_id"`
	AHJKey         string                  `json:"ahj_key"`
	PermitType     string                  `json:"permit_type"`
	PortalKind     jurisdiction.PortalKind `json:"portal_kind"`
	Forms          []ManifestForm          `json:"forms"`
	Attachments    []ManifestAttachment    `json:"attachments"`
	FeeEstimateUSD *int64                  `json:"fee_estimate_usd,omitempty"`
	GeneratedAt    time.Time               `json:"generated_at"`
}

// Builder produces submission packages and advances the case lifecycle.
type Builder struct {
	store  Storage
	loader PackLoader
	logger *slog.Logger
}

func NewBuilder(store Storage, loader PackLoader, logger *slog.Logger) *Builder {
	return &Builder{store: store, loader: loader, logger: logger}
}

// Build assembles the manifest for caseID and, when every required item is
// present, moves the case to packaged with a PACKAGE_BUILT event. A case must
// have passed pre-check first; missing required items fail with ErrIncomplete
// and leave the case untouched.
func (b *Builder) Build(ctx context.Context, caseID uuid.UUID, actor string) (*Manifest, *models.PermitCase, error) {
	c, err := b.store.GetPermitCase(ctx, caseID)
	if err != nil {
		return nil, nil, fmt.Errorf("load case: %w", err)
	}
	if c.Status == models.StatusDraft {
		return nil, nil, ErrNotPrechecked
	}

	pack, err := b.loader.Load(ctx, jurisdiction.Key(c.AHJKey))
	if err != nil {
		return nil, nil, fmt.Errorf("load pack %s: %w", c.AHJKey, err)
	}

	manifest, missing, err := BuildManifest(c, pack)
	if err != nil {
		return nil, nil, err
	}
	if len(missing) > 0 {
		return manifest, nil, fmt.Errorf("%w: %v", ErrIncomplete, missing)
	}

	status := models.StatusPackaged
	updated, err := b.store.UpdateCaseWithEvent(ctx, caseID, models.CasePatch{
		Status: &status,
	}, models.Event{
		OrgID:  c.OrgID,
		Actor:  actor,
		Action: "PACKAGE_BUILT",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("persist package: %w", err)
	}

	b.logger.Info("package built",
		"case_id", caseID,
		"ahj", c.AHJKey,
		"forms", len(manifest.Forms),
		"attachments", len(manifest.Attachments),
	)
	return manifest, updated, nil
}

// BuildManifest assembles the package manifest for c against its pack and
// returns the sorted list of missing required items, empty when the case is
// complete.
func BuildManifest(c *models.PermitCase, pack *jurisdiction.Pack) (*Manifest, []string, error) {
	def, ok := pack.PermitTypes[c.PermitType]
	if !ok {
		return nil, nil, fmt.Errorf("permit type %q not in pack %s", c.PermitType, pack.Key)
	}

	manifest := &Manifest{
		CaseID:         c.ID,
		AHJKey:         c.AHJKey,
		PermitType:     c.PermitType,
		PortalKind:     pack.Portal.Kind,
		FeeEstimateUSD: c.FeeEstimateUSD,
		GeneratedAt:    time.Now().UTC(),
	}

	var missing []string
	for _, name := range def.Forms {
		entry := c.Forms[name]
		manifest.Forms = append(manifest.Forms, ManifestForm{Name: name, Filled: entry.Filled})
		if !entry.Filled {
			missing = append(missing, "form:"+name)
		}
	}
	for _, kind := range def.Attachments {
		entry := c.Attachments[kind]
		att := ManifestAttachment{Kind: kind, Uploaded: entry.Uploaded}
		if entry.URI != nil {
			att.URI = *entry.URI
		}
		manifest.Attachments = append(manifest.Attachments, att)
		if !entry.Uploaded {
			missing = append(missing, "attachment:"+kind)
		}
	}
	sort.Strings(missing)
	return manifest, missing, nil
}
