package jurisdiction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// ErrPackNotFound is returned when no configuration exists for a key.
var ErrPackNotFound = errors.New("jurisdiction pack not found")

// PackCorruptError reports configuration that exists but fails schema parsing
// or semantic checks (malformed fee tiers, missing manifest fields).
type PackCorruptError struct {
	Key Key
	Doc string
	Err error
}

func (e *PackCorruptError) Error() string {
	return fmt.Sprintf("jurisdiction pack %s: corrupt %s: %v", e.Key, e.Doc, e.Err)
}

func (e *PackCorruptError) Unwrap() error {
	return e.Err
}

// Loader assembles jurisdiction packs from per-jurisdiction directories of
// static configuration: manifest.json, permit_types.json, fees.yaml and
// inspections.yaml. Loaded packs are cached per process; concurrent loads of
// the same key are collapsed to a single disk read.
type Loader struct {
	baseDir string

	mu    sync.RWMutex
	cache map[Key]*Pack
	group singleflight.Group
}

// NewLoader creates a loader rooted at baseDir.
func NewLoader(baseDir string) *Loader {
	return &Loader{
		baseDir: baseDir,
		cache:   make(map[Key]*Pack),
	}
}

// Load returns the pack for key, reading it from disk on first use.
func (l *Loader) Load(ctx context.Context, key Key) (*Pack, error) {
	l.mu.RLock()
	pack, ok := l.cache[key]
	l.mu.RUnlock()
	if ok {
		return pack, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, err, _ := l.group.Do(key.String(), func() (interface{}, error) {
		loaded, err := l.loadFromDisk(key)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.cache[key] = loaded
		l.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Pack), nil
}

// Invalidate drops the cached pack for key so the next Load rereads disk.
func (l *Loader) Invalidate(key Key) {
	l.mu.Lock()
	delete(l.cache, key)
	l.mu.Unlock()
}

// List returns the keys of every jurisdiction directory under the base path.
func (l *Loader) List() ([]Key, error) {
	var keys []Key
	err := filepath.Walk(l.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && info.Name() == "manifest.json" {
			rel, err := filepath.Rel(l.baseDir, filepath.Dir(path))
			if err != nil {
				return err
			}
			keys = append(keys, Key(filepath.ToSlash(rel)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

type rawManifest struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Coverage Coverage   `json:"coverage"`
	Portal   PortalInfo `json:"portal"`
}

func (l *Loader) loadFromDisk(key Key) (*Pack, error) {
	dir := filepath.Join(l.baseDir, filepath.FromSlash(key.String()))

	manifestBytes, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrPackNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest for %s: %w", key, err)
	}

	var manifest rawManifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, &PackCorruptError{Key: key, Doc: "manifest.json", Err: err}
	}
	if manifest.ID == "" || manifest.Name == "" || manifest.Coverage.State == "" || manifest.Coverage.County == "" {
		return nil, &PackCorruptError{Key: key, Doc: "manifest.json", Err: errors.New("missing required manifest fields")}
	}
	if !manifest.Portal.Kind.IsValid() {
		return nil, &PackCorruptError{Key: key, Doc: "manifest.json", Err: fmt.Errorf("unknown portal kind %q", manifest.Portal.Kind)}
	}

	permitTypesBytes, err := os.ReadFile(filepath.Join(dir, "permit_types.json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &PackCorruptError{Key: key, Doc: "permit_types.json", Err: errors.New("document missing")}
	}
	if err != nil {
		return nil, fmt.Errorf("reading permit types for %s: %w", key, err)
	}
	var permitTypes map[string]PermitTypeDef
	if err := json.Unmarshal(permitTypesBytes, &permitTypes); err != nil {
		return nil, &PackCorruptError{Key: key, Doc: "permit_types.json", Err: err}
	}

	fees, err := l.loadFees(dir, key)
	if err != nil {
		return nil, err
	}

	inspections, err := l.loadInspections(dir, key)
	if err != nil {
		return nil, err
	}

	return &Pack{
		Key:         key,
		Name:        manifest.Name,
		Coverage:    manifest.Coverage,
		Portal:      manifest.Portal,
		PermitTypes: permitTypes,
		Fees:        fees,
		Inspections: inspections,
	}, nil
}

type rawFeesDoc struct {
	FeeSchedules map[string]rawFeeSchedule `yaml:"fee_schedules"`
}

type rawFeeSchedule struct {
	BaseFees       yaml.Node `yaml:"base_fees"`
	ValuationFees  []rawTier `yaml:"valuation_fees"`
	AdditionalFees yaml.Node `yaml:"additional_fees"`
}

type rawTier struct {
	Range []*float64 `yaml:"range"` // [min, max]; null max = open-ended
	Rate  float64    `yaml:"rate"`
}

// loadFees flattens the fee schedule document into tagged FeeRule variants.
// An absent fees.yaml yields an empty list: not every jurisdiction has modeled
// its fees. A present but malformed document is a load error.
func (l *Loader) loadFees(dir string, key Key) ([]FeeRule, error) {
	data, err := os.ReadFile(filepath.Join(dir, "fees.yaml"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading fee schedule for %s: %w", key, err)
	}

	var doc rawFeesDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &PackCorruptError{Key: key, Doc: "fees.yaml", Err: err}
	}

	scheduleNames := make([]string, 0, len(doc.FeeSchedules))
	for name := range doc.FeeSchedules {
		scheduleNames = append(scheduleNames, name)
	}
	sort.Strings(scheduleNames)

	var fees []FeeRule
	for _, name := range scheduleNames {
		schedule := doc.FeeSchedules[name]

		basePairs, err := decodeFeePairs(schedule.BaseFees)
		if err != nil {
			return nil, &PackCorruptError{Key: key, Doc: "fees.yaml", Err: fmt.Errorf("base_fees: %w", err)}
		}
		for _, pair := range basePairs {
			fees = append(fees, FeeRule{
				ID:         "base_" + pair.name,
				Name:       "Base Fee: " + strings.ReplaceAll(pair.name, "_", " "),
				Kind:       FeeFlat,
				Amount:     decimal.NewFromFloat(pair.amount),
				PermitType: pair.name,
			})
		}

		for i, tier := range schedule.ValuationFees {
			rule, err := tierRule(tier, i)
			if err != nil {
				return nil, &PackCorruptError{Key: key, Doc: "fees.yaml", Err: err}
			}
			fees = append(fees, rule)
		}

		additionalPairs, err := decodeFeePairs(schedule.AdditionalFees)
		if err != nil {
			return nil, &PackCorruptError{Key: key, Doc: "fees.yaml", Err: fmt.Errorf("additional_fees: %w", err)}
		}
		for _, pair := range additionalPairs {
			fees = append(fees, FeeRule{
				ID:      "additional_" + pair.name,
				Name:    "Additional Fee: " + strings.ReplaceAll(pair.name, "_", " "),
				Kind:    FeeConditional,
				Amount:  decimal.NewFromFloat(pair.amount),
				FeeType: pair.name,
			})
		}
	}

	return fees, nil
}

func tierRule(tier rawTier, index int) (FeeRule, error) {
	if len(tier.Range) != 2 || tier.Range[0] == nil {
		return FeeRule{}, fmt.Errorf("valuation tier %d: range must be [min, max]", index)
	}
	if tier.Rate < 0 || tier.Rate > 1 {
		return FeeRule{}, fmt.Errorf("valuation tier %d: rate %v outside [0,1]", index, tier.Rate)
	}

	rule := FeeRule{
		ID:      fmt.Sprintf("valuation_tier_%d", index),
		Name:    fmt.Sprintf("Valuation Fee Tier %d", index+1),
		Kind:    FeeValuation,
		TierMin: decimal.NewFromFloat(*tier.Range[0]),
		Rate:    decimal.NewFromFloat(tier.Rate),
	}
	if tier.Range[1] != nil {
		if *tier.Range[1] < *tier.Range[0] {
			return FeeRule{}, fmt.Errorf("valuation tier %d: min %v exceeds max %v", index, *tier.Range[0], *tier.Range[1])
		}
		max := decimal.NewFromFloat(*tier.Range[1])
		rule.TierMax = &max
	}
	return rule, nil
}

type feePair struct {
	name   string
	amount float64
}

// decodeFeePairs walks a YAML mapping node directly so fee enumeration keeps
// the document's declaration order, which a Go map would lose.
func decodeFeePairs(node yaml.Node) ([]feePair, error) {
	if node.Kind == 0 || node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, errors.New("expected a mapping of fee name to amount")
	}

	var pairs []feePair
	for i := 0; i+1 < len(node.Content); i += 2 {
		var pair feePair
		if err := node.Content[i].Decode(&pair.name); err != nil {
			return nil, err
		}
		if err := node.Content[i+1].Decode(&pair.amount); err != nil {
			return nil, fmt.Errorf("fee %q: %w", pair.name, err)
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

type rawInspectionsDoc struct {
	InspectionTypes []InspectionRule `yaml:"inspection_types"`
}

// loadInspections reads the inspection catalog. Like fees, absence yields an
// empty list rather than a failure.
func (l *Loader) loadInspections(dir string, key Key) ([]InspectionRule, error) {
	data, err := os.ReadFile(filepath.Join(dir, "inspections.yaml"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading inspections for %s: %w", key, err)
	}

	var doc rawInspectionsDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &PackCorruptError{Key: key, Doc: "inspections.yaml", Err: err}
	}
	return doc.InspectionTypes, nil
}
