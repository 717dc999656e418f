// Package reconcile provides the Line-Item Reconciliation Engine.
// It pairs a required collection of line items with a proposed one and
// classifies every pairing as a match, discrepancy, missing or extra item.
package reconcile

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"bid-review/decision/lineitem"
	"bid-review/pkg/fuzzy"
	"bid-review/pkg/score"
)

// Multiplicity decides which proposed item stands for a key shared by several.
type Multiplicity string

const (
	KeepFirst Multiplicity = "keep_first"
	KeepLast  Multiplicity = "keep_last"
	KeepAll   Multiplicity = "keep_all"
)

// ExtraScan selects how proposed items are classified as extra.
type ExtraScan string

const (
	// ExtraScanLiteral reports a proposed item as extra when it was not paired
	// by exact key and no required key is similar enough to it.
	ExtraScanLiteral ExtraScan = "literal"
	// ExtraScanConsumed reports a proposed item as extra when it was neither
	// paired by exact key nor chosen as a fuzzy partner.
	ExtraScanConsumed ExtraScan = "consumed"
)

// Config holds the engine thresholds and policies.
type Config struct {
	VarianceTolerance float64      `toml:"variance_tolerance" json:"variance_tolerance" validate:"gte=0"`
	FuzzyThreshold    float64      `toml:"fuzzy_threshold" json:"fuzzy_threshold" validate:"gte=0,lte=1"`
	Multiplicity      Multiplicity `toml:"multiplicity" json:"multiplicity" validate:"omitempty,oneof=keep_first keep_last keep_all"`
	ExtraScan         ExtraScan    `toml:"extra_scan" json:"extra_scan" validate:"omitempty,oneof=literal consumed"`
	// Workers > 1 runs the per-item scan concurrently.
	Workers int `toml:"workers" json:"workers" validate:"gte=0"`
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() *Config {
	return &Config{
		VarianceTolerance: 0.05,
		FuzzyThreshold:    fuzzy.DefaultThreshold,
		Multiplicity:      KeepLast,
		ExtraScan:         ExtraScanLiteral,
		Workers:           1,
	}
}

// Engine reconciles line-item collections. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine creates a new reconciliation engine
func NewEngine(cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if c.Multiplicity == "" {
		c.Multiplicity = KeepLast
	}
	if c.ExtraScan == "" {
		c.ExtraScan = ExtraScanLiteral
	}
	return &Engine{cfg: c}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Match is a required item found in the proposal within tolerance.
type Match struct {
	Description   string          `json:"description"`
	RequiredQty   decimal.Decimal `json:"required_qty"`
	ProposedQty   decimal.Decimal `json:"proposed_qty"`
	Unit          string          `json:"unit"`
	VariancePct   float64         `json:"variance_pct"`
	RequiredIndex int             `json:"required_index"`
	ProposedIndex int             `json:"proposed_index"`
}

// Discrepancy is a required item paired with a proposed item whose quantity is
// out of tolerance, or which was only paired by description similarity.
type Discrepancy struct {
	Description   string          `json:"description"`
	RequiredQty   decimal.Decimal `json:"required_qty"`
	ProposedQty   decimal.Decimal `json:"proposed_qty"`
	Unit          string          `json:"unit"`
	VariancePct   float64         `json:"variance_pct"`
	Difference    decimal.Decimal `json:"difference"`
	Note          string          `json:"note,omitempty"`
	Fuzzy         bool            `json:"fuzzy"`
	Similarity    float64         `json:"similarity,omitempty"`
	Counterpart   string          `json:"counterpart"`
	RequiredIndex int             `json:"required_index"`
	ProposedIndex int             `json:"proposed_index"`
}

// Missing is a required item with no counterpart in the proposal.
type Missing struct {
	Item          lineitem.LineItem `json:"item"`
	RequiredIndex int               `json:"required_index"`
}

// Extra is a proposed item with no counterpart in the requirements.
type Extra struct {
	Item          lineitem.LineItem `json:"item"`
	ProposedIndex int               `json:"proposed_index"`
}

// Report is the classified outcome of one reconciliation.
type Report struct {
	Matches       []Match       `json:"matches"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	Missing       []Missing     `json:"missing"`
	Extra         []Extra       `json:"extra"`
	// Duplicates holds proposed items set aside by KeepFirst or KeepLast.
	Duplicates []lineitem.LineItem `json:"duplicates,omitempty"`

	CompletenessScore float64 `json:"completeness_score"`
	AccuracyScore     float64 `json:"accuracy_score"`

	RequiredCount int `json:"required_count"`
	ProposedCount int `json:"proposed_count"`
}

// MissingItems returns the line items of the missing entries.
func (r *Report) MissingItems() []lineitem.LineItem {
	items := make([]lineitem.LineItem, len(r.Missing))
	for i, m := range r.Missing {
		items[i] = m.Item
	}
	return items
}

// ExtraItems returns the line items of the extra entries.
func (r *Report) ExtraItems() []lineitem.LineItem {
	items := make([]lineitem.LineItem, len(r.Extra))
	for i, x := range r.Extra {
		items[i] = x.Item
	}
	return items
}

// Reconcile compares proposed against required using the configured tolerance.
func (e *Engine) Reconcile(required, proposed []lineitem.LineItem) *Report {
	return e.ReconcileWithTolerance(required, proposed, e.cfg.VarianceTolerance)
}

// ReconcileWithTolerance compares proposed against required with an explicit
// variance tolerance (0.05 = 5%).
func (e *Engine) ReconcileWithTolerance(required, proposed []lineitem.LineItem, tolerance float64) *Report {
	lookup := e.buildLookup(proposed)

	outcomes := make([]outcome, len(required))
	keys := make([]string, len(required))
	for i, req := range required {
		keys[i] = req.Key()
	}

	if e.cfg.Workers > 1 && len(required) > 1 {
		var g errgroup.Group
		g.SetLimit(e.cfg.Workers)
		for i := range required {
			g.Go(func() error {
				outcomes[i] = e.classify(i, required[i], keys[i], lookup, tolerance)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range required {
			outcomes[i] = e.classify(i, required[i], keys[i], lookup, tolerance)
		}
	}

	report := &Report{
		Matches:       make([]Match, 0),
		Discrepancies: make([]Discrepancy, 0),
		Missing:       make([]Missing, 0),
		Extra:         make([]Extra, 0),
		Duplicates:    lookup.duplicates,
		RequiredCount: len(required),
		ProposedCount: len(proposed),
	}

	exactConsumed := make([]bool, len(lookup.groups))
	fuzzyConsumed := make([]bool, len(lookup.groups))
	for _, o := range outcomes {
		switch o.kind {
		case kindMatch:
			report.Matches = append(report.Matches, o.match)
			exactConsumed[o.group] = true
		case kindDiscrepancy:
			report.Discrepancies = append(report.Discrepancies, o.discrepancy)
			if o.discrepancy.Fuzzy {
				fuzzyConsumed[o.group] = true
			} else {
				exactConsumed[o.group] = true
			}
		case kindMissing:
			report.Missing = append(report.Missing, o.missing)
		}
	}

	requiredKeys := uniqueKeys(keys)
	for gi, g := range lookup.groups {
		if exactConsumed[gi] {
			continue
		}
		switch e.cfg.ExtraScan {
		case ExtraScanConsumed:
			if fuzzyConsumed[gi] {
				continue
			}
		default:
			if fuzzy.AnyAbove(g.key, requiredKeys, e.cfg.FuzzyThreshold) {
				continue
			}
		}
		report.Extra = append(report.Extra, Extra{Item: g.item, ProposedIndex: g.index})
	}

	accounted := len(report.Matches) + len(report.Discrepancies)
	report.CompletenessScore = score.Percent(accounted, len(required))
	report.AccuracyScore = score.Percent(len(report.Matches), accounted)

	return report
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

type outcomeKind int

const (
	kindMissing outcomeKind = iota
	kindMatch
	kindDiscrepancy
)

type outcome struct {
	kind        outcomeKind
	group       int
	match       Match
	discrepancy Discrepancy
	missing     Missing
}

func (e *Engine) classify(idx int, req lineitem.LineItem, key string, lookup *proposedLookup, tolerance float64) outcome {
	if gi, ok := lookup.byKey[key]; ok {
		g := lookup.groups[gi]
		reqQty, propQty := req.Quantity, g.item.Quantity
		pct := score.SignedPercent(propQty, reqQty)

		if score.Ratio(propQty, reqQty) <= tolerance {
			return outcome{kind: kindMatch, group: gi, match: Match{
				Description:   req.Description,
				RequiredQty:   reqQty,
				ProposedQty:   propQty,
				Unit:          req.Unit,
				VariancePct:   pct,
				RequiredIndex: idx,
				ProposedIndex: g.index,
			}}
		}
		return outcome{kind: kindDiscrepancy, group: gi, discrepancy: Discrepancy{
			Description:   req.Description,
			RequiredQty:   reqQty,
			ProposedQty:   propQty,
			Unit:          req.Unit,
			VariancePct:   pct,
			Difference:    propQty.Sub(reqQty).Round(2),
			Counterpart:   g.item.Description,
			RequiredIndex: idx,
			ProposedIndex: g.index,
		}}
	}

	gi, similarity := fuzzy.Best(key, lookup.keys, e.cfg.FuzzyThreshold)
	if gi < 0 {
		return outcome{kind: kindMissing, missing: Missing{Item: req, RequiredIndex: idx}}
	}

	g := lookup.groups[gi]
	return outcome{kind: kindDiscrepancy, group: gi, discrepancy: Discrepancy{
		Description:   req.Description,
		RequiredQty:   req.Quantity,
		ProposedQty:   g.item.Quantity,
		Unit:          req.Unit,
		VariancePct:   score.SignedPercent(g.item.Quantity, req.Quantity),
		Difference:    g.item.Quantity.Sub(req.Quantity).Round(2),
		Note:          fmt.Sprintf("Fuzzy match: %s", g.item.Description),
		Fuzzy:         true,
		Similarity:    score.Round(similarity, 3),
		Counterpart:   g.item.Description,
		RequiredIndex: idx,
		ProposedIndex: g.index,
	}}
}

// =============================================================================
// PROPOSED LOOKUP
// =============================================================================

type proposedGroup struct {
	key     string
	item    lineitem.LineItem
	index   int
	members []int
}

type proposedLookup struct {
	groups     []*proposedGroup
	keys       []string
	byKey      map[string]int
	duplicates []lineitem.LineItem
}

// buildLookup groups proposed items by normalized key in first-seen key order
// and resolves each group to one representative item.
func (e *Engine) buildLookup(proposed []lineitem.LineItem) *proposedLookup {
	l := &proposedLookup{byKey: make(map[string]int)}
	for i, item := range proposed {
		key := item.Key()
		gi, ok := l.byKey[key]
		if !ok {
			gi = len(l.groups)
			l.byKey[key] = gi
			l.keys = append(l.keys, key)
			l.groups = append(l.groups, &proposedGroup{key: key})
		}
		l.groups[gi].members = append(l.groups[gi].members, i)
	}

	for _, g := range l.groups {
		first, last := g.members[0], g.members[len(g.members)-1]
		switch e.cfg.Multiplicity {
		case KeepFirst:
			g.index, g.item = first, proposed[first]
		case KeepAll:
			g.index, g.item = first, proposed[first]
			total := decimal.Zero
			for _, m := range g.members {
				total = total.Add(proposed[m].Quantity)
			}
			g.item.Quantity = total
		default:
			g.index, g.item = last, proposed[last]
		}
		if e.cfg.Multiplicity == KeepAll {
			continue
		}
		for _, m := range g.members {
			if m != g.index {
				l.duplicates = append(l.duplicates, proposed[m])
			}
		}
	}
	return l
}

func uniqueKeys(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
