package training

import (
	"slices"
	"strings"
	"time"
)

// MaxIDLength bounds training, set, and item identifiers.
const MaxIDLength = 128

// ══════════════════════════════════════════════════════════════════════════════
// TRAINING
// ══════════════════════════════════════════════════════════════════════════════

// Training is the aggregate root of one generated curriculum.
type Training struct {
	// ID is the external, opaque identifier supplied by the caller.
	ID string

	// Seed drives every shuffle of the plan. Stored so the plan can be
	// regenerated bit-for-bit.
	Seed int64

	// SetIDs are the content Sets linked to the training, ascending.
	SetIDs []string

	// PoolSize is the number of distinct items the plan was built from.
	// Zero until a plan has been persisted.
	PoolSize int

	// Active is the bootstrap position. Nil until stage 1 exists.
	Active *Position

	CreatedAt time.Time
}

// Position identifies the current stage and cycle of a Training.
type Position struct {
	StageID int
	CycleID int
}

// StartPosition is where every Training's Active pointer is bootstrapped.
var StartPosition = Position{StageID: 1, CycleID: 1}

// NewTraining creates an unpersisted Training.
func NewTraining(id string, seed int64, setIDs []string, now time.Time) (*Training, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	sets := NormalizeIDs(setIDs)
	if len(sets) == 0 {
		return nil, ErrNoSets
	}
	return &Training{
		ID:        id,
		Seed:      seed,
		SetIDs:    sets,
		CreatedAt: now.UTC(),
	}, nil
}

// IsPlanned reports whether a plan has been persisted for the training.
func (t *Training) IsPlanned() bool {
	return t.PoolSize > 0
}

// PoolMatches reports whether pool still holds the items the persisted plan
// was built from. pool must be ascending; planned are the items linked from
// the stored cycles.
func (t *Training) PoolMatches(pool, planned []string) bool {
	if t.IsPlanned() && len(pool) != t.PoolSize {
		return false
	}
	for _, id := range planned {
		if _, ok := slices.BinarySearch(pool, id); !ok {
			return false
		}
	}
	return true
}

// ValidateID checks that id can be used as a training identifier.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" || len(id) > MaxIDLength {
		return ErrInvalidTrainingID
	}
	return nil
}

// NormalizeIDs trims, drops empties, deduplicates and sorts ids.
func NormalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// PLAN
// ══════════════════════════════════════════════════════════════════════════════

// Plan is the persisted shape of a Training: stages of cycles of item ids.
type Plan struct {
	Stages []Stage
}

// Stage is one full partition of the item pool. IDs are 1-based.
type Stage struct {
	ID     int
	Cycles []Cycle
}

// Cycle is one group of items within a Stage. IDs are 1-based within the stage.
type Cycle struct {
	ID      int
	ItemIDs []string
}

// StageShape summarises one stage of a plan.
type StageShape struct {
	Rate       int
	GroupSize  int
	GroupCount int
}

// PlanFromGroups numbers stages and cycles from 1 in the order given.
func PlanFromGroups(groups [][][]string) Plan {
	plan := Plan{Stages: make([]Stage, 0, len(groups))}
	for s, cycles := range groups {
		stage := Stage{ID: s + 1, Cycles: make([]Cycle, 0, len(cycles))}
		for c, items := range cycles {
			stage.Cycles = append(stage.Cycles, Cycle{ID: c + 1, ItemIDs: items})
		}
		plan.Stages = append(plan.Stages, stage)
	}
	return plan
}

// Groups returns the plan as nested item id slices.
func (p Plan) Groups() [][][]string {
	groups := make([][][]string, len(p.Stages))
	for s, stage := range p.Stages {
		groups[s] = make([][]string, len(stage.Cycles))
		for c, cycle := range stage.Cycles {
			groups[s][c] = cycle.ItemIDs
		}
	}
	return groups
}

// StageCount returns the number of stages in the plan.
func (p Plan) StageCount() int {
	return len(p.Stages)
}

// CycleCount returns the number of cycles across all stages.
func (p Plan) CycleCount() int {
	n := 0
	for _, stage := range p.Stages {
		n += len(stage.Cycles)
	}
	return n
}

// PoolSize returns the number of items in the first stage.
func (p Plan) PoolSize() int {
	if len(p.Stages) == 0 {
		return 0
	}
	n := 0
	for _, cycle := range p.Stages[0].Cycles {
		n += len(cycle.ItemIDs)
	}
	return n
}

// Shape returns the (rate, group size, group count) of every stage.
func (p Plan) Shape() []StageShape {
	count := p.PoolSize()
	shapes := make([]StageShape, len(p.Stages))
	for k, stage := range p.Stages {
		shapes[k] = StageShape{
			Rate:       CycleRate(count, k),
			GroupSize:  CycleSize(count, k),
			GroupCount: len(stage.Cycles),
		}
	}
	return shapes
}

// Truncate returns the first n stages of the plan.
func (p Plan) Truncate(n int) Plan {
	if n >= len(p.Stages) {
		return p
	}
	if n < 0 {
		n = 0
	}
	return Plan{Stages: p.Stages[:n]}
}

// AddLink appends an item to the plan while reading rows ordered by stage and
// cycle. An empty itemID adds the cycle without items.
func (p *Plan) AddLink(stageID, cycleID int, itemID string) {
	if n := len(p.Stages); n == 0 || p.Stages[n-1].ID != stageID {
		p.Stages = append(p.Stages, Stage{ID: stageID})
	}
	stage := &p.Stages[len(p.Stages)-1]
	if n := len(stage.Cycles); n == 0 || stage.Cycles[n-1].ID != cycleID {
		stage.Cycles = append(stage.Cycles, Cycle{ID: cycleID, ItemIDs: []string{}})
	}
	if itemID != "" {
		cycle := &stage.Cycles[len(stage.Cycles)-1]
		cycle.ItemIDs = append(cycle.ItemIDs, itemID)
	}
}

// Sorted returns a copy of the plan with the items of every cycle in ascending order.
func (p Plan) Sorted() Plan {
	out := Plan{Stages: make([]Stage, len(p.Stages))}
	for s, stage := range p.Stages {
		out.Stages[s] = Stage{ID: stage.ID, Cycles: make([]Cycle, len(stage.Cycles))}
		for c, cycle := range stage.Cycles {
			items := slices.Clone(cycle.ItemIDs)
			slices.Sort(items)
			out.Stages[s].Cycles[c] = Cycle{ID: cycle.ID, ItemIDs: items}
		}
	}
	return out
}
