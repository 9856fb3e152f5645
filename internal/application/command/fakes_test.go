package command

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/alem-hub/training-planner/internal/domain/shared"
	"github.com/alem-hub/training-planner/internal/domain/training"
)

// memStore is an in-memory training.Store with failure hooks. Transactions
// are serialized and roll back by restoring a snapshot.
type memStore struct {
	mu sync.Mutex

	setItems  map[string][]string
	trainings map[string]*training.Training
	cycles    map[string]map[int]map[int][]string

	findErr      error
	listErr      error
	persistErrs  []error
	blockTx      bool
	beforeAssign func(s *memStore)

	findCalls    int
	assignCalls  int
	persistCalls int
}

func newMemStore() *memStore {
	return &memStore{
		setItems:  make(map[string][]string),
		trainings: make(map[string]*training.Training),
		cycles:    make(map[string]map[int]map[int][]string),
	}
}

func (s *memStore) addSet(setID string, n int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-item-%03d", setID, i)
	}
	s.setItems[setID] = ids
	return ids
}

func (s *memStore) FindTraining(_ context.Context, id string) (*training.Training, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.find(id)
}

func (s *memStore) find(id string) (*training.Training, error) {
	t, ok := s.trainings[id]
	if !ok {
		return nil, training.ErrTrainingNotFound
	}
	cp := *t
	cp.SetIDs = slices.Clone(t.SetIDs)
	if t.Active != nil {
		pos := *t.Active
		cp.Active = &pos
	}
	return &cp, nil
}

func (s *memStore) LoadPlan(_ context.Context, trainingID string) (*training.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trainings[trainingID]; !ok {
		return nil, training.ErrTrainingNotFound
	}
	plan := &training.Plan{}
	stages := s.cycles[trainingID]
	for _, sid := range slices.Sorted(maps.Keys(stages)) {
		stage := training.Stage{ID: sid}
		for _, cid := range slices.Sorted(maps.Keys(stages[sid])) {
			items := slices.Clone(stages[sid][cid])
			slices.Sort(items)
			stage.Cycles = append(stage.Cycles, training.Cycle{ID: cid, ItemIDs: items})
		}
		plan.Stages = append(plan.Stages, stage)
	}
	return plan, nil
}

func (s *memStore) CountItems(_ context.Context, trainingID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items(trainingID)), nil
}

func (s *memStore) Close(context.Context) error { return nil }

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, uow training.UnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blockTx {
		<-ctx.Done()
		return ctx.Err()
	}

	trainings, cycles := s.snapshot()
	if err := fn(ctx, &memUnit{s: s}); err != nil {
		s.trainings, s.cycles = trainings, cycles
		return err
	}
	return nil
}

func (s *memStore) snapshot() (map[string]*training.Training, map[string]map[int]map[int][]string) {
	trainings := make(map[string]*training.Training, len(s.trainings))
	for id := range s.trainings {
		trainings[id], _ = s.find(id)
	}
	cycles := make(map[string]map[int]map[int][]string, len(s.cycles))
	for id, stages := range s.cycles {
		cycles[id] = make(map[int]map[int][]string, len(stages))
		for sid, cs := range stages {
			cycles[id][sid] = make(map[int][]string, len(cs))
			for cid, items := range cs {
				cycles[id][sid][cid] = slices.Clone(items)
			}
		}
	}
	return trainings, cycles
}

func (s *memStore) items(trainingID string) []string {
	t, ok := s.trainings[trainingID]
	if !ok {
		return nil
	}
	var ids []string
	for _, setID := range t.SetIDs {
		ids = append(ids, s.setItems[setID]...)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func (s *memStore) planOf(trainingID string) training.Plan {
	s.mu.Lock()
	stages := s.cycles[trainingID]
	s.mu.Unlock()
	plan := training.Plan{}
	for _, sid := range slices.Sorted(maps.Keys(stages)) {
		stage := training.Stage{ID: sid}
		for _, cid := range slices.Sorted(maps.Keys(stages[sid])) {
			stage.Cycles = append(stage.Cycles, training.Cycle{ID: cid, ItemIDs: stages[sid][cid]})
		}
		plan.Stages = append(plan.Stages, stage)
	}
	return plan
}

type memUnit struct {
	s *memStore
}

func (u *memUnit) AssignSets(_ context.Context, t *training.Training, setIDs []string) (bool, error) {
	s := u.s
	s.assignCalls++
	if s.beforeAssign != nil {
		s.beforeAssign(s)
	}
	if _, ok := s.trainings[t.ID]; ok {
		stored, _ := s.find(t.ID)
		*t = *stored
		return false, nil
	}

	var linked []string
	for _, id := range setIDs {
		if _, ok := s.setItems[id]; ok {
			linked = append(linked, id)
		}
	}
	stored := *t
	stored.SetIDs = linked
	s.trainings[t.ID] = &stored
	t.SetIDs = slices.Clone(linked)
	return true, nil
}

func (u *memUnit) FindTraining(_ context.Context, id string) (*training.Training, error) {
	return u.s.find(id)
}

func (u *memUnit) CountItems(_ context.Context, trainingID string) (int, error) {
	return len(u.s.items(trainingID)), nil
}

func (u *memUnit) ListItemIDs(_ context.Context, trainingID string) ([]string, error) {
	if u.s.listErr != nil {
		return nil, u.s.listErr
	}
	return u.s.items(trainingID), nil
}

func (u *memUnit) PlannedItemIDs(_ context.Context, trainingID string) ([]string, error) {
	var ids []string
	for _, cs := range u.s.cycles[trainingID] {
		for _, items := range cs {
			ids = append(ids, items...)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

func (u *memUnit) PersistPlan(_ context.Context, trainingID string, plan training.Plan) ([]int, error) {
	s := u.s
	s.persistCalls++
	if len(s.persistErrs) > 0 {
		err := s.persistErrs[0]
		s.persistErrs = s.persistErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	t := s.trainings[trainingID]
	t.PoolSize = plan.PoolSize()
	known := make(map[string]bool)
	for _, id := range s.items(trainingID) {
		known[id] = true
	}

	stages, ok := s.cycles[trainingID]
	if !ok {
		stages = make(map[int]map[int][]string)
		s.cycles[trainingID] = stages
	}

	var created []int
	for _, stage := range plan.Stages {
		cs, exists := stages[stage.ID]
		if !exists {
			cs = make(map[int][]string)
			stages[stage.ID] = cs
			created = append(created, stage.ID)
			if stage.ID == 1 && t.Active == nil {
				t.Active = &training.Position{StageID: 1}
			}
		}
		for _, cycle := range stage.Cycles {
			if _, ok := cs[cycle.ID]; !ok {
				cs[cycle.ID] = nil
				if stage.ID == 1 && cycle.ID == 1 && t.Active != nil && t.Active.CycleID == 0 {
					t.Active.CycleID = 1
				}
			}
			for _, item := range cycle.ItemIDs {
				if known[item] && !slices.Contains(cs[cycle.ID], item) {
					cs[cycle.ID] = append(cs[cycle.ID], item)
				}
			}
		}
	}
	return created, nil
}

// fakeLocker fails the first n acquisitions with a conflict and runs onHeld each time.
type fakeLocker struct {
	mu       sync.Mutex
	failures int
	onHeld   func()
	acquired int
	released int
}

func (l *fakeLocker) Acquire(context.Context, string, time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failures > 0 {
		l.failures--
		if l.onHeld != nil {
			l.onHeld()
		}
		return nil, shared.NewDomainError("redis", "Lock", shared.ErrPersistenceConflict, "lock is held")
	}
	l.acquired++
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.released++
		return nil
	}, nil
}

type fakeReporter struct {
	mu     sync.Mutex
	builds []training.DegradedBuild
}

func (r *fakeReporter) ReportDegraded(_ context.Context, b training.DegradedBuild) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builds = append(r.builds, b)
	return nil
}
