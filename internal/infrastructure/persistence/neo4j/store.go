package neo4j

import (
	"context"
	"slices"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/alem-hub/training-planner/internal/domain/training"
)

// Store implements training.Store and training.ContentWriter on Neo4j.
type Store struct {
	conn *Connection
}

// NewStore creates a new Store.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

// runner is satisfied by managed and explicit transactions.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (neo4j.ResultWithContext, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// CYPHER
// ══════════════════════════════════════════════════════════════════════════════

const findTrainingCypher = `
	MATCH (train:Training {id: $id})
	OPTIONAL MATCH (train)-[:INCLUDES]->(s:Set)
	WITH train, collect(s.id) AS set_ids
	OPTIONAL MATCH (train)-[:TRACKS]->(:Active)-[:INCLUDES]->(stage:Stage)
	OPTIONAL MATCH (train)-[:TRACKS]->(:Active)-[:INCLUDES]->(cycle:Cycle)
	RETURN train.id AS id, train.seed AS seed, coalesce(train.pool_size, 0) AS pool_size,
	       train.created_at AS created_at, set_ids, stage.id AS stage_id, cycle.id AS cycle_id
	LIMIT 1
`

const createTrainingCypher = `
	MERGE (train:Training {id: $id})
	  ON CREATE SET train.seed = $seed, train.created_at = $createdAt, train.pool_size = 0,
	                train.created = true
	WITH train, coalesce(train.created, false) AS created
	REMOVE train.created
	RETURN created
`

const assignSetsCypher = `
	MATCH (train:Training {id: $id})
	UNWIND $setIds AS setId
	MATCH (s:Set {id: setId})
	MERGE (train)-[:INCLUDES]->(s)
	RETURN s.id AS id
	ORDER BY id
`

const countItemsCypher = `
	MATCH (:Training {id: $id})-[:INCLUDES]->(:Set)-[:INCLUDES]->(trans:Translation)
	RETURN count(DISTINCT trans) AS count
`

const listItemsCypher = `
	MATCH (:Training {id: $id})-[:INCLUDES]->(:Set)-[:INCLUDES]->(trans:Translation)
	RETURN DISTINCT trans.id AS id
	ORDER BY id
`

const plannedItemsCypher = `
	MATCH (:Training {id: $id})-[:INCLUDES]->(:Stage)-[:INCLUDES]->(:Cycle)-[:INCLUDES]->(trans:Translation)
	RETURN DISTINCT trans.id AS id
	ORDER BY id
`

// persistPlanCypher writes a whole plan in one statement. The created flag
// comes from ON CREATE SET and is removed before the statement ends, so the
// Active links are only made by the call that created stage 1 and cycle 1.
const persistPlanCypher = `
	MATCH (train:Training {id: $id})
	SET train.pool_size = $poolSize
	MERGE (train)-[:TRACKS]->(active:Active)
	WITH train, active
	UNWIND $stages AS s
	MERGE (train)-[:INCLUDES]->(stage:Stage {id: s.id})
	  ON CREATE SET stage.created = true
	WITH active, s, stage, coalesce(stage.created, false) AS stage_created
	REMOVE stage.created
	FOREACH (_ IN CASE WHEN stage_created AND s.id = 1 THEN [1] ELSE [] END |
	  MERGE (active)-[:INCLUDES]->(stage)
	)
	WITH active, s, stage, stage_created
	CALL {
	  WITH active, s, stage
	  UNWIND s.cycles AS c
	  MERGE (stage)-[:INCLUDES]->(cycle:Cycle {id: c.id})
	    ON CREATE SET cycle.created = true
	  WITH active, s, c, cycle, coalesce(cycle.created, false) AS cycle_created
	  REMOVE cycle.created
	  FOREACH (_ IN CASE WHEN cycle_created AND s.id = 1 AND c.id = 1 THEN [1] ELSE [] END |
	    MERGE (active)-[:INCLUDES]->(cycle)
	  )
	  WITH cycle, c
	  CALL {
	    WITH cycle, c
	    UNWIND c.items AS itemId
	    MATCH (trans:Translation {id: itemId})
	    MERGE (cycle)-[:INCLUDES]->(trans)
	    RETURN count(trans) AS linked
	  }
	  RETURN sum(linked) AS links
	}
	RETURN s.id AS stage_id, stage_created, links
	ORDER BY stage_id
`

const loadPlanCypher = `
	MATCH (:Training {id: $id})-[:INCLUDES]->(stage:Stage)-[:INCLUDES]->(cycle:Cycle)
	OPTIONAL MATCH (cycle)-[:INCLUDES]->(trans:Translation)
	RETURN stage.id AS stage_id, cycle.id AS cycle_id, trans.id AS item_id
	ORDER BY stage_id, cycle_id, item_id
`

const upsertSetCypher = `
	MERGE (s:Set {id: $id})
	SET s.name = $name
`

const upsertTranslationCypher = `
	MERGE (s:Set {id: $setId})
	MERGE (trans:Translation {id: $id})
	SET trans.word = $word, trans.translation = $translation
	MERGE (s)-[:INCLUDES]->(trans)
`

// ══════════════════════════════════════════════════════════════════════════════
// READER
// ══════════════════════════════════════════════════════════════════════════════

// FindTraining returns the training with the given id.
func (s *Store) FindTraining(ctx context.Context, id string) (*training.Training, error) {
	var t *training.Training
	err := s.read(ctx, func(r runner) error {
		var err error
		t, err = findTraining(ctx, r, id)
		return err
	})
	return t, classify("FindTraining", err)
}

// LoadPlan returns the persisted plan of a training.
func (s *Store) LoadPlan(ctx context.Context, trainingID string) (*training.Plan, error) {
	plan := &training.Plan{}
	err := s.read(ctx, func(r runner) error {
		records, err := collect(ctx, r, loadPlanCypher, map[string]any{"id": trainingID})
		if err != nil {
			return err
		}
		for _, record := range records {
			plan.AddLink(
				getInt(record, "stage_id"),
				getInt(record, "cycle_id"),
				getString(record, "item_id"),
			)
		}
		return nil
	})
	if err != nil {
		return nil, classify("LoadPlan", err)
	}
	return plan, nil
}

// CountItems returns the number of distinct items reachable from the training.
func (s *Store) CountItems(ctx context.Context, trainingID string) (int, error) {
	var n int
	err := s.read(ctx, func(r runner) error {
		var err error
		n, err = countItems(ctx, r, trainingID)
		return err
	})
	return n, classify("CountItems", err)
}

// WithinTx runs fn in an explicit write transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, uow training.UnitOfWork) error) error {
	err := s.conn.WithTx(ctx, func(tx neo4j.ExplicitTransaction) error {
		return fn(ctx, &unit{tx: tx})
	})
	return classify("WithinTx", err)
}

// Close closes the driver.
func (s *Store) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

func (s *Store) read(ctx context.Context, fn func(r runner) error) error {
	session, err := s.conn.Session(ctx, neo4j.AccessModeRead)
	if err != nil {
		return err
	}
	defer session.Close(context.WithoutCancel(ctx))

	_, err = session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(tx)
	})
	return err
}

func findTraining(ctx context.Context, r runner, id string) (*training.Training, error) {
	records, err := collect(ctx, r, findTrainingCypher, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, training.ErrTrainingNotFound
	}
	return trainingFromRecord(records[0]), nil
}

func trainingFromRecord(record *neo4j.Record) *training.Training {
	setIDs := getStringSlice(record, "set_ids")
	slices.Sort(setIDs)

	t := &training.Training{
		ID:        getString(record, "id"),
		Seed:      getInt64(record, "seed"),
		SetIDs:    setIDs,
		PoolSize:  getInt(record, "pool_size"),
		CreatedAt: getTime(record, "created_at"),
	}
	if stageID := getInt(record, "stage_id"); stageID > 0 {
		t.Active = &training.Position{StageID: stageID, CycleID: getInt(record, "cycle_id")}
	}
	return t
}

func countItems(ctx context.Context, r runner, trainingID string) (int, error) {
	records, err := collect(ctx, r, countItemsCypher, map[string]any{"id": trainingID})
	if err != nil || len(records) == 0 {
		return 0, err
	}
	return getInt(records[0], "count"), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

type unit struct {
	tx neo4j.ExplicitTransaction
}

// AssignSets merges the training and links it to the sets that exist.
func (u *unit) AssignSets(ctx context.Context, t *training.Training, setIDs []string) (bool, error) {
	records, err := collect(ctx, u.tx, createTrainingCypher, map[string]any{
		"id":        t.ID,
		"seed":      t.Seed,
		"createdAt": t.CreatedAt,
	})
	if err != nil {
		return false, classify("AssignSets", err)
	}
	if len(records) == 0 || !getBool(records[0], "created") {
		stored, err := findTraining(ctx, u.tx, t.ID)
		if err != nil {
			return false, classify("AssignSets", err)
		}
		*t = *stored
		return false, nil
	}

	records, err = collect(ctx, u.tx, assignSetsCypher, map[string]any{
		"id":     t.ID,
		"setIds": toAnySlice(setIDs),
	})
	if err != nil {
		return false, classify("AssignSets", err)
	}
	linked := make([]string, 0, len(records))
	for _, record := range records {
		linked = append(linked, getString(record, "id"))
	}
	t.SetIDs = linked
	return true, nil
}

func (u *unit) FindTraining(ctx context.Context, id string) (*training.Training, error) {
	t, err := findTraining(ctx, u.tx, id)
	return t, classify("FindTraining", err)
}

func (u *unit) CountItems(ctx context.Context, trainingID string) (int, error) {
	n, err := countItems(ctx, u.tx, trainingID)
	return n, classify("CountItems", err)
}

func (u *unit) ListItemIDs(ctx context.Context, trainingID string) ([]string, error) {
	ids, err := collectIDs(ctx, u.tx, listItemsCypher, trainingID)
	return ids, classify("ListItemIDs", err)
}

func (u *unit) PlannedItemIDs(ctx context.Context, trainingID string) ([]string, error) {
	ids, err := collectIDs(ctx, u.tx, plannedItemsCypher, trainingID)
	return ids, classify("PlannedItemIDs", err)
}

func collectIDs(ctx context.Context, r runner, cypher, trainingID string) ([]string, error) {
	records, err := collect(ctx, r, cypher, map[string]any{"id": trainingID})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, getString(record, "id"))
	}
	return ids, nil
}

func (u *unit) PersistPlan(ctx context.Context, trainingID string, plan training.Plan) ([]int, error) {
	records, err := collect(ctx, u.tx, persistPlanCypher, planParams(trainingID, plan))
	if err != nil {
		return nil, classify("PersistPlan", err)
	}
	created := []int{}
	for _, record := range records {
		if getBool(record, "stage_created") {
			created = append(created, getInt(record, "stage_id"))
		}
	}
	return created, nil
}

// planParams converts a plan into driver-native parameter values.
func planParams(trainingID string, plan training.Plan) map[string]any {
	stages := make([]any, 0, len(plan.Stages))
	for _, stage := range plan.Stages {
		cycles := make([]any, 0, len(stage.Cycles))
		for _, cycle := range stage.Cycles {
			cycles = append(cycles, map[string]any{
				"id":    int64(cycle.ID),
				"items": toAnySlice(cycle.ItemIDs),
			})
		}
		stages = append(stages, map[string]any{
			"id":     int64(stage.ID),
			"cycles": cycles,
		})
	}
	return map[string]any{
		"id":       trainingID,
		"poolSize": int64(plan.PoolSize()),
		"stages":   stages,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTENT
// ══════════════════════════════════════════════════════════════════════════════

// UpsertSet creates or renames a set.
func (s *Store) UpsertSet(ctx context.Context, set training.ContentSet) error {
	err := s.conn.WithTx(ctx, func(tx neo4j.ExplicitTransaction) error {
		_, err := collect(ctx, tx, upsertSetCypher, map[string]any{"id": set.ID, "name": set.Name})
		return err
	})
	return classify("UpsertSet", err)
}

// UpsertTranslation creates or updates an item and links it to the set.
func (s *Store) UpsertTranslation(ctx context.Context, setID string, item training.Translation) error {
	err := s.conn.WithTx(ctx, func(tx neo4j.ExplicitTransaction) error {
		_, err := collect(ctx, tx, upsertTranslationCypher, map[string]any{
			"setId":       setID,
			"id":          item.ID,
			"word":        item.Word,
			"translation": item.Translation,
		})
		return err
	})
	return classify("UpsertTranslation", err)
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func collect(ctx context.Context, r runner, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	result, err := r.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return result.Collect(ctx)
}

func toAnySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func getString(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getInt64(record *neo4j.Record, key string) int64 {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	switch v := val.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

func getInt(record *neo4j.Record, key string) int {
	return int(getInt64(record, key))
}

func getBool(record *neo4j.Record, key string) bool {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return false
	}
	b, _ := val.(bool)
	return b
}

func getTime(record *neo4j.Record, key string) time.Time {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return time.Time{}
	}
	if t, ok := val.(time.Time); ok {
		return t.UTC()
	}
	return time.Time{}
}

func getStringSlice(record *neo4j.Record, key string) []string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return []string{}
	}
	slice, ok := val.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(slice))
	for _, item := range slice {
		if str, ok := item.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

var (
	_ training.Store         = (*Store)(nil)
	_ training.ContentWriter = (*Store)(nil)
)
