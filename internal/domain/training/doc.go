// Package training contains the domain model of a generated curriculum.
//
// A Training is built once from the item pool reachable through its content
// Sets. The pool is partitioned into Stages; every Stage is a full partition of
// the pool into Cycles, and later Stages hold fewer, larger Cycles:
//
//	Training ─┬─ Stage 1 ─┬─ Cycle 1 ─ items…
//	          │           └─ Cycle N
//	          └─ Stage K ─── Cycle 1 ─ whole pool
//
// The package defines:
//
//   - Entities: Training, Position, Plan, Stage, Cycle
//   - The partition planner: StageCount, GenerateStages, NewPlan
//   - Repository interfaces: Store, Reader, UnitOfWork, ContentWriter
//
// # Reproducibility
//
// Every Training stores the seed its plan was shuffled with. The pool is
// sorted before shuffling, so the same pool and seed always yield the same
// plan:
//
//	plan := training.NewPlan(itemIDs, t.Seed)
//
// This is what makes re-running persistence for a half-written Training safe:
// the second pass upserts exactly the structure the first pass started.
//
// The package has no external dependencies besides the standard library.
package training
