package training

import (
	"math"
	"math/rand/v2"
	"slices"
)

// MinCycleSize is the smallest group a learner practises at once.
const MinCycleSize = 7

// seedStream is the fixed PCG stream; the per-training seed selects the state.
const seedStream uint64 = 0x9e3779b97f4a7c15

// StageCount returns round(log2(count/MinCycleSize)) + 1, never less than 1.
func StageCount(count int) int {
	if count <= 0 {
		return 1
	}
	n := int(math.Round(math.Log2(float64(count)/MinCycleSize))) + 1
	if n < 1 {
		return 1
	}
	return n
}

// CycleRate is the target number of cycles in stage k (0-based).
// It halves with every stage and never drops below 1.
func CycleRate(count, k int) int {
	rate := int(math.Round(float64(count) / (MinCycleSize * math.Pow(2, float64(k)))))
	if rate < 1 {
		return 1
	}
	return rate
}

// CycleSize is the number of items per cycle in stage k (0-based).
// The last cycle of a stage may hold fewer.
func CycleSize(count, k int) int {
	size := int(math.Round(float64(count) / float64(CycleRate(count, k))))
	if size < 1 {
		return 1
	}
	return size
}

// GenerateStages shuffles the whole pool independently for every stage and
// cuts each permutation into consecutive groups of CycleSize items.
// itemIDs is never modified.
func GenerateStages(itemIDs []string, stageCount int, rng *rand.Rand) [][][]string {
	count := len(itemIDs)
	stages := make([][][]string, 0, stageCount)
	for k := 0; k < stageCount; k++ {
		pool := slices.Clone(itemIDs)
		rng.Shuffle(len(pool), func(i, j int) {
			pool[i], pool[j] = pool[j], pool[i]
		})
		stages = append(stages, chunk(pool, CycleSize(count, k)))
	}
	return stages
}

// NewRand returns the random source a plan with the given seed is shuffled with.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), seedStream))
}

// NewPlan builds the plan for a pool. The pool is sorted first so that the
// result depends only on the set of ids and the seed.
func NewPlan(itemIDs []string, seed int64) Plan {
	pool := slices.Clone(itemIDs)
	slices.Sort(pool)
	pool = slices.Compact(pool)
	return PlanFromGroups(GenerateStages(pool, StageCount(len(pool)), NewRand(seed)))
}

func chunk(items []string, size int) [][]string {
	groups := make([][]string, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		groups = append(groups, items[start:end:end])
	}
	return groups
}
