package training

import (
	"fmt"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func itemIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("item-%04d", i)
	}
	return ids
}

func TestStageCount(t *testing.T) {
	tests := []struct {
		count int
		want  int
	}{
		{count: 0, want: 1},
		{count: 1, want: 1},
		{count: 4, want: 1},
		{count: 5, want: 1},
		{count: 7, want: 1},
		{count: 10, want: 2},
		{count: 14, want: 2},
		{count: 28, want: 3},
		{count: 100, want: 5},
		{count: 1000, want: 8},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("count=%d", tt.count), func(t *testing.T) {
			assert.Equal(t, tt.want, StageCount(tt.count))
		})
	}
}

func TestStageCount_NonDecreasing(t *testing.T) {
	prev := StageCount(0)
	for count := 1; count <= 5000; count++ {
		got := StageCount(count)
		require.GreaterOrEqual(t, got, 1, "count=%d", count)
		require.GreaterOrEqual(t, got, prev, "count=%d", count)
		prev = got
	}
}

func TestCycleRate_ClampsToOne(t *testing.T) {
	// 7·2^4 = 112 > 2·50, so the raw rate rounds to zero.
	assert.Equal(t, 1, CycleRate(50, 4))
	assert.Equal(t, 50, CycleSize(50, 4))
	assert.Equal(t, 1, CycleRate(0, 0))
	assert.Equal(t, 1, CycleSize(0, 0))
}

func TestNewPlan_HundredItems(t *testing.T) {
	plan := NewPlan(itemIDs(100), 42)

	want := []StageShape{
		{Rate: 14, GroupSize: 7, GroupCount: 15},
		{Rate: 7, GroupSize: 14, GroupCount: 8},
		{Rate: 4, GroupSize: 25, GroupCount: 4},
		{Rate: 2, GroupSize: 50, GroupCount: 2},
		{Rate: 1, GroupSize: 100, GroupCount: 1},
	}
	if diff := cmp.Diff(want, plan.Shape()); diff != "" {
		t.Fatalf("shape mismatch (-want +got):\n%s", diff)
	}

	// Only the last group of a stage may be short.
	for _, stage := range plan.Stages {
		size := CycleSize(100, stage.ID-1)
		for i, cycle := range stage.Cycles {
			if i == len(stage.Cycles)-1 {
				assert.Equal(t, 100-size*(len(stage.Cycles)-1), len(cycle.ItemIDs))
				continue
			}
			assert.Len(t, cycle.ItemIDs, size)
		}
	}
	assert.Len(t, plan.Stages[0].Cycles[14].ItemIDs, 2)
	assert.Len(t, plan.Stages[1].Cycles[7].ItemIDs, 2)
	assert.Equal(t, 30, plan.CycleCount())
	assert.Equal(t, 100, plan.PoolSize())
}

func TestGenerateStages_SingleItem(t *testing.T) {
	stages := GenerateStages([]string{"only"}, StageCount(1), NewRand(1))

	require.Len(t, stages, 1)
	require.Len(t, stages[0], 1)
	assert.Equal(t, []string{"only"}, stages[0][0])
}

func TestGenerateStages_EveryStageIsPartition(t *testing.T) {
	for _, count := range []int{1, 2, 6, 7, 8, 13, 50, 100, 257} {
		for seed := int64(0); seed < 5; seed++ {
			pool := itemIDs(count)
			stages := GenerateStages(pool, StageCount(count), NewRand(seed))

			for k, stage := range stages {
				var union []string
				for _, group := range stage {
					require.NotEmpty(t, group)
					union = append(union, group...)
				}
				slices.Sort(union)
				require.Equal(t, pool, union, "count=%d seed=%d stage=%d", count, seed, k)
			}
		}
	}
}

func TestGenerateStages_GroupsWidenWithStage(t *testing.T) {
	for count := 1; count <= 600; count++ {
		stages := GenerateStages(itemIDs(count), StageCount(count), NewRand(int64(count)))

		for k := 1; k < len(stages); k++ {
			require.LessOrEqual(t, len(stages[k]), len(stages[k-1]), "count=%d stage=%d", count, k)
			require.GreaterOrEqual(t, CycleSize(count, k), CycleSize(count, k-1), "count=%d stage=%d", count, k)
		}
	}
}

func TestGenerateStages_DoesNotMutateInput(t *testing.T) {
	pool := itemIDs(30)
	before := slices.Clone(pool)

	GenerateStages(pool, StageCount(len(pool)), NewRand(7))

	assert.Equal(t, before, pool)
}

func TestGenerateStages_InjectedSourceFixesComposition(t *testing.T) {
	pool := itemIDs(40)

	first := GenerateStages(pool, 3, NewRand(99))
	second := GenerateStages(pool, 3, NewRand(99))

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("same source produced different stages:\n%s", diff)
	}
}

func TestNewPlan_DependsOnlyOnPoolAndSeed(t *testing.T) {
	pool := itemIDs(100)
	reversed := slices.Clone(pool)
	slices.Reverse(reversed)
	withDuplicates := append(slices.Clone(pool), pool[:10]...)

	plan := NewPlan(pool, 2024)

	assert.True(t, cmp.Equal(plan, NewPlan(reversed, 2024)))
	assert.True(t, cmp.Equal(plan, NewPlan(withDuplicates, 2024)))
	assert.False(t, cmp.Equal(plan, NewPlan(pool, 2025)))
}

func TestNewPlan_StagesShuffledIndependently(t *testing.T) {
	plan := NewPlan(itemIDs(100), 5)

	// Stage 4 holds the whole pool in one cycle; its order must differ from
	// the concatenation of stage 1 cycles.
	var flattened []string
	for _, cycle := range plan.Stages[0].Cycles {
		flattened = append(flattened, cycle.ItemIDs...)
	}
	assert.NotEqual(t, flattened, plan.Stages[4].Cycles[0].ItemIDs)
}

func TestPlan_Truncate(t *testing.T) {
	plan := NewPlan(itemIDs(100), 1)

	assert.Equal(t, 2, plan.Truncate(2).StageCount())
	assert.Equal(t, 5, plan.Truncate(10).StageCount())
	assert.Equal(t, 0, plan.Truncate(-1).StageCount())
	assert.Equal(t, plan.Stages[:2], plan.Truncate(2).Stages)
}

func TestPlanFromGroups_NumbersFromOne(t *testing.T) {
	plan := PlanFromGroups([][][]string{
		{{"a", "b"}, {"c"}},
		{{"c", "a", "b"}},
	})

	require.Len(t, plan.Stages, 2)
	assert.Equal(t, 1, plan.Stages[0].ID)
	assert.Equal(t, 2, plan.Stages[0].Cycles[1].ID)
	assert.Equal(t, 2, plan.Stages[1].ID)
	assert.Equal(t, [][][]string{{{"a", "b"}, {"c"}}, {{"c", "a", "b"}}}, plan.Groups())
}
