package matching

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/prbf/go-engine/internal/lcs"
)

func activityPopulation(activities []float64, nums []int) []lcs.Classifier {
	out := make([]lcs.Classifier, len(activities))
	for i, a := range activities {
		out[i] = &fakeClassifier{id: i, activity: a, numerosity: nums[i]}
	}
	return out
}

// filledSlots counts the numerosity slots the selection occupies, capped at k.
func filledSlots(selected []lcs.Classifier, k int) int {
	slots := 0
	for _, cl := range selected {
		slots += min(cl.Numerosity(), k-slots)
	}
	return slots
}

func TestClosestMatch_TopKByActivity(t *testing.T) {
	elements := activityPopulation(
		[]float64{0.1, 0.9, 0.5, 0.7, 0.3},
		[]int{1, 1, 1, 1, 1},
	)
	got := closestMatch(testState(), elements, 3, nil)
	assert.Equal(t, []int{1, 3, 2}, ids(got))
}

func TestClosestMatch_KLargerThanPopulation(t *testing.T) {
	elements := activityPopulation([]float64{0.2, 0.4}, []int{1, 2})
	got := closestMatch(testState(), elements, 10, nil)
	assert.Equal(t, []int{1, 0}, ids(got))
	assert.Equal(t, 3, filledSlots(got, 10), "min(K, sum numerosity)")
}

func TestClosestMatch_NumerosityOccupiesSlots(t *testing.T) {
	elements := activityPopulation(
		[]float64{0.9, 0.8, 0.7, 0.6},
		[]int{3, 1, 1, 1},
	)
	got := closestMatch(testState(), elements, 4, nil)
	assert.Equal(t, []int{0, 1}, ids(got))

	got = closestMatch(testState(), elements, 2, nil)
	assert.Equal(t, []int{0}, ids(got), "one classifier fills both slots")
}

func TestClosestMatch_TiesKeepPopulationOrder(t *testing.T) {
	elements := activityPopulation(
		[]float64{0.5, 0.5, 0.5, 0.5},
		[]int{1, 1, 1, 1},
	)
	for i := 0; i < 10; i++ {
		got := closestMatch(testState(), elements, 2, nil)
		assert.Equal(t, []int{0, 1}, ids(got))
	}
}

func TestClosestMatch_SkipsZeroNumerosityAndRanksNaNLast(t *testing.T) {
	elements := activityPopulation(
		[]float64{math.NaN(), 0.9, 0.1},
		[]int{1, 0, 1},
	)
	got := closestMatch(testState(), elements, 2, nil)
	assert.Equal(t, []int{2, 0}, ids(got))
}

func TestClosestMatch_CardinalityAndOrdering(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(40)
		acts := make([]float64, n)
		nums := make([]int, n)
		total := 0
		for i := range acts {
			acts[i] = rng.Float64()
			nums[i] = 1 + rng.Intn(4)
			total += nums[i]
		}
		k := 1 + rng.Intn(30)
		elements := activityPopulation(acts, nums)

		got := closestMatch(testState(), elements, k, nil)
		require.NotEmpty(t, got)
		assert.Equal(t, min(k, total), filledSlots(got, k))

		included := map[int]bool{}
		lowest := math.Inf(1)
		for _, cl := range got {
			included[cl.(*fakeClassifier).id] = true
			lowest = math.Min(lowest, cl.Activity(testState()))
		}
		for i, a := range acts {
			if !included[i] {
				assert.LessOrEqual(t, a, lowest, "excluded classifier outranks an included one")
			}
		}
	}
}
