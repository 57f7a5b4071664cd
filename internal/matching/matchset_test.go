package matching

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/prbf/go-engine/internal/fusion"
	"github.com/danielpatrickdp/prbf/go-engine/internal/lcs"
)

func serialOptions() Options {
	return Options{
		ClosestK:           20,
		ThreadingThreshold: -1,
		MaxPopulationSize:  100,
	}
}

func parallelOptions(workers, threshold int) Options {
	return Options{
		ClosestK:           20,
		Multithreading:     true,
		ThreadingThreshold: threshold,
		MaxPopulationSize:  100,
		Workers:            workers,
	}
}

// #region construction

func TestNewMatchSet_RejectsBadConfig(t *testing.T) {
	opts := serialOptions()
	opts.ClosestK = 0
	_, err := NewMatchSet(opts)
	require.Error(t, err)

	opts = serialOptions()
	opts.MaxPopulationSize = 0
	_, err = NewMatchSet(opts)
	require.Error(t, err)

	opts = serialOptions()
	opts.Workers = -2
	_, err = NewMatchSet(opts)
	require.Error(t, err)
}

func TestNewMatchSet_SingleWorkerStaysSerial(t *testing.T) {
	ms, err := NewMatchSet(parallelOptions(1, 0))
	require.NoError(t, err)
	defer ms.Shutdown()

	assert.False(t, ms.Parallel())
	phase, threshold := ms.Calibration()
	assert.Equal(t, PhaseFixed, phase)
	assert.Equal(t, math.MaxInt, threshold)
}

// #endregion construction

// #region match

func TestMatch_SerialKeepsPopulationOrder(t *testing.T) {
	ms, err := NewMatchSet(serialOptions())
	require.NoError(t, err)
	defer ms.Shutdown()

	pop := stripedPopulation(10)
	require.NoError(t, ms.Match(testState(), pop))
	assert.Equal(t, []int{0, 3, 6, 9}, ids(ms.Elements()))

	// The match set is rebuilt, not accumulated.
	require.NoError(t, ms.Match(testState(), pop))
	assert.Equal(t, 4, ms.Size())
}

func TestMatch_ParallelMembershipEqualsSerial(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	pop := &fakePopulation{maxSize: 5000}
	for i := 0; i < 2000; i++ {
		pop.elements = append(pop.elements, &fakeClassifier{id: i, match: rng.Intn(2) == 0, numerosity: 1})
	}

	serial, err := NewMatchSet(serialOptions())
	require.NoError(t, err)
	defer serial.Shutdown()
	parallel, err := NewMatchSet(parallelOptions(4, 0))
	require.NoError(t, err)
	defer parallel.Shutdown()
	require.True(t, parallel.Parallel())

	before := testutil.ToFloat64(matchRounds.WithLabelValues(strategyParallel))
	require.NoError(t, serial.Match(testState(), pop))
	require.NoError(t, parallel.Match(testState(), pop))
	assert.Equal(t, before+1, testutil.ToFloat64(matchRounds.WithLabelValues(strategyParallel)))

	want := ids(serial.Elements())
	got := ids(parallel.Elements())
	sort.Ints(got)
	assert.Equal(t, want, got)
}

func TestMatch_ClosestOverridesThreshold(t *testing.T) {
	ms, err := NewMatchSet(parallelOptions(4, 0))
	require.NoError(t, err)
	defer ms.Shutdown()

	pop := &fakePopulation{elements: activityPopulation([]float64{0.3, 0.8, 0.1}, []int{1, 1, 1})}
	ms.SetClosestMatching(true)
	require.True(t, ms.ClosestMatching())

	before := testutil.ToFloat64(matchRounds.WithLabelValues(strategyParallel))
	require.NoError(t, ms.Match(testState(), pop))
	assert.Equal(t, before, testutil.ToFloat64(matchRounds.WithLabelValues(strategyParallel)))
	assert.Equal(t, []int{1, 0, 2}, ids(ms.Elements()))
}

func TestMatch_ParallelFailureFallsBackToSerial(t *testing.T) {
	ms, err := NewMatchSet(parallelOptions(3, 0))
	require.NoError(t, err)
	defer ms.Shutdown()

	pop := stripedPopulation(30)
	pop.elements[4].(*fakeClassifier).panics = true

	err = ms.Match(testState(), pop)
	require.Error(t, err)
	assert.Equal(t, 0, ms.Size(), "no partial match set after a failed round")
	assert.False(t, ms.Parallel())

	pop.elements[4].(*fakeClassifier).panics = false
	require.NoError(t, ms.Match(testState(), pop))
	assert.Equal(t, 10, ms.Size())
}

func TestMatch_AdaptiveCalibrationReportsBaselineFirst(t *testing.T) {
	var events []CalibrationEvent
	opts := parallelOptions(2, -1)
	opts.MaxPopulationSize = 25 // checkpoint every classifier
	opts.OnCalibration = func(ev CalibrationEvent) { events = append(events, ev) }

	ms, err := NewMatchSet(opts)
	require.NoError(t, err)
	defer ms.Shutdown()

	pop := &fakePopulation{maxSize: 1000}
	for i := 0; i < 40; i++ {
		pop.Add(&fakeClassifier{id: i, match: i%2 == 0, numerosity: 1})
		require.NoError(t, ms.Match(testState(), pop))
		assert.Equal(t, (i+2)/2, ms.Size(), "probe rounds are real rounds")
	}

	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, OutcomeSerialBaseline, events[0].Outcome)
	assert.Contains(t, []CalibrationOutcome{OutcomeRaiseThreshold, OutcomeConverged}, events[1].Outcome)
	for i := 1; i < len(events); i++ {
		if events[i-1].Outcome == OutcomeConverged {
			t.Fatalf("calibration continued after converging: %+v", events[i])
		}
	}
}

// #endregion match

// #region shutdown

func TestShutdown_IsIdempotentAndFinal(t *testing.T) {
	ms, err := NewMatchSet(parallelOptions(4, 0))
	require.NoError(t, err)
	require.True(t, ms.Parallel())

	ms.Shutdown()
	ms.Shutdown()

	assert.False(t, ms.Parallel())
	phase, threshold := ms.Calibration()
	assert.Equal(t, PhaseFixed, phase)
	assert.Equal(t, math.MaxInt, threshold)

	before := testutil.ToFloat64(matchRounds.WithLabelValues(strategyParallel))
	pop := stripedPopulation(500)
	for i := 0; i < 5; i++ {
		require.NoError(t, ms.Match(testState(), pop))
		assert.Equal(t, 167, ms.Size())
	}
	assert.Equal(t, before, testutil.ToFloat64(matchRounds.WithLabelValues(strategyParallel)))
}

// #endregion shutdown

// #region coverage

func TestEnsureCoverage_CoversEmptyMatchSet(t *testing.T) {
	cov := &fakeCoverer{}
	opts := serialOptions()
	opts.Coverer = cov
	ms, err := NewMatchSet(opts)
	require.NoError(t, err)

	pop := &fakePopulation{maxSize: 10}
	for i := 0; i < 3; i++ {
		pop.Add(&fakeClassifier{id: i, numerosity: 1})
	}
	require.NoError(t, ms.Match(testState(), pop))
	require.Equal(t, 0, ms.Size())

	covered, err := ms.EnsureCoverage(pop, 7)
	require.NoError(t, err)
	assert.True(t, covered)
	assert.Equal(t, 1, cov.calls)
	assert.Equal(t, 1, ms.Size())
	assert.Len(t, pop.elements, 4)
	assert.Same(t, ms.Elements()[0], pop.elements[3])
	assert.Zero(t, pop.deleted)
}

func TestEnsureCoverage_DeletesWhenFull(t *testing.T) {
	opts := serialOptions()
	opts.Coverer = &fakeCoverer{}
	ms, err := NewMatchSet(opts)
	require.NoError(t, err)

	pop := &fakePopulation{maxSize: 5}
	pop.Add(&fakeClassifier{id: 0, numerosity: 3})
	pop.Add(&fakeClassifier{id: 1, numerosity: 2})
	require.NoError(t, ms.Match(testState(), pop))

	_, err = ms.EnsureCoverage(pop, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, pop.deleted, "5 micro-classifiers + 1 new - max 5")
}

func TestEnsureCoverage_NoopWhenMatched(t *testing.T) {
	cov := &fakeCoverer{}
	opts := serialOptions()
	opts.Coverer = cov
	ms, err := NewMatchSet(opts)
	require.NoError(t, err)

	require.NoError(t, ms.Match(testState(), stripedPopulation(3)))
	covered, err := ms.EnsureCoverage(stripedPopulation(3), 1)
	require.NoError(t, err)
	assert.False(t, covered)
	assert.Zero(t, cov.calls)
}

func TestEnsureCoverage_WithoutCoverer(t *testing.T) {
	ms, err := NewMatchSet(serialOptions())
	require.NoError(t, err)
	require.NoError(t, ms.Match(testState(), &fakePopulation{maxSize: 1}))

	_, err = ms.EnsureCoverage(&fakePopulation{maxSize: 1}, 1)
	assert.ErrorIs(t, err, ErrNoCoverer)
}

// #endregion coverage

// #region update

func TestUpdateClassifiers_TwoPhase(t *testing.T) {
	ms, err := NewMatchSet(serialOptions())
	require.NoError(t, err)

	a := &fakeClassifier{id: 0, match: true, accuracy: 0.5, numerosity: 2}
	b := &fakeClassifier{id: 1, match: true, accuracy: 1.0, numerosity: 3}
	c := &fakeClassifier{id: 2, match: false, accuracy: 1.0, numerosity: 9}
	require.NoError(t, ms.Match(testState(), &fakePopulation{elements: []lcs.Classifier{a, b, c}}))

	ms.UpdateClassifiers()

	for _, cl := range []*fakeClassifier{a, b} {
		assert.Equal(t, 1, cl.update1Calls)
		assert.InDelta(t, 4.0, cl.gotAccSum, 1e-12)
		assert.Equal(t, 5, cl.gotNumSum)
	}
	assert.Zero(t, c.update1Calls)
}

// #endregion update

// #region predictions

func TestWeightedPrediction_FitnessWeighted(t *testing.T) {
	ms, err := NewMatchSet(serialOptions())
	require.NoError(t, err)

	a := &fakeClassifier{match: true, fitness: 2, prediction: []float64{1, 0}, numerosity: 1}
	b := &fakeClassifier{match: true, fitness: 1, prediction: []float64{0, 1}, numerosity: 1}
	require.NoError(t, ms.Match(testState(), &fakePopulation{elements: []lcs.Classifier{a, b}}))

	got, err := ms.WeightedPrediction()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2.0 / 3, 1.0 / 3}, got, 1e-12)
}

func TestPredictions_EmptyMatchSet(t *testing.T) {
	ms, err := NewMatchSet(serialOptions())
	require.NoError(t, err)
	require.NoError(t, ms.Match(testState(), stripedPopulation(0)))

	_, err = ms.WeightedPrediction()
	assert.ErrorIs(t, err, ErrEmptyMatchSet)
	assert.ErrorIs(t, ms.CalculateFusedPrediction(), ErrEmptyMatchSet)
	assert.Nil(t, ms.IntersectPrediction())
}

func TestCalculateFusedPrediction_SingleClassifier(t *testing.T) {
	ms, err := NewMatchSet(serialOptions())
	require.NoError(t, err)

	a := &fakeClassifier{match: true, fitness: 0.3, prediction: []float64{0.2, 0.7, 1.4}, numerosity: 1}
	require.NoError(t, ms.Match(testState(), &fakePopulation{elements: []lcs.Classifier{a}}))
	require.NoError(t, ms.CalculateFusedPrediction())

	assert.InDeltaSlice(t, []float64{0.2, 0.7, 1}, ms.IntersectPrediction(), 1e-12)
	assert.InDeltaSlice(t, []float64{0.2, 0.7, 1}, ms.UnionPrediction(), 1e-12)
	assert.InDelta(t, 1.0, ms.ConsistencyIdx(), 1e-12)
	assert.Equal(t, []float64{0.2, 0.7, 1.4}, a.prediction, "classifier prediction untouched")
}

func TestCalculateFusedPrediction_ErrorDiscardsPrevious(t *testing.T) {
	ms, err := NewMatchSet(serialOptions())
	require.NoError(t, err)

	a := &fakeClassifier{match: true, fitness: 1, prediction: []float64{0.5}, numerosity: 1}
	require.NoError(t, ms.Match(testState(), &fakePopulation{elements: []lcs.Classifier{a}}))
	require.NoError(t, ms.CalculateFusedPrediction())
	require.NotNil(t, ms.UnionPrediction())

	b := &fakeClassifier{match: true, fitness: 1, prediction: []float64{0.5, 0.5}, numerosity: 1}
	require.NoError(t, ms.Match(testState(), &fakePopulation{elements: []lcs.Classifier{a, b}}))
	err = ms.CalculateFusedPrediction()
	assert.ErrorIs(t, err, fusion.ErrDimensionMismatch)
	assert.Nil(t, ms.UnionPrediction())
	assert.Zero(t, ms.ConsistencyIdx())
}

// #endregion predictions
