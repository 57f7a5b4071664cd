package matching

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/prbf/go-engine/internal/lcs"
)

func TestNewParallelEngine_RejectsSingleParticipant(t *testing.T) {
	_, err := NewParallelEngine(1)
	require.Error(t, err)
}

func TestParallelEngine_MembershipMatchesSerial(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pop := &fakePopulation{}
	for i := 0; i < 1000; i++ {
		pop.elements = append(pop.elements, &fakeClassifier{id: i, match: rng.Float64() < 0.4, numerosity: 1})
	}

	var want []int
	for _, cl := range pop.elements {
		if cl.(*fakeClassifier).match {
			want = append(want, cl.(*fakeClassifier).id)
		}
	}

	for _, n := range []int{2, 3, 4, 7} {
		e, err := NewParallelEngine(n)
		require.NoError(t, err)

		got, err := e.Match(testState(), pop.elements, nil)
		require.NoError(t, err)
		gotIDs := ids(got)
		sort.Ints(gotIDs)
		assert.Equal(t, want, gotIDs, "participants=%d", n)

		e.Close()
	}
}

func TestParallelEngine_ScansEveryClassifierOncePerRound(t *testing.T) {
	pop := stripedPopulation(101)
	e, err := NewParallelEngine(4)
	require.NoError(t, err)
	defer e.Close()

	const rounds = 25
	for r := 0; r < rounds; r++ {
		got, err := e.Match(testState(), pop.elements, nil)
		require.NoError(t, err)
		assert.Len(t, got, 34)
	}
	for _, cl := range pop.elements {
		assert.EqualValues(t, rounds, cl.(*fakeClassifier).matchCalls.Load())
	}
}

func TestParallelEngine_SmallerPopulationThanParticipants(t *testing.T) {
	pop := stripedPopulation(2)
	e, err := NewParallelEngine(8)
	require.NoError(t, err)
	defer e.Close()

	got, err := e.Match(testState(), pop.elements, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, ids(got))

	got, err = e.Match(testState(), nil, got[:0])
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParallelEngine_PanicSurfacesAsError(t *testing.T) {
	pop := stripedPopulation(10)
	pop.elements[5].(*fakeClassifier).panics = true

	e, err := NewParallelEngine(3)
	require.NoError(t, err)
	defer e.Close()

	got, err := e.Match(testState(), pop.elements, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.Empty(t, got)

	// The pool is still intact after a recovered predicate failure.
	pop.elements[5].(*fakeClassifier).panics = false
	got, err = e.Match(testState(), pop.elements, nil)
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestParallelEngine_CloseIsFinal(t *testing.T) {
	e, err := NewParallelEngine(4)
	require.NoError(t, err)

	e.Close()
	e.Close()

	_, err = e.Match(testState(), stripedPopulation(10).elements, nil)
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestParallelEngine_DoesNotRetainRoundInputs(t *testing.T) {
	e, err := NewParallelEngine(2)
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Match(testState(), stripedPopulation(6).elements, nil)
	require.NoError(t, err)

	assert.Nil(t, e.elements)
	for _, buf := range e.buffers {
		assert.Empty(t, buf)
		for _, cl := range buf[:cap(buf)] {
			assert.Equal(t, lcs.Classifier(nil), cl)
		}
	}
}
