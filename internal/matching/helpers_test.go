package matching

import (
	"sync/atomic"

	"github.com/danielpatrickdp/prbf/go-engine/internal/lcs"
)

// #region fake-classifier

type fakeClassifier struct {
	id         int
	match      bool
	activity   float64
	prediction []float64
	fitness    float64
	accuracy   float64
	numerosity int
	panics     bool

	matchCalls   atomic.Int64
	update1Calls int
	gotAccSum    float64
	gotNumSum    int
}

func (f *fakeClassifier) DoesMatch(lcs.State) bool {
	f.matchCalls.Add(1)
	if f.panics {
		panic("bad condition")
	}
	return f.match
}

func (f *fakeClassifier) Activity(lcs.State) float64 { return f.activity }

func (f *fakeClassifier) Predict(lcs.State) []float64 {
	out := make([]float64, len(f.prediction))
	copy(out, f.prediction)
	return out
}

func (f *fakeClassifier) Fitness() float64  { return f.fitness }
func (f *fakeClassifier) Accuracy() float64 { return f.accuracy }
func (f *fakeClassifier) Numerosity() int   { return f.numerosity }

func (f *fakeClassifier) Update1(lcs.State) { f.update1Calls++ }

func (f *fakeClassifier) Update2(accuracySum float64, numerositySum int) {
	f.gotAccSum = accuracySum
	f.gotNumSum = numerositySum
}

// #endregion fake-classifier

// #region fake-population

type fakePopulation struct {
	elements []lcs.Classifier
	maxSize  int
	deleted  int
}

func (p *fakePopulation) Elements() []lcs.Classifier { return p.elements }
func (p *fakePopulation) Add(cl lcs.Classifier)      { p.elements = append(p.elements, cl) }
func (p *fakePopulation) MaxSize() int               { return p.maxSize }

func (p *fakePopulation) DeleteWorst(n int) {
	p.deleted += n
	if n > len(p.elements) {
		n = len(p.elements)
	}
	p.elements = p.elements[n:]
}

// stripedPopulation returns n classifiers where every third one matches.
func stripedPopulation(n int) *fakePopulation {
	pop := &fakePopulation{maxSize: n * 2}
	for i := 0; i < n; i++ {
		pop.elements = append(pop.elements, &fakeClassifier{
			id:         i,
			match:      i%3 == 0,
			numerosity: 1,
			fitness:    1,
		})
	}
	return pop
}

// #endregion fake-population

// #region fake-coverer

type fakeCoverer struct {
	calls int
}

func (c *fakeCoverer) Cover(lcs.State, int) lcs.Classifier {
	c.calls++
	return &fakeClassifier{id: -c.calls, match: true, numerosity: 1, fitness: 1}
}

// #endregion fake-coverer

func ids(cls []lcs.Classifier) []int {
	out := make([]int, len(cls))
	for i, cl := range cls {
		out[i] = cl.(*fakeClassifier).id
	}
	return out
}

func testState() lcs.State {
	return lcs.NewState([]float64{0.5, 0.5}, []float64{1, 0})
}
