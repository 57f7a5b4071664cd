// Package population holds the ordered classifier array that matching
// scans, with bounded size, deletion and compaction.
package population

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/danielpatrickdp/prbf/go-engine/internal/classifier"
	"github.com/danielpatrickdp/prbf/go-engine/internal/lcs"
)

// #region member
// Member is a classifier whose numerosity the population can change.
type Member interface {
	lcs.Classifier
	ID() string
	SetNumerosity(n int)
}

// subsumer is implemented by members that can absorb others on compaction.
type subsumer interface {
	Subsumes(other lcs.Classifier) bool
}

// #endregion member

// #region population
// Population is a bounded, ordered set of classifiers measured in
// micro-classifiers (sum of numerosities). It is not safe for concurrent
// mutation.
type Population struct {
	maxSize  int
	elements []lcs.Classifier
}

// New creates an empty population bounded to maxSize micro-classifiers.
func New(maxSize int) (*Population, error) {
	if maxSize < 1 {
		return nil, fmt.Errorf("population: max size must be positive, got %d", maxSize)
	}
	return &Population{maxSize: maxSize}, nil
}

// Elements implements lcs.Population.
func (p *Population) Elements() []lcs.Classifier { return p.elements }

// MaxSize implements lcs.Population.
func (p *Population) MaxSize() int { return p.maxSize }

// Len returns the number of macro-classifiers.
func (p *Population) Len() int { return len(p.elements) }

// NumerositySum returns the number of micro-classifiers.
func (p *Population) NumerositySum() int {
	n := 0
	for _, cl := range p.elements {
		n += cl.Numerosity()
	}
	return n
}

// Add appends cl. Capacity is the caller's concern: the match set deletes
// before it adds.
func (p *Population) Add(cl lcs.Classifier) {
	p.elements = append(p.elements, cl)
}

// DeleteWorst removes n micro-classifiers, one at a time from the member
// with the lowest fitness per numerosity. Members that cannot change
// numerosity are removed whole. Earlier members win ties.
func (p *Population) DeleteWorst(n int) {
	for ; n > 0 && len(p.elements) > 0; n-- {
		worst := 0
		worstVal := vote(p.elements[0])
		for i := 1; i < len(p.elements); i++ {
			if v := vote(p.elements[i]); v < worstVal {
				worst, worstVal = i, v
			}
		}
		cl := p.elements[worst]
		if m, ok := cl.(Member); ok && cl.Numerosity() > 1 {
			m.SetNumerosity(cl.Numerosity() - 1)
			continue
		}
		p.elements = slices.Delete(p.elements, worst, worst+1)
	}
}

func vote(cl lcs.Classifier) float64 {
	num := cl.Numerosity()
	if num < 1 {
		num = 1
	}
	return cl.Fitness() / float64(num)
}

// Compact greedily merges members into fitter members that subsume them,
// fittest first. Merged members donate their numerosity.
func (p *Population) Compact() {
	order := slices.Clone(p.elements)
	slices.SortStableFunc(order, func(a, b lcs.Classifier) int {
		switch {
		case a.Fitness() > b.Fitness():
			return -1
		case a.Fitness() < b.Fitness():
			return 1
		}
		return 0
	})

	absorbed := make(map[lcs.Classifier]bool)
	for i, keep := range order {
		if absorbed[keep] {
			continue
		}
		s, ok := keep.(subsumer)
		m, isMember := keep.(Member)
		if !ok || !isMember {
			continue
		}
		for _, other := range order[i+1:] {
			if absorbed[other] || !s.Subsumes(other) {
				continue
			}
			m.SetNumerosity(m.Numerosity() + other.Numerosity())
			absorbed[other] = true
		}
	}
	p.elements = slices.DeleteFunc(p.elements, func(cl lcs.Classifier) bool {
		return absorbed[cl]
	})
}

// #endregion population

// #region snapshot
// Snapshot encodes every member as JSON. Members must implement
// json.Marshaler.
func (p *Population) Snapshot() ([]byte, error) {
	data, err := json.Marshal(p.elements)
	if err != nil {
		return nil, fmt.Errorf("snapshot population: %w", err)
	}
	return data, nil
}

// Restore decodes a snapshot of receptive-field classifiers.
func Restore(data []byte, maxSize int, params classifier.Params) (*Population, error) {
	p, err := New(maxSize)
	if err != nil {
		return nil, err
	}
	var snaps []classifier.Snapshot
	if err := json.Unmarshal(data, &snaps); err != nil {
		return nil, fmt.Errorf("decode population: %w", err)
	}
	for _, snap := range snaps {
		cl, err := classifier.FromSnapshot(params, snap)
		if err != nil {
			return nil, err
		}
		p.Add(cl)
	}
	return p, nil
}

// #endregion snapshot
