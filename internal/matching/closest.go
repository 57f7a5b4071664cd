package matching

import (
	"cmp"
	"slices"

	"github.com/danielpatrickdp/prbf/go-engine/internal/lcs"
)

type rankedClassifier struct {
	cl       lcs.Classifier
	activity float64
}

// closestMatch appends the classifiers that fill the k highest-activity
// numerosity slots, in ranked order. A classifier with numerosity m covers
// up to m slots. Ties keep population order; NaN activity ranks last.
func closestMatch(s lcs.State, elements []lcs.Classifier, k int, dst []lcs.Classifier) []lcs.Classifier {
	ranked := make([]rankedClassifier, len(elements))
	for i, cl := range elements {
		ranked[i] = rankedClassifier{cl: cl, activity: cl.Activity(s)}
	}
	slices.SortStableFunc(ranked, func(a, b rankedClassifier) int {
		return cmp.Compare(b.activity, a.activity)
	})

	slots := k
	for _, r := range ranked {
		if slots <= 0 {
			break
		}
		num := r.cl.Numerosity()
		if num <= 0 {
			continue
		}
		dst = append(dst, r.cl)
		slots -= num
	}
	return dst
}
