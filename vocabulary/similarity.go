package vocabulary

// Jaccard returns |a ∩ b| / |a ∪ b|. Two empty sets are defined to have
// similarity 1.0. The result is symmetric and always in [0, 1].
func Jaccard(a, b TypeSet) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	inter := a.intersectionLen(b)
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Merge folds discovered into existing. The score compares the labels
// discovered in a single document against the accumulated set, so a late
// document that introduces one new label still lowers it.
//
// Merge is idempotent: merging a set that is already subsumed returns an
// equal set and a score computed against that set.
func Merge(existing, discovered TypeSet) (TypeSet, float64) {
	score := Jaccard(discovered, existing)
	return existing.Union(discovered), score
}
