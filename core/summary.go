package core

// Summary aggregates byte totals over a set of results.
type Summary struct {
	Count            int
	OriginalTotal    int64
	NewTotal         int64
	ReductionPercent int
}

// Summarize folds results into a Summary.  Nil entries are ignored.
func Summarize(results []*RecodeResult) Summary {
	var s Summary
	for _, r := range results {
		if r == nil {
			continue
		}
		s.Count++
		s.OriginalTotal += r.OriginalSize
		s.NewTotal += r.NewSize
	}
	s.ReductionPercent = ReductionPercent(s.OriginalTotal, s.NewTotal)
	return s
}

// ReductionPercent returns round((1 - newSize/original) * 100), rounding
// halves up.  It is 0 when original is not positive and negative when the
// output grew.
func ReductionPercent(original, newSize int64) int {
	if original <= 0 {
		return 0
	}
	// floor((100*(original-newSize) + original/2) / original) in integers.
	num := 200*(original-newSize) + original
	den := 2 * original
	q := num / den
	if num%den != 0 && num < 0 {
		q--
	}
	return int(q)
}

// Reduction is the per-file ReductionPercent.
func (r *RecodeResult) Reduction() int {
	return ReductionPercent(r.OriginalSize, r.NewSize)
}
