// Package batch splits a sorted key space into contiguous, bounded-size ranges that are used as
// extraction bounds, e.g. WHERE id BETWEEN min AND max.
package batch

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/relloyd/forklift/errs"
)

// IdRange is an inclusive range of keys. Min <= Max.
type IdRange[K cmp.Ordered] struct {
	Min K `json:"idMin"`
	Max K `json:"idMax"`
}

func (r IdRange[K]) String() string {
	return fmt.Sprintf("(%v,%v)", r.Min, r.Max)
}

// Contains returns true if k falls inside the range.
func (r IdRange[K]) Contains(k K) bool {
	return r.Min <= k && k <= r.Max
}

// Batch sorts a copy of ids ascending and splits it into consecutive chunks of at most batchSize keys.
// Each chunk becomes IdRange{first, last}. The output is deterministic for a given input.
// Empty input yields an empty slice. batchSize <= 0 fails with errs.ErrInvalidArgument.
func Batch[K cmp.Ordered](ids []K, batchSize int) ([]IdRange[K], error) {
	if batchSize <= 0 {
		return nil, errs.InvalidArgument("batch size must be positive, got %v", batchSize)
	}
	sorted := slices.Clone(ids)
	slices.SortStableFunc(sorted, cmp.Compare[K])
	retval := make([]IdRange[K], 0, (len(sorted)+batchSize-1)/batchSize)
	for start := 0; start < len(sorted); start += batchSize { // for each chunk...
		end := min(start+batchSize, len(sorted)) - 1
		retval = append(retval, IdRange[K]{Min: sorted[start], Max: sorted[end]})
	}
	return retval, nil
}
