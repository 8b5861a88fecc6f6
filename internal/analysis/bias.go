package analysis

import "github.com/ZanzyTHEbar/vpr-analytics/internal/types"

// PassThroughBias hands bias records to the presentation layer untouched.
// How indicators combine across schools is not defined upstream, so no
// pooling is attempted. The returned slice is a copy in input order.
func PassThroughBias(records []types.BiasRecord) []types.BiasRecord {
	out := make([]types.BiasRecord, len(records))
	copy(out, records)
	return out
}
