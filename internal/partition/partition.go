// Package partition splits an index range into contiguous chunks for
// parallel workers.
package partition

// Range is the half-open interval [Start, End).
type Range struct {
	Start, End int
}

// Len returns End - Start.
func (r Range) Len() int { return r.End - r.Start }

// Split divides [0, n) into parts contiguous ranges whose lengths differ by
// at most one, longer ranges first. parts is floored at 1 and capped at n
// so no range is empty unless n is 0.
func Split(n, parts int) []Range {
	if parts < 1 {
		parts = 1
	}
	if n > 0 && parts > n {
		parts = n
	}
	if n == 0 {
		return []Range{{0, 0}}
	}
	base, extra := n/parts, n%parts
	ranges := make([]Range, parts)
	start := 0
	for i := range ranges {
		size := base
		if i < extra {
			size++
		}
		ranges[i] = Range{Start: start, End: start + size}
		start += size
	}
	return ranges
}
