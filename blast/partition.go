package blast

// Partition splits total into n near-equal parts. The first total%n parts
// get one extra, so the parts differ by at most one and sum to total.
func Partition(total, n int) []int {
	if n < 1 {
		n = 1
	}
	if total < 0 {
		total = 0
	}

	parts := make([]int, n)
	base, rem := total/n, total%n
	for i := range parts {
		parts[i] = base
		if i < rem {
			parts[i]++
		}
	}
	return parts
}
