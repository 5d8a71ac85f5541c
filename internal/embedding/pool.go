package embedding

// meanPool averages the token states of hidden ([seqLen][dims], flattened) over the
// positions where mask is 1. An all-zero mask yields a zero vector.
func meanPool(hidden []float32, mask []int64, dims int) []float32 {
	out := make([]float32, dims)
	var n float32
	for pos, m := range mask {
		if m == 0 {
			continue
		}
		row := hidden[pos*dims : (pos+1)*dims]
		for i, v := range row {
			out[i] += v
		}
		n++
	}
	if n == 0 {
		return out
	}
	for i := range out {
		out[i] /= n
	}
	return out
}
