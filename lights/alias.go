package lights

// AliasTable supports drawing an index from a discrete distribution in
// constant time (Walker's alias method). Entry i is kept with probability
// Prob[i] and replaced by Alias[i] otherwise.
type AliasTable struct {
	Prob  []float32
	Alias []uint32
}

// Build an alias table for the normalized weights of a triangle list.
func BuildAliasTable(tris []LightTriangle) AliasTable {
	weights := make([]float32, len(tris))
	for i, tri := range tris {
		weights[i] = tri.Weight
	}
	return BuildAliasTableFromWeights(weights)
}

// Build an alias table for a list of normalized weights.
func BuildAliasTableFromWeights(weights []float32) AliasTable {
	n := len(weights)
	table := AliasTable{
		Prob:  make([]float32, n),
		Alias: make([]uint32, n),
	}
	if n == 0 {
		return table
	}

	scaled := make([]float32, n)
	small := make([]uint32, 0, n)
	large := make([]uint32, 0, n)
	for i, w := range weights {
		scaled[i] = w * float32(n)
		if scaled[i] < 1 {
			small = append(small, uint32(i))
		} else {
			large = append(large, uint32(i))
		}
	}

	for len(small) > 0 && len(large) > 0 {
		s := small[len(small)-1]
		small = small[:len(small)-1]
		l := large[len(large)-1]
		large = large[:len(large)-1]

		table.Prob[s] = scaled[s]
		table.Alias[s] = l

		scaled[l] = scaled[l] + scaled[s] - 1
		if scaled[l] < 1 {
			small = append(small, l)
		} else {
			large = append(large, l)
		}
	}

	// Entries left over due to rounding are kept with certainty.
	for _, rest := range [][]uint32{large, small} {
		for _, i := range rest {
			table.Prob[i] = 1
			table.Alias[i] = i
		}
	}
	return table
}

// Get the number of entries in the table.
func (t AliasTable) Len() int {
	return len(t.Prob)
}

// Sample the table given a uniformly chosen entry and a uniform number u
// in [0, 1).
func (t AliasTable) Sample(entry int, u float32) int {
	if u < t.Prob[entry] {
		return entry
	}
	return int(t.Alias[entry])
}

// Sample the table given two uniform numbers in [0, 1).
func (t AliasTable) SampleUniform(u1, u2 float32) int {
	entry := int(u1 * float32(len(t.Prob)))
	if entry >= len(t.Prob) {
		entry = len(t.Prob) - 1
	}
	return t.Sample(entry, u2)
}
