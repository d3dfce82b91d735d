// Package diag implements "did-you-mean" suggestions using a
// Damerau-Levenshtein edit distance, ported from the original
// implementation's strsim.rs (transposition-aware, unlike plain
// Levenshtein).
package diag

// Distance computes the Damerau-Levenshtein edit distance between a and b:
// the minimum number of insertions, deletions, substitutions, and adjacent
// transpositions needed to turn a into b.
func Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)

	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	// d[i][j] = distance between a[:i] and b[:j].
	d := make([][]int, la+1)
	for i := range d {
		d[i] = make([]int, lb+1)
		d[i][0] = i
	}
	for j := 0; j <= lb; j++ {
		d[0][j] = j
	}

	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := d[i-1][j] + 1
			ins := d[i][j-1] + 1
			sub := d[i-1][j-1] + cost
			best := min3(del, ins, sub)

			if i > 1 && j > 1 && ra[i-1] == rb[j-2] && ra[i-2] == rb[j-1] {
				trans := d[i-2][j-2] + 1
				if trans < best {
					best = trans
				}
			}
			d[i][j] = best
		}
	}
	return d[la][lb]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// Suggest returns the candidate from candidates closest to target by
// Damerau-Levenshtein distance, provided the distance is within the
// length-scaled threshold used by the original implementation: at most 2
// for targets of length >= 4, at most 1 otherwise. Returns "" when no
// candidate is close enough.
func Suggest(target string, candidates []string) string {
	threshold := 1
	if len([]rune(target)) >= 4 {
		threshold = 2
	}

	best := ""
	bestDist := threshold + 1
	for _, c := range candidates {
		d := Distance(target, c)
		if d <= threshold && d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}
