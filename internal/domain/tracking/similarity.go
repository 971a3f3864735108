package tracking

// Matcher decides whether two readings refer to the same physical plate.
type Matcher struct {
	// Threshold is the minimum Ratio for two distinct normalized readings
	// to match.
	Threshold float64
	// MergeUnreadable makes two Unreadable readings match each other.
	// With it disabled every unreadable sighting becomes its own vehicle.
	MergeUnreadable bool
}

// DefaultMatcher returns the matcher used when no policy is configured.
func DefaultMatcher() Matcher {
	return Matcher{Threshold: DefaultThreshold, MergeUnreadable: true}
}

// Similar reports whether a and b are the same plate under m's policy.
func (m Matcher) Similar(a, b string) bool {
	ua, ub := a == Unreadable, b == Unreadable
	switch {
	case ua && ub:
		return m.MergeUnreadable
	case ua || ub:
		return false
	}

	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return true
	}
	return Ratio(na, nb) >= m.Threshold
}

// Similar reports whether a and b are the same plate at the given threshold,
// treating two unreadable readings as the same.
func Similar(a, b string, threshold float64) bool {
	return Matcher{Threshold: threshold, MergeUnreadable: true}.Similar(a, b)
}

// Ratio returns 2*M/T where T is the total number of runes in a and b and M
// is the number of runes covered by the recursively found longest matching
// blocks (Ratcliff/Obershelp). Two empty strings have a ratio of 1.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	m := newSequenceMatcher(ra, rb)
	return 2 * float64(m.matches()) / float64(total)
}

// autojunkMin is the length of b from which overly common runes stop
// seeding matches.
const autojunkMin = 200

type sequenceMatcher struct {
	a, b []rune
	b2j  map[rune][]int
}

func newSequenceMatcher(a, b []rune) *sequenceMatcher {
	b2j := make(map[rune][]int, len(b))
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}
	if n := len(b); n >= autojunkMin {
		limit := n/100 + 1
		for r, idx := range b2j {
			if len(idx) > limit {
				delete(b2j, r)
			}
		}
	}
	return &sequenceMatcher{a: a, b: b, b2j: b2j}
}

type span struct{ alo, ahi, blo, bhi int }

// matches returns the total size of all matching blocks.
func (s *sequenceMatcher) matches() int {
	total := 0
	stack := []span{{0, len(s.a), 0, len(s.b)}}
	for len(stack) > 0 {
		sp := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		i, j, k := s.longestMatch(sp.alo, sp.ahi, sp.blo, sp.bhi)
		if k == 0 {
			continue
		}
		total += k
		if sp.alo < i && sp.blo < j {
			stack = append(stack, span{sp.alo, i, sp.blo, j})
		}
		if i+k < sp.ahi && j+k < sp.bhi {
			stack = append(stack, span{i + k, sp.ahi, j + k, sp.bhi})
		}
	}
	return total
}

// longestMatch finds the longest block a[i:i+k] == b[j:j+k] inside the
// given window, preferring the earliest i and then the earliest j.
func (s *sequenceMatcher) longestMatch(alo, ahi, blo, bhi int) (int, int, int) {
	besti, bestj, bestk := alo, blo, 0
	j2len := map[int]int{}
	for i := alo; i < ahi; i++ {
		next := map[int]int{}
		for _, j := range s.b2j[s.a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := j2len[j-1] + 1
			next[j] = k
			if k > bestk {
				besti, bestj, bestk = i-k+1, j-k+1, k
			}
		}
		j2len = next
	}

	// Runes dropped by the popularity filter never seed a block but may
	// still extend one.
	for besti > alo && bestj > blo && s.a[besti-1] == s.b[bestj-1] {
		besti, bestj, bestk = besti-1, bestj-1, bestk+1
	}
	for besti+bestk < ahi && bestj+bestk < bhi && s.a[besti+bestk] == s.b[bestj+bestk] {
		bestk++
	}
	return besti, bestj, bestk
}
