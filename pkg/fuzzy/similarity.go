package fuzzy

// DefaultThreshold is the similarity a candidate must strictly exceed to be
// accepted as a fuzzy match.
const DefaultThreshold = 0.70

// Similarity returns the Ratcliff/Obershelp ratio 2*M/(len(a)+len(b)), where M
// is the total length of matching blocks found by repeatedly taking the longest
// common block and recursing on both sides of it.
//
// Two empty strings score 0.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 0
	}
	return 2 * float64(matchingCharacters(ra, rb)) / float64(total)
}

type span struct {
	alo, ahi, blo, bhi int
}

func matchingCharacters(a, b []rune) int {
	matched := 0
	queue := []span{{0, len(a), 0, len(b)}}
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		i, j, k := longestMatch(a, b, s)
		if k == 0 {
			continue
		}
		matched += k
		if s.alo < i && s.blo < j {
			queue = append(queue, span{s.alo, i, s.blo, j})
		}
		if i+k < s.ahi && j+k < s.bhi {
			queue = append(queue, span{i + k, s.ahi, j + k, s.bhi})
		}
	}
	return matched
}

// longestMatch finds the longest block a[i:i+k] == b[j:j+k] inside s. Among
// equally long blocks the one starting earliest in a wins, then earliest in b.
func longestMatch(a, b []rune, s span) (besti, bestj, bestk int) {
	besti, bestj = s.alo, s.blo
	width := s.bhi - s.blo + 1
	prev := make([]int, width)
	cur := make([]int, width)
	for i := s.alo; i < s.ahi; i++ {
		for j := s.blo; j < s.bhi; j++ {
			col := j - s.blo + 1
			if a[i] != b[j] {
				cur[col] = 0
				continue
			}
			k := prev[col-1] + 1
			cur[col] = k
			if k > bestk {
				besti, bestj, bestk = i-k+1, j-k+1, k
			}
		}
		prev, cur = cur, prev
	}
	return besti, bestj, bestk
}

// Best returns the index of the candidate most similar to key whose similarity
// strictly exceeds threshold. The first candidate wins exact ties. It returns
// -1 when key is empty or no candidate qualifies.
func Best(key string, candidates []string, threshold float64) (int, float64) {
	if key == "" {
		return -1, 0
	}
	best, bestScore := -1, 0.0
	for i, c := range candidates {
		score := Similarity(key, c)
		if score > threshold && score > bestScore {
			best, bestScore = i, score
		}
	}
	return best, bestScore
}

// AnyAbove reports whether some candidate's similarity to key strictly exceeds
// threshold.
func AnyAbove(key string, candidates []string, threshold float64) bool {
	if key == "" {
		return false
	}
	for _, c := range candidates {
		if Similarity(key, c) > threshold {
			return true
		}
	}
	return false
}
