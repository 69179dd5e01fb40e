package nlp

// similarityRatio measures how similar two strings are, in [0, 1].
// It is the Ratcliff/Obershelp ratio: 2*M/T where M is the total length of
// the recursively matched longest common blocks and T the combined length.
// 1 means identical, 0 means nothing in common.
func similarityRatio(a, b string) float64 {
	ar := []rune(a)
	br := []rune(b)
	total := len(ar) + len(br)
	if total == 0 {
		return 1
	}
	matched := matchingBlocksSize(ar, br)
	return 2 * float64(matched) / float64(total)
}

type matchSegment struct {
	alo, ahi, blo, bhi int
}

// matchingBlocksSize returns the total length of all matching blocks found
// by repeatedly taking the longest common substring of each unmatched
// segment pair.
func matchingBlocksSize(a, b []rune) int {
	// Positions of each rune in b, ascending. Keeps the longest-match scan
	// linear in the number of actual rune matches.
	b2j := make(map[rune][]int, len(b))
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}

	matched := 0
	queue := []matchSegment{{0, len(a), 0, len(b)}}
	for len(queue) > 0 {
		seg := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		i, j, size := longestMatch(a, b2j, seg)
		if size == 0 {
			continue
		}
		matched += size
		if seg.alo < i && seg.blo < j {
			queue = append(queue, matchSegment{seg.alo, i, seg.blo, j})
		}
		if i+size < seg.ahi && j+size < seg.bhi {
			queue = append(queue, matchSegment{i + size, seg.ahi, j + size, seg.bhi})
		}
	}
	return matched
}

// longestMatch finds the longest block common to a[alo:ahi] and b[blo:bhi].
// On equal lengths the earliest block in a (then in b) is kept, so the
// result is deterministic for any input.
func longestMatch(a []rune, b2j map[rune][]int, seg matchSegment) (besti, bestj, size int) {
	besti, bestj = seg.alo, seg.blo
	// j2len[j] is the length of the match ending at a[i-1], b[j].
	j2len := make(map[int]int)
	for i := seg.alo; i < seg.ahi; i++ {
		newj2len := make(map[int]int)
		for _, j := range b2j[a[i]] {
			if j < seg.blo {
				continue
			}
			if j >= seg.bhi {
				break
			}
			k := j2len[j-1] + 1
			newj2len[j] = k
			if k > size {
				besti, bestj, size = i-k+1, j-k+1, k
			}
		}
		j2len = newj2len
	}
	return besti, bestj, size
}
