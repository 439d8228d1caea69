// Package match implements fuzzy title matching with adaptive-threshold
// disambiguation. The contract trades recall for precision: when more than one
// candidate survives every threshold the matcher reports no match rather than
// picking an arbitrary winner.
package match

import "strings"

// Ratio computes a sequence-similarity ratio in [0,1] between two strings:
// 2*M/T where M is the total size of the longest matching blocks and T the
// combined length. Case-insensitive.
func Ratio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	matched := matchingTotal(a, b)
	return 2 * float64(matched) / float64(len(a)+len(b))
}

// matchingTotal sums matching-block sizes by recursively splitting around the
// longest common substring, the same block decomposition difflib uses.
func matchingTotal(a, b string) int {
	b2j := make(map[byte][]int, len(b))
	for j := 0; j < len(b); j++ {
		b2j[b[j]] = append(b2j[b[j]], j)
	}

	type span struct{ alo, ahi, blo, bhi int }
	total := 0
	queue := []span{{0, len(a), 0, len(b)}}
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		i, j, k := longestMatch(a, b2j, s.alo, s.ahi, s.blo, s.bhi)
		if k == 0 {
			continue
		}
		total += k
		queue = append(queue,
			span{s.alo, i, s.blo, j},
			span{i + k, s.ahi, j + k, s.bhi})
	}
	return total
}

func longestMatch(a string, b2j map[byte][]int, alo, ahi, blo, bhi int) (besti, bestj, size int) {
	besti, bestj = alo, blo
	j2len := make(map[int]int)
	for i := alo; i < ahi; i++ {
		newj2len := make(map[int]int)
		for _, j := range b2j[a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
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
