// Package spelling provides the edit-distance filter and dictionary-backed
// suggester used to correct misspelled vocabulary tokens.
package spelling

const alphabet = "abcdefghijklmnopqrstuvwxyz"

func inAlphabet(c byte) bool { return c >= 'a' && c <= 'z' }

// Edits1 returns every string one insert, replace or transpose away from
// word. Inserted and replacement characters are drawn from a-z. Deletes are
// not generated, so candidates never get shorter than word.
func Edits1(word string) map[string]struct{} {
	out := make(map[string]struct{}, 54*len(word)+25)
	for i := 0; i <= len(word); i++ {
		a, b := word[:i], word[i:]
		if len(b) > 1 {
			out[a+string(b[1])+string(b[0])+b[2:]] = struct{}{}
		}
		for j := 0; j < len(alphabet); j++ {
			c := string(alphabet[j])
			if len(b) > 0 {
				out[a+c+b[1:]] = struct{}{}
			}
			out[a+c+b] = struct{}{}
		}
	}
	return out
}

// Edits2 applies Edits1 twice.
func Edits2(word string) map[string]struct{} {
	out := make(map[string]struct{})
	for e1 := range Edits1(word) {
		for e2 := range Edits1(e1) {
			out[e2] = struct{}{}
		}
	}
	return out
}

// WithinTwoEdits reports whether token can be produced from suggestion by
// two Edits1 steps, i.e. token is in Edits2(suggestion). It avoids
// materialising the second edit set.
func WithinTwoEdits(suggestion, token string) bool {
	grow := len(token) - len(suggestion)
	if grow < 0 || grow > 2 {
		return false
	}
	for e1 := range Edits1(suggestion) {
		if IsOneEdit(e1, token) {
			return true
		}
	}
	return false
}

// IsOneEdit reports whether dst is in Edits1(src).
func IsOneEdit(src, dst string) bool {
	switch len(dst) - len(src) {
	case 1:
		i := 0
		for i < len(src) && src[i] == dst[i] {
			i++
		}
		// removing the first mismatching byte of dst must give back src
		return inAlphabet(dst[i]) && dst[i+1:] == src[i:]
	case 0:
		first, second, diffs := -1, -1, 0
		for i := 0; i < len(src); i++ {
			if src[i] != dst[i] {
				diffs++
				if first < 0 {
					first = i
				} else {
					second = i
				}
			}
		}
		switch diffs {
		case 0:
			return identityIsEdit(src)
		case 1:
			return inAlphabet(dst[first])
		case 2:
			return second == first+1 && src[first] == dst[second] && src[second] == dst[first]
		}
	}
	return false
}

// identityIsEdit reports whether word is in its own Edits1: replacing a
// letter with itself or swapping two equal neighbours.
func identityIsEdit(word string) bool {
	for i := 0; i < len(word); i++ {
		if inAlphabet(word[i]) {
			return true
		}
		if i > 0 && word[i] == word[i-1] {
			return true
		}
	}
	return false
}
