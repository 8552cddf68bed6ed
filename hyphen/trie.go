package hyphen

import "unicode/utf8"

// trie is a prefix tree over runes with one TeX hyphenation pattern per
// leaf. Values are the inter-letter priority vectors of the pattern.
type trie struct {
	leaf     bool
	value    []int
	children map[rune]*trie
}

func newTrie() *trie {
	return &trie{children: make(map[rune]*trie)}
}

func (t *trie) add(s string, v []int) {
	if len(s) == 0 {
		return
	}
	n := t
	for _, r := range s {
		c := n.children[r]
		if c == nil {
			c = newTrie()
			n.children[r] = c
		}
		n = c
	}
	n.leaf = true
	n.value = v
}

// matches returns every stored pattern that is an anchored prefix of s,
// together with its priority vector, shortest first.
func (t *trie) matches(s string) (strs []string, vals [][]int) {
	n := t
	for pos, r := range s {
		c := n.children[r]
		if c == nil {
			break
		}
		if c.leaf {
			strs = append(strs, s[:pos+utf8.RuneLen(r)])
			vals = append(vals, c.value)
		}
		n = c
	}
	return strs, vals
}

// size counts all nodes except the root.
func (t *trie) size() int {
	sz := len(t.children)
	for _, c := range t.children {
		sz += c.size()
	}
	return sz
}
