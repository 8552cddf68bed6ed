// Package hyphen provides TeX-style hyphenation (patterns after Liang,
// forked from github.com/AlanQuatermain/go-hyphenator and reworked to report
// break positions instead of inserting soft hyphens).
package hyphen

import (
	"bufio"
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/language"
)

//go:embed patterns/*.txt
var builtinPatterns embed.FS

// Some languages require additional specification.
var langMap = map[string]string{
	"de":    "de-1901",
	"de-de": "de-1901",
	"de-at": "de-1996",
	"de-ch": "de-ch-1901",
	"el":    "el-monoton",
	"el-gr": "el-monoton",
	"en":    "en-us",
	"mn":    "mn-cyrl",
	"sh":    "sh-latn",
	"sr":    "sr-cyrl",
	"zh":    "zh-latn-pinyin",
}

// Hyphenator holds the loaded patterns for one language. A nil Hyphenator is
// valid and never breaks anything.
type Hyphenator struct {
	patterns   *trie
	exceptions map[string]string
	language   string
}

// New loads the hyphenation dictionary for lang. Dictionaries are searched
// in dictDir as hyph-<name>.pat.txt (patterns) and hyph-<name>.hyp.txt
// (exceptions, optional), falling back to the built-in set. The lookup tries
// the full tag, its well-known alias and the base language in turn. Returns
// nil when no dictionary can be found, which disables hyphenation.
func New(lang language.Tag, dictDir string, log *zap.Logger) *Hyphenator {
	if log == nil {
		log = zap.NewNop()
	}

	name := strings.ToLower(lang.String())
	candidates := []string{name}
	if mapped, ok := langMap[name]; ok {
		candidates = append(candidates, mapped)
	}
	if base, confidence := lang.Base(); confidence != language.No {
		bn := strings.ToLower(base.String())
		candidates = append(candidates, bn)
		if mapped, ok := langMap[bn]; ok {
			candidates = append(candidates, mapped)
		}
	} else {
		log.Warn("unable to determine language base", zap.Stringer("tag", lang))
	}

	for _, c := range candidates {
		pat, err := openDictionary(dictDir, c, "pat")
		if err != nil {
			continue
		}
		h := &Hyphenator{language: c}
		err = h.loadPatterns(pat)
		pat.Close()
		if err != nil {
			log.Warn("unable to load hyphenation patterns", zap.String("name", c), zap.Error(err))
			return nil
		}
		if exc, err := openDictionary(dictDir, c, "hyp"); err == nil {
			err = h.loadExceptions(exc)
			exc.Close()
			if err != nil {
				log.Warn("unable to load hyphenation exceptions", zap.String("name", c), zap.Error(err))
				return nil
			}
		}
		return h
	}
	log.Warn("no suitable hyphenation dictionary, turning off hyphenation", zap.Stringer("language", lang))
	return nil
}

func openDictionary(dictDir, name, suffix string) (io.ReadCloser, error) {
	fileName := fmt.Sprintf("hyph-%s.%s.txt", name, suffix)
	if dictDir != "" {
		if f, err := os.Open(filepath.Join(dictDir, fileName)); err == nil {
			return f, nil
		}
	}
	return builtinPatterns.Open("patterns/" + fileName)
}

// Language reports the dictionary name in use.
func (h *Hyphenator) Language() string {
	if h == nil {
		return ""
	}
	return h.language
}

// BreakPoints returns permissible hyphenation positions in word as ascending
// byte offsets. Breaks never fall inside the first or last two letters.
func (h *Hyphenator) BreakPoints(word string) []int {
	if h == nil || h.patterns == nil || h.patterns.size() == 0 {
		return nil
	}
	if utf8.RuneCountInString(word) < 4 {
		return nil
	}

	// Patterns are lowercase. Matching a lowercased copy keeps capitalized
	// words hyphenatable; when lowercasing shifts byte offsets (rare) the
	// original spelling is matched instead.
	match := strings.ToLower(word)
	if len(match) != len(word) {
		match = word
	}

	if exc, ok := h.exceptions[match]; ok {
		return exceptionOffsets(exc)
	}

	markers := h.markers(match)
	var pts []int
	off, mIndex := 0, 0
	for _, ch := range word {
		off += utf8.RuneLen(ch)
		// never break between (or after) the first two or within the last
		// two letters
		if 1 <= mIndex && mIndex < len(markers)-2 && markers[mIndex]%2 != 0 {
			pts = append(pts, off)
		}
		mIndex++
	}
	return pts
}

// markers computes the Liang priority for every letter of s. Odd values mark
// a permissible break.
func (h *Hyphenator) markers(s string) []int {
	testStr := "." + s + "."
	v := make([]int, utf8.RuneCountInString(testStr))

	vIndex := 0
	for pos := range testStr {
		strs, vals := h.patterns.matches(testStr[pos:])
		for i, val := range vals {
			diff := len(val) - utf8.RuneCountInString(strs[i])
			vs := v[vIndex-diff:]
			for j := range val {
				if val[j] > vs[j] {
					vs[j] = val[j]
				}
			}
		}
		vIndex++
	}
	// trim the values for the leading and trailing dots
	return v[1 : len(v)-1]
}

func (h *Hyphenator) loadPatterns(r io.Reader) error {
	if h.patterns == nil {
		h.patterns = newTrie()
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		pure, v := parsePattern(line)
		h.patterns.add(pure, v)
	}
	return scanner.Err()
}

func (h *Hyphenator) loadExceptions(r io.Reader) error {
	if h.exceptions == nil {
		h.exceptions = make(map[string]string, 20)
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		h.exceptions[strings.ReplaceAll(line, "-", "")] = line
	}
	return scanner.Err()
}

// parsePattern splits a TeX pattern like ".hy2p" into its letters and the
// priority vector. A digit applies to the gap before the following letter; a
// leading digit applies to the gap before the whole match.
func parsePattern(s string) (pure string, v []int) {
	runes := []rune(s)
	for i, sym := range runes {
		if unicode.IsDigit(sym) {
			if i == 0 {
				v = append(v, int(sym-'0'))
			}
			continue
		}
		if i < len(runes)-1 && unicode.IsDigit(runes[i+1]) {
			v = append(v, int(runes[i+1]-'0'))
		} else {
			v = append(v, 0)
		}
	}
	pure = strings.Map(func(sym rune) rune {
		if unicode.IsDigit(sym) {
			return -1
		}
		return sym
	}, s)
	return pure, v
}

// exceptionOffsets converts a dictionary exception like "ta-ble" into byte
// offsets into the unhyphenated word.
func exceptionOffsets(exc string) []int {
	var pts []int
	off := 0
	for _, ch := range exc {
		if ch == '-' {
			if off > 0 {
				pts = append(pts, off)
			}
			continue
		}
		off += utf8.RuneLen(ch)
	}
	return pts
}
