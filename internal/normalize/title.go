package normalize

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/oshri1997/Deal-Hunter/internal/model"
)

// DefaultThreshold is the minimum fuzzy similarity for a title to resolve
// to an existing game.
const DefaultThreshold = 0.85

// Platform tokens carry no identity ("Hogwarts Legacy PS5").
var noiseTokens = map[string]bool{"ps4": true, "ps5": true}

// Fold lowercases a title, strips diacritics and apostrophes, and collapses
// everything that is not a letter or digit into single spaces.
func Fold(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, title)
	if err != nil {
		s = title
	}
	s = strings.ToLower(s)

	var b strings.Builder
	pendingSpace := false
	for _, r := range s {
		switch {
		case r == '\'' || r == '’' || r == '`':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		default:
			pendingSpace = true
		}
	}
	return b.String()
}

// SameTitle reports whether two titles fold to the same key.
func SameTitle(a, b string) bool { return Fold(a) == Fold(b) }

func tokenSet(folded string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range strings.Fields(folded) {
		if noiseTokens[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// TokenSetRatio scores two folded titles in [0, 1]. Both token sets are
// sorted with their shared tokens first, so word order and duplicates do
// not matter while extra words still count against the score.
func TokenSetRatio(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	inB := make(map[string]bool, len(tb))
	for _, t := range tb {
		inB[t] = true
	}
	var shared, onlyA, onlyB []string
	inA := make(map[string]bool, len(ta))
	for _, t := range ta {
		inA[t] = true
		if inB[t] {
			shared = append(shared, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for _, t := range tb {
		if !inA[t] {
			onlyB = append(onlyB, t)
		}
	}

	s1 := strings.Join(append(append([]string(nil), shared...), onlyA...), " ")
	s2 := strings.Join(append(append([]string(nil), shared...), onlyB...), " ")
	return ratio(s1, s2)
}

func ratio(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// --------------------------------------------------------------------------
// Resolution
// --------------------------------------------------------------------------

// Match is the outcome of resolving a title against the catalog.
type Match struct {
	Game  model.Game
	Score float64
	Exact bool
}

type candidate struct {
	game   model.Game
	folded []string
}

func newCandidate(g model.Game) candidate {
	c := candidate{game: g, folded: make([]string, 0, len(g.Aliases)+1)}
	c.folded = append(c.folded, Fold(g.Title))
	for _, a := range g.Aliases {
		c.folded = append(c.folded, Fold(a))
	}
	return c
}

// Resolve picks the catalog game a scraped title refers to: an exact folded
// match on the title or any alias wins, otherwise the best fuzzy match at or
// above threshold. Ties go to the higher score, then the most recently
// updated game, then the lowest id.
func Resolve(title string, games []model.Game, threshold float64) (Match, bool) {
	cands := make([]candidate, len(games))
	for i, g := range games {
		cands[i] = newCandidate(g)
	}
	return resolve(Fold(title), cands, threshold)
}

func resolve(folded string, cands []candidate, threshold float64) (Match, bool) {
	if folded == "" {
		return Match{}, false
	}
	var best Match
	found := false
	for _, c := range cands {
		m := Match{Game: c.game}
		for _, f := range c.folded {
			if f == folded {
				m.Exact, m.Score = true, 1
				break
			}
			if s := TokenSetRatio(folded, f); s > m.Score {
				m.Score = s
			}
		}
		if !m.Exact && m.Score < threshold {
			continue
		}
		if !found || better(m, best) {
			best, found = m, true
		}
	}
	return best, found
}

func better(a, b Match) bool {
	if a.Exact != b.Exact {
		return a.Exact
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.Game.UpdatedAt.Equal(b.Game.UpdatedAt) {
		return a.Game.UpdatedAt.After(b.Game.UpdatedAt)
	}
	return a.Game.ID < b.Game.ID
}
