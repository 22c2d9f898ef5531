package canonical

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Band buckets a confidence score into the resolution policy tier.
type Band string

const (
	BandAuto        Band = "auto"
	BandConfirm     Band = "confirm"
	BandProvisional Band = "provisional"
)

// Weights are the relative contributions of each similarity component.
// They encode policy and are configured, never hard-coded at call sites.
type Weights struct {
	Title  float64
	Author float64
	ISBN   float64
}

// Thresholds are the band cutoffs: score >= Auto auto-links, score >= Confirm
// requires confirmation, anything below is provisional.
type Thresholds struct {
	Auto    float64
	Confirm float64
}

// DefaultWeights and DefaultThresholds are the tuned policy constants.
var (
	DefaultWeights    = Weights{Title: 0.60, Author: 0.25, ISBN: 0.15}
	DefaultThresholds = Thresholds{Auto: 0.90, Confirm: 0.70}
)

// Band returns the tier for a score.
func (t Thresholds) Band(score float64) Band {
	switch {
	case score >= t.Auto:
		return BandAuto
	case score >= t.Confirm:
		return BandConfirm
	default:
		return BandProvisional
	}
}

// ScoredCandidate pairs a provider candidate with its computed score.
type ScoredCandidate struct {
	Candidate Candidate `json:"candidate"`
	Score     float64   `json:"score"`
	ISBNMatch bool      `json:"isbn_match"`
}

// ScoreCandidates scores every candidate against the raw book identity and
// returns them ranked best first. Ties are broken by exact ISBN agreement.
//
// The ISBN component participates only when the input carries an ISBN;
// otherwise the score is renormalized over the title and author weights so
// that an exact title+author match can still auto-link. Annotation exports
// almost never carry ISBNs, and a signal neither side can produce must not
// cap the score below the auto band.
func ScoreCandidates(title, author, isbn string, candidates []Candidate, w Weights, th Thresholds) []ScoredCandidate {
	inputISBN := normalizeISBN(isbn)

	scored := make([]ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		s := ScoredCandidate{Candidate: c}
		s.ISBNMatch = isbnAgreement(isbn, c.ISBN) == 1

		score := w.Title*Similarity(title, c.Title) +
			w.Author*authorSimilarity(author, c.Authors)
		weightSum := w.Title + w.Author
		if inputISBN != "" {
			score += w.ISBN * isbnAgreement(isbn, c.ISBN)
			weightSum += w.ISBN
		}
		if weightSum > 0 {
			s.Score = score / weightSum
		}
		scored = append(scored, s)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ISBNMatch && !scored[j].ISBNMatch
	})

	return scored
}

// Similarity is a normalized edit-distance similarity in [0,1] over
// case-folded, punctuation-stripped, whitespace-collapsed strings.
func Similarity(a, b string) float64 {
	na, nb := NormalizeString(a), NormalizeString(b)
	if na == "" && nb == "" {
		return 1
	}
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	dist := levenshtein.ComputeDistance(na, nb)
	longest := len([]rune(na))
	if l := len([]rune(nb)); l > longest {
		longest = l
	}
	return 1 - float64(dist)/float64(longest)
}

// authorSimilarity is neutral (0.5) when neither side names an author, zero
// when exactly one side does, and the best per-author similarity otherwise.
func authorSimilarity(author string, candidateAuthors []string) float64 {
	var named []string
	for _, a := range candidateAuthors {
		if NormalizeString(a) != "" {
			named = append(named, a)
		}
	}

	inputEmpty := NormalizeString(author) == ""
	if inputEmpty && len(named) == 0 {
		return 0.5
	}
	if inputEmpty || len(named) == 0 {
		return 0
	}

	best := 0.0
	for _, a := range named {
		if s := Similarity(author, a); s > best {
			best = s
		}
	}
	return best
}

func isbnAgreement(a, b string) float64 {
	na, nb := normalizeISBN(a), normalizeISBN(b)
	if na != "" && na == nb {
		return 1
	}
	return 0
}

// NormalizeString case-folds, strips punctuation and collapses whitespace.
// Used for both similarity comparison and alias/canonical keying.
func NormalizeString(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// normalizeISBN removes hyphens and spaces; anything that is not a 10- or
// 13-character ISBN afterwards is treated as absent.
func normalizeISBN(isbn string) string {
	isbn = strings.ReplaceAll(isbn, "-", "")
	isbn = strings.ReplaceAll(isbn, " ", "")
	isbn = strings.TrimSpace(isbn)
	if len(isbn) != 10 && len(isbn) != 13 {
		return ""
	}
	return isbn
}
