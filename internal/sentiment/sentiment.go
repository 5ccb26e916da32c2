// Package sentiment scores short texts into a compound polarity in [-1,1]
// and averages collections of such scores.
package sentiment

import (
	"math"
	"strings"
	"unicode"
)

// Scorer turns a text snippet into a compound score in [-1,1].
// Implementations must be deterministic and safe for concurrent use.
type Scorer interface {
	Score(text string) float64
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(text string) float64

func (f ScorerFunc) Score(text string) float64 { return f(text) }

const (
	negationScale  = -0.74
	capsIncrement  = 0.733
	exclaimBoost   = 0.292
	maxExclaims    = 4
	normalizeAlpha = 15.0
	negationWindow = 3
)

// Lexicon is the default lexicon-based scorer.
type Lexicon struct{}

// Score returns the compound polarity of text.
func (Lexicon) Score(text string) float64 {
	toks := tokenize(text)
	if len(toks) == 0 {
		return 0
	}
	mixedCase := hasMixedCase(toks)

	vals := make([]float64, len(toks))
	for i, tk := range toks {
		lw := strings.ToLower(tk)
		v, ok := valence[lw]
		if !ok {
			continue
		}
		if mixedCase && isShouting(tk) {
			v += math.Copysign(capsIncrement, v)
		}
		for back := 1; back <= negationWindow && i-back >= 0; back++ {
			prev := strings.ToLower(toks[i-back])
			if b, ok := boosters[prev]; ok {
				// boosters lose strength with distance
				scale := b * (1 - 0.05*float64(back-1))
				v += math.Copysign(scale, v)
			}
		}
		if negated(toks, i) {
			v *= negationScale
		}
		vals[i] = v
	}

	// "but" shifts the weight toward the clause after it
	for i, tk := range toks {
		if strings.ToLower(tk) != "but" {
			continue
		}
		for j := range vals {
			switch {
			case j < i:
				vals[j] *= 0.5
			case j > i:
				vals[j] *= 1.5
			}
		}
		break
	}

	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	if sum != 0 {
		n := strings.Count(text, "!")
		if n > maxExclaims {
			n = maxExclaims
		}
		sum += math.Copysign(float64(n)*exclaimBoost, sum)
	}
	return clamp(sum / math.Sqrt(sum*sum+normalizeAlpha))
}

// Aggregate returns the mean of scores, or 0 when there are none.
func Aggregate(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

// ScoreAll scores every text with s.
func ScoreAll(s Scorer, texts []string) []float64 {
	out := make([]float64, 0, len(texts))
	for _, t := range texts {
		out = append(out, clamp(s.Score(t)))
	}
	return out
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}

func negated(toks []string, i int) bool {
	for back := 1; back <= negationWindow && i-back >= 0; back++ {
		if negations[strings.ToLower(toks[i-back])] {
			return true
		}
	}
	return false
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'')
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if f == "" {
			continue
		}
		if strings.HasSuffix(strings.ToLower(f), "n't") {
			f = "not"
		}
		out = append(out, f)
	}
	return out
}

func isShouting(tok string) bool {
	hasLetter := false
	for _, r := range tok {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter && len(tok) > 1
}

func hasMixedCase(toks []string) bool {
	upper, lower := false, false
	for _, tk := range toks {
		if isShouting(tk) {
			upper = true
		} else {
			lower = true
		}
	}
	return upper && lower
}
