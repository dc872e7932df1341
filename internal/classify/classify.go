// Package classify decides what to do with the raw class-label strings the
// SophiA API attaches to a student: exclude the student outright, or pick a
// single canonical label and the display bucket its call events belong to.
package classify

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"chamada/internal/textutil"
)

// Bucket is the logical display target for a student. Its value is the name
// of the collection the display panels read from.
type Bucket string

const (
	// BucketDefault receives anything the other rules do not claim.
	BucketDefault Bucket = "chamados"
	// BucketInfantil is early childhood (EI / Grupo classes).
	BucketInfantil Bucket = "chamados_ei"
	// BucketPrimeiroAno is the dedicated first-grade panel (1A, 1B, ...).
	BucketPrimeiroAno Bucket = "chamados_1ano"
	// BucketFundamental is general elementary (AI / AF classes).
	BucketFundamental Bucket = "chamados_fund"
)

// Buckets lists every known bucket, for sweeps and clear-all.
func Buckets() []Bucket {
	return []Bucket{BucketDefault, BucketInfantil, BucketPrimeiroAno, BucketFundamental}
}

// yearRe finds the 4-digit year token typical of authoritative class labels
// (e.g. "AI-2A-T-2026"). Also used for the staleness check.
var yearRe = regexp.MustCompile(`\b(20[0-9]{2})\b`)

// firstGradeRe matches a digit 1 followed by a non-digit, at the start of the
// label or after a separator. "1B" qualifies, "10A" does not.
var firstGradeRe = regexp.MustCompile(`(^|[ -])1[^0-9]`)

// noiseKeywords marks extracurricular or non-academic enrollment entries that
// must never be selected as a student's class. Matched as substrings of the
// normalized candidate.
var noiseKeywords = []string{
	"futsal", "futebol", "volei", "basquete", "handebol", "ginastica",
	"judo", "karate", "natacao", "treino",
	"ballet", "bale", "danca", "teatro", "musica", "coral", "circo",
	"xadrez", "robotica", "clube",
	"almoco", "refeicao", "lanche",
	"integral", "extra",
}

// Classifier applies the label rules. ExcludedPrefix marks the grade band
// that never appears on panels (the oldest one, "EM" by default).
type Classifier struct {
	ExcludedPrefix string
	Now            func() time.Time
}

// New returns a classifier with the given excluded prefix ("" means "EM").
func New(excludedPrefix string) *Classifier {
	if excludedPrefix == "" {
		excludedPrefix = "EM"
	}
	return &Classifier{ExcludedPrefix: excludedPrefix, Now: time.Now}
}

// SplitCandidates expands raw enrollment strings into individual label
// candidates, splitting multi-valued entries on "|" and trimming whitespace.
// Original order is preserved.
func SplitCandidates(raw []string) []string {
	var out []string
	for _, r := range raw {
		for _, part := range strings.Split(r, "|") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// selection tiers, best first. Each predicate sees the normalized candidate;
// the first candidate matching the first applicable tier wins.
var tiers = []struct {
	name  string
	match func(string) bool
}{
	{"exact", yearRe.MatchString},
	{"prefix", hasSegmentPrefix},
	{"fallback", func(string) bool { return true }},
}

// Resolve turns the candidate labels into one decision: the canonical label
// and its bucket, or ok=false when the student must not appear at all
// (excluded grade band, or extracurricular-only enrollment).
func (c *Classifier) Resolve(candidates []string) (string, Bucket, bool) {
	// Hard exclusion trumps everything else present.
	if prefix := textutil.Normalize(c.ExcludedPrefix); prefix != "" {
		for _, cand := range candidates {
			n := textutil.Normalize(cand)
			if strings.HasPrefix(n, prefix) || containsToken(n, prefix) {
				return "", "", false
			}
		}
	}

	var surviving []string
	for _, cand := range candidates {
		if !isNoise(textutil.Normalize(cand)) {
			surviving = append(surviving, cand)
		}
	}
	if len(surviving) == 0 {
		return "", "", false
	}

	for _, tier := range tiers {
		for _, cand := range surviving {
			if tier.match(textutil.Normalize(cand)) {
				label := strings.TrimSpace(cand)
				return label, c.BucketFor(label), true
			}
		}
	}
	// Unreachable: the fallback tier accepts any survivor.
	return "", "", false
}

// BucketFor derives the display bucket from a resolved label. Rules are
// checked in order: early childhood, first grade, general elementary,
// default.
func (c *Classifier) BucketFor(label string) Bucket {
	n := textutil.Normalize(label)
	switch {
	case strings.HasPrefix(n, "ei") || hasGroupCode(n):
		return BucketInfantil
	case firstGradeRe.MatchString(n):
		return BucketPrimeiroAno
	case n != "":
		// AI/AF classes and every other surviving label share the
		// general elementary panel.
		return BucketFundamental
	default:
		return BucketDefault
	}
}

// Stale reports whether the label carries a year token strictly before the
// current calendar year, meaning the student has been promoted or graduated.
// Labels without a year are never stale.
func (c *Classifier) Stale(label string) bool {
	m := yearRe.FindString(textutil.Normalize(label))
	if m == "" {
		return false
	}
	year, err := strconv.Atoi(m)
	if err != nil {
		return false
	}
	return year < c.Now().Year()
}

// hasSegmentPrefix reports whether the normalized candidate starts with a
// known academic segment code: EI, AI, AF, or a Grupo code (G1..G5).
func hasSegmentPrefix(n string) bool {
	return strings.HasPrefix(n, "ei") ||
		strings.HasPrefix(n, "ai") ||
		strings.HasPrefix(n, "af") ||
		hasGroupCode(n)
}

func hasGroupCode(n string) bool {
	return len(n) >= 2 && n[0] == 'g' && n[1] >= '0' && n[1] <= '9'
}

func isNoise(n string) bool {
	for _, kw := range noiseKeywords {
		if strings.Contains(n, kw) {
			return true
		}
	}
	return false
}

func containsToken(n, token string) bool {
	for _, part := range strings.FieldsFunc(n, func(r rune) bool {
		return r == '-' || r == ' '
	}) {
		if part == token {
			return true
		}
	}
	return false
}
