package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedYear(year int) func() time.Time {
	return func() time.Time {
		return time.Date(year, time.March, 15, 10, 0, 0, 0, time.UTC)
	}
}

func TestSplitCandidates(t *testing.T) {
	got := SplitCandidates([]string{"AI-2A-T-2026 | FUTSAL", " 1B ", ""})
	assert.Equal(t, []string{"AI-2A-T-2026", "FUTSAL", "1B"}, got)
}

func TestResolveExcludedPrefix(t *testing.T) {
	c := New("EM")

	// Excluded regardless of what other candidates say.
	_, _, ok := c.Resolve([]string{"EM-3A-2025"})
	assert.False(t, ok)
	_, _, ok = c.Resolve([]string{"AI-2A-T-2026", "EM-3A-2025"})
	assert.False(t, ok)

	// Prefix as a hyphen-delimited token.
	_, _, ok = c.Resolve([]string{"INT-EM-3A"})
	assert.False(t, ok)
}

func TestResolveNoiseFiltering(t *testing.T) {
	c := New("")

	label, bucket, ok := c.Resolve([]string{"FUTSAL", "AI-2A-T-2026"})
	require.True(t, ok)
	assert.Equal(t, "AI-2A-T-2026", label)
	assert.Equal(t, BucketFundamental, bucket)

	// Extracurricular-only enrollment is excluded entirely.
	_, _, ok = c.Resolve([]string{"FUTSAL", "BALLET INFANTIL"})
	assert.False(t, ok)

	_, _, ok = c.Resolve(nil)
	assert.False(t, ok)
}

func TestResolveTiers(t *testing.T) {
	c := New("")

	// Year token beats a plain segment prefix regardless of order.
	label, _, ok := c.Resolve([]string{"AI-9Z", "AF-1C-2026"})
	require.True(t, ok)
	assert.Equal(t, "AF-1C-2026", label)

	// Segment prefix beats an arbitrary first candidate.
	label, _, ok = c.Resolve([]string{"TURMA ESPECIAL", "EI-G4"})
	require.True(t, ok)
	assert.Equal(t, "EI-G4", label)

	// Fallback: first survivor wins.
	label, _, ok = c.Resolve([]string{"TURMA ESPECIAL", "OUTRA TURMA"})
	require.True(t, ok)
	assert.Equal(t, "TURMA ESPECIAL", label)

	// Ties always favor the first candidate in original order.
	label, _, ok = c.Resolve([]string{"AI-2A-2026", "AF-1C-2026"})
	require.True(t, ok)
	assert.Equal(t, "AI-2A-2026", label)
}

func TestBucketFor(t *testing.T) {
	c := New("")
	cases := []struct {
		label string
		want  Bucket
	}{
		{"EI-G3A-2026", BucketInfantil},
		{"G4A-2026", BucketInfantil},
		{"1B", BucketPrimeiroAno},
		{"1A-2026", BucketPrimeiroAno},
		{"10A-2026", BucketFundamental}, // digit run disqualifies first grade
		{"AI-2A-T-2026", BucketFundamental},
		{"AF-5C", BucketFundamental},
		{"9Z-2026", BucketFundamental},
		{"", BucketDefault},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, c.BucketFor(tc.label), "label %q", tc.label)
	}
}

func TestStale(t *testing.T) {
	c := New("")
	c.Now = fixedYear(2025)

	assert.True(t, c.Stale("AI-2A-2023"))
	assert.False(t, c.Stale("AI-2A-2025"))
	assert.False(t, c.Stale("AI-2A-2026"))
	assert.False(t, c.Stale("1B")) // no year token, never stale
}

func TestBuckets(t *testing.T) {
	assert.Len(t, Buckets(), 4)
}
