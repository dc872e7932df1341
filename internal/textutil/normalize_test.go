package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"ANA", "ana"},
		{"É Joãozinho", "e joaozinho"},
		{"João  da Conceição", "joao  da conceicao"},
		{"AI-2A-T-2026", "ai-2a-t-2026"},
		{"ÀÁÂÃÄ çÇ üÜ", "aaaaa cc uu"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), "input %q", tc.in)
	}
}

func TestNormalizeMatchesAccentInsensitive(t *testing.T) {
	assert.Equal(t, Normalize("e joaozinho"), Normalize("É Joãozinho"))
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, s := range []string{"É Joãozinho", "turma ímpar 2026", "plain ascii"} {
		once := Normalize(s)
		assert.Equal(t, once, Normalize(once))
	}
}
