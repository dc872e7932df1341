// Package students orchestrates the student search: upstream query,
// classification, name matching and concurrent photo fetching.
package students

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"chamada/internal/classify"
	"chamada/internal/sophia"
	"chamada/internal/textutil"
)

// ErrNotFound means no eligible student matched the requested code.
var ErrNotFound = errors.New("student not found")

// Student is one search result, shaped for the terminal frontend.
type Student struct {
	ID           string  `json:"id"`
	NomeCompleto string  `json:"nomeCompleto"`
	Turma        string  `json:"turma"`
	FotoURL      *string `json:"fotoUrl"`
	ChamadosHoje int     `json:"chamados_hoje"`
}

// Service combines the SophiA client, the token cache and the classifier.
type Service struct {
	client       *sophia.Client
	tokens       *sophia.TokenCache
	classifier   *classify.Classifier
	photoLimit   int
	photoTimeout time.Duration
}

// NewService builds a search service. photoLimit bounds the concurrent photo
// fan-out (default 8); photoTimeout bounds each individual fetch (default 5s).
func NewService(client *sophia.Client, tokens *sophia.TokenCache, classifier *classify.Classifier, photoLimit int, photoTimeout time.Duration) *Service {
	if photoLimit <= 0 {
		photoLimit = 8
	}
	if photoTimeout <= 0 {
		photoTimeout = 5 * time.Second
	}
	return &Service{
		client:       client,
		tokens:       tokens,
		classifier:   classifier,
		photoLimit:   photoLimit,
		photoTimeout: photoTimeout,
	}
}

// Search returns the students whose normalized full name contains every
// whitespace token of nameFragment, restricted by groupFilter ("TODOS" or a
// substring the resolved label must contain). Fragments under 2 characters
// return an empty result without touching the upstream. A token or upstream
// failure fails the whole search; only photo fetches degrade per student.
func (s *Service) Search(ctx context.Context, nameFragment, groupFilter string) ([]Student, error) {
	nameFragment = strings.TrimSpace(nameFragment)
	if utf8.RuneCountInString(nameFragment) < 2 {
		return nil, nil
	}

	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	alunos, err := s.client.SearchByName(ctx, token, nameFragment)
	if err != nil {
		return nil, err
	}

	group := textutil.Normalize(strings.TrimSpace(groupFilter))
	terms := strings.Fields(textutil.Normalize(nameFragment))

	var results []Student
	seen := make(map[string]bool)
	for _, aluno := range alunos {
		id := aluno.Codigo.String()
		if id == "" || seen[id] {
			continue
		}

		student, ok := s.eligible(aluno)
		if !ok {
			continue
		}
		if group != "" && group != "todos" && !strings.Contains(textutil.Normalize(student.Turma), group) {
			continue
		}
		if !matchesAllTerms(textutil.Normalize(student.NomeCompleto), terms) {
			continue
		}

		seen[id] = true
		results = append(results, student)
	}

	s.fetchPhotos(ctx, token, results)
	return results, nil
}

// GetByCode resolves a single student by registration code, applying the
// same classification and staleness rules but no group or name filtering.
func (s *Service) GetByCode(ctx context.Context, code string) (Student, error) {
	code = strings.TrimSpace(code)

	token, err := s.tokens.Token(ctx)
	if err != nil {
		return Student{}, err
	}

	alunos, err := s.client.SearchByCode(ctx, token, code)
	if err != nil {
		return Student{}, err
	}

	for _, aluno := range alunos {
		if aluno.Codigo.String() != code {
			continue
		}
		student, ok := s.eligible(aluno)
		if !ok {
			continue
		}
		out := []Student{student}
		s.fetchPhotos(ctx, token, out)
		return out[0], nil
	}
	return Student{}, ErrNotFound
}

// Guardians lists the guardians of a student.
func (s *Service) Guardians(ctx context.Context, studentID string) ([]sophia.Responsavel, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.Guardians(ctx, token, studentID)
}

// GuardianPhoto returns a guardian's photo bytes and MIME type; nil bytes
// when no photo is on file.
func (s *Service) GuardianPhoto(ctx context.Context, guardianID string) ([]byte, string, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, "", err
	}
	return s.client.GuardianPhoto(ctx, token, guardianID)
}

// eligible classifies the raw record and builds a Student, reporting whether
// the student may appear at all.
func (s *Service) eligible(aluno sophia.Aluno) (Student, bool) {
	var raws []string
	for _, turma := range aluno.Turmas {
		raws = append(raws, turma.Descricao)
	}
	label, _, ok := s.classifier.Resolve(classify.SplitCandidates(raws))
	if !ok || s.classifier.Stale(label) {
		return Student{}, false
	}

	nome := aluno.Nome
	if nome == "" {
		nome = "Nome desconhecido"
	}
	return Student{
		ID:           aluno.Codigo.String(),
		NomeCompleto: nome,
		Turma:        label,
	}, true
}

// fetchPhotos fills FotoURL in place, one bounded request per student. A
// failed or missing photo leaves the field nil and never fails the batch.
func (s *Service) fetchPhotos(ctx context.Context, token string, list []Student) {
	if len(list) == 0 {
		return
	}
	var g errgroup.Group
	g.SetLimit(s.photoLimit)
	for i := range list {
		i := i
		g.Go(func() error {
			photoCtx, cancel := context.WithTimeout(ctx, s.photoTimeout)
			defer cancel()
			if foto, err := s.client.Photo(photoCtx, token, list[i].ID); err == nil && foto != "" {
				list[i].FotoURL = &foto
			}
			return nil
		})
	}
	_ = g.Wait()
}

func matchesAllTerms(normalizedName string, terms []string) bool {
	for _, term := range terms {
		if !strings.Contains(normalizedName, term) {
			return false
		}
	}
	return true
}
