package students

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chamada/internal/classify"
	"chamada/internal/sophia"
)

// fixture mirrors the upstream /api/v1/alunos payload shape.
var fixture = []map[string]any{
	{"codigo": 101, "nome": "Ana Silva", "turmas": []map[string]string{{"descricao": "AI-2A-T-2026"}}},
	{"codigo": 102, "nome": "Mariana Souza", "turmas": []map[string]string{{"descricao": "EM-1A-2026"}}},
	{"codigo": 103, "nome": "Âna Costa", "turmas": []map[string]string{{"descricao": "EI-G4-2026"}}},
	{"codigo": 101, "nome": "Ana Silva", "turmas": []map[string]string{{"descricao": "AI-2A-T-2026"}}}, // duplicate
	{"codigo": 105, "nome": "Bruno Lima", "turmas": []map[string]string{{"descricao": "1B"}}},
	{"codigo": 106, "nome": "Ana Clara", "turmas": []map[string]string{{"descricao": "FUTSAL"}}},
	{"codigo": 107, "nome": "Ana Antiga", "turmas": []map[string]string{{"descricao": "AI-3B-2023"}}},
}

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/Autenticacao", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("test-token"))
	})
	mux.HandleFunc("/api/v1/alunos", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("token") != "test-token" {
			http.Error(w, "no token", http.StatusUnauthorized)
			return
		}
		out := fixture
		if code := r.URL.Query().Get("Codigo"); code != "" {
			out = nil
			for _, aluno := range fixture {
				if jsonNum(aluno["codigo"]) == code {
					out = append(out, aluno)
				}
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	mux.HandleFunc("/api/v1/alunos/101/Fotos/FotosReduzida", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"foto": "base64-ana"})
	})
	mux.HandleFunc("/api/v1/alunos/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/Responsaveis") {
			_ = json.NewEncoder(w).Encode([]map[string]any{{"codigo": 900, "nome": "Clara Silva", "parentesco": "Mãe"}})
			return
		}
		// Every other photo request fails; that must not fail the search.
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func jsonNum(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func newService(t *testing.T, baseURL string) *Service {
	t.Helper()
	classifier := classify.New("EM")
	classifier.Now = func() time.Time { return time.Date(2026, time.April, 1, 9, 0, 0, 0, time.UTC) }

	client := sophia.New(baseURL)
	tokens := sophia.NewTokenCache(client, sophia.Credentials{User: "svc", Password: "pw"}, &sophia.MemoryTokenStore{}, 0, 0)
	return NewService(client, tokens, classifier, 4, time.Second)
}

func TestSearchFiltersFixture(t *testing.T) {
	svc := newService(t, newUpstream(t).URL)

	got, err := svc.Search(context.Background(), "ana", "TODOS")
	require.NoError(t, err)

	ids := make(map[string]Student)
	for _, st := range got {
		_, dup := ids[st.ID]
		require.False(t, dup, "duplicate id %s", st.ID)
		ids[st.ID] = st
	}

	// 101 matches, 103 matches accent-insensitively. 102 is excluded (EM),
	// 105 fails the name match, 106 is extracurricular only, 107 is stale.
	require.Len(t, got, 2)
	assert.Contains(t, ids, "101")
	assert.Contains(t, ids, "103")

	require.NotNil(t, ids["101"].FotoURL)
	assert.Equal(t, "base64-ana", *ids["101"].FotoURL)
	assert.Nil(t, ids["103"].FotoURL) // photo endpoint fails for 103
}

func TestSearchGroupFilter(t *testing.T) {
	svc := newService(t, newUpstream(t).URL)

	got, err := svc.Search(context.Background(), "ana", "EI")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "103", got[0].ID)
	assert.Equal(t, "EI-G4-2026", got[0].Turma)
}

func TestSearchAllTermsRequired(t *testing.T) {
	svc := newService(t, newUpstream(t).URL)

	got, err := svc.Search(context.Background(), "silva ana", "TODOS")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "101", got[0].ID)
}

func TestSearchShortFragment(t *testing.T) {
	svc := newService(t, newUpstream(t).URL)

	got, err := svc.Search(context.Background(), " a ", "TODOS")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchAuthFailureIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc := newService(t, srv.URL)
	_, err := svc.Search(context.Background(), "ana", "TODOS")
	assert.ErrorIs(t, err, sophia.ErrUpstream)
}

func TestGetByCode(t *testing.T) {
	svc := newService(t, newUpstream(t).URL)

	st, err := svc.GetByCode(context.Background(), "101")
	require.NoError(t, err)
	assert.Equal(t, "Ana Silva", st.NomeCompleto)
	assert.Equal(t, "AI-2A-T-2026", st.Turma)

	// Eligible rules still apply on the single-student path.
	_, err = svc.GetByCode(context.Background(), "102")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.GetByCode(context.Background(), "999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGuardians(t *testing.T) {
	svc := newService(t, newUpstream(t).URL)

	guardians, err := svc.Guardians(context.Background(), "101")
	require.NoError(t, err)
	require.Len(t, guardians, 1)
	assert.Equal(t, "Clara Silva", guardians[0].Nome)
}
