// Package sophia talks to the SophiA school-management API: authentication,
// student search, photos and guardian data. The bearer token it needs is
// managed by TokenCache.
package sophia

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrUpstream wraps every network, timeout or non-2xx failure from the API.
var ErrUpstream = errors.New("sophia api unavailable")

// Aluno is a raw student record as returned by the API. Codigo may arrive as
// a number or a string depending on the endpoint.
type Aluno struct {
	Codigo json.Number `json:"codigo"`
	Nome   string      `json:"nome"`
	Turmas []Turma     `json:"turmas"`
}

// Turma is one enrollment entry attached to a student.
type Turma struct {
	Descricao string `json:"descricao"`
}

// Responsavel is a guardian registered for a student.
type Responsavel struct {
	Codigo     json.Number `json:"codigo"`
	Nome       string      `json:"nome"`
	Parentesco string      `json:"parentesco"`
}

// Client calls the SophiA web API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a client for the given base URL
// (https://{host}/SophiAWebApi/{tenant}).
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// Authenticate exchanges service credentials for a bearer token. The API
// returns the token as plain text in the response body.
func (c *Client) Authenticate(ctx context.Context, user, password string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	body, _ := json.Marshal(map[string]string{"usuario": user, "senha": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/v1/Autenticacao", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: auth request failed: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: auth returned %s: %s", ErrUpstream, resp.Status, string(raw))
	}

	token := string(bytes.TrimSpace(raw))
	if token == "" {
		return "", fmt.Errorf("%w: auth returned an empty token", ErrUpstream)
	}
	return token, nil
}

// SearchByName queries students whose name fuzzy-matches nameFragment.
// Results are raw and still need classification and name filtering.
func (c *Client) SearchByName(ctx context.Context, token, nameFragment string) ([]Aluno, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return c.listStudents(ctx, token, url.Values{"Nome": {nameFragment}})
}

// SearchByCode queries students by their exact registration code.
func (c *Client) SearchByCode(ctx context.Context, token, code string) ([]Aluno, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return c.listStudents(ctx, token, url.Values{"Codigo": {code}})
}

func (c *Client) listStudents(ctx context.Context, token string, params url.Values) ([]Aluno, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/v1/alunos?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: student query failed: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: student query returned %s: %s", ErrUpstream, resp.Status, string(raw))
	}

	var out []Aluno
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding student list: %v", ErrUpstream, err)
	}
	return out, nil
}

// Photo fetches a student's reduced photo as a base64 string. An empty
// string means the student has no photo on file; that is not an error.
func (c *Client) Photo(ctx context.Context, token, studentID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/v1/alunos/%s/Fotos/FotosReduzida", c.BaseURL, url.PathEscape(studentID)), nil)
	if err != nil {
		return "", err
	}
	c.setHeaders(req, token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: photo fetch failed: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil
	}

	var out struct {
		Foto string `json:"foto"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", nil
	}
	return out.Foto, nil
}

// Guardians lists the guardians registered for a student.
func (c *Client) Guardians(ctx context.Context, token, studentID string) ([]Responsavel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/v1/alunos/%s/Responsaveis", c.BaseURL, url.PathEscape(studentID)), nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: guardian query failed: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: guardian query returned %s: %s", ErrUpstream, resp.Status, string(raw))
	}

	var out []Responsavel
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding guardian list: %v", ErrUpstream, err)
	}
	return out, nil
}

// GuardianPhoto fetches a guardian's photo and returns the decoded bytes
// with a sniffed MIME type. Missing photo yields nil bytes and no error.
func (c *Client) GuardianPhoto(ctx context.Context, token, guardianID string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/v1/Responsaveis/%s/Foto", c.BaseURL, url.PathEscape(guardianID)), nil)
	if err != nil {
		return nil, "", err
	}
	c.setHeaders(req, token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: guardian photo fetch failed: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", nil
	}

	var out struct {
		Foto string `json:"foto"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Foto == "" {
		return nil, "", nil
	}

	data, err := base64.StdEncoding.DecodeString(out.Foto)
	if err != nil {
		return nil, "", fmt.Errorf("guardian photo is not valid base64: %w", err)
	}
	return data, http.DetectContentType(data), nil
}

func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("token", token)
	req.Header.Set("Accept", "application/json")
}
