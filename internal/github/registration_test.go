package github_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runner-hook/internal/github"
	"runner-hook/internal/secrets"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore map[string]string

func (m mockStore) GetSecret(ctx context.Context, id string) (string, error) {
	v, ok := m[id]
	if !ok {
		return "", secrets.ErrSecretNotFound
	}
	return v, nil
}

type recordedRequest struct {
	method string
	path   string
	auth   string
	accept string
}

type recorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (r *recorder) all() []recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedRequest(nil), r.requests...)
}

func githubServer(t *testing.T, status int, body string) (*httptest.Server, *recorder) {
	rec := &recorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.requests = append(rec.requests, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
			accept: r.Header.Get("Accept"),
		})
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, rec
}

func newClient(store mockStore) *github.Client {
	return github.NewClient(store)
}

func TestRegistrationToken(t *testing.T) {
	server, requests := githubServer(t, http.StatusCreated, `{"token": "supersecrettoken", "expires_at": "2020-01-22T12:13:35.123-08:00"}`)
	client := newClient(mockStore{"testingsecret": `{"token": "supersecretoken"}`})

	token, err := client.RegistrationToken(context.Background(), github.Settings{
		APIURL:             server.URL + "/api/v3/",
		CredentialSecretID: "testingsecret",
	}, "my-cool-org/builder")
	require.NoError(t, err)

	assert.Equal(t, "supersecrettoken", token.Token)
	assert.True(t, token.ExpiresAt.Equal(time.Date(2020, 1, 22, 20, 13, 35, 123000000, time.UTC)))

	require.Len(t, requests.all(), 1)
	req := requests.all()[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/api/v3/repos/my-cool-org/builder/actions/runners/registration-token", req.path)
	assert.Equal(t, "Bearer supersecretoken", req.auth)
	assert.Equal(t, "application/vnd.github+json", req.accept)
}

func TestRegistrationTokenUnparseableExpiry(t *testing.T) {
	server, _ := githubServer(t, http.StatusCreated, `{"token": "supersecrettoken", "expires_at": "tomorrow" }`)
	client := newClient(mockStore{"testingsecret": `{"token": "supersecretoken"}`})

	token, err := client.RegistrationToken(context.Background(), github.Settings{APIURL: server.URL, CredentialSecretID: "testingsecret"}, "my-cool-org/builder")
	require.NoError(t, err)
	assert.Equal(t, "supersecrettoken", token.Token)
	assert.True(t, token.ExpiresAt.IsZero())
}

func TestRegistrationTokenAPIFailure(t *testing.T) {
	server, requests := githubServer(t, http.StatusUnauthorized, `bad auth`)
	client := newClient(mockStore{"testingsecret": `{"token": "supersecretoken"}`})

	_, err := client.RegistrationToken(context.Background(), github.Settings{APIURL: server.URL, CredentialSecretID: "testingsecret"}, "my-cool-org/builder")
	require.ErrorIs(t, err, github.ErrRegistration)
	assert.ErrorContains(t, err, "unable to generate runner registration")

	var rerr *github.RegistrationError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, http.StatusUnauthorized, rerr.StatusCode)
	assert.Equal(t, "bad auth", rerr.Body)

	assert.Len(t, requests.all(), 1, "failed exchanges must not be retried")
}

func TestRegistrationTokenOKIsNotCreated(t *testing.T) {
	server, _ := githubServer(t, http.StatusOK, `{"token": "supersecrettoken"}`)
	client := newClient(mockStore{"testingsecret": `{"token": "supersecretoken"}`})

	_, err := client.RegistrationToken(context.Background(), github.Settings{APIURL: server.URL, CredentialSecretID: "testingsecret"}, "my-cool-org/builder")
	assert.ErrorIs(t, err, github.ErrRegistration)
}

func TestRegistrationTokenMissingToken(t *testing.T) {
	server, _ := githubServer(t, http.StatusCreated, `{"expires_at": "2020-01-22T12:13:35.123-08:00"}`)
	client := newClient(mockStore{"testingsecret": `{"token": "supersecretoken"}`})

	_, err := client.RegistrationToken(context.Background(), github.Settings{APIURL: server.URL, CredentialSecretID: "testingsecret"}, "my-cool-org/builder")
	assert.ErrorIs(t, err, github.ErrRegistration)
}

func TestRegistrationTokenSecretErrors(t *testing.T) {
	server, requests := githubServer(t, http.StatusCreated, `{"token": "supersecrettoken"}`)

	tests := []struct {
		name    string
		store   mockStore
		wantErr error
	}{
		{"MissingSecret", mockStore{}, secrets.ErrSecretNotFound},
		{"NotJSON", mockStore{"testingsecret": "supersecretoken"}, github.ErrSecretFormat},
		{"MissingTokenField", mockStore{"testingsecret": `{"pat": "supersecretoken"}`}, github.ErrSecretFormat},
		{"EmptyToken", mockStore{"testingsecret": `{"token": ""}`}, github.ErrSecretFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newClient(tt.store).RegistrationToken(context.Background(), github.Settings{APIURL: server.URL, CredentialSecretID: "testingsecret"}, "my-cool-org/builder")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Empty(t, requests.all(), "github must not be called without a valid credential")
}

func TestRegistrationTokenInvalidRepository(t *testing.T) {
	server, requests := githubServer(t, http.StatusCreated, `{"token": "supersecrettoken"}`)
	client := newClient(mockStore{"testingsecret": `{"token": "supersecretoken"}`})

	for _, repo := range []string{"", "builder", "/builder", "my-cool-org/", "a/b/c"} {
		_, err := client.RegistrationToken(context.Background(), github.Settings{APIURL: server.URL, CredentialSecretID: "testingsecret"}, repo)
		assert.ErrorIs(t, err, github.ErrRegistration, repo)
	}
	assert.Empty(t, requests.all())
}

func TestRegistrationTokenTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	client := newClient(mockStore{"testingsecret": `{"token": "supersecretoken"}`})
	_, err := client.RegistrationToken(context.Background(), github.Settings{
		APIURL:             server.URL,
		CredentialSecretID: "testingsecret",
		Timeout:            50 * time.Millisecond,
	}, "my-cool-org/builder")
	assert.ErrorIs(t, err, github.ErrRegistration)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegistrationTokenTransportFailure(t *testing.T) {
	server, _ := githubServer(t, http.StatusCreated, `{"token": "supersecrettoken"}`)
	url := server.URL
	server.Close()

	client := newClient(mockStore{"testingsecret": `{"token": "supersecretoken"}`})
	_, err := client.RegistrationToken(context.Background(), github.Settings{APIURL: url, CredentialSecretID: "testingsecret"}, "my-cool-org/builder")
	assert.ErrorIs(t, err, github.ErrRegistration)
}
