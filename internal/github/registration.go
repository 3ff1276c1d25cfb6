package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"runner-hook/internal/secrets"

	"github.com/go-resty/resty/v2"
)

var (
	ErrSecretFormat = errors.New("invalid github credential secret")
	ErrRegistration = errors.New("unable to generate runner registration")
)

// RegistrationError is returned when GitHub answers the registration token
// request with anything other than 201 Created.
type RegistrationError struct {
	StatusCode int
	Body       string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("%v: status %d: %s", ErrRegistration, e.StatusCode, e.Body)
}

func (e *RegistrationError) Is(target error) bool {
	return target == ErrRegistration
}

type Settings struct {
	APIURL             string
	CredentialSecretID string
	Timeout            time.Duration
}

type RegistrationToken struct {
	Token     string
	ExpiresAt time.Time
}

type credentialSecret struct {
	Token string `json:"token"`
}

type registrationTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

type Client struct {
	client  *resty.Client
	secrets secrets.Store
}

// NewClient returns a registration token client. Requests are never retried:
// a failed exchange is reported to the caller as is.
func NewClient(store secrets.Store) *Client {
	return &Client{
		client: resty.New().
			SetRetryCount(0).
			SetHeader("Accept", "application/vnd.github+json").
			SetHeader("X-GitHub-Api-Version", "2022-11-28"),
		secrets: store,
	}
}

// RegistrationToken creates a self-hosted runner registration token for
// repoFullName ("owner/repo").
// https://docs.github.com/en/rest/actions/self-hosted-runners#create-a-registration-token-for-a-repository
func (c *Client) RegistrationToken(ctx context.Context, settings Settings, repoFullName string) (RegistrationToken, error) {
	apiToken, err := c.loadCredential(ctx, settings.CredentialSecretID)
	if err != nil {
		return RegistrationToken{}, err
	}

	owner, repo, ok := strings.Cut(repoFullName, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return RegistrationToken{}, fmt.Errorf("%w: invalid repository name %q", ErrRegistration, repoFullName)
	}

	if settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.Timeout)
		defer cancel()
	}

	res, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(apiToken).
		SetPathParams(map[string]string{"owner": owner, "repo": repo}).
		Post(strings.TrimRight(settings.APIURL, "/") + "/repos/{owner}/{repo}/actions/runners/registration-token")
	if err != nil {
		slog.Error("error requesting registration token", "repo", repoFullName, "error", err)
		return RegistrationToken{}, fmt.Errorf("%w: %w", ErrRegistration, err)
	}

	if res.StatusCode() != http.StatusCreated {
		slog.Error("error requesting registration token", "repo", repoFullName, "status_code", res.StatusCode(), "body", res.String())
		return RegistrationToken{}, &RegistrationError{StatusCode: res.StatusCode(), Body: res.String()}
	}

	var body registrationTokenResponse
	if err := json.Unmarshal(res.Body(), &body); err != nil {
		slog.Error("error parsing registration token response", "repo", repoFullName, "error", err)
		return RegistrationToken{}, fmt.Errorf("%w: invalid response body: %w", ErrRegistration, err)
	}
	if body.Token == "" {
		return RegistrationToken{}, fmt.Errorf("%w: response did not contain a token", ErrRegistration)
	}

	slog.Info("runner registration token created", "repo", repoFullName, "expires_at", body.ExpiresAt)

	token := RegistrationToken{Token: body.Token}
	if expiresAt, err := time.Parse(time.RFC3339, body.ExpiresAt); err == nil {
		token.ExpiresAt = expiresAt
	} else {
		slog.Warn("unable to parse registration token expiry", "repo", repoFullName, "expires_at", body.ExpiresAt)
	}
	return token, nil
}

func (c *Client) loadCredential(ctx context.Context, secretID string) (string, error) {
	raw, err := c.secrets.GetSecret(ctx, secretID)
	if err != nil {
		slog.Error("unable to retrieve github secret", "error", err)
		return "", fmt.Errorf("%w: %w", ErrRegistration, err)
	}

	var secret credentialSecret
	if err := json.Unmarshal([]byte(raw), &secret); err != nil {
		slog.Error("github secret is not valid json")
		return "", fmt.Errorf("%w: value is not json", ErrSecretFormat)
	}
	if secret.Token == "" {
		slog.Error("github secret has no token field")
		return "", fmt.Errorf("%w: missing token field", ErrSecretFormat)
	}
	return secret.Token, nil
}
