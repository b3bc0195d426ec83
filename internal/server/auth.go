package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var errNoSession = errors.New("no valid session")

// Verifier turns a bearer token from the sign-in provider into the
// email address it was issued for.
type Verifier interface {
	Verify(ctx context.Context, token string) (email string, err error)
}

// httpVerifier posts the token to an external identity endpoint and
// reads the verified email back.
type httpVerifier struct {
	url    string
	client *http.Client
}

func NewHTTPVerifier(url string) Verifier {
	return &httpVerifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (v *httpVerifier) Verify(ctx context.Context, token string) (string, error) {
	body, _ := json.Marshal(map[string]string{"token": token})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("verifying token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errNoSession
	}

	var out struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Email == "" {
		return "", errNoSession
	}
	return strings.ToLower(out.Email), nil
}

// StaticVerifier maps tokens to emails directly. Test use only.
type StaticVerifier map[string]string

func (v StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	email, ok := v[token]
	if !ok {
		return "", errNoSession
	}
	return email, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(auth, "Bearer ")
	if !found || token == "" {
		return "", errNoSession
	}
	return token, nil
}

// emailAllowed checks the address against the configured domain
// allowlist. An empty allowlist admits everyone.
func emailAllowed(email string, domains []string) bool {
	if len(domains) == 0 {
		return true
	}
	_, domain, found := strings.Cut(email, "@")
	if !found {
		return false
	}
	for _, d := range domains {
		if strings.EqualFold(domain, d) {
			return true
		}
	}
	return false
}
