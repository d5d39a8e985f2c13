package helpers

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/cookiejar"
	"testing"
)

func randInt(max int) int {
	n, _ := rand.Int(rand.Reader, big.NewInt(int64(max)))
	return int(n.Int64())
}

// GeneratePassword generates a 10 character password with a capital and special char
func GeneratePassword() string {
	const (
		lower   = "abcdefghijklmnopqrstuvwxyz"
		upper   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
		special = "!@#$%^&*"
		numbers = "0123456789"
		all     = lower + upper + special + numbers
	)

	password := make([]byte, 10)
	password[0] = upper[randInt(len(upper))]
	password[1] = special[randInt(len(special))]
	password[2] = numbers[randInt(len(numbers))]

	for i := 3; i < 10; i++ {
		password[i] = all[randInt(len(all))]
	}

	for i := range password {
		j := randInt(len(password))
		password[i], password[j] = password[j], password[i]
	}

	return string(password)
}

// SessionClient is an HTTP client bound to one session cookie jar, carrying
// the CSRF token the server issued for that session.
type SessionClient struct {
	BaseURL   string
	Client    *http.Client
	CSRFToken string
}

// NewSessionClient creates a cookie-jar client and fetches the initial CSRF
// token from the auth gateway.
func NewSessionClient(t *testing.T, baseURL string) *SessionClient {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("Failed to create cookie jar: %v", err)
	}

	sc := &SessionClient{
		BaseURL: baseURL,
		Client:  &http.Client{Jar: jar},
	}
	sc.RefreshCSRF(t)
	return sc
}

// RefreshCSRF fetches the session CSRF token from GET /api/auth/.
func (sc *SessionClient) RefreshCSRF(t *testing.T) {
	t.Helper()

	resp, err := sc.Client.Get(sc.BaseURL + "/api/auth")
	if err != nil {
		t.Fatalf("Failed to fetch CSRF token: %v", err)
	}

	var payload struct {
		CSRFToken string `json:"csrfToken"`
	}
	ParseJSON(t, resp, &payload)
	if payload.CSRFToken == "" {
		t.Fatal("Empty CSRF token from auth gateway")
	}
	sc.CSRFToken = payload.CSRFToken
}

// Do sends a request with the session's CSRF token attached.
func (sc *SessionClient) Do(t *testing.T, method, path string, body []byte, contentType string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, sc.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("X-CSRF-Token", sc.CSRFToken)

	resp, err := sc.Client.Do(req)
	if err != nil {
		t.Fatalf("Request %s %s failed: %v", method, path, err)
	}
	return resp
}

// PostJSON sends a JSON body with the session's CSRF token attached.
func (sc *SessionClient) PostJSON(t *testing.T, path string, payload interface{}) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	return sc.Do(t, http.MethodPost, path, body, "application/json")
}

// Register creates an account through the auth gateway and leaves the
// session logged in.
func (sc *SessionClient) Register(t *testing.T, username, email, password string) {
	t.Helper()

	resp := sc.PostJSON(t, "/api/auth", map[string]string{
		"action":   "register",
		"username": username,
		"email":    email,
		"password": password,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Registration of %s failed with status %d", username, resp.StatusCode)
	}
	resp.Body.Close()
}

// Login authenticates an existing account on this session.
func (sc *SessionClient) Login(t *testing.T, username, password string) {
	t.Helper()

	resp := sc.PostJSON(t, "/api/auth", map[string]string{
		"action":   "login",
		"username": username,
		"password": password,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Login of %s failed with status %d", username, resp.StatusCode)
	}
	resp.Body.Close()
}

// AcquireAccount registers a fresh account and returns its session client.
func AcquireAccount(t *testing.T, baseURL, username, email, password string) *SessionClient {
	t.Helper()

	sc := NewSessionClient(t, baseURL)
	sc.Register(t, username, email, password)
	return sc
}

// UniqueName suffixes a name with random digits so parallel runs do not
// collide on the unique username and email columns.
func UniqueName(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, randInt(1000000))
}
