package krishi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenSource yields a bearer token to attach to outbound requests.
// The token is an opaque string; refresh and expiry are the issuer's
// concern.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

func (s StaticToken) Token() (string, error) {
	return string(s), nil
}

// TokenManager fetches tokens from an identity endpoint and caches
// them until shortly before expiry.
type TokenManager struct {
	endpoint      string
	headers       map[string]string
	refreshBuffer time.Duration
	httpClient    *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenManager(endpoint string, headers map[string]string, refreshBuffer time.Duration) *TokenManager {
	return &TokenManager{
		endpoint:      endpoint,
		headers:       headers,
		refreshBuffer: refreshBuffer,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (tm *TokenManager) Token() (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.token != "" && time.Now().Before(tm.expiresAt.Add(-tm.refreshBuffer)) {
		return tm.token, nil
	}
	return tm.refresh()
}

func (tm *TokenManager) refresh() (string, error) {
	req, err := http.NewRequest(http.MethodPost, tm.endpoint, bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range tm.headers {
		req.Header.Set(k, v)
	}

	resp, err := tm.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to refresh token: %s", resp.Status)
	}

	var data struct {
		Token     string `json:"token"`
		ExpiresAt int64  `json:"expiresAt"` // unix millis
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", err
	}
	if data.Token == "" {
		return "", fmt.Errorf("no token received")
	}

	tm.token = data.Token
	tm.expiresAt = time.UnixMilli(data.ExpiresAt)
	return tm.token, nil
}

func (tm *TokenManager) Clear() {
	tm.mu.Lock()
	tm.token = ""
	tm.expiresAt = time.Time{}
	tm.mu.Unlock()
}

const devTokenTTL = 10 * time.Minute

// MintDevToken signs a short-lived HS256 token for development against
// a local backend. Not for production identity.
func MintDevToken(secret, farmerID string) (string, time.Time, error) {
	if secret == "" {
		return "", time.Time{}, fmt.Errorf("secret cannot be empty")
	}
	expiresAt := time.Now().Add(devTokenTTL)

	claims := jwt.MapClaims{
		"sub": farmerID,
		"exp": expiresAt.Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// DecodeDevToken verifies a dev token and returns its claims.
func DecodeDevToken(token, secret string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
