package oidc

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// fakeIssuer is a minimal OIDC issuer supporting the password and refresh_token grants,
// plus the account endpoints used by the provider.
type fakeIssuer struct {
	t      *testing.T
	server *httptest.Server
	key    *rsa.PrivateKey

	mu            sync.Mutex
	users         map[string]*fakeUser
	refresh       map[string]string // refresh token -> email
	seq           int
	refreshCalls  int
	revoked       []string
	failRevoke    bool
	omitIDToken   bool
	resetRequests []string
}

type fakeUser struct {
	sub      string
	password string
	name     string
	disabled bool
}

const testClientID = "companion-cli"

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	f := &fakeIssuer{
		t:       t,
		key:     key,
		users:   map[string]*fakeUser{},
		refresh: map[string]string{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", f.discovery)
	mux.HandleFunc("/jwks", f.jwks)
	mux.HandleFunc("/token", f.token)
	mux.HandleFunc("/userinfo", f.userinfo)
	mux.HandleFunc("/revoke", f.revoke)
	mux.HandleFunc("/accounts/register", f.register)
	mux.HandleFunc("/accounts/reset", f.reset)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeIssuer) URL() string { return f.server.URL }

func (f *fakeIssuer) addUser(email, password, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.users[email] = &fakeUser{sub: fmt.Sprintf("user-%d", f.seq), password: password, name: name}
}

func (f *fakeIssuer) disable(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[email].disabled = true
}

func (f *fakeIssuer) revokeAllRefreshTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh = map[string]string{}
}

func (f *fakeIssuer) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

func (f *fakeIssuer) discovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                f.URL(),
		"authorization_endpoint":                f.URL() + "/auth",
		"token_endpoint":                        f.URL() + "/token",
		"userinfo_endpoint":                     f.URL() + "/userinfo",
		"jwks_uri":                              f.URL() + "/jwks",
		"revocation_endpoint":                   f.URL() + "/revoke",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (f *fakeIssuer) jwks(w http.ResponseWriter, _ *http.Request) {
	pub := f.key.PublicKey
	writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "test-key",
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func (f *fakeIssuer) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var email string
	switch r.PostForm.Get("grant_type") {
	case "password":
		email = r.PostForm.Get("username")
		u, ok := f.users[email]
		switch {
		case !ok:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "User not found"})
			return
		case u.disabled:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Account disabled"})
			return
		case u.password != r.PostForm.Get("password"):
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_grant", "error_description": "Invalid user credentials"})
			return
		}
	case "refresh_token":
		f.refreshCalls++
		rt := r.PostForm.Get("refresh_token")
		var ok bool
		email, ok = f.refresh[rt]
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Token is not active"})
			return
		}
		delete(f.refresh, rt)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	u := f.users[email]
	f.seq++
	rt := fmt.Sprintf("rt-%d", f.seq)
	f.refresh[rt] = email
	body := map[string]any{
		"access_token":  fmt.Sprintf("at-%d", f.seq),
		"token_type":    "Bearer",
		"expires_in":    300,
		"refresh_token": rt,
	}
	if !f.omitIDToken {
		body["id_token"] = f.signIDToken(u, email, f.seq)
	}
	writeJSON(w, http.StatusOK, body)
}

func (f *fakeIssuer) signIDToken(u *fakeUser, email string, seq int) string {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   f.URL(),
		"aud":   testClientID,
		"sub":   u.sub,
		"email": email,
		"name":  u.name,
		"sid":   fmt.Sprintf("sid-%s", u.sub),
		"jti":   fmt.Sprintf("id-%d", seq),
		"iat":   now.Unix(),
		"exp":   now.Add(5 * time.Minute).Unix(),
	})
	tok.Header["kid"] = "test-key"
	signed, err := tok.SignedString(f.key)
	if err != nil {
		f.t.Fatalf("sign id token: %v", err)
	}
	return signed
}

func (f *fakeIssuer) userinfo(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for email, u := range f.users {
		writeJSON(w, http.StatusOK, map[string]string{"sub": u.sub, "email": email, "preferred_username": u.name})
		return
	}
	w.WriteHeader(http.StatusUnauthorized)
}

func (f *fakeIssuer) revoke(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRevoke {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	tok := r.PostForm.Get("token")
	f.revoked = append(f.revoked, tok)
	delete(f.refresh, tok)
	w.WriteHeader(http.StatusOK)
}

func (f *fakeIssuer) register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	f.mu.Lock()
	_, exists := f.users[body.Email]
	f.mu.Unlock()
	if exists {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "email_in_use"})
		return
	}
	f.addUser(body.Email, body.Password, body.DisplayName)
	w.WriteHeader(http.StatusCreated)
}

func (f *fakeIssuer) reset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[body.Email]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "user_not_found"})
		return
	}
	f.resetRequests = append(f.resetRequests, body.Email)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
