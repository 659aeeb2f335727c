package metabase

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	// SessionHeader carries the session token on every API request.
	SessionHeader = "X-Metabase-Session"

	DefaultTimeout = 100 * time.Second
)

// TokenStore persists session tokens across runs. Login attempts are rate
// limited by Metabase, so a stored token is always tried first.
type TokenStore interface {
	LoadToken(ctx context.Context, instance, username string) (string, error)
	SaveToken(ctx context.Context, instance, username, token string) error
}

// SessionConfig configures a Session.
type SessionConfig struct {
	BaseURL            string
	Username           string
	Password           string
	Timeout            time.Duration
	InsecureSkipVerify bool
	// RequestsPerSecond paces every request, including logins. Zero disables pacing.
	RequestsPerSecond float64
	Store             TokenStore
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// Session sends authenticated requests to one Metabase instance. It owns the
// cached session token; concurrent callers share a single login.
type Session struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	limiter  *rate.Limiter
	store    TokenStore
	logger   *slog.Logger

	mu        sync.Mutex
	token     string
	storeRead bool
	persisted string
	logins    int

	group singleflight.Group
}

// NewSession builds a Session. No request is sent until first use.
func NewSession(cfg SessionConfig) *Session {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-in
		}
		client = &http.Client{Timeout: timeout, Transport: transport}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		http:     client,
		store:    cfg.Store,
		logger:   logger,
	}
	if cfg.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return s
}

// BaseURL returns the instance URL without a trailing slash.
func (s *Session) BaseURL() string {
	return s.baseURL
}

// Logins returns how many times the session has logged in.
func (s *Session) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// Token returns the current token, obtaining one if needed.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	tok := s.token
	s.mu.Unlock()
	if tok != "" {
		return tok, nil
	}

	v, err, _ := s.group.Do("token", func() (any, error) {
		s.mu.Lock()
		if s.token != "" {
			tok := s.token
			s.mu.Unlock()
			return tok, nil
		}
		readStore := !s.storeRead && s.store != nil
		s.storeRead = true
		s.mu.Unlock()

		if readStore {
			stored, err := s.store.LoadToken(ctx, s.baseURL, s.username)
			if err != nil {
				s.logger.Warn("failed to load stored session token", "error", err)
			} else if stored != "" {
				s.swap(stored, true)
				return stored, nil
			}
		}

		fresh, err := s.login(ctx)
		if err != nil {
			return "", err
		}
		s.swap(fresh, false)
		return fresh, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Session) swap(token string, fromStore bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	if fromStore {
		s.persisted = token
	}
}

// invalidate drops the cached token unless another caller already replaced it.
func (s *Session) invalidate(failed string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == failed {
		s.token = ""
	}
}

func (s *Session) login(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"username": s.username,
		"password": s.password,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal login request: %w", err)
	}

	loginURL := s.baseURL + "/api/session"
	status, body, err := s.send(ctx, http.MethodPost, loginURL, payload, "")
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", &LoginError{URL: loginURL, StatusCode: status, Body: string(body)}
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &ShapeError{Kind: "session", Body: string(body), Err: err}
	}
	if resp.ID == "" {
		return "", &ShapeError{Kind: "session", Body: string(body), Err: fmt.Errorf("missing session id")}
	}

	s.mu.Lock()
	s.logins++
	s.mu.Unlock()
	s.logger.Debug("logged in to metabase", "url", s.baseURL, "username", s.username)
	return resp.ID, nil
}

// Do sends an authenticated request and returns the response body. A body
// value of nil sends no payload. A 401 invalidates the token and the request
// is resent exactly once with a fresh one.
func (s *Session) Do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s %s request: %w", method, path, err)
		}
	}
	reqURL := s.baseURL + path

	tok, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}
	status, respBody, err := s.send(ctx, method, reqURL, payload, tok)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		s.logger.Debug("session token rejected, renewing", "method", method, "url", reqURL)
		s.invalidate(tok)
		tok, err = s.Token(ctx)
		if err != nil {
			return nil, err
		}
		status, respBody, err = s.send(ctx, method, reqURL, payload, tok)
		if err != nil {
			return nil, err
		}
	}

	if status < 200 || status >= 300 {
		return nil, &APIError{Method: method, URL: reqURL, StatusCode: status, Body: string(respBody)}
	}

	s.persist(ctx, tok)
	return respBody, nil
}

func (s *Session) persist(ctx context.Context, tok string) {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	if s.persisted == tok {
		s.mu.Unlock()
		return
	}
	s.persisted = tok
	s.mu.Unlock()

	if err := s.store.SaveToken(ctx, s.baseURL, s.username, tok); err != nil {
		s.logger.Warn("failed to save session token", "error", err)
	}
}

func (s *Session) send(ctx context.Context, method, reqURL string, payload []byte, token string) (int, []byte, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(SessionHeader, token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, reqURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read %s %s response: %w", method, reqURL, err)
	}
	return resp.StatusCode, respBody, nil
}
