// Package gateway is the client transport. Every outbound call goes through
// it: it attaches the current access token and transparently recovers from a
// single expired-access-token failure by rotating the refresh token.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/santierhq/santier/client/tokens"
	"github.com/santierhq/santier/pkg/logger"
)

// DefaultTimeout bounds a single request. Without it a hung call would stall
// an entire sync drain pass.
const DefaultTimeout = 30 * time.Second

var (
	// ErrUnauthenticated is surfaced after a failed refresh or a second 401.
	// Local tokens are already cleared by then; the UI must force re-login.
	ErrUnauthenticated = errors.New("gateway: unauthenticated")
)

// APIError is a non-401 error response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway: %d %s: %s", e.Status, e.Code, e.Message)
}

// Config configures a Gateway.
type Config struct {
	BaseURL string
	Tokens  tokens.Storage
	Timeout time.Duration
	// OnUnauthenticated fires once per failed refresh, after local tokens
	// have been cleared.
	OnUnauthenticated func()
}

// Gateway is the single transport instance of a client. The refresh
// single-flight state is instance-scoped: only one logical client issues
// requests through a given Gateway.
type Gateway struct {
	baseURL           string
	http              *http.Client
	tokens            tokens.Storage
	onUnauthenticated func()
	log               *zap.Logger

	mu       sync.Mutex
	inflight *refreshFlight // non-nil while a refresh is in flight
}

// refreshFlight is one refresh attempt shared by every caller that hit a 401
// while it was running. The leader writes err before closing done, so waiters
// reading err after the close see exactly this flight's outcome.
type refreshFlight struct {
	done chan struct{}
	err  error
}

// New builds a Gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("gateway: base url is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("gateway: token storage is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Gateway{
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		http:              &http.Client{Timeout: timeout},
		tokens:            cfg.Tokens,
		onUnauthenticated: cfg.OnUnauthenticated,
		log:               logger.WithModule("gateway"),
	}, nil
}

// envelope mirrors the server's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Login authenticates and stores the issued pair. The call is public: no
// bearer token is attached and a 401 is a credential failure, not a trigger
// for the refresh protocol.
func (g *Gateway) Login(ctx context.Context, email, password string) error {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})

	resp, err := g.send(ctx, http.MethodPost, "/api/auth/login", "application/json", bytes.NewReader(body), false)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	env, err := decodeEnvelope(resp)
	if err != nil {
		return err
	}

	var data struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return fmt.Errorf("gateway: decode login response: %w", err)
	}

	return g.tokens.SetTokens(data.AccessToken, data.RefreshToken)
}

// Call performs an authenticated JSON request and returns the envelope data.
// On a 401 it runs the refresh protocol and retries the original call exactly
// once; a second 401 surfaces as ErrUnauthenticated.
func (g *Gateway) Call(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("gateway: encode body: %w", err)
		}
	}

	do := func() (*http.Response, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		return g.send(ctx, method, path, "application/json", reader, true)
	}

	return g.withRetry(ctx, do)
}

// Upload sends a file as multipart form data under the "file" field, with the
// same refresh-and-retry contract as Call.
func (g *Gateway) Upload(ctx context.Context, path, fileName string, content []byte) (json.RawMessage, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(fileName))
	if err != nil {
		return nil, fmt.Errorf("gateway: build multipart: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("gateway: write multipart: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("gateway: close multipart: %w", err)
	}

	body := buf.Bytes()
	contentType := writer.FormDataContentType()

	do := func() (*http.Response, error) {
		return g.send(ctx, http.MethodPost, path, contentType, bytes.NewReader(body), true)
	}

	return g.withRetry(ctx, do)
}

func (g *Gateway) withRetry(ctx context.Context, do func() (*http.Response, error)) (json.RawMessage, error) {
	resp, err := do()
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()

		if err := g.refresh(ctx); err != nil {
			return nil, ErrUnauthenticated
		}

		resp, err = do()
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			// A second 401 after a successful rotation means the server
			// rejects us outright. Fail closed, no further retries.
			_ = resp.Body.Close()
			return nil, ErrUnauthenticated
		}
	}
	defer resp.Body.Close()

	env, err := decodeEnvelope(resp)
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// refresh rotates the refresh token, letting concurrent callers share one
// in-flight attempt. All waiters observe the same outcome: everyone proceeds
// on success, everyone fails on failure.
func (g *Gateway) refresh(ctx context.Context) error {
	g.mu.Lock()
	if f := g.inflight; f != nil {
		g.mu.Unlock()
		select {
		case <-f.done:
			return f.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f := &refreshFlight{done: make(chan struct{})}
	g.inflight = f
	g.mu.Unlock()

	f.err = g.doRefresh(ctx)

	g.mu.Lock()
	g.inflight = nil
	g.mu.Unlock()
	close(f.done)

	return f.err
}

func (g *Gateway) doRefresh(ctx context.Context) error {
	refreshToken, err := g.tokens.GetRefreshToken()
	if err != nil || refreshToken == "" {
		return g.failClosed(errors.New("gateway: no refresh token"))
	}

	body, _ := json.Marshal(map[string]string{"refreshToken": refreshToken})
	resp, err := g.send(ctx, http.MethodPost, "/api/auth/refresh", "application/json", bytes.NewReader(body), false)
	if err != nil {
		// Network failure during refresh is indistinguishable from rejection
		// for the callers waiting on us; they all fail together.
		return g.failClosed(err)
	}
	defer resp.Body.Close()

	env, err := decodeEnvelope(resp)
	if err != nil {
		return g.failClosed(err)
	}

	var data struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return g.failClosed(fmt.Errorf("gateway: decode refresh response: %w", err))
	}

	if err := g.tokens.SetTokens(data.AccessToken, data.RefreshToken); err != nil {
		return g.failClosed(err)
	}

	g.log.Debug("access token rotated")
	return nil
}

// failClosed clears local tokens and notifies the app exactly once per failed
// refresh; a half-authenticated state is never left behind.
func (g *Gateway) failClosed(cause error) error {
	_ = g.tokens.ClearTokens()
	if g.onUnauthenticated != nil {
		g.onUnauthenticated()
	}
	g.log.Warn("refresh failed, tokens cleared", zap.Error(cause))
	return cause
}

func (g *Gateway) send(ctx context.Context, method, path, contentType string, body io.Reader, authenticated bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("gateway: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	if authenticated {
		access, err := g.tokens.GetAccessToken()
		if err != nil {
			return nil, fmt.Errorf("gateway: read access token: %w", err)
		}
		if access != "" {
			req.Header.Set("Authorization", "Bearer "+access)
		}
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: %s %s: %w", method, path, err)
	}
	return resp, nil
}

func decodeEnvelope(resp *http.Response) (*envelope, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway: read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("gateway: decode response (%d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode >= 400 || !env.Success {
		apiErr := &APIError{Status: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return nil, apiErr
	}

	return &env, nil
}
