package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"credreg/internal/app"
	"credreg/internal/platform/config"
	"credreg/internal/registry/directory"
	id "credreg/pkg/domain"
)

// actors are the callers feature files refer to by name.
var actors = map[string]id.Caller{
	"ministry":       {Identity: "ministry", Role: id.RoleAuthority},
	"uni1-registrar": {Identity: "uni1-registrar", Role: id.RoleInstitution, InstitutionID: "I1"},
	"uni2-registrar": {Identity: "uni2-registrar", Role: id.RoleInstitution, InstitutionID: "I2"},
	"validator-a":    {Identity: "validator-a", Role: id.RoleTrackA},
	"validator-a2":   {Identity: "validator-a2", Role: id.RoleTrackA},
	"validator-b":    {Identity: "validator-b", Role: id.RoleTrackB},
	"validator-b2":   {Identity: "validator-b2", Role: id.RoleTrackB},
}

// Clock is a settable registry clock shared with the in-process server.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestContext holds state between test steps
type TestContext struct {
	App              *app.App
	Server           *httptest.Server
	Clock            *Clock
	HTTPClient       *http.Client
	LastResponse     *http.Response
	LastResponseBody []byte
	Saved            map[string]any
}

// NewTestContext starts an in-process registry on a memory ledger with a
// static role directory.
func NewTestContext() (*TestContext, error) {
	self := func(c id.Caller) string { return c.Identity.String() }
	dir, err := directory.NewStatic(directory.File{
		Authorities: []string{self(actors["ministry"])},
		Institutions: map[string][]string{
			"I1": {self(actors["uni1-registrar"])},
			"I2": {self(actors["uni2-registrar"])},
		},
		TrackA: []string{self(actors["validator-a"]), self(actors["validator-a2"])},
		TrackB: []string{self(actors["validator-b"]), self(actors["validator-b2"])},
	})
	if err != nil {
		return nil, err
	}

	clock := &Clock{now: time.Now().UTC().Truncate(time.Second)}
	cfg := config.Server{
		Environment:    "e2e",
		TxTimeout:      5 * time.Second,
		JWTSigningKey:  config.DevSigningKey,
		JWTIssuer:      config.DefaultIssuer,
		JWTAudience:    config.DefaultAudience,
		TokenTTL:       time.Hour,
		MaxBatchVerify: 100,
	}
	a, err := app.New(context.Background(), cfg, slog.New(slog.DiscardHandler),
		app.WithRegistry(prometheus.NewRegistry()),
		app.WithDirectory(dir),
		app.WithClock(clock.Now))
	if err != nil {
		return nil, err
	}

	srv := httptest.NewServer(a.Router)
	return &TestContext{
		App:        a,
		Server:     srv,
		Clock:      clock,
		HTTPClient: srv.Client(),
		Saved:      map[string]any{},
	}, nil
}

// Close stops the server and releases the registry.
func (tc *TestContext) Close() error {
	tc.Server.Close()
	return tc.App.Close()
}

// TokenFor mints a bearer token for a named actor.
func (tc *TestContext) TokenFor(actor string) (string, error) {
	c, ok := actors[actor]
	if !ok {
		return "", fmt.Errorf("unknown actor %q", actor)
	}
	return tc.App.Tokens.IssueCallerToken(context.Background(), c)
}

// Now reports the registry clock.
func (tc *TestContext) Now() time.Time { return tc.Clock.Now() }

// AdvanceClock moves the registry clock forward.
func (tc *TestContext) AdvanceClock(d time.Duration) { tc.Clock.Advance(d) }

// POSTAs makes a POST request on behalf of actor, or anonymously for "".
func (tc *TestContext) POSTAs(actor, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	headers := map[string]string{"Content-Type": "application/json"}
	if actor != "" {
		token, err := tc.TokenFor(actor)
		if err != nil {
			return err
		}
		headers["Authorization"] = "Bearer " + token
	}
	return tc.do(http.MethodPost, path, bytes.NewReader(data), headers)
}

// GET makes a GET request and stores the response
func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.do(http.MethodGet, path, nil, headers)
}

func (tc *TestContext) do(method, path string, body io.Reader, headers map[string]string) error {
	req, err := http.NewRequestWithContext(context.Background(), method, tc.Server.URL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}

	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	return nil
}

// GetResponseField extracts a field from the JSON response
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var data map[string]any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	value, ok := data[field]
	if !ok {
		return nil, fmt.Errorf("field %s not found in response", field)
	}
	return value, nil
}

// ResponseContains checks if the response body contains a field or text
func (tc *TestContext) ResponseContains(text string) bool {
	return strings.Contains(string(tc.LastResponseBody), text)
}

func (tc *TestContext) Save(key string, value any) { tc.Saved[key] = value }

func (tc *TestContext) Recall(key string) (any, bool) {
	v, ok := tc.Saved[key]
	return v, ok
}

func (tc *TestContext) GetLastResponseStatus() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.LastResponseBody
}
