package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tokmesh-client/internal/core/domain"
)

// identityServer is a fake identity service speaking the JSON protocol of
// remote.HTTPService.
type identityServer struct {
	*httptest.Server

	mu               sync.Mutex
	refreshStatus    int
	validateStatus   int
	refreshCalls     int
	lastRefreshToken string
	next             *domain.SessionPayload
}

func newIdentityServer(t *testing.T) *identityServer {
	t.Helper()
	s := &identityServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", s.handleRefresh)
	mux.HandleFunc("/auth/session", s.handleSession)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *identityServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCalls++
	s.lastRefreshToken = body.RefreshToken

	if s.refreshStatus != 0 {
		errorResponse(w, s.refreshStatus, "invalid_grant", "refresh token revoked")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"session": s.next})
}

func (s *identityServer) handleSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.validateStatus != 0 {
		errorResponse(w, s.validateStatus, "unauthorized", "token revoked")
		return
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	jsonResponse(w, http.StatusOK, map[string]any{
		"session": domain.SessionPayload{AccessToken: token, User: &domain.User{ID: "u-1"}},
	})
}

func (s *identityServer) setNext(p *domain.SessionPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = p
}

func (s *identityServer) setRefreshStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshStatus = code
}

func (s *identityServer) setValidateStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validateStatus = code
}

func (s *identityServer) refreshes() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls, s.lastRefreshToken
}

// jsonResponse writes a JSON response.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// errorResponse writes an error response.
func errorResponse(w http.ResponseWriter, status int, code, message string) {
	jsonResponse(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

// testEnv is a config file pointing at a temp store and a fake identity
// service.
type testEnv struct {
	t          *testing.T
	dir        string
	configPath string
	server     *identityServer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	server := newIdentityServer(t)

	content := fmt.Sprintf(`log:
  level: warn
storage:
  type: file
  dir: %s
remote:
  base_url: %s
  rate_limit: 0
session:
  retry_delay: 1ms
`, filepath.Join(dir, "store"), server.URL)

	path := filepath.Join(dir, "client.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &testEnv{t: t, dir: dir, configPath: path, server: server}
}

// result is the outcome of one command invocation.
type result struct {
	stdout string
	stderr string
	err    error
}

// exitCode returns the exit code carried by err, 0 for nil, 1 otherwise.
func (r result) exitCode() int {
	if r.err == nil {
		return 0
	}
	var ec cli.ExitCoder
	if errors.As(r.err, &ec) {
		return ec.ExitCode()
	}
	return 1
}

// run executes the app with stdin and args, never exiting the process.
func (e *testEnv) run(stdin string, args ...string) result {
	e.t.Helper()
	var stdout, stderr bytes.Buffer

	app := App()
	app.Writer = &stdout
	app.ErrWriter = &stderr
	app.Reader = strings.NewReader(stdin)
	app.ExitErrHandler = func(*cli.Context, error) {}

	full := append([]string{"tokmesh-session", "--config", e.configPath}, args...)
	err := app.Run(full)
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// payloadJSON returns a login payload for user u-1.
func payloadJSON(access, refresh string, expiresIn int64) string {
	return fmt.Sprintf(`{"access_token":%q,"refresh_token":%q,"expires_in":%d,"user":{"id":"u-1","email":"ada@example.com"}}`,
		access, refresh, expiresIn)
}

// mustImport stores a session valid for an hour.
func (e *testEnv) mustImport(access, refresh string) {
	e.t.Helper()
	if r := e.run(payloadJSON(access, refresh, 3600), "import"); r.err != nil {
		e.t.Fatalf("import: %v\nstderr: %s", r.err, r.stderr)
	}
}
