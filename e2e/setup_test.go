package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"chap/internal/auth"
	"chap/internal/config"
	"chap/internal/constants"
	"chap/internal/database"
	"chap/internal/logger"
	"chap/internal/server"
)

// TestServer wraps a running chap server for testing
type TestServer struct {
	Server  *httptest.Server
	App     *server.App
	DataDir string
	URL     string

	// Bootstrap credentials captured at startup
	AdminUsername string
	AdminPassword string
	PlatformKey   string // full-scope key, used for authenticated requests
}

// StartTestServer creates a new test server backed by an isolated database
func StartTestServer(t *testing.T) *TestServer {
	t.Helper()

	dataDir := t.TempDir()

	cfg := &config.Config{
		Port:     0, // httptest assigns the port
		DataDir:  dataDir,
		Database: config.DatabaseConfig{Path: filepath.Join(dataDir, constants.CoreDB)},
	}
	cfg.ApplyDefaults()

	log := logger.NewLogger(logger.LevelError) // Suppress logs in tests

	db, err := database.InitCoreDB(cfg.Database.Path)
	if err != nil {
		t.Fatalf("failed to open core database: %v", err)
	}

	app := server.NewApp(cfg, log, db)

	bootstrap, err := auth.Bootstrap(app.Store, log)
	if err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	if bootstrap == nil {
		t.Fatal("expected bootstrap credentials on a fresh database")
	}

	srv := server.NewServer(app, ":0")
	httpServer := httptest.NewServer(srv.Handler())

	ts := &TestServer{
		Server:        httpServer,
		App:           app,
		DataDir:       dataDir,
		URL:           httpServer.URL,
		AdminUsername: bootstrap.Username,
		AdminPassword: bootstrap.Password,
		PlatformKey:   bootstrap.PlatformKey,
	}

	t.Cleanup(func() {
		httpServer.Close()
		app.Close()
	})

	return ts
}

// Helper methods for API calls

func (ts *TestServer) GET(path string) (*http.Response, error) {
	return ts.RequestWithToken("GET", path, ts.PlatformKey, nil)
}

func (ts *TestServer) POST(path string, body interface{}) (*http.Response, error) {
	return ts.RequestWithToken("POST", path, ts.PlatformKey, body)
}

func (ts *TestServer) DELETE(path string) (*http.Response, error) {
	return ts.RequestWithToken("DELETE", path, ts.PlatformKey, nil)
}

// UnauthenticatedGET sends a GET request without any auth headers
func (ts *TestServer) UnauthenticatedGET(path string) (*http.Response, error) {
	return http.Get(ts.URL + path)
}

// UnauthenticatedPOST sends a POST request without any auth headers
func (ts *TestServer) UnauthenticatedPOST(path string, body interface{}) (*http.Response, error) {
	jsonBody, _ := json.Marshal(body)
	return http.Post(ts.URL+path, constants.ContentTypeJSON, bytes.NewReader(jsonBody))
}

// RequestWithToken sends a request using a specific bearer token
func (ts *TestServer) RequestWithToken(method, path, token string, body interface{}) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBody)
	}
	req, err := http.NewRequest(method, ts.URL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set(constants.HeaderContentType, constants.ContentTypeJSON)
	}
	if token != "" {
		req.Header.Set(constants.HeaderAuthorization, constants.AuthBearerPrefix+token)
	}
	return http.DefaultClient.Do(req)
}

// DecodeJSON reads and closes the response body, failing the test on
// an unexpected status code
func DecodeJSON(t *testing.T, resp *http.Response, expectedStatus int, target interface{}) {
	t.Helper()
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	if resp.StatusCode != expectedStatus {
		t.Fatalf("expected status %d, got %d: %s", expectedStatus, resp.StatusCode, string(bodyBytes))
	}
	if target != nil {
		if err := json.Unmarshal(bodyBytes, target); err != nil {
			t.Fatalf("failed to parse response: %v (body: %s)", err, string(bodyBytes))
		}
	}
}

// ErrorResponse mirrors the wire error envelope
type ErrorResponse struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	} `json:"error"`
}

// ExpectError reads the response expecting a given status and error code
func ExpectError(t *testing.T, resp *http.Response, expectedStatus int, expectedCode string) ErrorResponse {
	t.Helper()
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read error response: %v", err)
	}
	if resp.StatusCode != expectedStatus {
		t.Fatalf("expected status %d, got %d: %s", expectedStatus, resp.StatusCode, string(bodyBytes))
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
		t.Fatalf("failed to parse error response: %v (body: %s)", err, string(bodyBytes))
	}
	if expectedCode != "" && errResp.Error.Code != expectedCode {
		t.Fatalf("expected error code %q, got %q", expectedCode, errResp.Error.Code)
	}
	return errResp
}

// LoginUser logs in with username/password and returns the session token
func (ts *TestServer) LoginUser(t *testing.T, username, password string) string {
	t.Helper()
	resp, err := ts.UnauthenticatedPOST("/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}

	var loginResp struct {
		Token string `json:"token"`
	}
	DecodeJSON(t, resp, http.StatusOK, &loginResp)

	if loginResp.Token == "" {
		t.Fatal("login response contained empty token")
	}
	return loginResp.Token
}

// TestUserInfo holds credentials for a created test user
type TestUserInfo struct {
	ID       int64
	Username string
	Password string
}

// CreateTestUser creates a user account via the admin API
func (ts *TestServer) CreateTestUser(t *testing.T, username, password string, isAdmin bool) TestUserInfo {
	t.Helper()
	resp, err := ts.POST("/api/admin/users", map[string]interface{}{
		"username":     username,
		"display_name": username,
		"password":     password,
		"is_admin":     isAdmin,
	})
	if err != nil {
		t.Fatalf("create user request failed: %v", err)
	}

	var user struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	}
	DecodeJSON(t, resp, http.StatusCreated, &user)

	return TestUserInfo{ID: user.ID, Username: user.Username, Password: password}
}

// CreatePersonalToken logs in as the user and creates a personal API token
// with the given scopes, returning the raw token
func (ts *TestServer) CreatePersonalToken(t *testing.T, user TestUserInfo, name string, scopes []string) string {
	t.Helper()
	session := ts.LoginUser(t, user.Username, user.Password)

	resp, err := ts.RequestWithToken("POST", "/api/tokens", session, map[string]interface{}{
		"name":   name,
		"scopes": scopes,
	})
	if err != nil {
		t.Fatalf("create token request failed: %v", err)
	}

	var created struct {
		Raw string `json:"raw_token"`
	}
	DecodeJSON(t, resp, http.StatusCreated, &created)

	if created.Raw == "" {
		t.Fatal("create token response contained empty raw token")
	}
	return created.Raw
}
