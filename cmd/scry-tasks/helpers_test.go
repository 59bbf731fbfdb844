package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/scry-tasks/internal/config"
	"github.com/phrazzld/scry-tasks/internal/domain"
	"github.com/phrazzld/scry-tasks/internal/store"
)

const testSecret = "test-secret-that-is-at-least-32-chars"

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		Server: config.ServerConfig{
			Port:            8080,
			LogLevel:        "error",
			LogFormat:       "json",
			ShutdownTimeout: 2 * time.Second,
		},
		Store: config.StoreConfig{
			DataDir:   t.TempDir(),
			LogFile:   "tasks.bin",
			IndexFile: "index.json",
		},
		Dispatcher: config.DispatcherConfig{
			TickInterval:       5 * time.Millisecond,
			EMAAlpha:           0.2,
			InitialEstimate:    2 * time.Second,
			WorkMin:            time.Millisecond,
			WorkMax:            5 * time.Millisecond,
			DuplicateThreshold: 0.8,
		},
		Session: config.SessionConfig{
			HeartbeatTimeout: time.Minute,
			SweepInterval:    time.Minute,
			WriteTimeout:     time.Second,
		},
		Auth: config.AuthConfig{
			JWTSecret:            testSecret,
			TokenLifetimeMinutes: 60,
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startTestApp starts the dispatcher and serves the router over httptest.
func startTestApp(t *testing.T, cfg *config.Config) (*application, *httptest.Server) {
	t.Helper()

	app, err := newApplication(cfg, discardLogger())
	require.NoError(t, err)
	require.NoError(t, app.start())

	server := httptest.NewServer(app.setupRouter())
	t.Cleanup(func() {
		server.Close()
		app.cleanup()
	})
	return app, server
}

func doJSON(t *testing.T, method, url, token string, body interface{}) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func dialWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	// a pong proves the session is registered
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	require.Equal(t, "pong", readWS(t, conn)["type"])
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

// seedRepository writes tasks straight into the record log.
func seedRepository(t *testing.T, cfg *config.Config, contents ...string) {
	t.Helper()

	repo, err := store.Open(storeOptions(cfg, false), discardLogger())
	require.NoError(t, err)
	defer func() { require.NoError(t, repo.Close()) }()

	now := time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)
	for _, content := range contents {
		record, err := domain.NewTaskRecord(repo.NextID(), content, domain.PriorityMedium, "general", now)
		require.NoError(t, err)
		_, err = repo.Create(record)
		require.NoError(t, err)
	}
}

// writeConfigFile writes cfg's store and auth settings to a YAML file.
func writeConfigFile(t *testing.T, cfg *config.Config) string {
	t.Helper()

	content := "server:\n" +
		"  log_level: error\n" +
		"  log_format: json\n" +
		"store:\n" +
		"  data_dir: " + cfg.Store.DataDir + "\n" +
		"auth:\n" +
		"  jwt_secret: \"" + cfg.Auth.JWTSecret + "\"\n"

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// runCLI executes the root command with args and returns its stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), err
}
