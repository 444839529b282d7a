package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/workbench/internal/config"
	"github.com/sakif/workbench/internal/executor/local"
	"github.com/sakif/workbench/internal/model"
	"github.com/sakif/workbench/internal/workspace"
)

// The fake toolchain stands in for elm-make and node:
//   - the compiler copies its input to --output, or fails like a missing file
//   - the runtime runs its argument as a shell script
const (
	fakeCompiler = `#!/bin/sh
[ "$1" = "--yes" ] || { echo "usage: --yes <in> --output <out>" >&2; exit 2; }
[ -f "$2" ] || { echo "could not find file $2" >&2; exit 1; }
cp "$2" "$4" && echo "Success! Compiled 1 module."
`
	fakeRuntime = `#!/bin/sh
[ -f "$1" ] || { echo "Cannot find module '$1'" >&2; exit 1; }
exec sh "$1"
`
)

// resetOK is what a successful reset answers: both steps' empty output
// joined by a newline.
var resetOK = model.ActionResult{Stdout: "\n", Stderr: "\n"}

type testEnv struct {
	server *Server
	ts     *httptest.Server
	ws     *workspace.Workspace
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0755))
	return path
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake toolchain is a shell script")
	}

	root := t.TempDir()
	bin := filepath.Join(root, "bin")
	require.NoError(t, os.Mkdir(bin, 0755))

	cfg := config.Defaults()
	cfg.Workspace.Dir = filepath.Join(root, "work")
	cfg.Toolchain.Compiler = writeScript(t, bin, "elm-make", fakeCompiler)
	cfg.Toolchain.Runtime = writeScript(t, bin, "node", fakeRuntime)
	cfg.History.DBPath = ":memory:"
	if mutate != nil {
		mutate(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ws, err := workspace.New(cfg.Workspace.Dir)
	require.NoError(t, err)

	srv, err := New(&cfg, ws, local.New(logger), logger)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: srv, ts: ts, ws: ws}
}

func (e *testEnv) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(e.ts.URL+path, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) action(t *testing.T, path, body string) model.ActionResult {
	t.Helper()
	resp := e.post(t, path, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res model.ActionResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	return res
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.ts.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestEditorSession(t *testing.T) {
	env := newTestEnv(t, nil)

	// Fresh server: the workspace does not exist until the first reset.
	assert.NoDirExists(t, env.ws.Root())
	assert.Equal(t, resetOK, env.action(t, "/reset", `{}`))
	assert.DirExists(t, env.ws.Root())

	res := env.action(t, "/writeElmFile", `{"filename":"Main.elm","content":"echo hello from main"}`)
	assert.Equal(t, model.ActionResult{}, res)

	res = env.action(t, "/compile", `{"filename":"Main.elm","output":"main.js"}`)
	assert.Equal(t, 0, res.Code, res.Stderr)
	assert.Equal(t, "Success! Compiled 1 module.\n", res.Stdout)

	res = env.action(t, "/eval", `{"filename":"main.js"}`)
	assert.Equal(t, model.ActionResult{Code: 0, Stdout: "hello from main\n"}, res)

	res = env.action(t, "/readFile", `{"filename":"main.js"}`)
	assert.Equal(t, "echo hello from main", res.Stdout)
}

func TestExitCodeIsRelayed(t *testing.T) {
	env := newTestEnv(t, nil)
	env.action(t, "/reset", `{}`)
	env.action(t, "/writeElmFile", `{"filename":"fail.js","content":"echo partial; echo broken >&2; exit 3"}`)

	res := env.action(t, "/eval", `{"filename":"fail.js"}`)

	assert.Equal(t, model.ActionResult{Code: 3, Stdout: "partial\n", Stderr: "broken\n"}, res)
}

func TestMissingInputIsNonZero(t *testing.T) {
	env := newTestEnv(t, nil)
	env.action(t, "/reset", `{}`)

	res := env.action(t, "/compile", `{"filename":"Nope.elm","output":"nope.js"}`)
	assert.NotEqual(t, 0, res.Code)
	assert.Contains(t, res.Stderr, "Nope.elm")

	res = env.action(t, "/eval", `{"filename":"nope.js"}`)
	assert.NotEqual(t, 0, res.Code)
}

func TestActionBeforeFirstReset(t *testing.T) {
	env := newTestEnv(t, nil)

	res := env.action(t, "/writeElmFile", `{"filename":"A.txt","content":"x"}`)
	assert.Equal(t, model.CodeIOFailure, res.Code)

	// The working directory is missing, so the runtime cannot even start.
	res = env.action(t, "/eval", `{"filename":"main.js"}`)
	assert.Equal(t, model.CodeSpawnFailure, res.Code)
	assert.NotEmpty(t, res.Stderr)
}

func TestMissingProgram(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Toolchain.Compiler = "workbench-no-such-compiler"
	})
	env.action(t, "/reset", `{}`)

	res := env.action(t, "/compile", `{"filename":"Main.elm","output":"main.js"}`)

	assert.Equal(t, model.CodeSpawnFailure, res.Code)
	assert.Contains(t, res.Stderr, "workbench-no-such-compiler")
}

func TestTimeout(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Executor.Timeout = 200 * time.Millisecond
	})
	env.action(t, "/reset", `{}`)
	env.action(t, "/writeElmFile", `{"filename":"loop.js","content":"echo started; exec sleep 30"}`)

	start := time.Now()
	res := env.action(t, "/eval", `{"filename":"loop.js"}`)

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, model.CodeTimeout, res.Code)
	assert.Equal(t, "started\n", res.Stdout)
	assert.True(t, strings.HasSuffix(res.Stderr, "\nExecution timed out.\n"))
}

func TestResetTwice(t *testing.T) {
	env := newTestEnv(t, nil)
	env.action(t, "/reset", `{}`)
	env.action(t, "/writeElmFile", `{"filename":"A.txt","content":"x"}`)

	assert.Equal(t, resetOK, env.action(t, "/reset", ``))
	assert.Equal(t, resetOK, env.action(t, "/reset", `{}`))

	entries, err := os.ReadDir(env.ws.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMissingFieldIsBadRequest(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/compile", "/eval", "/writeElmFile", "/readFile"} {
		resp := env.post(t, path, `{}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}

	// Still serving.
	assert.Equal(t, http.StatusOK, env.get(t, "/health").StatusCode)
}

func TestWriteReadRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	env.action(t, "/reset", `{}`)

	for _, content := range []string{"", "hello", "line one\nline two\n", "unicode: λ → ✓"} {
		body, err := json.Marshal(map[string]string{"filename": "A.txt", "content": content})
		require.NoError(t, err)

		assert.Equal(t, model.ActionResult{}, env.action(t, "/writeElmFile", string(body)))
		assert.Equal(t, model.ActionResult{Stdout: content}, env.action(t, "/readFile", `{"filename":"A.txt"}`))
	}
}

// Compile racing reset has no defined winner. Every request still gets an
// envelope, and the server keeps serving.
func TestCompileRacingReset(t *testing.T) {
	env := newTestEnv(t, nil)
	env.action(t, "/reset", `{}`)
	env.action(t, "/writeElmFile", `{"filename":"Main.elm","content":"echo hi"}`)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			resp, err := http.Post(env.ts.URL+"/compile", "application/json",
				strings.NewReader(`{"filename":"Main.elm","output":"main.js"}`))
			if assert.NoError(t, err) {
				defer resp.Body.Close()
				assert.Equal(t, http.StatusOK, resp.StatusCode)
				var res model.ActionResult
				assert.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
			}
		}()
		go func() {
			defer wg.Done()
			resp, err := http.Post(env.ts.URL+"/reset", "application/json", strings.NewReader(`{}`))
			if assert.NoError(t, err) {
				defer resp.Body.Close()
				assert.Equal(t, http.StatusOK, resp.StatusCode)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, http.StatusOK, env.get(t, "/health").StatusCode)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, nil)

	req, err := http.NewRequest(http.MethodOptions, env.ts.URL+"/compile", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://editor.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Less(t, resp.StatusCode, 300)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err = http.NewRequest(http.MethodPost, env.ts.URL+"/reset", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://editor.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestHistoryRoutes(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.action(t, "/reset", `{}`)
		env.action(t, "/writeElmFile", `{"filename":"A.txt","content":"x"}`)

		resp := env.get(t, "/history")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var records []model.ActionRecord
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
		require.Len(t, records, 2)

		actions := []model.Action{records[0].Action, records[1].Action}
		assert.ElementsMatch(t, []model.Action{model.ActionReset, model.ActionWriteFile}, actions)

		resp = env.get(t, "/history/"+records[0].ID)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("disabled", func(t *testing.T) {
		env := newTestEnv(t, func(c *config.Config) { c.History.Enabled = false })

		assert.Equal(t, http.StatusNotFound, env.get(t, "/history").StatusCode)
		assert.Equal(t, resetOK, env.action(t, "/reset", `{}`))
	})
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.get(t, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "local", body["executor"])
	assert.Equal(t, env.ws.Root(), body["workspace"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.action(t, "/reset", `{}`)

	resp := env.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `workbench_actions_total{action="reset",outcome="ok"}`)
	assert.Contains(t, string(data), "workbench_http_requests_total")
}

func TestMetricsDisabled(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Metrics.Enabled = false })
	assert.Equal(t, http.StatusNotFound, env.get(t, "/metrics").StatusCode)
}

func TestMCPOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil)
	env.action(t, "/reset", `{}`)
	ctx := context.Background()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: env.ts.URL + "/mcp"}, nil)
	require.NoError(t, err)
	defer session.Close()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "write_file",
		Arguments: map[string]any{"filename": "agent.js", "content": "echo from an agent"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	res, err = session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "eval",
		Arguments: map[string]any{"filename": "agent.js"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	data, err := os.ReadFile(filepath.Join(env.ws.Root(), "agent.js"))
	require.NoError(t, err)
	assert.Equal(t, "echo from an agent", string(data))
}

func TestRunShutsDownOnCancel(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Server.Host = "127.0.0.1"
		c.Server.Port = freePort(t)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.Run(ctx) }()

	addr := "http://127.0.0.1:" + strconv.Itoa(env.server.config.Server.Port) + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(addr)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
