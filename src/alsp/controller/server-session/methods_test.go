package serversession

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/acornide/assist-lsp/src/alsp/entity"
	"github.com/acornide/assist-lsp/src/alsp/internal/rpcclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/uri"
)

type completionResult struct {
	ok    bool
	items []entity.Completion
}

type completionRecorder struct {
	ch chan completionResult
}

func newCompletionRecorder() *completionRecorder {
	return &completionRecorder{ch: make(chan completionResult, 4)}
}

func (r *completionRecorder) callback(ok bool, items []entity.Completion) {
	r.ch <- completionResult{ok: ok, items: items}
}

func (r *completionRecorder) next(t *testing.T) completionResult {
	t.Helper()
	select {
	case res := <-r.ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion callback")
		return completionResult{}
	}
}

func (r *completionRecorder) assertSilent(t *testing.T) {
	t.Helper()
	select {
	case res := <-r.ch:
		t.Fatalf("unexpected completion callback: %+v", res)
	case <-time.After(100 * time.Millisecond):
	}
}

func testDocument() entity.Document {
	return entity.Document{
		AbsoluteURI:    uri.File("/home/user/project/main.go"),
		Text:           "package main",
		EditorLanguage: "go",
		LineEnding:     "\n",
		CursorOffset:   12,
	}
}

func TestRequestCompletion(t *testing.T) {
	t.Run("delivers completions on success", func(t *testing.T) {
		env := newTestEnv(t, envOptions{apiKey: "test-key"})
		env.rpc.setRespond(func(ctx context.Context, call rpcCall) ([]byte, error) {
			if call.method == _methodGetCompletions {
				return []byte(`{"completions":[{"completion_id":"c1","text":"fmt.Println()","range":{"start_offset":12,"end_offset":12}}]}`), nil
			}
			return []byte("{}"), nil
		})
		env.startReady(t, 58080)

		rec := newCompletionRecorder()
		env.ctrl.RequestCompletion(context.Background(), testDocument(), entity.EditorOptions{TabSize: 4}, nil, rec.callback)

		got := rec.next(t)
		require.True(t, got.ok)
		require.Len(t, got.items, 1)
		assert.Equal(t, "c1", got.items[0].ID)
		assert.Equal(t, "fmt.Println()", got.items[0].Text)

		call := env.rpc.waitFor(t, _methodGetCompletions)
		payload, ok := call.payload.(completionRequest)
		require.True(t, ok)
		assert.Equal(t, "test-key", payload.Metadata.APIKey)
		assert.Equal(t, "test-editor", payload.Metadata.IDEName)
		assert.NotZero(t, payload.Metadata.RequestID)
		assert.Equal(t, 4, payload.EditorOptions.TabSize)
	})

	t.Run("no-op while disabled", func(t *testing.T) {
		env := newTestEnv(t, envOptions{apiKey: "test-key", extraYAML: "server:\n  enabled: false\n"})
		env.startReady(t, 58080)

		rec := newCompletionRecorder()
		cancel := env.ctrl.RequestCompletion(context.Background(), testDocument(), entity.EditorOptions{}, nil, rec.callback)
		cancel()

		rec.assertSilent(t)
		assert.Empty(t, env.rpc.callsFor(_methodGetCompletions))
	})

	t.Run("no-op before the port is known", func(t *testing.T) {
		env := newTestEnv(t, envOptions{apiKey: "test-key"})

		rec := newCompletionRecorder()
		cancel := env.ctrl.RequestCompletion(context.Background(), testDocument(), entity.EditorOptions{}, nil, rec.callback)
		cancel()

		rec.assertSilent(t)
		assert.Empty(t, env.rpc.callsFor(_methodGetCompletions))
	})

	t.Run("new request supersedes and cancels the previous one", func(t *testing.T) {
		env := newTestEnv(t, envOptions{apiKey: "test-key"})
		release := make(chan struct{})
		env.rpc.setRespond(func(ctx context.Context, call rpcCall) ([]byte, error) {
			if call.method == _methodGetCompletions {
				select {
				case <-release:
					return []byte(`{"completions":[{"completion_id":"c2","text":"x"}]}`), nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			return []byte("{}"), nil
		})
		env.startReady(t, 58080)

		first := newCompletionRecorder()
		env.ctrl.RequestCompletion(context.Background(), testDocument(), entity.EditorOptions{}, nil, first.callback)

		// Wait for the first request to reach the server so its id is known.
		firstCall := env.rpc.waitFor(t, _methodGetCompletions)
		firstID := firstCall.payload.(completionRequest).Metadata.RequestID

		second := newCompletionRecorder()
		env.ctrl.RequestCompletion(context.Background(), testDocument(), entity.EditorOptions{}, nil, second.callback)
		close(release)

		got := first.next(t)
		assert.False(t, got.ok)
		assert.Empty(t, got.items)

		got = second.next(t)
		assert.True(t, got.ok)

		// The superseded id is canceled server-side.
		cancelCall := env.rpc.waitFor(t, _methodCancelRequest)
		assert.Equal(t, firstID, cancelCall.payload.(cancelRequestRequest).RequestID)
	})

	t.Run("transient failure resolves quietly", func(t *testing.T) {
		env := newTestEnv(t, envOptions{apiKey: "test-key"})
		env.rpc.setRespond(func(ctx context.Context, call rpcCall) ([]byte, error) {
			if call.method == _methodGetCompletions {
				return nil, &rpcclient.Error{StatusCode: 503}
			}
			return []byte("{}"), nil
		})
		env.startReady(t, 58080)

		rec := newCompletionRecorder()
		env.ctrl.RequestCompletion(context.Background(), testDocument(), entity.EditorOptions{}, nil, rec.callback)

		got := rec.next(t)
		assert.False(t, got.ok)
		assert.Zero(t, env.gateway.errorCount())
	})

	t.Run("service fault is surfaced to the editor", func(t *testing.T) {
		env := newTestEnv(t, envOptions{apiKey: "test-key"})
		env.rpc.setRespond(func(ctx context.Context, call rpcCall) ([]byte, error) {
			if call.method == _methodGetCompletions {
				return nil, &rpcclient.Error{StatusCode: 500, Body: []byte(`{"code":"internal"}`)}
			}
			return []byte("{}"), nil
		})
		env.startReady(t, 58080)

		rec := newCompletionRecorder()
		env.ctrl.RequestCompletion(context.Background(), testDocument(), entity.EditorOptions{}, nil, rec.callback)

		got := rec.next(t)
		assert.False(t, got.ok)
		assert.Eventually(t, func() bool {
			return env.gateway.errorCount() == 1
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("malformed response is surfaced unless quiet", func(t *testing.T) {
		for _, quiet := range []bool{false, true} {
			extra := ""
			if quiet {
				extra = "server:\n  quiet: true\n"
			}
			env := newTestEnv(t, envOptions{apiKey: "test-key", extraYAML: extra})
			env.rpc.setRespond(func(ctx context.Context, call rpcCall) ([]byte, error) {
				if call.method == _methodGetCompletions {
					return []byte("not json"), nil
				}
				return []byte("{}"), nil
			})
			env.startReady(t, 58080)

			rec := newCompletionRecorder()
			env.ctrl.RequestCompletion(context.Background(), testDocument(), entity.EditorOptions{}, nil, rec.callback)

			got := rec.next(t)
			assert.False(t, got.ok)
			if quiet {
				assert.Zero(t, env.gateway.errorCount())
			} else {
				assert.Eventually(t, func() bool {
					return env.gateway.errorCount() == 1
				}, 5*time.Second, 10*time.Millisecond)
			}
		}
	})
}

func TestSetEnabled(t *testing.T) {
	t.Run("disabling cancels the pending request", func(t *testing.T) {
		env := newTestEnv(t, envOptions{apiKey: "test-key"})
		env.rpc.setRespond(func(ctx context.Context, call rpcCall) ([]byte, error) {
			if call.method == _methodGetCompletions {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return []byte("{}"), nil
		})
		env.startReady(t, 58080)

		rec := newCompletionRecorder()
		env.ctrl.RequestCompletion(context.Background(), testDocument(), entity.EditorOptions{}, nil, rec.callback)
		env.rpc.waitFor(t, _methodGetCompletions)

		env.ctrl.SetEnabled(context.Background(), false)

		got := rec.next(t)
		assert.False(t, got.ok)
		env.rpc.waitFor(t, _methodCancelRequest)

		// New requests stay no-ops until re-enabled.
		silent := newCompletionRecorder()
		env.ctrl.RequestCompletion(context.Background(), testDocument(), entity.EditorOptions{}, nil, silent.callback)
		silent.assertSilent(t)
	})
}

func TestAddTrackedWorkspace(t *testing.T) {
	t.Run("hidden paths are skipped", func(t *testing.T) {
		env := newTestEnv(t, envOptions{apiKey: "test-key"})
		env.startReady(t, 58080)

		require.NoError(t, env.ctrl.AddTrackedWorkspace(context.Background(), "/home/user/.config/project"))
		assert.Empty(t, env.rpc.callsFor(_methodAddTrackedWorkspace))
	})

	t.Run("no active server is an error", func(t *testing.T) {
		env := newTestEnv(t, envOptions{apiKey: "test-key"})
		assert.ErrorContains(t, env.ctrl.AddTrackedWorkspace(context.Background(), "/home/user/project"), "no active language server")
	})

	t.Run("records only after acknowledgment", func(t *testing.T) {
		env := newTestEnv(t, envOptions{apiKey: "test-key"})
		env.startReady(t, 58080)

		require.NoError(t, env.ctrl.AddTrackedWorkspace(context.Background(), "/home/user/project"))
		calls := env.rpc.callsFor(_methodAddTrackedWorkspace)
		require.Len(t, calls, 1)
		payload := calls[0].payload.(addTrackedWorkspaceRequest)
		assert.Equal(t, filepath.FromSlash("/home/user/project"), payload.Workspace)

		// The second invocation is a no-op for an already tracked workspace.
		require.NoError(t, env.ctrl.AddTrackedWorkspace(context.Background(), "/home/user/project"))
		assert.Len(t, env.rpc.callsFor(_methodAddTrackedWorkspace), 1)
	})

	t.Run("failed attempts are retried", func(t *testing.T) {
		env := newTestEnv(t, envOptions{apiKey: "test-key"})
		env.rpc.setRespond(func(ctx context.Context, call rpcCall) ([]byte, error) {
			if call.method == _methodAddTrackedWorkspace {
				return nil, &rpcclient.Error{StatusCode: 503}
			}
			return []byte("{}"), nil
		})
		env.startReady(t, 58080)

		assert.Error(t, env.ctrl.AddTrackedWorkspace(context.Background(), "/home/user/project"))

		// The failure was not recorded, so the next call goes to the server.
		env.rpc.setRespond(nil)
		require.NoError(t, env.ctrl.AddTrackedWorkspace(context.Background(), "/home/user/project"))
		assert.Len(t, env.rpc.callsFor(_methodAddTrackedWorkspace), 2)
	})
}

func TestRefreshContext(t *testing.T) {
	env := newTestEnv(t, envOptions{apiKey: "test-key"})
	env.startReady(t, 58080)

	env.ctrl.RefreshContext(context.Background(), testDocument())

	call := env.rpc.waitFor(t, _methodRefreshContext)
	payload := call.payload.(refreshContextRequest)
	assert.Equal(t, testDocument().AbsoluteURI, payload.ActiveDocument.AbsoluteURI)
}

func TestAcceptCompletion(t *testing.T) {
	env := newTestEnv(t, envOptions{apiKey: "test-key"})
	env.startReady(t, 58080)

	env.ctrl.AcceptCompletion(context.Background(), "c1")

	call := env.rpc.waitFor(t, _methodAcceptCompletion)
	payload := call.payload.(acceptCompletionRequest)
	assert.Equal(t, "c1", payload.CompletionID)
}

func TestHealthReport(t *testing.T) {
	t.Run("no active instance", func(t *testing.T) {
		env := newTestEnv(t, envOptions{apiKey: "test-key"})

		items := env.ctrl.HealthReport(context.Background())
		require.NotEmpty(t, items)
		assert.Equal(t, entity.HealthWarn, items[0].Level)
		assert.Contains(t, items[0].Message, "no language server instance")
	})

	t.Run("ready instance includes port and server roundtrip", func(t *testing.T) {
		env := newTestEnv(t, envOptions{apiKey: "test-key"})
		env.startReady(t, 58080)

		items := env.ctrl.HealthReport(context.Background())

		var messages []string
		for _, item := range items {
			messages = append(messages, item.Message)
		}
		joined := strings.Join(messages, "\n")
		assert.Contains(t, joined, "listening on port 58080")
		assert.Contains(t, joined, "GetProcesses responded")
		assert.NotEmpty(t, env.rpc.callsFor(_methodGetProcesses))
	})
}
