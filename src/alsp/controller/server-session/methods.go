package serversession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/acornide/assist-lsp/src/alsp/entity"
	"github.com/acornide/assist-lsp/src/alsp/factory"
	"github.com/acornide/assist-lsp/src/alsp/internal/rpcclient"
)

// SetEnabled flips the user toggle, independent of health.
func (c *controller) SetEnabled(ctx context.Context, enabled bool) {
	c.mu.Lock()
	c.session.Enabled = enabled
	c.mu.Unlock()

	if !enabled {
		c.mux.CancelPending()
	}
	c.logger.Infow("session enabled toggled", "enabled", enabled)
}

// AddTrackedWorkspace registers a workspace directory with the server. The
// workspace is recorded only after server acknowledgment, so a failed attempt
// can be retried on the next invocation.
func (c *controller) AddTrackedWorkspace(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("canonicalizing workspace path %q: %w", path, err)
	}

	if hasHiddenSegment(abs) {
		return nil
	}

	c.mu.Lock()
	_, tracked := c.session.TrackedWorkspaces[abs]
	port := c.session.Port
	c.mu.Unlock()
	if tracked {
		return nil
	}
	if port == 0 {
		return errors.New("no active language server")
	}

	payload := addTrackedWorkspaceRequest{
		Metadata:  c.requestMetadata(ctx, 0),
		Workspace: abs,
	}
	if _, err := c.rpc.Call(ctx, port, _methodAddTrackedWorkspace, payload); err != nil {
		return fmt.Errorf("tracking workspace %q: %w", abs, err)
	}

	c.mu.Lock()
	c.session.TrackedWorkspaces[abs] = struct{}{}
	c.mu.Unlock()
	c.logger.Infow("workspace tracked", "workspace", abs)
	return nil
}

// hasHiddenSegment reports whether any path segment begins with a dot.
func hasHiddenSegment(path string) bool {
	for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
		if strings.HasPrefix(segment, ".") && segment != "." && segment != ".." {
			return true
		}
	}
	return false
}

// RefreshContext notifies the server of current buffer contents.
func (c *controller) RefreshContext(ctx context.Context, doc entity.Document) {
	port := c.port()
	if port == 0 {
		return
	}

	payload := refreshContextRequest{
		Metadata:       c.requestMetadata(ctx, 0),
		ActiveDocument: doc,
	}
	go func() {
		if _, err := c.rpc.Call(context.Background(), port, _methodRefreshContext, payload); err != nil {
			c.ideGateway.Warn(context.Background(), "refreshing language server context failed", err.Error())
		}
	}()
}

// AcceptCompletion acknowledges an accepted completion.
func (c *controller) AcceptCompletion(ctx context.Context, completionID string) {
	port := c.port()
	if port == 0 {
		return
	}

	payload := acceptCompletionRequest{
		Metadata:     c.requestMetadata(ctx, 0),
		CompletionID: completionID,
	}
	go func() {
		if _, err := c.rpc.Call(context.Background(), port, _methodAcceptCompletion, payload); err != nil {
			c.logger.Debugw("accept completion failed", "completion_id", completionID, "error", err)
		}
	}()
}

// RequestCompletion issues a completion request with latest-wins semantics.
func (c *controller) RequestCompletion(ctx context.Context, doc entity.Document, opts entity.EditorOptions, otherDocs []entity.Document, cb CompletionCallback) (cancel func()) {
	c.mu.Lock()
	enabled := c.session.Enabled
	port := c.session.Port
	c.mu.Unlock()
	if !enabled || port == 0 {
		return func() {}
	}

	requestID := factory.NextRequestID()
	payload := completionRequest{
		Metadata:       c.requestMetadata(ctx, requestID),
		Document:       doc,
		EditorOptions:  opts,
		OtherDocuments: otherDocs,
	}

	invoke := func(reqCtx context.Context) ([]byte, error) {
		return c.rpc.Call(reqCtx, port, _methodGetCompletions, payload)
	}
	canceler := func(supersededID int64) {
		c.cancelServerRequest(port, supersededID)
	}

	return c.mux.Submit(ctx, requestID, invoke, canceler, func(ok bool, body []byte, err error) {
		if err != nil {
			c.ideGateway.Error(context.Background(), "completion request failed", errorDetail(err))
			cb(false, nil)
			return
		}
		if !ok {
			cb(false, nil)
			return
		}

		var resp completionResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			if !c.cfg.quiet {
				c.ideGateway.Error(context.Background(), "malformed completion response", err.Error())
			}
			cb(false, nil)
			return
		}
		cb(true, resp.Completions)
	})
}

// cancelServerRequest sends a best-effort server-side cancellation for a
// superseded request id.
func (c *controller) cancelServerRequest(port int, requestID int64) {
	payload := cancelRequestRequest{
		Metadata:  c.requestMetadata(context.Background(), 0),
		RequestID: requestID,
	}
	if _, err := c.rpc.Call(context.Background(), port, _methodCancelRequest, payload); err != nil {
		c.logger.Debugw("canceling superseded request failed", "request_id", requestID, "error", err)
	}
}

// errorDetail prefers the raw response body for diagnostics when available.
func errorDetail(err error) string {
	var rpcErr *rpcclient.Error
	if errors.As(err, &rpcErr) && len(rpcErr.Body) > 0 {
		return string(rpcErr.Body)
	}
	return err.Error()
}

// HealthReport produces structured diagnostics lines for tooling.
func (c *controller) HealthReport(ctx context.Context) []entity.HealthItem {
	c.mu.Lock()
	snapshot := *c.session
	trackedCount := len(c.session.TrackedWorkspaces)
	c.mu.Unlock()

	items := make([]entity.HealthItem, 0, 8)
	if !snapshot.Enabled {
		items = append(items, entity.HealthItem{Level: entity.HealthWarn, Message: "completions are disabled"})
	}

	if snapshot.Generation == entity.GenerationNone {
		items = append(items, entity.HealthItem{Level: entity.HealthWarn, Message: "no language server instance is active"})
		return items
	}
	items = append(items, entity.HealthItem{Level: entity.HealthInfo, Message: fmt.Sprintf("language server generation %d", snapshot.Generation)})

	if snapshot.Port == 0 {
		items = append(items, entity.HealthItem{Level: entity.HealthWarn, Message: "waiting for language server port"})
		return items
	}
	items = append(items, entity.HealthItem{Level: entity.HealthOK, Message: fmt.Sprintf("language server listening on port %d", snapshot.Port)})

	switch {
	case snapshot.Healthy:
		items = append(items, entity.HealthItem{Level: entity.HealthOK, Message: fmt.Sprintf("last heartbeat succeeded at %s", snapshot.LastHeartbeatAt.Format("15:04:05"))})
	case snapshot.LastHeartbeatErr != nil:
		items = append(items, entity.HealthItem{Level: entity.HealthError, Message: fmt.Sprintf("last heartbeat failed: %v", snapshot.LastHeartbeatErr)})
	default:
		items = append(items, entity.HealthItem{Level: entity.HealthInfo, Message: "no heartbeat recorded yet"})
	}

	items = append(items, entity.HealthItem{Level: entity.HealthInfo, Message: fmt.Sprintf("%d tracked workspaces", trackedCount)})

	payload := getProcessesRequest{Metadata: c.requestMetadata(ctx, 0)}
	if body, err := c.rpc.Call(ctx, snapshot.Port, _methodGetProcesses, payload); err != nil {
		items = append(items, entity.HealthItem{Level: entity.HealthError, Message: fmt.Sprintf("GetProcesses failed: %v", err)})
	} else {
		items = append(items, entity.HealthItem{Level: entity.HealthOK, Message: fmt.Sprintf("GetProcesses responded with %d bytes", len(body))})
	}

	return items
}
