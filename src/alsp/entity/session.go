// Package entity contains the domain types for the assist-lsp session core.
package entity

import (
	"time"

	"github.com/gofrs/uuid"
	"go.lsp.dev/uri"
)

// GenerationNone indicates that no language server instance is active.
const GenerationNone int64 = 0

// Session holds the mutable state for one editor instance's language server.
// A session outlives individual server processes: each (re)start increments
// Generation, and callbacks captured under an older generation must treat
// themselves as stale.
type Session struct {
	UUID              uuid.UUID           `json:"uuid" zap:"uuid"`
	Generation        int64               `json:"generation" zap:"generation"`
	Port              int                 `json:"port" zap:"port"`
	Healthy           bool                `json:"healthy" zap:"healthy"`
	Enabled           bool                `json:"enabled" zap:"enabled"`
	LastHeartbeatAt   time.Time           `json:"lastHeartbeatAt" zap:"lastHeartbeatAt"`
	LastHeartbeatErr  error               `json:"-" zap:"-"`
	TrackedWorkspaces map[string]struct{} `json:"-" zap:"-"`
}

// RequestMetadata accompanies every RPC issued to the language server.
// RequestID is drawn from a process-wide monotonically increasing counter so
// the server can distinguish and cancel specific in-flight requests.
type RequestMetadata struct {
	APIKey           string `json:"api_key"`
	IDEName          string `json:"ide_name"`
	IDEVersion       string `json:"ide_version"`
	ExtensionName    string `json:"extension_name"`
	ExtensionVersion string `json:"extension_version"`
	SessionID        string `json:"session_id"`
	RequestID        int64  `json:"request_id,omitempty"`
}

// Document describes an editor buffer as sent to the language server.
type Document struct {
	AbsoluteURI    uri.URI `json:"absolute_uri"`
	WorkspaceURI   uri.URI `json:"workspace_uri,omitempty"`
	RelativePath   string  `json:"relative_path,omitempty"`
	Text           string  `json:"text"`
	EditorLanguage string  `json:"editor_language"`
	LineEnding     string  `json:"line_ending"`
	CursorOffset   int     `json:"cursor_offset"`
}

// EditorOptions captures formatting settings relevant to completion rendering.
type EditorOptions struct {
	TabSize      int  `json:"tab_size"`
	InsertSpaces bool `json:"insert_spaces"`
}

// CompletionRange locates a completion within the requesting document.
type CompletionRange struct {
	StartOffset int `json:"start_offset"`
	EndOffset   int `json:"end_offset"`
}

// Completion is a single completion item returned by the language server.
type Completion struct {
	ID    string          `json:"completion_id"`
	Text  string          `json:"text"`
	Range CompletionRange `json:"range"`
}

// HealthLevel classifies a HealthItem line.
type HealthLevel string

// Health levels for diagnostics reporting.
const (
	HealthInfo  HealthLevel = "info"
	HealthOK    HealthLevel = "ok"
	HealthWarn  HealthLevel = "warn"
	HealthError HealthLevel = "error"
)

// HealthItem is one line of a structured health report.
type HealthItem struct {
	Level   HealthLevel `json:"level"`
	Message string      `json:"message"`
}
