package serversession

import "github.com/acornide/assist-lsp/src/alsp/entity"

// Methods of the language server's HTTP service.
const (
	_methodHeartbeat           = "Heartbeat"
	_methodGetCompletions      = "GetCompletions"
	_methodCancelRequest       = "CancelRequest"
	_methodAcceptCompletion    = "AcceptCompletion"
	_methodRefreshContext      = "RefreshContextForIdeAction"
	_methodAddTrackedWorkspace = "AddTrackedWorkspace"
	_methodGetProcesses        = "GetProcesses"
)

type heartbeatRequest struct {
	Metadata entity.RequestMetadata `json:"metadata"`
}

type completionRequest struct {
	Metadata       entity.RequestMetadata `json:"metadata"`
	Document       entity.Document        `json:"document"`
	EditorOptions  entity.EditorOptions   `json:"editor_options"`
	OtherDocuments []entity.Document      `json:"other_documents,omitempty"`
}

type completionResponse struct {
	Completions []entity.Completion `json:"completions"`
}

type cancelRequestRequest struct {
	Metadata  entity.RequestMetadata `json:"metadata"`
	RequestID int64                  `json:"request_id"`
}

type acceptCompletionRequest struct {
	Metadata     entity.RequestMetadata `json:"metadata"`
	CompletionID string                 `json:"completion_id"`
}

type refreshContextRequest struct {
	Metadata       entity.RequestMetadata `json:"metadata"`
	ActiveDocument entity.Document        `json:"active_document"`
}

type addTrackedWorkspaceRequest struct {
	Metadata  entity.RequestMetadata `json:"metadata"`
	Workspace string                 `json:"workspace"`
}

type getProcessesRequest struct {
	Metadata entity.RequestMetadata `json:"metadata"`
}
