package models

// BackendInfo describes the active backend for status display.
type BackendInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Persistent  bool   `json:"persistent"`
	Connection  string `json:"connection,omitempty"`
	Initialized bool   `json:"initialized"`
}

type BackendKind string

const (
	BackendNone     BackendKind = "none"
	BackendVolatile BackendKind = "volatile"
	BackendDurable  BackendKind = "durable"
)

type BackendPhase string

const (
	PhaseUninitialized BackendPhase = "uninitialized"
	PhaseProbing       BackendPhase = "probing"
	PhaseReady         BackendPhase = "ready"
	PhaseFailed        BackendPhase = "failed"
)

// BackendState is owned by the backend manager; everyone else gets copies.
type BackendState struct {
	Kind                 BackendKind
	Phase                BackendPhase
	Initialized          bool
	AdminBootstrapNeeded bool
}
