// Package sbxmanagement wraps the hosted Management API: sandbox CRUD,
// metrics, pause/connect, and listing. Unlike envd, this surface is plain
// JSON-over-HTTPS, not Connect-RPC.
package sbxmanagement

import "time"

// ListedSandbox is one row of GET /sandboxes.
type ListedSandbox struct {
	SandboxID  string            `json:"sandboxId"`
	TemplateID string            `json:"templateId"`
	StartedAt  time.Time         `json:"startedAt"`
	EndAt      time.Time         `json:"endAt"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// SandboxInfo is the full GET /sandboxes/{id} payload.
type SandboxInfo struct {
	SandboxID       string            `json:"sandboxId"`
	SandboxDomain   string            `json:"sandboxDomain,omitempty"`
	TemplateID      string            `json:"templateId"`
	EnvdVersion     string            `json:"envdVersion,omitempty"`
	EnvdAccessToken string            `json:"envdAccessToken,omitempty"`
	StartedAt       time.Time         `json:"startedAt"`
	EndAt           time.Time         `json:"endAt"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	ObjectStorage   map[string]any    `json:"objectStorage,omitempty"`
	NetworkProxy    map[string]any    `json:"networkProxy,omitempty"`
}

// CreatedSandbox is the POST /sandboxes response.
type CreatedSandbox struct {
	SandboxID       string `json:"sandboxId"`
	Domain          string `json:"domain"`
	EnvdVersion     string `json:"envdVersion,omitempty"`
	EnvdAccessToken string `json:"envdAccessToken,omitempty"`
}

// NewSandbox is the POST /sandboxes request body.
type NewSandbox struct {
	TemplateID          string            `json:"templateId"`
	Metadata            map[string]string `json:"metadata,omitempty"`
	Timeout             int               `json:"timeout"`
	EnvVars             map[string]string `json:"envVars,omitempty"`
	Secure              bool              `json:"secure,omitempty"`
	AllowInternetAccess bool              `json:"allowInternetAccess"`
	ObjectStorage       map[string]any    `json:"objectStorage,omitempty"`
	NetworkProxy        map[string]any    `json:"networkProxy,omitempty"`
}

// SandboxMetrics is one sample of GET /sandboxes/{id}/metrics.
type SandboxMetrics struct {
	CPUCount   int       `json:"cpuCount"`
	CPUUsedPct float64   `json:"cpuUsedPct"`
	DiskTotal  int64     `json:"diskTotal"`
	DiskUsed   int64     `json:"diskUsed"`
	MemTotal   int64     `json:"memTotal"`
	MemUsed    int64     `json:"memUsed"`
	Timestamp  time.Time `json:"timestamp"`
}

// ConnectResult is the POST /sandboxes/{id}/connect response: everything
// needed to construct a live SandboxHandle against an existing sandbox.
type ConnectResult struct {
	SandboxID       string `json:"sandboxId"`
	SandboxDomain   string `json:"sandboxDomain,omitempty"`
	EnvdVersion     string `json:"envdVersion,omitempty"`
	EnvdAccessToken string `json:"envdAccessToken,omitempty"`
}

// ListQuery filters GET /sandboxes.
type ListQuery struct {
	Metadata map[string]string
}
