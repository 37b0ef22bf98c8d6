package api

import "time"

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	Connection    string `json:"connection"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Commands      int    `json:"commands"`
}

// CommandInfo describes one registered command.
type CommandInfo struct {
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases,omitempty"`
	Category    string   `json:"category"`
	Description string   `json:"description,omitempty"`
	Usage       string   `json:"usage"`
	Cooldown    int      `json:"cooldown"`
	Permissions []string `json:"permissions,omitempty"`
	Wait        bool     `json:"wait,omitempty"`
	Source      string   `json:"source"`
}

// CommandsResponse is returned by GET /commands.
type CommandsResponse struct {
	Prefix   string        `json:"prefix"`
	Commands []CommandInfo `json:"commands"`
}

// ReloadResponse is returned by POST /reload.
type ReloadResponse struct {
	Commands int `json:"commands"`
	Failures int `json:"failures"`
}

// AuditEntry is one command_log row.
type AuditEntry struct {
	ID         string    `json:"id"`
	Command    string    `json:"command"`
	Sender     string    `json:"sender"`
	Chat       string    `json:"chat"`
	IsGroup    bool      `json:"is_group"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

// AuditResponse is returned by GET /audit.
type AuditResponse struct {
	Records []AuditEntry `json:"records"`
}
