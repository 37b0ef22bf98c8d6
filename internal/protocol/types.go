package protocol

import "time"

// Version is the only protocol version plugins are spoken to with.
const Version = 1

// Request is the envelope written to a command plugin on stdin.
type Request struct {
	Protocol     int            `json:"protocol"`
	InvocationID string         `json:"invocation_id"`
	Command      string         `json:"command"`
	Args         []string       `json:"args"`
	ArgText      string         `json:"arg_text,omitempty"`
	Sender       string         `json:"sender"`
	PushName     string         `json:"push_name,omitempty"`
	Chat         string         `json:"chat"`
	IsGroup      bool           `json:"is_group"`
	Quoted       *Quoted        `json:"quoted,omitempty"`
	Mentions     []string       `json:"mentions,omitempty"`
	Prefix       string         `json:"prefix"`
	Config       map[string]any `json:"config,omitempty"`
	DeadlineAt   time.Time      `json:"deadline_at"`
}

// Quoted is the message the sender replied to.
type Quoted struct {
	ID          string `json:"id"`
	Participant string `json:"participant,omitempty"`
	Text        string `json:"text,omitempty"`
}

// Response is the envelope a command plugin writes to stdout.
type Response struct {
	Status    string     `json:"status"` // ok | error
	Error     string     `json:"error,omitempty"`
	Replies   []Reply    `json:"replies,omitempty"`
	Reactions []string   `json:"reactions,omitempty"`
	Logs      []LogEntry `json:"logs,omitempty"`
}

// Reply is one text message sent back to the invoking chat.
type Reply struct {
	Text string `json:"text"`
}

// LogEntry represents a log message from a plugin.
type LogEntry struct {
	Level   string `json:"level"` // info | warn | error | debug
	Message string `json:"message"`
}
