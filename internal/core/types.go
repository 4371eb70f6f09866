package core

import "time"

// LogEntry is a single console.log/warn/error captured from page script.
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// MaxLogEntries bounds the console buffer kept per surface.
const MaxLogEntries = 1000

// MaxLogMessageSize truncates oversized console messages.
const MaxLogMessageSize = 4096
