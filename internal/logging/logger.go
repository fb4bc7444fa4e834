package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// JobLog represents a single completed job's summary, distinct from the
// per-line operational log produced by Op().
type JobLog struct {
	Timestamp    time.Time `json:"timestamp"`
	JobID        string    `json:"job_id"`
	AppID        string    `json:"app_id,omitempty"`
	TraceID      string    `json:"trace_id,omitempty"`
	SpanID       string    `json:"span_id,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	InputCount   int       `json:"input_count"`
	ArtifactCount int      `json:"artifact_count,omitempty"`
	Canceled     bool      `json:"canceled,omitempty"`
}

// Logger handles job summary logging, writing one line per finished job
// to console and/or a JSON log file.
type Logger struct {
	mu      sync.Mutex
	enabled bool
	file    *os.File
	console bool
}

var defaultLogger = &Logger{enabled: true, console: true}

// Default returns the default job logger.
func Default() *Logger {
	return defaultLogger
}

// SetOutput sets the log output file.
func (l *Logger) SetOutput(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

// SetConsole enables/disables console output.
func (l *Logger) SetConsole(enabled bool) {
	l.mu.Lock()
	l.console = enabled
	l.mu.Unlock()
}

// Log writes a job summary entry.
func (l *Logger) Log(entry *JobLog) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	entry.Timestamp = time.Now()

	if l.console {
		status := "✓"
		if !entry.Success {
			status = "✗"
		}
		canceled := ""
		if entry.Canceled {
			canceled = " [canceled]"
		}
		fmt.Printf("[job] %s %s %dms%s\n",
			status, entry.JobID, entry.DurationMs, canceled)
		if entry.Error != "" {
			fmt.Printf("[job]   error: %s\n", entry.Error)
		}
	}

	if l.file != nil {
		data, _ := json.Marshal(entry)
		l.file.Write(append(data, '\n'))
	}
}

// Close closes the log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}
