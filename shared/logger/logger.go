// Copyright 2025 AdmitFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// Logger provides structured logging for the lifecycle core
type Logger struct {
	Component  string
	InstanceID string
	Container  string

	out *log.Logger
}

// LogEntry represents a structured log entry written as one JSON line
type LogEntry struct {
	Timestamp     string                 `json:"timestamp"`
	Level         LogLevel               `json:"level"`
	Component     string                 `json:"component"`
	InstanceID    string                 `json:"instance_id"`
	Container     string                 `json:"container"`
	ApplicationID string                 `json:"application_id,omitempty"`
	JobID         string                 `json:"job_id,omitempty"`
	Message       string                 `json:"message"`
	Fields        map[string]interface{} `json:"fields,omitempty"`
}

// New creates a new Logger for the specified component
func New(component string) *Logger {
	// Instance ID is set during deployment
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}

	container, err := os.Hostname()
	if err != nil {
		container = "unknown"
	}

	return &Logger{
		Component:  component,
		InstanceID: instanceID,
		Container:  container,
		out:        log.New(os.Stdout, "", log.LstdFlags),
	}
}

// NewWithWriter creates a Logger writing to the given writer. Used by tests
// to capture output.
func NewWithWriter(component string, w io.Writer) *Logger {
	l := New(component)
	l.out = log.New(w, "", 0)
	return l
}

// Log creates a structured log entry and writes it as a JSON line
func (l *Logger) Log(level LogLevel, applicationID, jobID, message string, fields map[string]interface{}) {
	entry := LogEntry{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Level:         level,
		Component:     l.Component,
		InstanceID:    l.InstanceID,
		Container:     l.Container,
		ApplicationID: applicationID,
		JobID:         jobID,
		Message:       message,
		Fields:        fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		l.out.Printf("ERROR: Failed to marshal log entry: %v", err)
		return
	}

	l.out.Println(string(jsonBytes))
}

// Info logs an informational message
func (l *Logger) Info(applicationID, jobID, message string, fields map[string]interface{}) {
	l.Log(INFO, applicationID, jobID, message, fields)
}

// Error logs an error message
func (l *Logger) Error(applicationID, jobID, message string, fields map[string]interface{}) {
	l.Log(ERROR, applicationID, jobID, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(applicationID, jobID, message string, fields map[string]interface{}) {
	l.Log(WARN, applicationID, jobID, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(applicationID, jobID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, applicationID, jobID, message, fields)
}

// InfoWithDuration logs an info message with a duration field
func (l *Logger) InfoWithDuration(applicationID, jobID, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(applicationID, jobID, message, fields)
}

// ErrorWithErr logs an error message with the error attached as a field
func (l *Logger) ErrorWithErr(applicationID, jobID, message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(applicationID, jobID, message, fields)
}
