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
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("orchestrator", &buf)

	l.Info("app-1", "job-1", "job dispatched", map[string]interface{}{
		"agent_type": "generator",
		"attempt":    1,
	})

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, INFO, entry.Level)
	assert.Equal(t, "orchestrator", entry.Component)
	assert.Equal(t, "app-1", entry.ApplicationID)
	assert.Equal(t, "job-1", entry.JobID)
	assert.Equal(t, "job dispatched", entry.Message)
	assert.Equal(t, "generator", entry.Fields["agent_type"])
}

func TestLoggerOmitsEmptyCorrelationIDs(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("orchestrator", &buf)

	l.Warn("", "", "cache anomaly", nil)

	assert.NotContains(t, buf.String(), "application_id")
	assert.NotContains(t, buf.String(), "job_id")
	assert.Contains(t, buf.String(), "cache anomaly")
}

func TestErrorWithErrAttachesError(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("orchestrator", &buf)

	l.ErrorWithErr("app-2", "", "provider call failed", assert.AnError, nil)

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, ERROR, entry.Level)
	assert.Equal(t, assert.AnError.Error(), entry.Fields["error"])
}

func TestInfoWithDuration(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("orchestrator", &buf)

	l.InfoWithDuration("app-3", "job-3", "adapter call finished", 123.4, nil)

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.InDelta(t, 123.4, entry.Fields["duration_ms"], 0.001)
}
