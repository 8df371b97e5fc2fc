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

package orchestrator

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics, served at /metrics.
var (
	metricTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admitflow_lifecycle_transitions_total",
			Help: "Accepted and rejected lifecycle commands by outcome",
		},
		[]string{"command", "outcome"},
	)
	metricJobAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admitflow_job_attempts_total",
			Help: "Agent job attempts by agent type and outcome",
		},
		[]string{"agent", "outcome"},
	)
	metricJobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "admitflow_job_duration_milliseconds",
			Help:    "Agent job duration in milliseconds, including retries",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"agent"},
	)
	metricCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admitflow_artifact_cache_lookups_total",
			Help: "Artifact cache lookups by agent type and result",
		},
		[]string{"agent", "result"},
	)
	metricCacheCorruptions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "admitflow_artifact_cache_corruptions_total",
			Help: "Artifacts that failed their integrity check on read",
		},
	)
	metricBlockedApplications = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "admitflow_blocked_applications_total",
			Help: "Applications that entered the Blocked state",
		},
	)
	metricJoinedJobs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "admitflow_joined_jobs_total",
			Help: "Callers that joined an in-flight job instead of starting a duplicate",
		},
	)
)

func init() {
	prometheus.MustRegister(metricTransitions)
	prometheus.MustRegister(metricJobAttempts)
	prometheus.MustRegister(metricJobDuration)
	prometheus.MustRegister(metricCacheLookups)
	prometheus.MustRegister(metricCacheCorruptions)
	prometheus.MustRegister(metricBlockedApplications)
	prometheus.MustRegister(metricJoinedJobs)
}
