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

/*
Package logger provides structured JSON logging for AdmitFlow services.

Every entry is written as a single JSON line to stdout so container
runtimes can ship it unchanged. Entries carry the component name, the
deployment instance, and optional application/job correlation IDs.

Usage:

	log := logger.New("orchestrator")
	log.Info(appID, jobID, "job dispatched", map[string]interface{}{
	    "agent_type": "generator",
	    "attempt":    1,
	})
*/
package logger
