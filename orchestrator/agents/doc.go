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
Package agents implements the four agent adapters of the lifecycle core:
essay Generator, essay Scorer, requirement Parser, and program Matcher.

All four share one narrow contract: a strongly typed input goes in, an
immutable artifact payload or a classified failure comes out. Adapters are
deterministic enough to fingerprint: the model and sampling parameters are
part of the normalized input, so the same input at a different temperature
is a different artifact.

Provider failures are classified Retryable (rate limits, 5xx, timeouts)
or Fatal (malformed or unsafe output). Fatal failures are never retried.
*/
package agents
