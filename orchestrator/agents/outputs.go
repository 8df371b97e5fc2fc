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

package agents

// EssayDraft is the generator artifact payload.
type EssayDraft struct {
	Text      string `json:"text"`
	WordCount int    `json:"word_count"`
	Program   string `json:"program"`
	Topic     string `json:"topic,omitempty"`
}

// DimensionScore is one rubric dimension of an essay evaluation.
type DimensionScore struct {
	Band     float64 `json:"band"`
	Feedback string  `json:"feedback,omitempty"`
}

// EssayScore is the scorer artifact payload. The four dimensions follow
// the IELTS writing rubric; bands run 0 to 9 in half steps, and the
// overall band is the dimension average rounded to the nearest half.
type EssayScore struct {
	TaskAchievement     DimensionScore `json:"task_achievement"`
	CoherenceCohesion   DimensionScore `json:"coherence_cohesion"`
	LexicalResource     DimensionScore `json:"lexical_resource"`
	GrammaticalAccuracy DimensionScore `json:"grammatical_accuracy"`
	OverallBand         float64        `json:"overall_band"`
	Summary             string         `json:"summary,omitempty"`
}

// ChecklistItem is one normalized admission requirement.
type ChecklistItem struct {
	Description string `json:"description"`
	Category    string `json:"category"`
	Mandatory   bool   `json:"mandatory"`
}

// Requirement checklist categories. Anything the model invents outside
// this set is folded into CategoryOther rather than rejected.
const (
	CategoryDocument  = "document"
	CategoryTest      = "test"
	CategoryFinancial = "financial"
	CategoryDeadline  = "deadline"
	CategoryOther     = "other"
)

// RequirementChecklist is the parser artifact payload.
type RequirementChecklist struct {
	ProgramName string          `json:"program_name"`
	Items       []ChecklistItem `json:"items"`
}

// ProgramMatch is one ranked entry of the matcher artifact.
type ProgramMatch struct {
	ProgramID  string  `json:"program_id"`
	Name       string  `json:"name"`
	University string  `json:"university"`
	Score      float64 `json:"score"`
	Likelihood string  `json:"likelihood,omitempty"`
	Rationale  string  `json:"rationale,omitempty"`
}

// ProgramMatches is the matcher artifact payload, ranked best first.
type ProgramMatches struct {
	Matches []ProgramMatch `json:"matches"`
}
