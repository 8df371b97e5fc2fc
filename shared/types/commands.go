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

package types

// Command is the typed inbound contract from the HTTP/validation boundary.
// Exactly one payload field matching the Kind may be set; the orchestrator
// validates the variant once at its boundary so each agent adapter receives
// a strongly typed input.
type Command struct {
	Kind            CommandKind `json:"kind"`
	ApplicationID   string      `json:"application_id"`
	ExpectedVersion int64       `json:"expected_version"`

	Generate *GenerateEssayPayload     `json:"generate,omitempty"`
	Score    *ScoreEssayPayload        `json:"score,omitempty"`
	Parse    *ParseRequirementsPayload `json:"parse,omitempty"`
	Match    *MatchProgramsPayload     `json:"match,omitempty"`
	Decision *DecisionPayload          `json:"decision,omitempty"`
	Override *OverridePayload          `json:"override,omitempty"`
}

// Sampling carries the model and sampling parameters for an agent call.
// These are part of the fingerprinted input: the same prompt at a different
// temperature is a different artifact.
type Sampling struct {
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// StudentProfile is the slice of student master data the agents consume.
// It arrives fully resolved in the command payload; the lifecycle core
// never reads the student CRUD store directly.
type StudentProfile struct {
	FullName    string             `json:"full_name"`
	Nationality string             `json:"nationality,omitempty"`
	GPA         float64            `json:"gpa,omitempty"`
	DegreeTarget string            `json:"degree_target,omitempty"`
	Major       string             `json:"major,omitempty"`
	TestScores  map[string]float64 `json:"test_scores,omitempty"`
	Background  string             `json:"background,omitempty"`
}

// CatalogProgram is a catalog entry already resolved by the excluded
// catalog service and embedded in the match command payload.
type CatalogProgram struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	University   string   `json:"university"`
	Country      string   `json:"country,omitempty"`
	MinGPA       float64  `json:"min_gpa,omitempty"`
	Requirements []string `json:"requirements,omitempty"`
	TuitionUSD   int      `json:"tuition_usd,omitempty"`
}

// GenerateEssayPayload is the input for the essay generator agent.
type GenerateEssayPayload struct {
	Profile      StudentProfile `json:"profile"`
	ProgramName  string         `json:"program_name"`
	Requirements []string       `json:"requirements,omitempty"`
	Topic        string         `json:"topic,omitempty"`
	Sampling     Sampling       `json:"sampling,omitempty"`
}

// ScoreEssayPayload is the input for the essay scorer agent. If EssayText
// is empty the state machine resolves it from the latest generator artifact.
type ScoreEssayPayload struct {
	EssayText string   `json:"essay_text,omitempty"`
	Sampling  Sampling `json:"sampling,omitempty"`
}

// ParseRequirementsPayload is the input for the requirement parser agent.
type ParseRequirementsPayload struct {
	ProgramName string   `json:"program_name"`
	RawText     string   `json:"raw_text"`
	Sampling    Sampling `json:"sampling,omitempty"`
}

// MatchProgramsPayload is the input for the program matcher agent.
type MatchProgramsPayload struct {
	Profile  StudentProfile   `json:"profile"`
	Programs []CatalogProgram `json:"programs"`
	Sampling Sampling         `json:"sampling,omitempty"`
}

// DecisionOutcome is the result of a human review.
type DecisionOutcome string

const (
	DecisionAccepted   DecisionOutcome = "accepted"
	DecisionRejected   DecisionOutcome = "rejected"
	DecisionWaitlisted DecisionOutcome = "waitlisted"
)

// StateFor maps a review outcome to its lifecycle state.
func (d DecisionOutcome) StateFor() (ApplicationState, bool) {
	switch d {
	case DecisionAccepted:
		return StateAccepted, true
	case DecisionRejected:
		return StateRejected, true
	case DecisionWaitlisted:
		return StateWaitlisted, true
	default:
		return "", false
	}
}

// DecisionPayload carries the human review outcome.
type DecisionPayload struct {
	Outcome DecisionOutcome `json:"outcome"`
	Note    string          `json:"note,omitempty"`
}

// OverridePayload re-dispatches the command that blocked the application.
// The embedded payload replaces the original input, letting an operator
// correct bad inputs before retrying.
type OverridePayload struct {
	Generate *GenerateEssayPayload     `json:"generate,omitempty"`
	Score    *ScoreEssayPayload        `json:"score,omitempty"`
	Parse    *ParseRequirementsPayload `json:"parse,omitempty"`
	Match    *MatchProgramsPayload     `json:"match,omitempty"`
}
