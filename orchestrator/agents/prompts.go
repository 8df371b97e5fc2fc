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

import (
	"fmt"
	"sort"
	"strings"

	"admitflow/platform/shared/types"
)

const generatorSystemPrompt = `You are an expert admissions essay writer with years of experience helping
students craft compelling application essays for universities worldwide.
Write in the student's authentic voice, grounded strictly in the profile
facts you are given. Never invent achievements, test scores, or biography.`

const scorerSystemPrompt = `You are a certified IELTS writing examiner. Evaluate the essay against the
four official criteria: Task Achievement, Coherence and Cohesion, Lexical
Resource, and Grammatical Range and Accuracy. Bands run from 0 to 9 in half
steps. Respond with JSON only, no prose outside the JSON object.`

const parserSystemPrompt = `You are an admissions requirements analyst. Extract every admission
requirement from the provided program text into a normalized checklist.
Respond with JSON only, no prose outside the JSON object.`

const matcherSystemPrompt = `You are a study-abroad program matching advisor. Rank the candidate
programs for the student, scoring fit from 0 to 100 and assessing admission
likelihood as one of "high", "medium", or "low". Respond with JSON only,
no prose outside the JSON object.`

func formatProfile(b *strings.Builder, profile types.StudentProfile) {
	fmt.Fprintf(b, "Student profile:\n")
	fmt.Fprintf(b, "- Name: %s\n", profile.FullName)
	if profile.Nationality != "" {
		fmt.Fprintf(b, "- Nationality: %s\n", profile.Nationality)
	}
	if profile.GPA > 0 {
		fmt.Fprintf(b, "- GPA: %.2f\n", profile.GPA)
	}
	if profile.DegreeTarget != "" {
		fmt.Fprintf(b, "- Degree target: %s\n", profile.DegreeTarget)
	}
	if profile.Major != "" {
		fmt.Fprintf(b, "- Intended major: %s\n", profile.Major)
	}
	if len(profile.TestScores) > 0 {
		names := make([]string, 0, len(profile.TestScores))
		for name := range profile.TestScores {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(b, "- %s score: %.1f\n", name, profile.TestScores[name])
		}
	}
	if profile.Background != "" {
		fmt.Fprintf(b, "- Background: %s\n", profile.Background)
	}
}

func generatorPrompt(p *types.GenerateEssayPayload) string {
	var b strings.Builder
	formatProfile(&b, p.Profile)
	fmt.Fprintf(&b, "\nTarget program: %s\n", p.ProgramName)
	if p.Topic != "" {
		fmt.Fprintf(&b, "Essay topic: %s\n", p.Topic)
	}
	if len(p.Requirements) > 0 {
		b.WriteString("Essay requirements:\n")
		for _, r := range p.Requirements {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	b.WriteString("\nWrite the complete essay. Output only the essay text itself,\n")
	b.WriteString("with no title, headers, or commentary.")
	return b.String()
}

func scorerPrompt(p *types.ScoreEssayPayload) string {
	var b strings.Builder
	b.WriteString("Evaluate the following essay.\n\nEssay:\n\"\"\"\n")
	b.WriteString(p.EssayText)
	b.WriteString("\n\"\"\"\n\n")
	b.WriteString(`Respond with exactly this JSON shape:
{
  "task_achievement": {"band": 0.0, "feedback": "..."},
  "coherence_cohesion": {"band": 0.0, "feedback": "..."},
  "lexical_resource": {"band": 0.0, "feedback": "..."},
  "grammatical_accuracy": {"band": 0.0, "feedback": "..."},
  "overall_band": 0.0,
  "summary": "..."
}`)
	return b.String()
}

func parserPrompt(p *types.ParseRequirementsPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Program: %s\n\nRequirement text:\n\"\"\"\n%s\n\"\"\"\n\n", p.ProgramName, p.RawText)
	b.WriteString(`Respond with exactly this JSON shape:
{
  "items": [
    {"description": "...", "category": "document|test|financial|deadline|other", "mandatory": true}
  ]
}`)
	return b.String()
}

func matcherPrompt(p *types.MatchProgramsPayload) string {
	var b strings.Builder
	formatProfile(&b, p.Profile)
	b.WriteString("\nCandidate programs:\n")
	for _, prog := range p.Programs {
		fmt.Fprintf(&b, "- id=%s %s at %s", prog.ID, prog.Name, prog.University)
		if prog.Country != "" {
			fmt.Fprintf(&b, " (%s)", prog.Country)
		}
		if prog.MinGPA > 0 {
			fmt.Fprintf(&b, ", min GPA %.2f", prog.MinGPA)
		}
		if prog.TuitionUSD > 0 {
			fmt.Fprintf(&b, ", tuition $%d/yr", prog.TuitionUSD)
		}
		if len(prog.Requirements) > 0 {
			fmt.Fprintf(&b, ", requires: %s", strings.Join(prog.Requirements, "; "))
		}
		b.WriteString("\n")
	}
	b.WriteString(`
Respond with exactly this JSON shape, including every candidate program:
{
  "matches": [
    {"program_id": "...", "score": 0.0, "likelihood": "high|medium|low", "rationale": "..."}
  ]
}`)
	return b.String()
}
