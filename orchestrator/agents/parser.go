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
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"admitflow/platform/orchestrator/llm"
	"admitflow/platform/shared/types"
)

// Parser turns free-form program requirement text into a normalized
// checklist.
type Parser struct {
	provider llm.Provider
}

var _ Adapter = (*Parser)(nil)

// NewParser creates the requirement parser adapter.
func NewParser(provider llm.Provider) *Parser {
	return &Parser{provider: provider}
}

// AgentType identifies this adapter.
func (p *Parser) AgentType() types.AgentType {
	return types.AgentParser
}

// Invoke parses one requirement document into checklist items.
func (p *Parser) Invoke(ctx context.Context, input Input) (json.RawMessage, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	payload := input.Parse

	resp, err := p.provider.Complete(ctx, completionRequest(parserSystemPrompt, parserPrompt(payload), payload.Sampling))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Items []ChecklistItem `json:"items"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Content)), &parsed); err != nil {
		return nil, fatalOutput("parser output is not valid JSON: %v", err)
	}
	if len(parsed.Items) == 0 {
		return nil, fatalOutput("parser produced an empty checklist")
	}

	checklist := RequirementChecklist{
		ProgramName: payload.ProgramName,
		Items:       make([]ChecklistItem, 0, len(parsed.Items)),
	}
	for i, item := range parsed.Items {
		if strings.TrimSpace(item.Description) == "" {
			return nil, fatalOutput("checklist item %d has an empty description", i)
		}
		item.Category = normalizeCategory(item.Category)
		checklist.Items = append(checklist.Items, item)
	}

	out, err := json.Marshal(checklist)
	if err != nil {
		return nil, fmt.Errorf("failed to encode requirement checklist: %w", err)
	}
	return out, nil
}

// normalizeCategory folds unknown categories into "other".
func normalizeCategory(category string) string {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case CategoryDocument:
		return CategoryDocument
	case CategoryTest:
		return CategoryTest
	case CategoryFinancial:
		return CategoryFinancial
	case CategoryDeadline:
		return CategoryDeadline
	default:
		return CategoryOther
	}
}
