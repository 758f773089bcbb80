package generator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	perrors "wooden_dutch/errors"
)

// CandidateCount is the number of topics produced by one brainstorm.
const CandidateCount = 3

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func object(props map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func topicSchema() map[string]any {
	return object(map[string]any{
		"headline":    stringProp("The main headline, punchy and newspaper-style"),
		"subheadline": stringProp("A secondary line that adds context or an extra joke"),
		"angle":       stringProp("2-3 sentences describing the satirical angle and key points to hit"),
		"tags": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "3 relevant tags",
		},
	}, "headline", "subheadline", "angle", "tags")
}

// TopicCandidatesContract requires exactly three topics.
var TopicCandidatesContract = Contract{
	Name:        "TopicCandidates",
	Description: "Exactly 3 topic candidates",
	Schema: object(map[string]any{
		"candidates": map[string]any{
			"type":     "array",
			"items":    topicSchema(),
			"minItems": CandidateCount,
			"maxItems": CandidateCount,
		},
	}, "candidates"),
}

// TopicSelectionContract picks one candidate index.
var TopicSelectionContract = Contract{
	Name:        "TopicSelection",
	Description: "Index of the selected candidate with a brief justification",
	Schema: object(map[string]any{
		"selectedIndex": map[string]any{
			"type":        "integer",
			"minimum":     0,
			"maximum":     CandidateCount - 1,
			"description": "Index of the selected candidate (0, 1, or 2)",
		},
		"reasoning": stringProp("Brief explanation of why this topic was selected"),
	}, "selectedIndex", "reasoning"),
}

// AuthorAssignmentContract constrains the author to the given persona ids.
func AuthorAssignmentContract(ids []string) Contract {
	return Contract{
		Name:        "AuthorAssignment",
		Description: "The persona best suited to write the selected topic",
		Schema: object(map[string]any{
			"authorId": map[string]any{
				"type":        "string",
				"enum":        ids,
				"description": "The ID of the selected author",
			},
			"reasoning": stringProp("Brief explanation of why this author fits the topic"),
		}, "authorId", "reasoning"),
	}
}

// ReviewContract is the editorial review shape.
var ReviewContract = Contract{
	Name:        "EditorialReview",
	Description: "Editorial review of a draft article",
	Schema: object(map[string]any{
		"score": map[string]any{
			"type":        "integer",
			"minimum":     1,
			"maximum":     10,
			"description": "Overall quality score from 1-10",
		},
		"toneCorrect": map[string]any{"type": "boolean", "description": "Whether the deadpan satirical tone is maintained throughout"},
		"wordCountOk": map[string]any{"type": "boolean", "description": "Whether the article is between 400-700 words"},
		"satireQuality": map[string]any{
			"type":        "string",
			"enum":        []string{string(SatireWeak), string(SatireGood), string(SatireExcellent)},
			"description": "Quality of satirical elements",
		},
		"htmlValid": map[string]any{"type": "boolean", "description": "Whether only allowed HTML tags are used"},
		"feedback":  stringProp("Specific, actionable improvement notes"),
	}, "score", "toneCorrect", "wordCountOk", "satireQuality", "htmlValid", "feedback"),
}

type validator interface {
	validate() error
}

// decodeStrict parses raw service output into v, rejecting unknown fields,
// missing required fields and values that fail v's own checks.
func decodeStrict(contract Contract, raw []byte, v validator) error {
	body := bytes.TrimSpace(stripFences(raw))
	if len(body) == 0 {
		return perrors.NewContractViolation(contract.Name, "empty response")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return perrors.NewContractViolation(contract.Name, fmt.Sprintf("not a JSON object: %v", err))
	}
	if err := checkRequired(contract.Schema, body, ""); err != nil {
		return perrors.NewContractViolation(contract.Name, err.Error())
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return perrors.NewContractViolation(contract.Name, err.Error())
	}
	if err := v.validate(); err != nil {
		return perrors.NewContractViolation(contract.Name, err.Error())
	}
	return nil
}

// checkRequired walks schema alongside raw, reporting the first required
// property missing at any depth. Type mismatches are left to the decoder.
func checkRequired(schema map[string]any, raw json.RawMessage, path string) error {
	switch schema["type"] {
	case "object":
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil
		}
		req, _ := schema["required"].([]string)
		for _, name := range req {
			if _, ok := fields[name]; !ok {
				return fmt.Errorf("missing field %q", joinPath(path, name))
			}
		}
		props, _ := schema["properties"].(map[string]any)
		for name, value := range fields {
			sub, ok := props[name].(map[string]any)
			if !ok {
				continue
			}
			if err := checkRequired(sub, value, joinPath(path, name)); err != nil {
				return err
			}
		}
	case "array":
		items, ok := schema["items"].(map[string]any)
		if !ok {
			return nil
		}
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil
		}
		for i, elem := range elems {
			if err := checkRequired(items, elem, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(s, "```") {
		return raw
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return []byte(s)
}
