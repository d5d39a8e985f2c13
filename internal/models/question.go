package models

import (
	"encoding/json"
	"fmt"

	"github.com/formdeck/formdeck/internal/types"
)

// Question types accepted at form save time. Unknown types are rejected
// when the form is created or updated, not when responses are read.
const (
	QuestionTypeText     = "text"
	QuestionTypeTextarea = "textarea"
	QuestionTypeChoice   = "choice"
	QuestionTypeCheckbox = "checkbox"
	QuestionTypeFile     = "file"
)

// Question is one element of a form's schema. The id is client-assigned
// and may arrive as a JSON number or string; it keys both response_data
// and uploaded_files as a decimal string.
type Question struct {
	ID       types.FlexUint64 `json:"id"`
	Label    string           `json:"label"`
	Type     string           `json:"type"`
	Required bool             `json:"required,omitempty"`
	Options  []string         `json:"options,omitempty"`
}

// Key returns the decimal string form of the question id, as used in
// response_data and uploaded_files keys.
func (q Question) Key() string {
	return fmt.Sprintf("%d", q.ID.Uint64())
}

// ValidateQuestions checks an ordered question list: every element needs a
// label and a known type, and ids must be unique within the form.
func ValidateQuestions(questions []Question) error {
	if len(questions) == 0 {
		return fmt.Errorf("questions must contain at least one element")
	}

	seen := make(map[uint64]struct{}, len(questions))
	for i, q := range questions {
		if q.Label == "" {
			return fmt.Errorf("question %d: label is required", i)
		}
		switch q.Type {
		case QuestionTypeText, QuestionTypeTextarea, QuestionTypeChoice,
			QuestionTypeCheckbox, QuestionTypeFile:
		case "":
			return fmt.Errorf("question %d: type is required", i)
		default:
			return fmt.Errorf("question %d: unknown type %q", i, q.Type)
		}
		if (q.Type == QuestionTypeChoice || q.Type == QuestionTypeCheckbox) && len(q.Options) == 0 {
			return fmt.Errorf("question %d: %s questions need options", i, q.Type)
		}
		if _, dup := seen[q.ID.Uint64()]; dup {
			return fmt.Errorf("question %d: duplicate id %d", i, q.ID.Uint64())
		}
		seen[q.ID.Uint64()] = struct{}{}
	}
	return nil
}

// ParseQuestions decodes a form's stored questions column.
func ParseQuestions(raw JSON) ([]Question, error) {
	if len(raw.JSON) == 0 {
		return nil, nil
	}
	var questions []Question
	if err := json.Unmarshal(raw.JSON, &questions); err != nil {
		return nil, fmt.Errorf("malformed questions column: %w", err)
	}
	return questions, nil
}
