package services

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"github.com/formdeck/formdeck/internal/models"
	"gorm.io/gorm"
)

const exportTimeLayout = "2006-01-02 15:04:05"

// ExportCSV renders every response to the form as CSV, newest first.
// Header: Respondent, Submitted At, then one column per question in form
// order. File-question cells with an upload render the download URL;
// missing answers render empty; a nulled respondent renders "Anonymous".
func ExportCSV(db *gorm.DB, form *models.Form) ([]byte, string, error) {
	questions, err := models.ParseQuestions(form.Questions)
	if err != nil {
		return nil, "", err
	}

	responses, err := ListResponses(db, form.FormID)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"Respondent", "Submitted At"}
	for _, q := range questions {
		header = append(header, q.Label)
	}
	if err := w.Write(header); err != nil {
		return nil, "", err
	}

	for i := range responses {
		r := &responses[i]

		respondent := "Anonymous"
		if r.Respondent != nil {
			respondent = r.Respondent.Username
		}
		row := []string{respondent, r.SubmittedAt.Format(exportTimeLayout)}

		answers := map[string]interface{}{}
		if len(r.ResponseData.JSON) > 0 {
			if err := json.Unmarshal(r.ResponseData.JSON, &answers); err != nil {
				return nil, "", fmt.Errorf("malformed response_data on response %d: %w", r.ResponseID, err)
			}
		}
		stored, err := storedFiles(r)
		if err != nil {
			return nil, "", err
		}

		for _, q := range questions {
			key := q.Key()
			if q.Type == models.QuestionTypeFile {
				if _, ok := stored[key]; ok {
					row = append(row, DownloadURL(form.FormID, r.ResponseID, key))
					continue
				}
			}
			row = append(row, cellString(answers[key]))
		}
		if err := w.Write(row); err != nil {
			return nil, "", err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("%s_responses.csv", form.Title)
	return buf.Bytes(), filename, nil
}

// cellString renders one answer value. Strings pass through; anything
// structured (checkbox arrays and the like) renders as compact JSON.
func cellString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		b, _ := json.Marshal(val)
		return string(b)
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
