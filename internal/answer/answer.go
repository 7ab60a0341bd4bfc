// Package answer turns a question, the SQL that was run and its rows into a
// plain-language reply.
package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/carchat/carchat/internal/apperr"
	"github.com/carchat/carchat/internal/llm"
	"github.com/carchat/carchat/internal/query"
)

type Composer struct {
	Model llm.Completer
}

func NewComposer(model llm.Completer) *Composer {
	return &Composer{Model: model}
}

// Compose makes exactly one model call and returns its text as received. A
// failed or empty result is passed along as an empty row set; the model
// decides how to phrase that.
func (c *Composer) Compose(ctx context.Context, question, sqlText string, result query.Result) (string, error) {
	if c.Model == nil {
		return "", apperr.New(apperr.KindComposition, "model is not configured")
	}
	prompt, err := BuildPrompt(question, sqlText, result)
	if err != nil {
		return "", apperr.Wrap(apperr.KindComposition, "build prompt", err)
	}
	text, err := c.Model.Complete(ctx, prompt)
	if err != nil {
		return "", apperr.Wrap(apperr.KindComposition, "model call failed", err)
	}
	return text, nil
}

func BuildPrompt(question, sqlText string, result query.Result) (string, error) {
	rendered, err := RenderRows(result)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You have been given a user question to get details from a SQL database, the SQL command and the result from the database.\n")
	b.WriteString("You need to give a human friendly answer to the user.\n")
	fmt.Fprintf(&b, "The user question: %s\n", strings.TrimSpace(question))
	fmt.Fprintf(&b, "SQL command: %s\n", sqlText)
	fmt.Fprintf(&b, "Output from database: %s\n", rendered)
	return b.String(), nil
}

// RenderRows encodes rows as a JSON array of arrays, prefixed by the column
// names when the store reported any. Values JSON cannot carry are rendered
// as text.
func RenderRows(result query.Result) (string, error) {
	rows := query.EncodableRows(result.Rows)
	rowsJSON, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("marshal rows: %w", err)
	}
	if len(result.Columns) == 0 {
		return string(rowsJSON), nil
	}
	columnsJSON, err := json.Marshal(result.Columns)
	if err != nil {
		return "", fmt.Errorf("marshal columns: %w", err)
	}
	return fmt.Sprintf("columns %s rows %s", columnsJSON, rowsJSON), nil
}
