package nl2sql

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/carchat/carchat/internal/apperr"
	"github.com/carchat/carchat/internal/llm"
	"github.com/carchat/carchat/internal/schema"
	"github.com/carchat/carchat/internal/store"
)

type ExampleField struct {
	Name  string
	Value string
}

// DomainNote describes the dataset to the model: what a row looks like and
// which currency monetary columns use.
type DomainNote struct {
	Dialect     string
	Subject     string
	Currency    string
	PriceColumn string
	ExampleRow  []ExampleField
}

func DefaultDomainNote() DomainNote {
	return DomainNote{
		Dialect:     "SQLite",
		Subject:     "second hand cars",
		Currency:    "Indian Rupees",
		PriceColumn: "selling_price",
		ExampleRow: []ExampleField{
			{Name: "index", Value: "1"},
			{Name: "name", Value: `"Maruti Wagon R LXI Minor"`},
			{Name: "year", Value: "2007"},
			{Name: "selling_price", Value: "135000"},
			{Name: "km_driven", Value: "50000"},
			{Name: "fuel", Value: `"Petrol"`},
			{Name: "seller_type", Value: `"Individual"`},
			{Name: "transmission", Value: `"Manual"`},
			{Name: "owner", Value: `"First Owner"`},
		},
	}
}

func DialectName(driver store.Driver) string {
	switch driver {
	case store.DriverDuckDB:
		return "DuckDB"
	case store.DriverPostgres:
		return "PostgreSQL"
	default:
		return "SQLite"
	}
}

type Generator struct {
	Model  llm.Completer
	Domain DomainNote
}

func NewGenerator(model llm.Completer, domain DomainNote) *Generator {
	return &Generator{Model: model, Domain: domain}
}

// Generate asks the model for one SQL statement and returns its raw text.
// Callers sanitize the result before executing it.
func (g *Generator) Generate(ctx context.Context, question string, description schema.Description, history []string) (string, error) {
	if g.Model == nil {
		return "", apperr.New(apperr.KindGeneration, "model is not configured")
	}
	prompt, err := BuildPrompt(question, description.String(), history, g.Domain)
	if err != nil {
		return "", apperr.Wrap(apperr.KindGeneration, "build prompt", err)
	}
	raw, err := g.Model.Complete(ctx, prompt)
	if err != nil {
		return "", apperr.Wrap(apperr.KindGeneration, "model call failed", err)
	}
	return raw, nil
}

func BuildPrompt(question, schemaText string, history []string, domain DomainNote) (string, error) {
	if history == nil {
		history = []string{}
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return "", fmt.Errorf("marshal history: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert in %s SQL for this store.\n", domain.Dialect)
	fmt.Fprintf(&b, "Write one SQL query that answers the user question: %s\n", strings.TrimSpace(question))
	fmt.Fprintf(&b, "The history of user questions in this session is: %s\n", historyJSON)
	b.WriteString("If the history contains several questions, resolve any ambiguity using only the final one.\n")
	fmt.Fprintf(&b, "The database consists of %s.\n", domain.Subject)
	b.WriteString("This is the schema of the database with table names, column names and the data type of each column.\n")
	fmt.Fprintf(&b, "schema:\n%s\n", schemaText)
	if len(domain.ExampleRow) > 0 {
		b.WriteString("Here is an example of the data in the database:\n")
		for i, field := range domain.ExampleRow {
			line := fmt.Sprintf("    %q: %s", field.Name, field.Value)
			if field.Name == domain.PriceColumn && domain.Currency != "" {
				line += " (In " + domain.Currency + ")"
			}
			if i < len(domain.ExampleRow)-1 {
				line += ","
			}
			b.WriteString(line + "\n")
		}
	}
	if domain.Currency != "" {
		fmt.Fprintf(&b, "Price is provided in %s. State the currency literally; do not infer or convert it.\n", domain.Currency)
	}
	b.WriteString("Return only the SQL query. Do not use ``` or \\n at the beginning or end of the SQL query.\n")
	return b.String(), nil
}
