package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/carchat/carchat/internal/chat"
	"github.com/carchat/carchat/internal/config"
	"github.com/carchat/carchat/internal/query"
	"github.com/carchat/carchat/internal/schema"
	"github.com/carchat/carchat/internal/session"
)

type stubGenerator struct {
	sql string
	err error
}

func (g *stubGenerator) Generate(context.Context, string, schema.Description, []string) (string, error) {
	return g.sql, g.err
}

type stubExecutor struct{ result query.Result }

func (e *stubExecutor) Execute(context.Context, string) query.Result { return e.result }

type stubComposer struct {
	answer string
	err    error
}

func (c *stubComposer) Compose(context.Context, string, string, query.Result) (string, error) {
	return c.answer, c.err
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("carchat-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func carsSchema() schema.Description {
	return schema.Description{Tables: []schema.Table{{
		Name:    "cars",
		Columns: []schema.Column{{Name: "name", Type: "TEXT"}, {Name: "selling_price", Type: "INTEGER"}},
	}}}
}

func newTestHandler(t *testing.T, gen *stubGenerator, exec *stubExecutor, comp *stubComposer) (http.Handler, *session.Registry) {
	t.Helper()
	registry := session.NewRegistry(nil)
	orchestrator := &chat.Orchestrator{Schema: carsSchema(), Generator: gen, Executor: exec, Composer: comp}
	return NewHandler(testConfig(t), Dependencies{
		Sessions: registry,
		Chat:     orchestrator,
		Schema:   carsSchema(),
	}), registry
}

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(testConfig(t), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"service":"carchat-api"`) {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	h := NewHandler(testConfig(t), Dependencies{
		Readiness: func(context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "NOT_READY" || body["retryable"] != true || body["trace_id"] == "" {
		t.Fatalf("body = %#v", body)
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(_ context.Context) error {
			order = append(order, 1)
			return nil
		},
		func(_ context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(_ context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	err := combined(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestCheckSchemaLoaded(t *testing.T) {
	if err := CheckSchemaLoaded(schema.Description{})(context.Background()); err == nil {
		t.Fatal("expected error for empty schema")
	}
	if err := CheckSchemaLoaded(carsSchema())(context.Background()); err != nil {
		t.Fatalf("CheckSchemaLoaded() error = %v", err)
	}
}

func TestSchemaEndpoint(t *testing.T) {
	h, _ := newTestHandler(t, &stubGenerator{}, &stubExecutor{}, &stubComposer{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["text"] != "Table: cars\n  - name (TEXT)\n  - selling_price (INTEGER)" {
		t.Fatalf("text = %#v", body["text"])
	}
}

func TestSessionLifecycle(t *testing.T) {
	h, registry := newTestHandler(t, &stubGenerator{sql: "SELECT 1"}, &stubExecutor{}, &stubComposer{answer: "ok"})

	created := httptest.NewRecorder()
	h.ServeHTTP(created, httptest.NewRequest(http.MethodPost, "/v1/sessions", nil))
	if created.Code != http.StatusCreated {
		t.Fatalf("create status = %d", created.Code)
	}
	id, _ := decodeBody(t, created)["session_id"].(string)
	if id == "" || registry.Len() != 1 {
		t.Fatalf("session id = %q, registry len = %d", id, registry.Len())
	}

	postTurn(t, h, id, `{"question":"how many cars?"}`)

	got := httptest.NewRecorder()
	h.ServeHTTP(got, httptest.NewRequest(http.MethodGet, "/v1/sessions/"+id, nil))
	if got.Code != http.StatusOK {
		t.Fatalf("get status = %d", got.Code)
	}
	history, _ := decodeBody(t, got)["history"].([]any)
	if len(history) != 1 || history[0] != "how many cars?" {
		t.Fatalf("history = %#v", history)
	}

	ended := httptest.NewRecorder()
	h.ServeHTTP(ended, httptest.NewRequest(http.MethodDelete, "/v1/sessions/"+id, nil))
	if ended.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", ended.Code)
	}

	again := httptest.NewRecorder()
	h.ServeHTTP(again, httptest.NewRequest(http.MethodDelete, "/v1/sessions/"+id, nil))
	if again.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", again.Code)
	}
}

func TestTurnEndpointReturnsSQLAndAnswer(t *testing.T) {
	exec := &stubExecutor{result: query.Result{
		Columns:  []string{"name", "selling_price"},
		Rows:     [][]any{{"Renault KWID RXT", int64(250000)}},
		Outcome:  query.OutcomeRows,
		Duration: 3 * time.Millisecond,
	}}
	h, registry := newTestHandler(t,
		&stubGenerator{sql: "```sql\nSELECT name, selling_price FROM cars ORDER BY selling_price LIMIT 1\n```"},
		exec,
		&stubComposer{answer: "The Renault KWID RXT at 250000 Indian Rupees."},
	)
	s := registry.Create()

	rr := postTurn(t, h, s.ID, `{"question":"cheapest car?"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["sql"] != "SELECT name, selling_price FROM cars ORDER BY selling_price LIMIT 1" {
		t.Fatalf("sql = %#v", body["sql"])
	}
	if body["answer"] != "The Renault KWID RXT at 250000 Indian Rupees." {
		t.Fatalf("answer = %#v", body["answer"])
	}
	if body["execution_outcome"] != "rows" || body["history_len"] != float64(1) {
		t.Fatalf("body = %#v", body)
	}
	rows, _ := body["rows"].([]any)
	if len(rows) != 1 {
		t.Fatalf("rows = %#v", body["rows"])
	}
}

func TestTurnEndpointEncodesNonFiniteRows(t *testing.T) {
	exec := &stubExecutor{result: query.Result{
		Columns: []string{"avg_price", "features"},
		Rows:    [][]any{{math.Inf(1), map[any]any{"seats": int32(5)}}},
		Outcome: query.OutcomeRows,
	}}
	h, registry := newTestHandler(t, &stubGenerator{sql: "SELECT 1e999"}, exec, &stubComposer{answer: "Unbounded."})
	s := registry.Create()

	rr := postTurn(t, h, s.ID, `{"question":"average price?"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	rows, _ := body["rows"].([]any)
	if len(rows) != 1 {
		t.Fatalf("rows = %#v", body["rows"])
	}
	row, _ := rows[0].([]any)
	if len(row) != 2 || row[0] != "+Inf" || row[1] != "map[seats:5]" {
		t.Fatalf("row = %#v", rows[0])
	}
}

func TestTurnEndpointReportsExecutionFailureInline(t *testing.T) {
	exec := &stubExecutor{result: query.Result{Rows: [][]any{}, Outcome: query.OutcomeFailed, Err: errors.New("no such table: car")}}
	h, registry := newTestHandler(t, &stubGenerator{sql: "SELECT * FROM car"}, exec, &stubComposer{answer: "Nothing found."})
	s := registry.Create()

	rr := postTurn(t, h, s.ID, `{"question":"list cars"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["execution_outcome"] != "failed" || !strings.Contains(body["execution_error"].(string), "no such table") {
		t.Fatalf("body = %#v", body)
	}
}

func TestTurnEndpointMapsGenerationFailureTo502(t *testing.T) {
	h, registry := newTestHandler(t, &stubGenerator{err: errors.New("quota")}, &stubExecutor{}, &stubComposer{})
	s := registry.Create()

	rr := postTurn(t, h, s.ID, `{"question":"list cars"}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "SQL_GENERATION_FAILED" || body["retryable"] != true {
		t.Fatalf("body = %#v", body)
	}
	if s.History.Len() != 1 {
		t.Fatalf("history len = %d, want 1", s.History.Len())
	}
}

func TestTurnEndpointMapsCompositionFailureTo502(t *testing.T) {
	h, registry := newTestHandler(t, &stubGenerator{sql: "SELECT 1"}, &stubExecutor{}, &stubComposer{err: errors.New("timeout")})
	s := registry.Create()

	rr := postTurn(t, h, s.ID, `{"question":"list cars"}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	extra, _ := body["context"].(map[string]any)
	if body["error_code"] != "ANSWER_COMPOSITION_FAILED" || extra["sql"] != "SELECT 1" {
		t.Fatalf("body = %#v", body)
	}
}

func TestTurnEndpointRejectsBadRequests(t *testing.T) {
	h, registry := newTestHandler(t, &stubGenerator{sql: "SELECT 1"}, &stubExecutor{}, &stubComposer{answer: "ok"})
	s := registry.Create()

	if rr := postTurn(t, h, "missing", `{"question":"x"}`); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown session status = %d", rr.Code)
	}
	if rr := postTurn(t, h, s.ID, `{"prompt":"x"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d", rr.Code)
	}
	rr := postTurn(t, h, s.ID, `{"question":"   "}`)
	if rr.Code != http.StatusBadRequest || decodeBody(t, rr)["error_code"] != "INVALID_QUESTION" {
		t.Fatalf("empty question status = %d", rr.Code)
	}
	if s.History.Len() != 0 {
		t.Fatalf("history len = %d, want 0", s.History.Len())
	}
}

func postTurn(t *testing.T, h http.Handler, id, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+id+"/turns", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	return body
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
