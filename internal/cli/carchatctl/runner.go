package carchatctl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	stdin := defaults.Stdin
	if stdin == nil {
		stdin = strings.NewReader("")
	}

	fs := flag.NewFlagSet("carchatctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "carchat API base URL")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 2*time.Minute), "HTTP timeout per request (e.g. 90s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}
	api := &apiClient{baseURL: strings.TrimRight(*baseURL, "/"), http: client}

	command := strings.TrimSpace(fs.Arg(0))
	switch command {
	case "health":
		return printGet(ctx, api, "/v1/health", stdout, stderr)
	case "ready":
		return printGet(ctx, api, "/v1/ready", stdout, stderr)
	case "schema":
		return printSchema(ctx, api, stdout, stderr)
	case "ask":
		question := strings.TrimSpace(strings.Join(fs.Args()[1:], " "))
		if question == "" {
			_, _ = fmt.Fprintln(stderr, "ask requires a question")
			return 2
		}
		return runAsk(ctx, api, question, stdout, stderr)
	case "chat":
		return runChat(ctx, api, stdin, stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}
}

func printGet(ctx context.Context, api *apiClient, path string, stdout, stderr io.Writer) int {
	code, body, err := api.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}
	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(body)))
		return 1
	}
	if pretty, ok := prettyJSON(body); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(body) > 0 {
		_, _ = fmt.Fprintln(stdout, string(body))
	}
	return 0
}

func printSchema(ctx context.Context, api *apiClient, stdout, stderr io.Writer) int {
	var payload struct {
		Text string `json:"text"`
	}
	if err := api.doJSON(ctx, http.MethodGet, "/v1/schema", nil, http.StatusOK, &payload); err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, payload.Text)
	return 0
}

func runAsk(ctx context.Context, api *apiClient, question string, stdout, stderr io.Writer) int {
	sessionID, err := api.createSession(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	defer api.endSession(context.WithoutCancel(ctx), sessionID)

	if err := api.turn(ctx, sessionID, question, stdout); err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	return 0
}

// runChat keeps one session open for every line read from stdin. A failed
// turn is reported and the loop moves on to the next line.
func runChat(ctx context.Context, api *apiClient, stdin io.Reader, stdout, stderr io.Writer) int {
	sessionID, err := api.createSession(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	defer api.endSession(context.WithoutCancel(ctx), sessionID)

	failures := 0
	scanner := bufio.NewScanner(stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		_, _ = fmt.Fprintf(stdout, "> %s\n", question)
		if err := api.turn(ctx, sessionID, question, stdout); err != nil {
			_, _ = fmt.Fprintf(stderr, "%v\n", err)
			failures++
		}
	}
	if err := scanner.Err(); err != nil {
		_, _ = fmt.Fprintf(stderr, "read stdin: %v\n", err)
		return 1
	}
	if failures > 0 {
		return 1
	}
	return 0
}

type apiClient struct {
	baseURL string
	http    *http.Client
}

type turnPayload struct {
	SQL              string `json:"sql"`
	Answer           string `json:"answer"`
	ExecutionOutcome string `json:"execution_outcome"`
	ExecutionError   string `json:"execution_error"`
}

type errorPayload struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func (c *apiClient) createSession(ctx context.Context) (string, error) {
	var payload struct {
		SessionID string `json:"session_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sessions", nil, http.StatusCreated, &payload); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if payload.SessionID == "" {
		return "", fmt.Errorf("create session: response has no session_id")
	}
	return payload.SessionID, nil
}

func (c *apiClient) endSession(ctx context.Context, sessionID string) {
	_, _, _ = c.do(ctx, http.MethodDelete, "/v1/sessions/"+sessionID, nil)
}

func (c *apiClient) turn(ctx context.Context, sessionID, question string, stdout io.Writer) error {
	body, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return err
	}
	var payload turnPayload
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sessions/"+sessionID+"/turns", body, http.StatusOK, &payload); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "SQL: %s\n", payload.SQL)
	if payload.ExecutionError != "" {
		_, _ = fmt.Fprintf(stdout, "error: %s\n", payload.ExecutionError)
	}
	_, _ = fmt.Fprintln(stdout, strings.TrimSpace(payload.Answer))
	return nil
}

func (c *apiClient) doJSON(ctx context.Context, method, path string, body []byte, want int, out any) error {
	code, raw, err := c.do(ctx, method, path, body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if code != want {
		var apiErr errorPayload
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("error: %s (http %d %s)", apiErr.Message, code, apiErr.ErrorCode)
		}
		return fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, raw, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: carchatctl [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health             GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready              GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  schema             print the schema text the model sees")
	_, _ = fmt.Fprintln(w, "  ask <question...>  one question in a fresh session")
	_, _ = fmt.Fprintln(w, "  chat               one session, one question per stdin line")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
