package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secscan/config"
	"secscan/models"
)

func TestParseFindingsObjectForm(t *testing.T) {
	content := `{"findings": [{"rule_name": "SQL Injection", "category": "sql_injection",
		"severity": "high", "line_start": 4, "line_end": 6, "description": "string-built query",
		"confidence": 0.85, "cwe_ids": ["CWE-89"], "remediation": "use parameterized queries"}]}`

	findings, err := ParseFindings(content)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "SQL Injection", findings[0].RuleName)
	assert.Equal(t, 4, findings[0].LineStart)
}

func TestParseFindingsFencedAndBareArray(t *testing.T) {
	fenced := "```json\n{\"findings\": []}\n```"
	findings, err := ParseFindings(fenced)
	require.NoError(t, err)
	assert.Empty(t, findings)

	bare := `[{"rule_name": "XSS", "category": "xss", "severity": "medium", "line_start": 1, "line_end": 1, "confidence": 0.6}]`
	findings, err = ParseFindings(bare)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "XSS", findings[0].RuleName)
}

func TestParseFindingsGarbage(t *testing.T) {
	_, err := ParseFindings("I could not find any issues, great code!")
	assert.Error(t, err)
}

func TestFindingToThreatMatch(t *testing.T) {
	f := Finding{
		RuleName:    "Command Injection",
		Category:    "Command Injection",
		Severity:    "CRITICAL",
		LineStart:   12,
		LineEnd:     10,
		Description: "subprocess call with user input",
		Confidence:  1.7,
		CWEIDs:      []string{"CWE-78"},
	}

	threat := f.ToThreatMatch("app/run.py")

	assert.Equal(t, models.SeverityCritical, threat.Severity)
	assert.Equal(t, "command_injection", threat.Category)
	assert.Equal(t, "llm.command_injection", threat.RuleID)
	assert.Equal(t, models.SourceLLM, threat.Source)
	assert.Equal(t, "app/run.py", threat.FilePath)
	assert.Equal(t, 12, threat.LineEnd, "line end clamps up to line start")
	assert.Equal(t, 1.0, threat.Confidence, "confidence clamps into [0,1]")
	assert.NotEmpty(t, threat.ID)
}

func TestFindingToThreatMatchUnknownSeverity(t *testing.T) {
	f := Finding{RuleName: "weird", Severity: "catastrophic", LineStart: 1, LineEnd: 1}
	threat := f.ToThreatMatch("a.py")
	assert.Equal(t, models.SeverityLow, threat.Severity)
}

func testClient(t *testing.T, baseURL string, retries int) *Client {
	t.Helper()
	cfg := &config.Config{}
	cfg.LLM.BaseURL = baseURL
	cfg.LLM.Model = "test-model"
	cfg.LLM.Timeout = 5
	cfg.LLM.MaxRetries = retries
	return NewClient(cfg)
}

func completionResponse(content string) string {
	payload := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

func TestAnalyzeCodeEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		fmt.Fprint(w, completionResponse(`{"findings": [{"rule_name": "eval use",
			"category": "code_injection", "severity": "critical", "line_start": 1,
			"line_end": 1, "description": "eval of user input", "confidence": 0.95}]}`))
	}))
	defer srv.Close()

	analyzer := NewAnalyzer(testClient(t, srv.URL, 0))

	threats, err := analyzer.AnalyzeCode(context.Background(), "eval(input())", "a.py", "python")
	require.NoError(t, err)
	require.Len(t, threats, 1)
	assert.Equal(t, models.SeverityCritical, threats[0].Severity)
	assert.Equal(t, "a.py", threats[0].FilePath)
	assert.Equal(t, models.SourceLLM, threats[0].Source)
}

func TestAnalyzeCodeEmptyInput(t *testing.T) {
	analyzer := NewAnalyzer(testClient(t, "http://localhost:0", 0))
	threats, err := analyzer.AnalyzeCode(context.Background(), "   ", "a.py", "python")
	require.NoError(t, err)
	assert.Empty(t, threats)
}

func TestClientRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, completionResponse(`{"findings": []}`))
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, 2)

	content, err := client.Complete(context.Background(), "system", "prompt")
	require.NoError(t, err)
	assert.Contains(t, content, "findings")
	assert.EqualValues(t, 2, calls.Load(), "429 is retried")
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, 3)

	_, err := client.Complete(context.Background(), "system", "prompt")
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load(), "4xx is permanent")
}

func TestClientNegativeRetriesDisableRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "busy", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, -1)

	_, err := client.Complete(context.Background(), "system", "prompt")
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load(), "negative max_retries means a single attempt")
}

func TestClientUnavailableWithoutEndpoint(t *testing.T) {
	cfg := &config.Config{}
	client := NewClient(cfg)

	assert.False(t, client.IsAvailable())
	_, err := client.Complete(context.Background(), "s", "p")
	assert.ErrorIs(t, err, ErrUnavailable)

	status := client.Status()
	assert.False(t, status.Available)
	assert.NotEmpty(t, status.Error)
}
