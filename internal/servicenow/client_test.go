package servicenow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThrownLemon/snow-mcp/internal/config"
)

// mockAuth is a test authenticator that returns a fixed token.
type mockAuth struct {
	token        string
	refreshCount int32
}

func (m *mockAuth) Token(_ context.Context) (string, error) {
	return "Bearer " + m.token, nil
}
func (m *mockAuth) ForceRefresh(_ context.Context) error {
	atomic.AddInt32(&m.refreshCount, 1)
	return nil
}
func (m *mockAuth) Close() {}

func testCfg(instanceURL string) config.ServiceNowConfig {
	return config.ServiceNowConfig{
		InstanceURL:  instanceURL,
		TableAPIPath: "/api/now/table",
		Timeout:      config.Duration{Duration: 10 * time.Second},
		MaxRetries:   3,
	}
}

func newTestClient(t *testing.T, srvURL string) Client {
	t.Helper()
	auth := &mockAuth{token: "test-token"}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewClient(testCfg(srvURL), auth, logger)
}

func TestListRecords_Success(t *testing.T) {
	records := []Record{
		{"sys_id": "001", "short_description": "Test incident 1"},
		{"sys_id": "002", "short_description": "Test incident 2"},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if !strings.Contains(r.URL.Path, "/api/now/table/incident") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		// Verify query parameters
		q := r.URL.Query()
		if q.Get("sysparm_limit") != "20" {
			t.Errorf("expected limit 20, got %s", q.Get("sysparm_limit"))
		}
		if q.Get("sysparm_exclude_reference_link") != "true" {
			t.Errorf("expected exclude_reference_link=true, got %s", q.Get("sysparm_exclude_reference_link"))
		}

		w.Header().Set("X-Total-Count", "42")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(TableResponse{Result: records})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	query := NewQueryBuilder().WhereIsNotEmpty("sys_id").Build()
	result, total, err := client.ListRecords(context.Background(), "incident", ListOptions{Query: query, Limit: 20})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result))
	}
	if result[0]["sys_id"] != "001" {
		t.Errorf("first record sys_id = %v", result[0]["sys_id"])
	}
	if total != 42 {
		t.Errorf("total = %d, want 42", total)
	}
}

func TestListRecords_NoTotalCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(TableResponse{Result: []Record{}})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, total, err := client.ListRecords(context.Background(), "incident", ListOptions{})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if total != -1 {
		t.Errorf("total = %d, want -1 when header absent", total)
	}
}

func TestListRecords_Params(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("sysparm_fields") != "sys_id,short_description,sys_updated_on" {
			t.Errorf("unexpected fields: %s", q.Get("sysparm_fields"))
		}
		if q.Get("sysparm_display_value") != "all" {
			t.Errorf("unexpected display_value: %s", q.Get("sysparm_display_value"))
		}
		if q.Get("sysparm_offset") != "30" {
			t.Errorf("unexpected offset: %s", q.Get("sysparm_offset"))
		}
		if q.Get("sysparm_query") != "active=true^ORDERBYDESCsys_updated_on" {
			t.Errorf("unexpected query: %s", q.Get("sysparm_query"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(TableResponse{Result: []Record{}})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, _, err := client.ListRecords(context.Background(), "incident", ListOptions{
		Query:        "active=true",
		Fields:       []string{"sys_id", "short_description", "sys_updated_on"},
		Limit:        10,
		Offset:       30,
		DisplayValue: "all",
		OrderBy:      "sys_updated_on",
		Descending:   true,
	})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
}

func TestListRecords_Retry401(t *testing.T) {
	var attempt int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempt, 1)
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(TableResponse{Result: []Record{{"sys_id": "001"}}})
	}))
	defer srv.Close()

	auth := &mockAuth{token: "test-token"}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	cfg := testCfg(srv.URL)
	cfg.MaxRetries = 0 // 401 recovery works even with retries disabled
	client := NewClient(cfg, auth, logger)

	result, _, err := client.ListRecords(context.Background(), "incident", ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("ListRecords should succeed after 401 refresh: %v", err)
	}
	if len(result) != 1 {
		t.Errorf("expected 1 record, got %d", len(result))
	}
	if atomic.LoadInt32(&auth.refreshCount) == 0 {
		t.Error("expected ForceRefresh to be called")
	}
}

func TestListRecords_Retry5xx(t *testing.T) {
	var attempt int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempt, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("service unavailable"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(TableResponse{Result: []Record{{"sys_id": "001"}}})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	result, _, err := client.ListRecords(context.Background(), "incident", ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("ListRecords should succeed after 5xx retries: %v", err)
	}
	if len(result) != 1 {
		t.Errorf("expected 1 record, got %d", len(result))
	}
}

func TestListRecords_NoRetriesByDefault(t *testing.T) {
	var attempt int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempt, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("service unavailable"))
	}))
	defer srv.Close()

	auth := &mockAuth{token: "test-token"}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	cfg := testCfg(srv.URL)
	cfg.MaxRetries = 0
	client := NewClient(cfg, auth, logger)

	_, _, err := client.ListRecords(context.Background(), "incident", ListOptions{})
	if err == nil {
		t.Fatal("expected error with retries disabled")
	}
	if n := atomic.LoadInt32(&attempt); n != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", n)
	}
}

func TestListRecords_Fatal4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, _, err := client.ListRecords(context.Background(), "incident", ListOptions{Limit: 10})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if !strings.Contains(err.Error(), "non-retryable") {
		t.Errorf("error should mention non-retryable: %v", err)
	}
}

func TestListRecords_429RetryAfter(t *testing.T) {
	var attempt int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempt, 1)
		if n == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("rate limited"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(TableResponse{Result: []Record{{"sys_id": "001"}}})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	start := time.Now()
	result, _, err := client.ListRecords(context.Background(), "incident", ListOptions{Limit: 10})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("should succeed after 429: %v", err)
	}
	if len(result) != 1 {
		t.Errorf("expected 1 record, got %d", len(result))
	}
	// Should have waited at least ~500ms (jitter is [0.5, 1.0] of 1s)
	if elapsed < 400*time.Millisecond {
		t.Errorf("expected retry delay, elapsed only %v", elapsed)
	}
}

func TestListRecords_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(TableResponse{Result: []Record{}})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, _, err := client.ListRecords(ctx, "incident", ListOptions{Limit: 10})
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestGetRecord_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/incident/abc123") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("sysparm_display_value") != "true" {
			t.Errorf("unexpected display_value: %s", r.URL.Query().Get("sysparm_display_value"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(RecordResponse{Result: Record{"sys_id": "abc123", "number": "INC0010001"}})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	record, err := client.GetRecord(context.Background(), "incident", "abc123", GetOptions{DisplayValue: "true"})
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if record.String("number") != "INC0010001" {
		t.Errorf("number = %q", record.String("number"))
	}
}

func TestGetRecord_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"No Record found"}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.GetRecord(context.Background(), "incident", "missing", GetOptions{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateRecord_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected JSON content type")
		}
		var body Record
		json.NewDecoder(r.Body).Decode(&body)
		if body["short_description"] != "New incident" {
			t.Errorf("body short_description = %v", body["short_description"])
		}
		result := Record{"sys_id": "new-001", "short_description": "New incident"}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"result": result})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	result, err := client.CreateRecord(context.Background(), "incident", Record{"short_description": "New incident"})
	if err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}
	if result["sys_id"] != "new-001" {
		t.Errorf("expected sys_id new-001, got %v", result["sys_id"])
	}
}

func TestUpdateRecord_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/incident/abc123") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		result := Record{"sys_id": "abc123", "state": "2"}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"result": result})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	result, err := client.UpdateRecord(context.Background(), "incident", "abc123", Record{"state": "2"})
	if err != nil {
		t.Fatalf("UpdateRecord failed: %v", err)
	}
	if result["sys_id"] != "abc123" {
		t.Errorf("expected sys_id abc123, got %v", result["sys_id"])
	}
}

func TestDeleteRecord_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/sys_script_include/abc123") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	if err := client.DeleteRecord(context.Background(), "sys_script_include", "abc123"); err != nil {
		t.Fatalf("DeleteRecord failed: %v", err)
	}
}

func TestDeleteRecord_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	err := client.DeleteRecord(context.Background(), "incident", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListRecords_ExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal server error"))
	}))
	defer srv.Close()

	auth := &mockAuth{token: "test-token"}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Only 1 retry to keep test fast
	cfg := testCfg(srv.URL)
	cfg.MaxRetries = 1
	client := NewClient(cfg, auth, logger)

	_, _, err := client.ListRecords(context.Background(), "incident", ListOptions{Limit: 10})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !strings.Contains(err.Error(), "retries") {
		t.Errorf("error should mention retries: %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", 30 * time.Second},
		{"5", 5 * time.Second},
		{"120", 120 * time.Second},
		{"invalid", 30 * time.Second},
	}
	for _, tt := range tests {
		got := parseRetryAfter(tt.header)
		if got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestTruncateBody(t *testing.T) {
	short := "hello"
	if truncateBody([]byte(short)) != short {
		t.Error("short body should not be truncated")
	}

	long := strings.Repeat("x", 600)
	result := truncateBody([]byte(long))
	if len(result) > 510 { // 500 + "..."
		t.Errorf("truncated body too long: %d", len(result))
	}
	if !strings.HasSuffix(result, "...") {
		t.Error("truncated body should end with ...")
	}
}

func TestBuildTableURL(t *testing.T) {
	c := &httpClient{
		baseURL:      "https://instance.service-now.com",
		tableAPIPath: "/api/now/table",
	}
	url, err := c.buildTableURL("incident", ListOptions{
		Query:  "sys_idISNOTEMPTY",
		Limit:  20,
		Fields: []string{"sys_id", "state"},
	})
	if err != nil {
		t.Fatalf("buildTableURL failed: %v", err)
	}
	if !strings.Contains(url, "/api/now/table/incident") {
		t.Errorf("URL missing table path: %s", url)
	}
	if !strings.Contains(url, "sysparm_limit=20") {
		t.Errorf("URL missing limit: %s", url)
	}
	if !strings.Contains(url, "sysparm_fields=sys_id%2Cstate") {
		t.Errorf("URL missing fields: %s", url)
	}
	if !strings.Contains(url, fmt.Sprintf("sysparm_query=%s", "sys_idISNOTEMPTY")) {
		t.Errorf("URL missing query: %s", url)
	}
}
