package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ThrownLemon/snow-mcp/internal/config"
	"github.com/ThrownLemon/snow-mcp/internal/servicenow"
)

type stubClient struct {
	created servicenow.Record
}

var _ servicenow.Client = (*stubClient)(nil)

func (s *stubClient) ListRecords(ctx context.Context, table string, opts servicenow.ListOptions) ([]servicenow.Record, int, error) {
	return nil, 0, nil
}

func (s *stubClient) GetRecord(ctx context.Context, table, sysID string, opts servicenow.GetOptions) (servicenow.Record, error) {
	return nil, servicenow.ErrNotFound
}

func (s *stubClient) CreateRecord(ctx context.Context, table string, record servicenow.Record) (servicenow.Record, error) {
	s.created = record
	return servicenow.Record{"sys_id": "abc123abc123abc123abc123abc123ab", "number": "INC0010001"}, nil
}

func (s *stubClient) UpdateRecord(ctx context.Context, table, sysID string, record servicenow.Record) (servicenow.Record, error) {
	return record, nil
}

func (s *stubClient) DeleteRecord(ctx context.Context, table, sysID string) error { return nil }

func (s *stubClient) Close() {}

func newTestServer(t *testing.T) (*Server, *stubClient) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := &stubClient{}
	ts := NewToolset(client, nil, logger)
	srv := New(config.ServerConfig{Transport: config.TransportStdio}, ts, "test", logger)
	return srv, client
}

func TestToolsListIncludesAllFamilies(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := srv.mcp.HandleMessage(context.Background(), json.RawMessage(`{
		"jsonrpc": "2.0",
		"id": 1,
		"method": "tools/list"
	}`))
	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	body := string(raw)

	for _, name := range []string{
		"create_incident", "resolve_incident", "list_incidents",
		"get_catalog_item", "move_catalog_items", "get_optimization_recommendations",
		"commit_changeset", "publish_changeset", "add_file_to_changeset",
		"create_article", "publish_article",
		"delete_script_include",
		"get_records", "get_table_schema",
		"reorder_workflow_activities", "get_workflow_activities",
		"natural_language_search", "natural_language_update", "update_script",
	} {
		if !strings.Contains(body, `"`+name+`"`) {
			t.Errorf("tools/list is missing %q", name)
		}
	}
}

func TestToolCallBindsArgumentsAndReturnsEnvelope(t *testing.T) {
	srv, client := newTestServer(t)

	resp := srv.mcp.HandleMessage(context.Background(), json.RawMessage(`{
		"jsonrpc": "2.0",
		"id": 2,
		"method": "tools/call",
		"params": {
			"name": "create_incident",
			"arguments": {"short_description": "Email is down", "priority": "1"}
		}
	}`))
	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	body := string(raw)

	if client.created["short_description"] != "Email is down" {
		t.Errorf("created record = %v", client.created)
	}
	if !strings.Contains(body, `\"success\":true`) {
		t.Errorf("response missing success envelope: %s", body)
	}
	if !strings.Contains(body, "INC0010001") {
		t.Errorf("response missing incident number: %s", body)
	}
}

func TestToolCallValidationFailureStaysInEnvelope(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := srv.mcp.HandleMessage(context.Background(), json.RawMessage(`{
		"jsonrpc": "2.0",
		"id": 3,
		"method": "tools/call",
		"params": {
			"name": "update_incident",
			"arguments": {"incident_id": "abc123abc123abc123abc123abc123ab"}
		}
	}`))
	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	body := string(raw)

	if !strings.Contains(body, `\"success\":false`) {
		t.Errorf("expected failure envelope: %s", body)
	}
	if !strings.Contains(body, "No fields to update") {
		t.Errorf("expected validation message: %s", body)
	}
}

func TestRunRejectsUnknownTransport(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := NewToolset(&stubClient{}, nil, logger)
	srv := New(config.ServerConfig{Transport: "carrier-pigeon"}, ts, "test", logger)

	if err := srv.Run(context.Background()); err == nil {
		t.Fatal("expected error for unknown transport")
	}
}
