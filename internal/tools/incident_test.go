package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/ThrownLemon/snow-mcp/internal/servicenow"
)

func newIncidentTools(fc *fakeClient) *IncidentTools {
	return NewIncidentTools(fc, nil, testLogger())
}

func TestCreateIncident(t *testing.T) {
	fc := &fakeClient{
		createFn: func(table string, body servicenow.Record) (servicenow.Record, error) {
			if table != "incident" {
				t.Errorf("table = %q, want incident", table)
			}
			return servicenow.Record{"sys_id": testSysID, "number": "INC0010001"}, nil
		},
	}

	res := newIncidentTools(fc).CreateIncident(context.Background(), CreateIncidentParams{
		ShortDescription: "Email is down",
		Priority:         "1",
	})
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Message)
	}
	if res.IncidentNumber != "INC0010001" {
		t.Errorf("IncidentNumber = %q, want INC0010001", res.IncidentNumber)
	}
	call, _ := fc.lastCall("create")
	if call.Body["short_description"] != "Email is down" {
		t.Errorf("short_description = %v", call.Body["short_description"])
	}
	if call.Body["priority"] != "1" {
		t.Errorf("priority = %v", call.Body["priority"])
	}
	if _, set := call.Body["description"]; set {
		t.Error("empty description should not be sent")
	}
}

func TestCreateIncidentRequiresShortDescription(t *testing.T) {
	res := newIncidentTools(&fakeClient{}).CreateIncident(context.Background(), CreateIncidentParams{})
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Message, "short_description") {
		t.Errorf("message = %q", res.Message)
	}
}

func TestUpdateIncidentResolvesNumber(t *testing.T) {
	fc := &fakeClient{
		listFn: singleRecordList(servicenow.Record{"sys_id": testSysID, "number": "INC0010001"}),
		updateFn: func(table, sysID string, body servicenow.Record) (servicenow.Record, error) {
			return servicenow.Record{"sys_id": sysID, "number": "INC0010001"}, nil
		},
	}

	res := newIncidentTools(fc).UpdateIncident(context.Background(), UpdateIncidentParams{
		IncidentID: "INC0010001",
		State:      "2",
	})
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Message)
	}
	if res.IncidentID != testSysID {
		t.Errorf("IncidentID = %q, want %q", res.IncidentID, testSysID)
	}
	list, _ := fc.lastCall("list")
	if list.Opts.Query != "number=INC0010001" {
		t.Errorf("resolver query = %q", list.Opts.Query)
	}
	upd, _ := fc.lastCall("update")
	if upd.SysID != testSysID {
		t.Errorf("update sys_id = %q", upd.SysID)
	}
}

func TestUpdateIncidentNotFound(t *testing.T) {
	fc := &fakeClient{
		listFn: func(string, servicenow.ListOptions) ([]servicenow.Record, int, error) {
			return nil, 0, nil
		},
	}

	res := newIncidentTools(fc).UpdateIncident(context.Background(), UpdateIncidentParams{
		IncidentID: "INC0099999",
		State:      "2",
	})
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Message != "Incident not found: INC0099999" {
		t.Errorf("message = %q", res.Message)
	}
}

func TestUpdateIncidentAmbiguous(t *testing.T) {
	fc := &fakeClient{
		listFn: func(string, servicenow.ListOptions) ([]servicenow.Record, int, error) {
			return []servicenow.Record{{"sys_id": "a"}, {"sys_id": "b"}}, 2, nil
		},
	}

	res := newIncidentTools(fc).UpdateIncident(context.Background(), UpdateIncidentParams{
		IncidentID: "INC0010001",
		State:      "2",
	})
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(res.Message, "sys_id") {
		t.Errorf("message = %q", res.Message)
	}
}

func TestUpdateIncidentNoFields(t *testing.T) {
	res := newIncidentTools(&fakeClient{}).UpdateIncident(context.Background(), UpdateIncidentParams{
		IncidentID: testSysID,
	})
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Message != "No fields to update" {
		t.Errorf("message = %q", res.Message)
	}
}

func TestAddCommentWorkNote(t *testing.T) {
	fc := &fakeClient{
		updateFn: func(table, sysID string, body servicenow.Record) (servicenow.Record, error) {
			return body, nil
		},
	}

	res := newIncidentTools(fc).AddComment(context.Background(), AddCommentParams{
		IncidentID: testSysID,
		Comment:    "checked the mail relay",
		IsWorkNote: true,
	})
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Message)
	}
	upd, _ := fc.lastCall("update")
	if upd.Body["work_notes"] != "checked the mail relay" {
		t.Errorf("body = %v", upd.Body)
	}
	if _, set := upd.Body["comments"]; set {
		t.Error("comments should not be set for a work note")
	}
}

func TestResolveIncident(t *testing.T) {
	fc := &fakeClient{
		updateFn: func(table, sysID string, body servicenow.Record) (servicenow.Record, error) {
			return servicenow.Record{"sys_id": sysID, "number": "INC0010001"}, nil
		},
	}

	res := newIncidentTools(fc).ResolveIncident(context.Background(), ResolveIncidentParams{
		IncidentID:      testSysID,
		ResolutionCode:  "Solved (Permanently)",
		ResolutionNotes: "replaced the failing disk",
	})
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Message)
	}
	upd, _ := fc.lastCall("update")
	if upd.Body["state"] != "6" {
		t.Errorf("state = %v, want 6", upd.Body["state"])
	}
	if upd.Body["close_code"] != "Solved (Permanently)" {
		t.Errorf("close_code = %v", upd.Body["close_code"])
	}
}

func TestResolveIncidentRequiresNotes(t *testing.T) {
	res := newIncidentTools(&fakeClient{}).ResolveIncident(context.Background(), ResolveIncidentParams{
		IncidentID:     testSysID,
		ResolutionCode: "Solved (Permanently)",
	})
	if res.Success {
		t.Fatal("expected failure")
	}
}

func TestListIncidents(t *testing.T) {
	fc := &fakeClient{
		listFn: func(table string, opts servicenow.ListOptions) ([]servicenow.Record, int, error) {
			return []servicenow.Record{
				{"sys_id": "a", "number": "INC0010001", "short_description": "one", "state": "1"},
				{"sys_id": "b", "number": "INC0010002", "short_description": "two", "state": "2"},
			}, 57, nil
		},
	}

	res := newIncidentTools(fc).ListIncidents(context.Background(), ListIncidentsParams{
		State:    "1",
		Category: "network",
	})
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Message)
	}
	if len(res.Incidents) != 2 || res.Total != 57 {
		t.Errorf("got %d incidents, total %d", len(res.Incidents), res.Total)
	}
	if res.Limit != 10 {
		t.Errorf("default limit = %d, want 10", res.Limit)
	}
	call, _ := fc.lastCall("list")
	if call.Opts.Query != "state=1^category=network" {
		t.Errorf("query = %q", call.Opts.Query)
	}
	if call.Opts.OrderBy != "sys_created_on" || !call.Opts.Descending {
		t.Errorf("ordering = %q desc=%v", call.Opts.OrderBy, call.Opts.Descending)
	}
}

func TestListIncidentsLimitClamped(t *testing.T) {
	fc := &fakeClient{
		listFn: func(string, servicenow.ListOptions) ([]servicenow.Record, int, error) {
			return nil, 0, nil
		},
	}

	res := newIncidentTools(fc).ListIncidents(context.Background(), ListIncidentsParams{Limit: 5000})
	if res.Limit != 100 {
		t.Errorf("limit = %d, want 100", res.Limit)
	}
	call, _ := fc.lastCall("list")
	if call.Opts.Limit != 100 {
		t.Errorf("request limit = %d, want 100", call.Opts.Limit)
	}
}
