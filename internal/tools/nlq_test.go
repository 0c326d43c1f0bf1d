package tools

import (
	"context"
	"reflect"
	"testing"

	"github.com/ThrownLemon/snow-mcp/internal/servicenow"
)

func newNLQTools(fc *fakeClient) *NaturalLanguageTools {
	return NewNaturalLanguageTools(fc, nil, testLogger())
}

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		phrase string
		want   []string
	}{
		{"find all email problems", []string{"find", "email", "problems"}},
		{"the and a of", nil},
		{"VPN is down, VPN IS DOWN", []string{"down"}},
		{"", nil},
	}
	for _, tc := range tests {
		got := extractKeywords(tc.phrase)
		if len(got) == 0 && len(tc.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("extractKeywords(%q) = %v, want %v", tc.phrase, got, tc.want)
		}
	}
}

func TestNaturalLanguageSearch(t *testing.T) {
	fc := &fakeClient{
		listFn: func(table string, opts servicenow.ListOptions) ([]servicenow.Record, int, error) {
			if table != "incident" {
				t.Errorf("table = %q, want incident default", table)
			}
			return []servicenow.Record{{"sys_id": "a", "number": "INC0010001"}}, 1, nil
		},
	}

	res := newNLQTools(fc).NaturalLanguageSearch(context.Background(), NaturalLanguageSearchParams{
		Query: "email outage",
	})
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Message)
	}
	want := "short_descriptionLIKEemail^ORdescriptionLIKEemail^short_descriptionLIKEoutage^ORdescriptionLIKEoutage"
	if res.Query != want {
		t.Errorf("encoded query = %q, want %q", res.Query, want)
	}
	if !reflect.DeepEqual(res.Keywords, []string{"email", "outage"}) {
		t.Errorf("keywords = %v", res.Keywords)
	}
}

func TestNaturalLanguageSearchNoKeywords(t *testing.T) {
	res := newNLQTools(&fakeClient{}).NaturalLanguageSearch(context.Background(), NaturalLanguageSearchParams{
		Query: "is it up",
	})
	if res.Success {
		t.Fatal("expected failure for all-stopword query")
	}
}

func TestNaturalLanguageUpdate(t *testing.T) {
	fc := &fakeClient{
		listFn: singleRecordList(servicenow.Record{"sys_id": testSysID, "number": "INC0010001"}),
		updateFn: func(table, sysID string, body servicenow.Record) (servicenow.Record, error) {
			return body, nil
		},
	}

	res := newNLQTools(fc).NaturalLanguageUpdate(context.Background(), NaturalLanguageUpdateParams{
		Command: "Update incident INC0010001 saying the mail relay was restarted",
	})
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Message)
	}
	if res.Number != "INC0010001" {
		t.Errorf("number = %q", res.Number)
	}
	if res.Table != "incident" {
		t.Errorf("table = %q, want incident", res.Table)
	}
	call, _ := fc.lastCall("update")
	if call.Body["comments"] != "the mail relay was restarted" {
		t.Errorf("comments = %v", call.Body["comments"])
	}
}

func TestNaturalLanguageUpdateOtherTable(t *testing.T) {
	fc := &fakeClient{
		listFn: singleRecordList(servicenow.Record{"sys_id": testSysID, "number": "CHG0000042"}),
		updateFn: func(table, sysID string, body servicenow.Record) (servicenow.Record, error) {
			return body, nil
		},
	}

	res := newNLQTools(fc).NaturalLanguageUpdate(context.Background(), NaturalLanguageUpdateParams{
		Command: "update change_request CHG0000042 saying CAB approved the window",
	})
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Message)
	}
	if res.Table != "change_request" {
		t.Errorf("table = %q, want change_request", res.Table)
	}
	call, _ := fc.lastCall("update")
	if call.Table != "change_request" {
		t.Errorf("update table = %q, want change_request", call.Table)
	}
	if call.Body["comments"] != "CAB approved the window" {
		t.Errorf("comments = %v", call.Body["comments"])
	}
}

func TestNaturalLanguageUpdateDefaultsToIncident(t *testing.T) {
	fc := &fakeClient{
		listFn: singleRecordList(servicenow.Record{"sys_id": testSysID, "number": "INC0010001"}),
		updateFn: func(table, sysID string, body servicenow.Record) (servicenow.Record, error) {
			return body, nil
		},
	}

	res := newNLQTools(fc).NaturalLanguageUpdate(context.Background(), NaturalLanguageUpdateParams{
		Command: "update INC0010001 saying rebooted the host",
	})
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Message)
	}
	call, _ := fc.lastCall("update")
	if call.Table != "incident" {
		t.Errorf("update table = %q, want incident", call.Table)
	}
}

func TestNaturalLanguageUpdateFieldAssignment(t *testing.T) {
	fc := &fakeClient{
		listFn: singleRecordList(servicenow.Record{"sys_id": testSysID, "number": "INC0010001"}),
		updateFn: func(table, sysID string, body servicenow.Record) (servicenow.Record, error) {
			return body, nil
		},
	}

	res := newNLQTools(fc).NaturalLanguageUpdate(context.Background(), NaturalLanguageUpdateParams{
		Command: "update incident INC0010001 set priority to 1",
	})
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Message)
	}
	call, _ := fc.lastCall("update")
	if call.Body["priority"] != "1" {
		t.Errorf("body = %v, want priority=1", call.Body)
	}
	if _, set := call.Body["comments"]; set {
		t.Error("field assignment should not add a comment")
	}
}

func TestNaturalLanguageUpdateUnparseable(t *testing.T) {
	res := newNLQTools(&fakeClient{}).NaturalLanguageUpdate(context.Background(), NaturalLanguageUpdateParams{
		Command: "do something useful",
	})
	if res.Success {
		t.Fatal("expected failure")
	}
}

func TestUpdateScriptTypeMapping(t *testing.T) {
	tests := []struct {
		scriptType string
		wantTable  string
	}{
		{"business_rule", "sys_script"},
		{"script_include", "sys_script_include"},
		{"ui_action", "sys_ui_action"},
		{"ui_script", "sys_ui_script"},
	}
	for _, tc := range tests {
		fc := &fakeClient{
			listFn: singleRecordList(servicenow.Record{"sys_id": testSysID, "name": "MyScript"}),
			updateFn: func(table, sysID string, body servicenow.Record) (servicenow.Record, error) {
				return body, nil
			},
		}

		res := newNLQTools(fc).UpdateScript(context.Background(), UpdateScriptParams{
			ScriptType: tc.scriptType,
			Name:       "MyScript",
			Script:     "gs.info('hi');",
		})
		if !res.Success {
			t.Fatalf("%s: unexpected failure: %s", tc.scriptType, res.Message)
		}
		if res.Table != tc.wantTable {
			t.Errorf("%s: table = %q, want %q", tc.scriptType, res.Table, tc.wantTable)
		}
		call, _ := fc.lastCall("update")
		if call.Table != tc.wantTable {
			t.Errorf("%s: updated table = %q", tc.scriptType, call.Table)
		}
	}
}

func TestUpdateScriptUnknownType(t *testing.T) {
	res := newNLQTools(&fakeClient{}).UpdateScript(context.Background(), UpdateScriptParams{
		ScriptType: "widget",
		Name:       "MyScript",
		Script:     "gs.info('hi');",
	})
	if res.Success {
		t.Fatal("expected failure")
	}
}
