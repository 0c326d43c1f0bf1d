package tools

import (
	"context"
	"testing"

	"github.com/ThrownLemon/snow-mcp/internal/servicenow"
)

func newTableTools(fc *fakeClient) *TableTools {
	return NewTableTools(fc, nil, testLogger())
}

func TestListTablesExcludesSystem(t *testing.T) {
	fc := &fakeClient{
		listFn: func(table string, opts servicenow.ListOptions) ([]servicenow.Record, int, error) {
			if table != "sys_db_object" {
				t.Errorf("table = %q", table)
			}
			return []servicenow.Record{{"sys_id": "a", "name": "incident", "label": "Incident"}}, 1, nil
		},
	}

	res := newTableTools(fc).ListTables(context.Background(), ListTablesParams{})
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Message)
	}
	call, _ := fc.lastCall("list")
	want := "nameNOT LIKEsys_^nameNOT LIKEZZ_"
	if call.Opts.Query != want {
		t.Errorf("query = %q, want %q", call.Opts.Query, want)
	}
}

func TestListTablesIncludeSystem(t *testing.T) {
	fc := &fakeClient{
		listFn: func(string, servicenow.ListOptions) ([]servicenow.Record, int, error) {
			return nil, 0, nil
		},
	}

	newTableTools(fc).ListTables(context.Background(), ListTablesParams{IncludeSystem: true, NameFilter: "sys_user"})
	call, _ := fc.lastCall("list")
	if call.Opts.Query != "nameLIKEsys_user" {
		t.Errorf("query = %q", call.Opts.Query)
	}
}

func TestGetRecordsClampsLimit(t *testing.T) {
	fc := &fakeClient{
		listFn: func(string, servicenow.ListOptions) ([]servicenow.Record, int, error) {
			return nil, 0, nil
		},
	}
	tt := newTableTools(fc)

	tt.GetRecords(context.Background(), GetRecordsParams{Table: "incident", Limit: 9999})
	call, _ := fc.lastCall("list")
	if call.Opts.Limit != 1000 {
		t.Errorf("limit = %d, want 1000", call.Opts.Limit)
	}

	tt.GetRecords(context.Background(), GetRecordsParams{Table: "incident"})
	call, _ = fc.lastCall("list")
	if call.Opts.Limit != 10 {
		t.Errorf("default limit = %d, want 10", call.Opts.Limit)
	}
}

func TestGetRecordsOrdering(t *testing.T) {
	fc := &fakeClient{
		listFn: func(string, servicenow.ListOptions) ([]servicenow.Record, int, error) {
			return nil, 0, nil
		},
	}

	newTableTools(fc).GetRecords(context.Background(), GetRecordsParams{
		Table:          "incident",
		OrderBy:        "number",
		OrderDirection: "DESC",
	})
	call, _ := fc.lastCall("list")
	if call.Opts.OrderBy != "number" || !call.Opts.Descending {
		t.Errorf("ordering = %q desc=%v", call.Opts.OrderBy, call.Opts.Descending)
	}
}

func TestGetRecordsRequiresTable(t *testing.T) {
	res := newTableTools(&fakeClient{}).GetRecords(context.Background(), GetRecordsParams{})
	if res.Success {
		t.Fatal("expected failure")
	}
}

func TestGetRecordNotFound(t *testing.T) {
	fc := &fakeClient{
		getFn: func(table, sysID string) (servicenow.Record, error) {
			return nil, servicenow.ErrNotFound
		},
	}

	res := newTableTools(fc).GetRecord(context.Background(), GetRecordParams{
		Table: "incident",
		SysID: testSysID,
	})
	if res.Success {
		t.Fatal("expected failure")
	}
	want := "Record with sys_id '" + testSysID + "' not found in table 'incident'"
	if res.Message != want {
		t.Errorf("message = %q, want %q", res.Message, want)
	}
}

func TestGetTableSchema(t *testing.T) {
	fc := &fakeClient{
		listFn: func(table string, opts servicenow.ListOptions) ([]servicenow.Record, int, error) {
			if table != "sys_dictionary" {
				t.Errorf("table = %q", table)
			}
			if opts.Query != "name=incident" {
				t.Errorf("query = %q", opts.Query)
			}
			return []servicenow.Record{
				{"element": "", "column_label": "Incident"},
				{"element": "state", "column_label": "State", "internal_type": "integer", "choice_field": "1|--New\n2|--In Progress\n6|--Resolved"},
				{"element": "sys_mod_count", "column_label": "Updates", "internal_type": "integer"},
			}, 3, nil
		},
	}

	res := newTableTools(fc).GetTableSchema(context.Background(), GetTableSchemaParams{Table: "incident"})
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Message)
	}
	if res.Label != "Incident" {
		t.Errorf("label = %q", res.Label)
	}
	if len(res.Fields) != 1 {
		t.Fatalf("got %d fields, want 1 (sys_ fields skipped)", len(res.Fields))
	}
	state := res.Fields[0]
	if state.Choices["6"] != "Resolved" {
		t.Errorf("choices = %v", state.Choices)
	}
}

func TestGetTableSchemaAllFields(t *testing.T) {
	fc := &fakeClient{
		listFn: func(string, servicenow.ListOptions) ([]servicenow.Record, int, error) {
			return []servicenow.Record{
				{"element": "state", "column_label": "State"},
				{"element": "sys_mod_count", "column_label": "Updates"},
			}, 2, nil
		},
	}

	res := newTableTools(fc).GetTableSchema(context.Background(), GetTableSchemaParams{
		Table:            "incident",
		IncludeAllFields: true,
	})
	if len(res.Fields) != 2 {
		t.Errorf("got %d fields, want 2", len(res.Fields))
	}
}

func TestGetTableSchemaUnknownTable(t *testing.T) {
	fc := &fakeClient{
		listFn: func(string, servicenow.ListOptions) ([]servicenow.Record, int, error) {
			return nil, 0, nil
		},
	}

	res := newTableTools(fc).GetTableSchema(context.Background(), GetTableSchemaParams{Table: "nope"})
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Message != "Table 'nope' not found" {
		t.Errorf("message = %q", res.Message)
	}
}

func TestListTableSchemas(t *testing.T) {
	fc := &fakeClient{
		listFn: func(table string, opts servicenow.ListOptions) ([]servicenow.Record, int, error) {
			if table == "sys_db_object" {
				return []servicenow.Record{
					{"name": "incident", "label": "Incident"},
					{"name": "problem", "label": "Problem"},
				}, 2, nil
			}
			// sys_dictionary field count probe.
			if opts.Limit != 1 {
				t.Errorf("dictionary probe limit = %d, want 1", opts.Limit)
			}
			return []servicenow.Record{{"element": "state"}}, 66, nil
		},
	}

	res := newTableTools(fc).ListTableSchemas(context.Background(), ListTableSchemasParams{NameFilter: "inc"})
	if !res.Success {
		t.Fatalf("unexpected failure: %s", res.Message)
	}
	if len(res.Schemas) != 2 {
		t.Fatalf("got %d schemas", len(res.Schemas))
	}
	if res.Schemas[0].Name != "incident" || res.Schemas[0].FieldCount != 66 {
		t.Errorf("schema = %+v", res.Schemas[0])
	}
}

func TestParseChoices(t *testing.T) {
	choices := parseChoices("1|--New\n\n2|--In Progress\nraw_line")
	if len(choices) != 3 {
		t.Fatalf("got %d choices", len(choices))
	}
	if choices["1"] != "New" || choices["raw_line"] != "raw_line" {
		t.Errorf("choices = %v", choices)
	}
	if parseChoices("") != nil {
		t.Error("empty input should yield nil")
	}
}
