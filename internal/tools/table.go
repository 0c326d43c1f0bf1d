package tools

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ThrownLemon/snow-mcp/internal/audit"
	"github.com/ThrownLemon/snow-mcp/internal/servicenow"
)

const (
	dbObjectTable   = "sys_db_object"
	dictionaryTable = "sys_dictionary"
)

// TableTools provides generic access to arbitrary tables and their schemas.
type TableTools struct {
	client  servicenow.Client
	auditor *audit.Publisher
	logger  *slog.Logger
}

func NewTableTools(client servicenow.Client, auditor *audit.Publisher, logger *slog.Logger) *TableTools {
	return &TableTools{
		client:  client,
		auditor: auditor,
		logger:  logger.With("component", "table-tools"),
	}
}

type ListTablesParams struct {
	NameFilter    string `json:"name_filter,omitempty"`
	IncludeSystem bool   `json:"include_system,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	Offset        int    `json:"offset,omitempty"`
}

type TableInfo struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	Extends   string `json:"extends,omitempty"`
	SysID     string `json:"sys_id"`
	CreatedOn string `json:"sys_created_on,omitempty"`
}

type ListTablesResult struct {
	Result
	Tables []TableInfo `json:"tables"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

func (t *TableTools) ListTables(ctx context.Context, p ListTablesParams) ListTablesResult {
	limit := clampLimit(p.Limit, 50, 200)

	qb := servicenow.NewQueryBuilder()
	if !p.IncludeSystem {
		// Skip platform-internal and temporary tables.
		qb.WhereNotLike("name", "sys_").WhereNotLike("name", "ZZ_")
	}
	if p.NameFilter != "" {
		qb.WhereLike("name", p.NameFilter)
	}

	records, total, err := t.client.ListRecords(ctx, dbObjectTable, servicenow.ListOptions{
		Query:   qb.Build(),
		Limit:   limit,
		Offset:  p.Offset,
		Fields:  []string{"sys_id", "name", "label", "super_class", "sys_created_on"},
		OrderBy: "name",
	})
	if err != nil {
		return ListTablesResult{Result: fail("Failed to list tables: %v", err)}
	}

	tables := make([]TableInfo, 0, len(records))
	for _, r := range records {
		tables = append(tables, TableInfo{
			Name:      r.String("name"),
			Label:     r.String("label"),
			Extends:   r.DisplayString("super_class"),
			SysID:     r.String("sys_id"),
			CreatedOn: r.String("sys_created_on"),
		})
	}
	if total < 0 {
		total = len(tables)
	}
	return ListTablesResult{
		Result: ok("Retrieved %d tables", len(tables)),
		Tables: tables,
		Total:  total,
		Limit:  limit,
		Offset: p.Offset,
	}
}

type GetRecordsParams struct {
	Table          string   `json:"table"`
	Query          string   `json:"query,omitempty"`
	Fields         []string `json:"fields,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	Offset         int      `json:"offset,omitempty"`
	OrderBy        string   `json:"order_by,omitempty"`
	OrderDirection string   `json:"order_direction,omitempty"`
}

type GetRecordsResult struct {
	Result
	Records []servicenow.Record `json:"records"`
	Total   int                 `json:"total"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

func (t *TableTools) GetRecords(ctx context.Context, p GetRecordsParams) GetRecordsResult {
	if p.Table == "" {
		return GetRecordsResult{Result: fail("table is required")}
	}
	limit := clampLimit(p.Limit, 10, 1000)

	opts := servicenow.ListOptions{
		Query:        p.Query,
		Fields:       p.Fields,
		Limit:        limit,
		Offset:       p.Offset,
		DisplayValue: "true",
	}
	if p.OrderBy != "" {
		opts.OrderBy = p.OrderBy
		opts.Descending = strings.EqualFold(p.OrderDirection, "desc")
	}

	records, total, err := t.client.ListRecords(ctx, p.Table, opts)
	if err != nil {
		return GetRecordsResult{Result: fail("Failed to get records from table '%s': %v", p.Table, err)}
	}
	if total < 0 {
		total = len(records)
	}
	return GetRecordsResult{
		Result:  ok("Retrieved %d records from table '%s'", len(records), p.Table),
		Records: records,
		Total:   total,
		Limit:   limit,
		Offset:  p.Offset,
	}
}

type GetRecordParams struct {
	Table  string   `json:"table"`
	SysID  string   `json:"sys_id"`
	Fields []string `json:"fields,omitempty"`
}

type GetRecordResult struct {
	Result
	Record servicenow.Record `json:"record,omitempty"`
}

func (t *TableTools) GetRecord(ctx context.Context, p GetRecordParams) GetRecordResult {
	if p.Table == "" || p.SysID == "" {
		return GetRecordResult{Result: fail("table and sys_id are required")}
	}

	rec, err := t.client.GetRecord(ctx, p.Table, p.SysID, servicenow.GetOptions{
		Fields:       p.Fields,
		DisplayValue: "true",
	})
	if err != nil {
		if errors.Is(err, servicenow.ErrNotFound) {
			return GetRecordResult{Result: fail("Record with sys_id '%s' not found in table '%s'", p.SysID, p.Table)}
		}
		return GetRecordResult{Result: fail("Failed to get record: %v", err)}
	}
	return GetRecordResult{
		Result: ok("Retrieved record from table '%s'", p.Table),
		Record: rec,
	}
}

type GetTableSchemaParams struct {
	Table            string `json:"table"`
	IncludeAllFields bool   `json:"include_all_fields,omitempty"`
}

// FieldSchema describes one column of a table.
type FieldSchema struct {
	Name      string            `json:"name"`
	Label     string            `json:"label,omitempty"`
	Type      string            `json:"type,omitempty"`
	MaxLength string            `json:"max_length,omitempty"`
	Mandatory bool              `json:"mandatory"`
	Reference string            `json:"reference,omitempty"`
	Choices   map[string]string `json:"choices,omitempty"`
}

type GetTableSchemaResult struct {
	Result
	Table  string        `json:"table,omitempty"`
	Label  string        `json:"label,omitempty"`
	Fields []FieldSchema `json:"fields,omitempty"`
}

// GetTableSchema reads the dictionary entries for a table. Collection-level
// rows (empty element) carry the table label; the rest describe columns.
// Unless include_all_fields is set, inherited sys_ bookkeeping columns are
// skipped.
func (t *TableTools) GetTableSchema(ctx context.Context, p GetTableSchemaParams) GetTableSchemaResult {
	if p.Table == "" {
		return GetTableSchemaResult{Result: fail("table is required")}
	}

	qb := servicenow.NewQueryBuilder().WhereEquals("name", p.Table)
	records, _, err := t.client.ListRecords(ctx, dictionaryTable, servicenow.ListOptions{
		Query:   qb.Build(),
		Limit:   1000,
		OrderBy: "element",
	})
	if err != nil {
		return GetTableSchemaResult{Result: fail("Failed to get schema for table '%s': %v", p.Table, err)}
	}
	if len(records) == 0 {
		return GetTableSchemaResult{Result: fail("Table '%s' not found", p.Table)}
	}

	res := GetTableSchemaResult{Table: p.Table, Fields: make([]FieldSchema, 0, len(records))}
	for _, r := range records {
		element := r.String("element")
		if element == "" {
			res.Label = r.String("column_label")
			continue
		}
		if !p.IncludeAllFields && strings.HasPrefix(element, "sys_") {
			continue
		}
		res.Fields = append(res.Fields, FieldSchema{
			Name:      element,
			Label:     r.String("column_label"),
			Type:      r.String("internal_type"),
			MaxLength: r.String("max_length"),
			Mandatory: r.Bool("mandatory"),
			Reference: r.DisplayString("reference"),
			Choices:   parseChoices(r.String("choice_field")),
		})
	}
	res.Result = ok("Retrieved schema for table '%s' with %d fields", p.Table, len(res.Fields))
	return res
}

type ListTableSchemasParams struct {
	NameFilter string `json:"name_filter,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// TableSchemaSummary is a lightweight schema header for one table.
type TableSchemaSummary struct {
	Name       string `json:"name"`
	Label      string `json:"label,omitempty"`
	Extends    string `json:"extends,omitempty"`
	FieldCount int    `json:"field_count"`
}

type ListTableSchemasResult struct {
	Result
	Schemas []TableSchemaSummary `json:"schemas"`
}

// ListTableSchemas returns schema headers for tables matching the filter.
// Field counts come from the X-Total-Count header of a limit-1 dictionary
// read, so the cost stays at one extra request per table.
func (t *TableTools) ListTableSchemas(ctx context.Context, p ListTableSchemasParams) ListTableSchemasResult {
	limit := clampLimit(p.Limit, 10, 50)

	qb := servicenow.NewQueryBuilder().WhereNotLike("name", "sys_").WhereNotLike("name", "ZZ_")
	if p.NameFilter != "" {
		qb.WhereLike("name", p.NameFilter)
	}

	tables, _, err := t.client.ListRecords(ctx, dbObjectTable, servicenow.ListOptions{
		Query:   qb.Build(),
		Limit:   limit,
		Fields:  []string{"name", "label", "super_class"},
		OrderBy: "name",
	})
	if err != nil {
		return ListTableSchemasResult{Result: fail("Failed to list table schemas: %v", err)}
	}

	schemas := make([]TableSchemaSummary, 0, len(tables))
	for _, tbl := range tables {
		name := tbl.String("name")
		_, fieldCount, err := t.client.ListRecords(ctx, dictionaryTable, servicenow.ListOptions{
			Query: servicenow.NewQueryBuilder().WhereEquals("name", name).WhereIsNotEmpty("element").Build(),
			Limit: 1,
		})
		if err != nil {
			return ListTableSchemasResult{Result: fail("Failed to read schema for table '%s': %v", name, err)}
		}
		schemas = append(schemas, TableSchemaSummary{
			Name:       name,
			Label:      tbl.String("label"),
			Extends:    tbl.DisplayString("super_class"),
			FieldCount: max(fieldCount, 0),
		})
	}
	return ListTableSchemasResult{
		Result:  ok("Retrieved schemas for %d tables", len(schemas)),
		Schemas: schemas,
	}
}

// parseChoices decodes the dictionary choice list format: one choice per
// line, "value|--Label".
func parseChoices(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	choices := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		value, label, found := strings.Cut(line, "|--")
		if !found {
			choices[line] = line
			continue
		}
		choices[value] = label
	}
	if len(choices) == 0 {
		return nil
	}
	return choices
}
