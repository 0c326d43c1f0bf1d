package tools

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/ThrownLemon/snow-mcp/internal/audit"
	"github.com/ThrownLemon/snow-mcp/internal/servicenow"
)

// minKeywordLen filters out articles and filler words when tokenizing a
// free-text search phrase.
const minKeywordLen = 4

// scriptTypeTables maps the script type names accepted by UpdateScript to
// their backing tables.
var scriptTypeTables = map[string]string{
	"business_rule":  "sys_script",
	"script_include": "sys_script_include",
	"ui_action":      "sys_ui_action",
	"ui_script":      "sys_ui_script",
}

// NaturalLanguageTools translates free-text requests into table
// operations.
type NaturalLanguageTools struct {
	client  servicenow.Client
	auditor *audit.Publisher
	logger  *slog.Logger
}

func NewNaturalLanguageTools(client servicenow.Client, auditor *audit.Publisher, logger *slog.Logger) *NaturalLanguageTools {
	return &NaturalLanguageTools{
		client:  client,
		auditor: auditor,
		logger:  logger.With("component", "nlq-tools"),
	}
}

type NaturalLanguageSearchParams struct {
	Query string `json:"query"`
	Table string `json:"table,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type NaturalLanguageSearchResult struct {
	Result
	Records  []servicenow.Record `json:"records"`
	Keywords []string            `json:"keywords"`
	Query    string              `json:"encoded_query"`
}

// NaturalLanguageSearch tokenizes the phrase into significant keywords and
// matches each against the short_description and description fields.
func (t *NaturalLanguageTools) NaturalLanguageSearch(ctx context.Context, p NaturalLanguageSearchParams) NaturalLanguageSearchResult {
	if p.Query == "" {
		return NaturalLanguageSearchResult{Result: fail("query is required")}
	}
	table := p.Table
	if table == "" {
		table = incidentTable
	}
	limit := clampLimit(p.Limit, 10, 100)

	keywords := extractKeywords(p.Query)
	if len(keywords) == 0 {
		return NaturalLanguageSearchResult{Result: fail("No usable keywords in query: %s", p.Query)}
	}

	qb := servicenow.NewQueryBuilder()
	for _, kw := range keywords {
		qb.WhereLike("short_description", kw).OrWhereLike("description", kw)
	}
	encoded := qb.Build()

	records, _, err := t.client.ListRecords(ctx, table, servicenow.ListOptions{
		Query:        encoded,
		Limit:        limit,
		DisplayValue: "true",
		OrderBy:      "sys_updated_on",
		Descending:   true,
	})
	if err != nil {
		return NaturalLanguageSearchResult{Result: fail("Search failed: %v", err)}
	}
	return NaturalLanguageSearchResult{
		Result:   ok("Found %d records matching %d keywords", len(records), len(keywords)),
		Records:  records,
		Keywords: keywords,
		Query:    encoded,
	}
}

// extractKeywords splits a phrase on non-alphanumeric runs and keeps the
// significant words.
func extractKeywords(phrase string) []string {
	words := strings.FieldsFunc(phrase, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	keywords := make([]string, 0, len(words))
	seen := make(map[string]bool)
	for _, w := range words {
		w = strings.ToLower(w)
		if len(w) < minKeywordLen || seen[w] {
			continue
		}
		seen[w] = true
		keywords = append(keywords, w)
	}
	return keywords
}

// updateCommandPattern matches commands of the form
// "update incident INC0010001 saying the fix is deployed". The verb and
// connective words are flexible; the table name is optional and defaults
// to incident, and the record key anchors the parse.
var updateCommandPattern = regexp.MustCompile(`(?i)^\s*(?:update|change)\s+(?:the\s+)?(?:([a-z][a-z0-9_]*)\s+)?(\S+)\s+(?:saying|with|to say|to|set|:)\s+(.+?)\s*$`)

// fieldAssignmentPattern matches the "<field> to <value>" form of an
// update, e.g. "priority to 1" or "set state to 2".
var fieldAssignmentPattern = regexp.MustCompile(`(?i)^(?:set\s+)?(priority|state|urgency|impact|category|assigned_to|assignment_group)\s+to\s+(.+)$`)

type NaturalLanguageUpdateParams struct {
	Command string `json:"command"`
}

type NaturalLanguageUpdateResult struct {
	Result
	Table  string `json:"table,omitempty"`
	SysID  string `json:"sys_id,omitempty"`
	Number string `json:"number,omitempty"`
}

// NaturalLanguageUpdate parses an imperative sentence and applies it to
// the named record.
func (t *NaturalLanguageTools) NaturalLanguageUpdate(ctx context.Context, p NaturalLanguageUpdateParams) NaturalLanguageUpdateResult {
	if p.Command == "" {
		return NaturalLanguageUpdateResult{Result: fail("command is required")}
	}

	m := updateCommandPattern.FindStringSubmatch(p.Command)
	if m == nil {
		return NaturalLanguageUpdateResult{Result: fail("Could not parse command; expected something like: update incident INC0010001 saying <text>")}
	}
	table, key, text := strings.ToLower(m[1]), m[2], m[3]
	if table == "" {
		table = incidentTable
	}

	rec, err := servicenow.ResolveRecord(ctx, t.client, table, key, "number")
	if err != nil {
		return NaturalLanguageUpdateResult{Result: resolveFail(err, "Record", key)}
	}
	sysID := rec.String("sys_id")

	// "priority to 1" sets a field; anything else becomes a comment.
	update := servicenow.Record{"comments": text}
	if fm := fieldAssignmentPattern.FindStringSubmatch(text); fm != nil {
		update = servicenow.Record{strings.ToLower(fm[1]): strings.TrimSpace(fm[2])}
	}

	if _, err := t.client.UpdateRecord(ctx, table, sysID, update); err != nil {
		return NaturalLanguageUpdateResult{Result: fail("Failed to update record: %v", err)}
	}

	t.auditor.Emit(audit.Event{
		Action: audit.ActionUpdate,
		Table:  table,
		SysID:  sysID,
		Tool:   "natural_language_update",
	})
	return NaturalLanguageUpdateResult{
		Result: ok("Record updated successfully"),
		Table:  table,
		SysID:  sysID,
		Number: rec.String("number"),
	}
}

type UpdateScriptParams struct {
	ScriptType  string `json:"script_type"`
	Name        string `json:"name"`
	Script      string `json:"script"`
	Description string `json:"description,omitempty"`
	Active      *bool  `json:"active,omitempty"`
}

type UpdateScriptResult struct {
	Result
	ScriptID string `json:"script_id,omitempty"`
	Table    string `json:"table,omitempty"`
}

// UpdateScript replaces the body of a named server-side script. The script
// type selects the backing table.
func (t *NaturalLanguageTools) UpdateScript(ctx context.Context, p UpdateScriptParams) UpdateScriptResult {
	if p.ScriptType == "" || p.Name == "" {
		return UpdateScriptResult{Result: fail("script_type and name are required")}
	}
	if p.Script == "" {
		return UpdateScriptResult{Result: fail("script is required")}
	}

	table, known := scriptTypeTables[strings.ToLower(p.ScriptType)]
	if !known {
		return UpdateScriptResult{Result: fail("Unknown script type: %s (use business_rule, script_include, ui_action, or ui_script)", p.ScriptType)}
	}

	sysID, err := servicenow.ResolveSysID(ctx, t.client, table, p.Name, "name")
	if err != nil {
		return UpdateScriptResult{Result: resolveFail(err, "Script", p.Name)}
	}

	rec := servicenow.Record{"script": p.Script}
	setIf(rec, "description", p.Description)
	if p.Active != nil {
		rec["active"] = boolString(*p.Active)
	}

	if _, err := t.client.UpdateRecord(ctx, table, sysID, rec); err != nil {
		return UpdateScriptResult{Result: fail("Failed to update script: %v", err)}
	}

	t.auditor.Emit(audit.Event{
		Action: audit.ActionUpdate,
		Table:  table,
		SysID:  sysID,
		Tool:   "update_script",
	})
	return UpdateScriptResult{Result: ok("Script updated successfully"), ScriptID: sysID, Table: table}
}
