package tools

import (
	"context"
	"log/slog"

	"github.com/ThrownLemon/snow-mcp/internal/audit"
	"github.com/ThrownLemon/snow-mcp/internal/servicenow"
)

const scriptIncludeTable = "sys_script_include"

// ScriptIncludeTools manages server-side script includes.
type ScriptIncludeTools struct {
	client  servicenow.Client
	auditor *audit.Publisher
	logger  *slog.Logger
}

func NewScriptIncludeTools(client servicenow.Client, auditor *audit.Publisher, logger *slog.Logger) *ScriptIncludeTools {
	return &ScriptIncludeTools{
		client:  client,
		auditor: auditor,
		logger:  logger.With("component", "scriptinclude-tools"),
	}
}

type ScriptInclude struct {
	SysID          string `json:"sys_id"`
	Name           string `json:"name"`
	APIName        string `json:"api_name,omitempty"`
	Description    string `json:"description,omitempty"`
	Active         bool   `json:"active"`
	ClientCallable bool   `json:"client_callable"`
	Access         string `json:"access,omitempty"`
	UpdatedOn      string `json:"sys_updated_on,omitempty"`
}

func scriptIncludeFromRecord(r servicenow.Record) ScriptInclude {
	return ScriptInclude{
		SysID:          r.String("sys_id"),
		Name:           r.String("name"),
		APIName:        r.String("api_name"),
		Description:    r.String("description"),
		Active:         r.Bool("active"),
		ClientCallable: r.Bool("client_callable"),
		Access:         r.String("access"),
		UpdatedOn:      r.String("sys_updated_on"),
	}
}

type ListScriptIncludesParams struct {
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
	Active         *bool  `json:"active,omitempty"`
	ClientCallable *bool  `json:"client_callable,omitempty"`
	Query          string `json:"query,omitempty"`
}

type ListScriptIncludesResult struct {
	Result
	ScriptIncludes []ScriptInclude `json:"script_includes"`
	Total          int             `json:"total"`
	Limit          int             `json:"limit"`
	Offset         int             `json:"offset"`
}

func (t *ScriptIncludeTools) ListScriptIncludes(ctx context.Context, p ListScriptIncludesParams) ListScriptIncludesResult {
	limit := clampLimit(p.Limit, 10, 100)

	qb := servicenow.NewQueryBuilder()
	if p.Active != nil {
		qb.WhereEquals("active", boolString(*p.Active))
	}
	if p.ClientCallable != nil {
		qb.WhereEquals("client_callable", boolString(*p.ClientCallable))
	}
	if p.Query != "" {
		qb.WhereLike("name", p.Query)
	}

	records, total, err := t.client.ListRecords(ctx, scriptIncludeTable, servicenow.ListOptions{
		Query:   qb.Build(),
		Limit:   limit,
		Offset:  p.Offset,
		OrderBy: "name",
	})
	if err != nil {
		return ListScriptIncludesResult{Result: fail("Failed to list script includes: %v", err)}
	}

	includes := make([]ScriptInclude, 0, len(records))
	for _, r := range records {
		includes = append(includes, scriptIncludeFromRecord(r))
	}
	if total < 0 {
		total = len(includes)
	}
	return ListScriptIncludesResult{
		Result:         ok("Retrieved %d script includes", len(includes)),
		ScriptIncludes: includes,
		Total:          total,
		Limit:          limit,
		Offset:         p.Offset,
	}
}

type GetScriptIncludeParams struct {
	ScriptIncludeID string `json:"script_include_id"`
}

type ScriptIncludeDetail struct {
	ScriptInclude
	Script string `json:"script,omitempty"`
}

type GetScriptIncludeResult struct {
	Result
	ScriptInclude *ScriptIncludeDetail `json:"script_include,omitempty"`
}

func (t *ScriptIncludeTools) GetScriptInclude(ctx context.Context, p GetScriptIncludeParams) GetScriptIncludeResult {
	if p.ScriptIncludeID == "" {
		return GetScriptIncludeResult{Result: fail("script_include_id is required")}
	}

	rec, err := servicenow.ResolveRecord(ctx, t.client, scriptIncludeTable, p.ScriptIncludeID, "name")
	if err != nil {
		return GetScriptIncludeResult{Result: resolveFail(err, "Script include", p.ScriptIncludeID)}
	}

	detail := &ScriptIncludeDetail{
		ScriptInclude: scriptIncludeFromRecord(rec),
		Script:        rec.String("script"),
	}
	return GetScriptIncludeResult{
		Result:        ok("Retrieved script include: %s", detail.Name),
		ScriptInclude: detail,
	}
}

type CreateScriptIncludeParams struct {
	Name           string `json:"name"`
	Script         string `json:"script"`
	Description    string `json:"description,omitempty"`
	Active         *bool  `json:"active,omitempty"`
	ClientCallable bool   `json:"client_callable,omitempty"`
	Access         string `json:"access,omitempty"`
}

type ScriptIncludeResult struct {
	Result
	ScriptIncludeID string `json:"script_include_id,omitempty"`
}

func (t *ScriptIncludeTools) CreateScriptInclude(ctx context.Context, p CreateScriptIncludeParams) ScriptIncludeResult {
	if p.Name == "" || p.Script == "" {
		return ScriptIncludeResult{Result: fail("name and script are required")}
	}

	active := true
	if p.Active != nil {
		active = *p.Active
	}
	rec := servicenow.Record{
		"name":            p.Name,
		"script":          p.Script,
		"active":          boolString(active),
		"client_callable": boolString(p.ClientCallable),
	}
	setIf(rec, "description", p.Description)
	setIf(rec, "access", p.Access)

	created, err := t.client.CreateRecord(ctx, scriptIncludeTable, rec)
	if err != nil {
		return ScriptIncludeResult{Result: fail("Failed to create script include: %v", err)}
	}

	sysID := created.String("sys_id")
	t.auditor.Emit(audit.Event{
		Action: audit.ActionCreate,
		Table:  scriptIncludeTable,
		SysID:  sysID,
		Tool:   "create_script_include",
	})
	return ScriptIncludeResult{Result: ok("Script include created successfully"), ScriptIncludeID: sysID}
}

type UpdateScriptIncludeParams struct {
	ScriptIncludeID string `json:"script_include_id"`
	Script          string `json:"script,omitempty"`
	Description     string `json:"description,omitempty"`
	Active          *bool  `json:"active,omitempty"`
	ClientCallable  *bool  `json:"client_callable,omitempty"`
	Access          string `json:"access,omitempty"`
}

func (t *ScriptIncludeTools) UpdateScriptInclude(ctx context.Context, p UpdateScriptIncludeParams) ScriptIncludeResult {
	if p.ScriptIncludeID == "" {
		return ScriptIncludeResult{Result: fail("script_include_id is required")}
	}

	rec := servicenow.Record{}
	setIf(rec, "script", p.Script)
	setIf(rec, "description", p.Description)
	setIf(rec, "access", p.Access)
	if p.Active != nil {
		rec["active"] = boolString(*p.Active)
	}
	if p.ClientCallable != nil {
		rec["client_callable"] = boolString(*p.ClientCallable)
	}
	if len(rec) == 0 {
		return ScriptIncludeResult{Result: fail("No fields to update")}
	}

	sysID, err := servicenow.ResolveSysID(ctx, t.client, scriptIncludeTable, p.ScriptIncludeID, "name")
	if err != nil {
		return ScriptIncludeResult{Result: resolveFail(err, "Script include", p.ScriptIncludeID)}
	}

	if _, err := t.client.UpdateRecord(ctx, scriptIncludeTable, sysID, rec); err != nil {
		return ScriptIncludeResult{Result: fail("Failed to update script include: %v", err)}
	}

	t.auditor.Emit(audit.Event{
		Action: audit.ActionUpdate,
		Table:  scriptIncludeTable,
		SysID:  sysID,
		Tool:   "update_script_include",
	})
	return ScriptIncludeResult{Result: ok("Script include updated successfully"), ScriptIncludeID: sysID}
}

type DeleteScriptIncludeParams struct {
	ScriptIncludeID string `json:"script_include_id"`
}

func (t *ScriptIncludeTools) DeleteScriptInclude(ctx context.Context, p DeleteScriptIncludeParams) ScriptIncludeResult {
	if p.ScriptIncludeID == "" {
		return ScriptIncludeResult{Result: fail("script_include_id is required")}
	}

	sysID, err := servicenow.ResolveSysID(ctx, t.client, scriptIncludeTable, p.ScriptIncludeID, "name")
	if err != nil {
		return ScriptIncludeResult{Result: resolveFail(err, "Script include", p.ScriptIncludeID)}
	}

	if err := t.client.DeleteRecord(ctx, scriptIncludeTable, sysID); err != nil {
		return ScriptIncludeResult{Result: fail("Failed to delete script include: %v", err)}
	}

	t.auditor.Emit(audit.Event{
		Action: audit.ActionDelete,
		Table:  scriptIncludeTable,
		SysID:  sysID,
		Tool:   "delete_script_include",
	})
	return ScriptIncludeResult{Result: ok("Script include deleted successfully"), ScriptIncludeID: sysID}
}
