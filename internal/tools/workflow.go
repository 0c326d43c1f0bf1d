package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ThrownLemon/snow-mcp/internal/audit"
	"github.com/ThrownLemon/snow-mcp/internal/servicenow"
)

const (
	workflowTable         = "wf_workflow"
	workflowVersionTable  = "wf_workflow_version"
	workflowActivityTable = "wf_activity"
)

// activityOrderStep is the spacing between consecutive activity order
// values, leaving room to insert activities between existing ones.
const activityOrderStep = 100

// WorkflowTools manages graphical workflows, their versions, and
// activities.
type WorkflowTools struct {
	client  servicenow.Client
	auditor *audit.Publisher
	logger  *slog.Logger
}

func NewWorkflowTools(client servicenow.Client, auditor *audit.Publisher, logger *slog.Logger) *WorkflowTools {
	return &WorkflowTools{
		client:  client,
		auditor: auditor,
		logger:  logger.With("component", "workflow-tools"),
	}
}

type Workflow struct {
	SysID       string `json:"sys_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Table       string `json:"table,omitempty"`
	Active      bool   `json:"active"`
	UpdatedOn   string `json:"sys_updated_on,omitempty"`
}

func workflowFromRecord(r servicenow.Record) Workflow {
	return Workflow{
		SysID:       r.String("sys_id"),
		Name:        r.String("name"),
		Description: r.String("description"),
		Table:       r.String("table"),
		Active:      r.Bool("active"),
		UpdatedOn:   r.String("sys_updated_on"),
	}
}

type ListWorkflowsParams struct {
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Active *bool  `json:"active,omitempty"`
	Name   string `json:"name,omitempty"`
	Query  string `json:"query,omitempty"`
}

type ListWorkflowsResult struct {
	Result
	Workflows []Workflow `json:"workflows"`
	Total     int        `json:"total"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
}

func (t *WorkflowTools) ListWorkflows(ctx context.Context, p ListWorkflowsParams) ListWorkflowsResult {
	limit := clampLimit(p.Limit, 10, 100)

	qb := servicenow.NewQueryBuilder()
	if p.Active != nil {
		qb.WhereEquals("active", boolString(*p.Active))
	}
	if p.Name != "" {
		qb.WhereLike("name", p.Name)
	}
	qb.Raw(p.Query)

	records, total, err := t.client.ListRecords(ctx, workflowTable, servicenow.ListOptions{
		Query:   qb.Build(),
		Limit:   limit,
		Offset:  p.Offset,
		OrderBy: "name",
	})
	if err != nil {
		return ListWorkflowsResult{Result: fail("Failed to list workflows: %v", err)}
	}

	workflows := make([]Workflow, 0, len(records))
	for _, r := range records {
		workflows = append(workflows, workflowFromRecord(r))
	}
	if total < 0 {
		total = len(workflows)
	}
	return ListWorkflowsResult{
		Result:    ok("Retrieved %d workflows", len(workflows)),
		Workflows: workflows,
		Total:     total,
		Limit:     limit,
		Offset:    p.Offset,
	}
}

type GetWorkflowParams struct {
	WorkflowID string `json:"workflow_id"`
}

type GetWorkflowResult struct {
	Result
	Workflow      *Workflow `json:"workflow,omitempty"`
	VersionCount  int       `json:"version_count"`
	ActivityCount int       `json:"activity_count"`
}

// GetWorkflowDetails returns a workflow together with counts of its
// versions and the activities in its latest version.
func (t *WorkflowTools) GetWorkflowDetails(ctx context.Context, p GetWorkflowParams) GetWorkflowResult {
	if p.WorkflowID == "" {
		return GetWorkflowResult{Result: fail("workflow_id is required")}
	}

	rec, err := servicenow.ResolveRecord(ctx, t.client, workflowTable, p.WorkflowID, "name")
	if err != nil {
		return GetWorkflowResult{Result: resolveFail(err, "Workflow", p.WorkflowID)}
	}
	wf := workflowFromRecord(rec)

	_, versionCount, err := t.client.ListRecords(ctx, workflowVersionTable, servicenow.ListOptions{
		Query: fmt.Sprintf("workflow=%s", wf.SysID),
		Limit: 1,
	})
	if err != nil {
		return GetWorkflowResult{Result: fail("Failed to count workflow versions: %v", err)}
	}

	activityCount := 0
	version, err := t.latestVersion(ctx, wf.SysID)
	if err == nil {
		_, activityCount, err = t.client.ListRecords(ctx, workflowActivityTable, servicenow.ListOptions{
			Query: fmt.Sprintf("workflow_version=%s", version),
			Limit: 1,
		})
		if err != nil {
			return GetWorkflowResult{Result: fail("Failed to count workflow activities: %v", err)}
		}
	}

	return GetWorkflowResult{
		Result:        ok("Retrieved workflow: %s", wf.Name),
		Workflow:      &wf,
		VersionCount:  max(versionCount, 0),
		ActivityCount: max(activityCount, 0),
	}
}

type WorkflowVersion struct {
	SysID     string `json:"sys_id"`
	Name      string `json:"name"`
	Published bool   `json:"published"`
	StartID   string `json:"start,omitempty"`
	CreatedOn string `json:"sys_created_on,omitempty"`
}

type ListWorkflowVersionsParams struct {
	WorkflowID string `json:"workflow_id"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

type ListWorkflowVersionsResult struct {
	Result
	Versions []WorkflowVersion `json:"versions"`
	Total    int               `json:"total"`
}

func (t *WorkflowTools) ListWorkflowVersions(ctx context.Context, p ListWorkflowVersionsParams) ListWorkflowVersionsResult {
	if p.WorkflowID == "" {
		return ListWorkflowVersionsResult{Result: fail("workflow_id is required")}
	}
	limit := clampLimit(p.Limit, 10, 100)

	wfID, err := servicenow.ResolveSysID(ctx, t.client, workflowTable, p.WorkflowID, "name")
	if err != nil {
		return ListWorkflowVersionsResult{Result: resolveFail(err, "Workflow", p.WorkflowID)}
	}

	records, total, err := t.client.ListRecords(ctx, workflowVersionTable, servicenow.ListOptions{
		Query:      fmt.Sprintf("workflow=%s", wfID),
		Limit:      limit,
		Offset:     p.Offset,
		OrderBy:    "sys_created_on",
		Descending: true,
	})
	if err != nil {
		return ListWorkflowVersionsResult{Result: fail("Failed to list workflow versions: %v", err)}
	}

	versions := make([]WorkflowVersion, 0, len(records))
	for _, r := range records {
		versions = append(versions, WorkflowVersion{
			SysID:     r.String("sys_id"),
			Name:      r.String("name"),
			Published: r.Bool("published"),
			StartID:   r.String("start"),
			CreatedOn: r.String("sys_created_on"),
		})
	}
	if total < 0 {
		total = len(versions)
	}
	return ListWorkflowVersionsResult{
		Result:   ok("Retrieved %d workflow versions", len(versions)),
		Versions: versions,
		Total:    total,
	}
}

// latestVersion returns the sys_id of the most recently created version of
// a workflow.
func (t *WorkflowTools) latestVersion(ctx context.Context, workflowSysID string) (string, error) {
	records, _, err := t.client.ListRecords(ctx, workflowVersionTable, servicenow.ListOptions{
		Query:      fmt.Sprintf("workflow=%s", workflowSysID),
		Limit:      1,
		OrderBy:    "sys_created_on",
		Descending: true,
	})
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", fmt.Errorf("workflow %s has no versions: %w", workflowSysID, servicenow.ErrNotFound)
	}
	return records[0].String("sys_id"), nil
}

type WorkflowActivity struct {
	SysID       string `json:"sys_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Definition  string `json:"activity_definition,omitempty"`
	Order       string `json:"order,omitempty"`
}

type GetWorkflowActivitiesParams struct {
	WorkflowID string `json:"workflow_id"`
	VersionID  string `json:"version_id,omitempty"`
}

type GetWorkflowActivitiesResult struct {
	Result
	Activities []WorkflowActivity `json:"activities"`
}

// GetWorkflowActivities lists the activities of a workflow version in
// execution order. When version_id is omitted the latest version is used.
func (t *WorkflowTools) GetWorkflowActivities(ctx context.Context, p GetWorkflowActivitiesParams) GetWorkflowActivitiesResult {
	if p.WorkflowID == "" {
		return GetWorkflowActivitiesResult{Result: fail("workflow_id is required")}
	}

	versionID, res := t.resolveVersion(ctx, p.WorkflowID, p.VersionID)
	if !res.Success {
		return GetWorkflowActivitiesResult{Result: res}
	}

	records, _, err := t.client.ListRecords(ctx, workflowActivityTable, servicenow.ListOptions{
		Query:   fmt.Sprintf("workflow_version=%s", versionID),
		Limit:   1000,
		OrderBy: "order",
	})
	if err != nil {
		return GetWorkflowActivitiesResult{Result: fail("Failed to list workflow activities: %v", err)}
	}

	activities := make([]WorkflowActivity, 0, len(records))
	for _, r := range records {
		activities = append(activities, WorkflowActivity{
			SysID:       r.String("sys_id"),
			Name:        r.String("name"),
			Description: r.String("description"),
			Definition:  r.DisplayString("activity_definition"),
			Order:       r.String("order"),
		})
	}
	return GetWorkflowActivitiesResult{
		Result:     ok("Retrieved %d workflow activities", len(activities)),
		Activities: activities,
	}
}

// resolveVersion maps (workflow_id, optional version_id) to a version
// sys_id, defaulting to the workflow's latest version.
func (t *WorkflowTools) resolveVersion(ctx context.Context, workflowID, versionID string) (string, Result) {
	if versionID != "" {
		return versionID, ok("")
	}
	wfID, err := servicenow.ResolveSysID(ctx, t.client, workflowTable, workflowID, "name")
	if err != nil {
		return "", resolveFail(err, "Workflow", workflowID)
	}
	latest, err := t.latestVersion(ctx, wfID)
	if err != nil {
		return "", fail("Failed to resolve workflow version: %v", err)
	}
	return latest, ok("")
}

type CreateWorkflowParams struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Table       string `json:"table,omitempty"`
}

type WorkflowResult struct {
	Result
	WorkflowID string `json:"workflow_id,omitempty"`
	VersionID  string `json:"version_id,omitempty"`
}

// CreateWorkflow creates a workflow and its initial version.
func (t *WorkflowTools) CreateWorkflow(ctx context.Context, p CreateWorkflowParams) WorkflowResult {
	if p.Name == "" {
		return WorkflowResult{Result: fail("name is required")}
	}

	rec := servicenow.Record{"name": p.Name}
	setIf(rec, "description", p.Description)
	setIf(rec, "table", p.Table)

	created, err := t.client.CreateRecord(ctx, workflowTable, rec)
	if err != nil {
		return WorkflowResult{Result: fail("Failed to create workflow: %v", err)}
	}
	wfID := created.String("sys_id")

	version, err := t.client.CreateRecord(ctx, workflowVersionTable, servicenow.Record{
		"workflow": wfID,
		"name":     p.Name,
		"active":   "true",
	})
	if err != nil {
		return WorkflowResult{Result: fail("Workflow created but initial version failed: %v", err), WorkflowID: wfID}
	}

	t.auditor.Emit(audit.Event{
		Action: audit.ActionCreate,
		Table:  workflowTable,
		SysID:  wfID,
		Tool:   "create_workflow",
	})
	return WorkflowResult{
		Result:     ok("Workflow created successfully"),
		WorkflowID: wfID,
		VersionID:  version.String("sys_id"),
	}
}

type UpdateWorkflowParams struct {
	WorkflowID  string `json:"workflow_id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Table       string `json:"table,omitempty"`
}

func (t *WorkflowTools) UpdateWorkflow(ctx context.Context, p UpdateWorkflowParams) WorkflowResult {
	if p.WorkflowID == "" {
		return WorkflowResult{Result: fail("workflow_id is required")}
	}

	rec := servicenow.Record{}
	setIf(rec, "name", p.Name)
	setIf(rec, "description", p.Description)
	setIf(rec, "table", p.Table)
	if len(rec) == 0 {
		return WorkflowResult{Result: fail("No fields to update")}
	}

	sysID, err := servicenow.ResolveSysID(ctx, t.client, workflowTable, p.WorkflowID, "name")
	if err != nil {
		return WorkflowResult{Result: resolveFail(err, "Workflow", p.WorkflowID)}
	}

	if _, err := t.client.UpdateRecord(ctx, workflowTable, sysID, rec); err != nil {
		return WorkflowResult{Result: fail("Failed to update workflow: %v", err)}
	}

	t.auditor.Emit(audit.Event{
		Action: audit.ActionUpdate,
		Table:  workflowTable,
		SysID:  sysID,
		Tool:   "update_workflow",
	})
	return WorkflowResult{Result: ok("Workflow updated successfully"), WorkflowID: sysID}
}

type SetWorkflowActiveParams struct {
	WorkflowID string `json:"workflow_id"`
}

func (t *WorkflowTools) ActivateWorkflow(ctx context.Context, p SetWorkflowActiveParams) WorkflowResult {
	return t.setActive(ctx, p.WorkflowID, true, "activate_workflow", "Workflow activated successfully")
}

func (t *WorkflowTools) DeactivateWorkflow(ctx context.Context, p SetWorkflowActiveParams) WorkflowResult {
	return t.setActive(ctx, p.WorkflowID, false, "deactivate_workflow", "Workflow deactivated successfully")
}

func (t *WorkflowTools) setActive(ctx context.Context, id string, active bool, tool, msg string) WorkflowResult {
	if id == "" {
		return WorkflowResult{Result: fail("workflow_id is required")}
	}

	sysID, err := servicenow.ResolveSysID(ctx, t.client, workflowTable, id, "name")
	if err != nil {
		return WorkflowResult{Result: resolveFail(err, "Workflow", id)}
	}

	if _, err := t.client.UpdateRecord(ctx, workflowTable, sysID, servicenow.Record{"active": boolString(active)}); err != nil {
		return WorkflowResult{Result: fail("Failed to update workflow state: %v", err)}
	}

	t.auditor.Emit(audit.Event{
		Action: audit.ActionUpdate,
		Table:  workflowTable,
		SysID:  sysID,
		Tool:   tool,
	})
	return WorkflowResult{Result: ok("%s", msg), WorkflowID: sysID}
}

type AddWorkflowActivityParams struct {
	WorkflowID  string `json:"workflow_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Definition  string `json:"activity_definition,omitempty"`
	VersionID   string `json:"version_id,omitempty"`
}

type WorkflowActivityResult struct {
	Result
	ActivityID string `json:"activity_id,omitempty"`
}

func (t *WorkflowTools) AddWorkflowActivity(ctx context.Context, p AddWorkflowActivityParams) WorkflowActivityResult {
	if p.WorkflowID == "" {
		return WorkflowActivityResult{Result: fail("workflow_id is required")}
	}
	if p.Name == "" {
		return WorkflowActivityResult{Result: fail("name is required")}
	}

	versionID, res := t.resolveVersion(ctx, p.WorkflowID, p.VersionID)
	if !res.Success {
		return WorkflowActivityResult{Result: res}
	}

	existing, _, err := t.client.ListRecords(ctx, workflowActivityTable, servicenow.ListOptions{
		Query: fmt.Sprintf("workflow_version=%s", versionID),
		Limit: 1000,
	})
	if err != nil {
		return WorkflowActivityResult{Result: fail("Failed to inspect workflow activities: %v", err)}
	}

	rec := servicenow.Record{
		"workflow_version": versionID,
		"name":             p.Name,
		"order":            strconv.Itoa((len(existing) + 1) * activityOrderStep),
	}
	setIf(rec, "description", p.Description)
	setIf(rec, "activity_definition", p.Definition)

	created, err := t.client.CreateRecord(ctx, workflowActivityTable, rec)
	if err != nil {
		return WorkflowActivityResult{Result: fail("Failed to add workflow activity: %v", err)}
	}

	activityID := created.String("sys_id")
	t.auditor.Emit(audit.Event{
		Action: audit.ActionCreate,
		Table:  workflowActivityTable,
		SysID:  activityID,
		Tool:   "add_workflow_activity",
	})
	return WorkflowActivityResult{Result: ok("Workflow activity added successfully"), ActivityID: activityID}
}

type UpdateWorkflowActivityParams struct {
	ActivityID  string `json:"activity_id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Order       string `json:"order,omitempty"`
}

func (t *WorkflowTools) UpdateWorkflowActivity(ctx context.Context, p UpdateWorkflowActivityParams) WorkflowActivityResult {
	if p.ActivityID == "" {
		return WorkflowActivityResult{Result: fail("activity_id is required")}
	}

	rec := servicenow.Record{}
	setIf(rec, "name", p.Name)
	setIf(rec, "description", p.Description)
	setIf(rec, "order", p.Order)
	if len(rec) == 0 {
		return WorkflowActivityResult{Result: fail("No fields to update")}
	}

	if !servicenow.IsSysID(p.ActivityID) {
		return WorkflowActivityResult{Result: fail("activity_id must be a sys_id")}
	}
	if _, err := t.client.UpdateRecord(ctx, workflowActivityTable, p.ActivityID, rec); err != nil {
		return WorkflowActivityResult{Result: fail("Failed to update workflow activity: %v", err)}
	}

	t.auditor.Emit(audit.Event{
		Action: audit.ActionUpdate,
		Table:  workflowActivityTable,
		SysID:  p.ActivityID,
		Tool:   "update_workflow_activity",
	})
	return WorkflowActivityResult{Result: ok("Workflow activity updated successfully"), ActivityID: p.ActivityID}
}

type DeleteWorkflowActivityParams struct {
	ActivityID string `json:"activity_id"`
}

func (t *WorkflowTools) DeleteWorkflowActivity(ctx context.Context, p DeleteWorkflowActivityParams) WorkflowActivityResult {
	if p.ActivityID == "" {
		return WorkflowActivityResult{Result: fail("activity_id is required")}
	}
	if !servicenow.IsSysID(p.ActivityID) {
		return WorkflowActivityResult{Result: fail("activity_id must be a sys_id")}
	}

	if err := t.client.DeleteRecord(ctx, workflowActivityTable, p.ActivityID); err != nil {
		return WorkflowActivityResult{Result: fail("Failed to delete workflow activity: %v", err)}
	}

	t.auditor.Emit(audit.Event{
		Action: audit.ActionDelete,
		Table:  workflowActivityTable,
		SysID:  p.ActivityID,
		Tool:   "delete_workflow_activity",
	})
	return WorkflowActivityResult{Result: ok("Workflow activity deleted successfully"), ActivityID: p.ActivityID}
}

type ReorderActivitiesParams struct {
	WorkflowID  string   `json:"workflow_id"`
	ActivityIDs []string `json:"activity_ids"`
	VersionID   string   `json:"version_id,omitempty"`
}

type ReorderActivitiesResult struct {
	Result
	Reordered []string          `json:"reordered"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// ReorderWorkflowActivities rewrites activity order values so they run in
// the given sequence. Order values are spaced by activityOrderStep.
func (t *WorkflowTools) ReorderWorkflowActivities(ctx context.Context, p ReorderActivitiesParams) ReorderActivitiesResult {
	if p.WorkflowID == "" {
		return ReorderActivitiesResult{Result: fail("workflow_id is required")}
	}
	if len(p.ActivityIDs) == 0 {
		return ReorderActivitiesResult{Result: fail("activity_ids is required")}
	}

	res := ReorderActivitiesResult{
		Reordered: make([]string, 0, len(p.ActivityIDs)),
		Failed:    make(map[string]string),
	}
	for i, id := range p.ActivityIDs {
		order := strconv.Itoa((i + 1) * activityOrderStep)
		if _, err := t.client.UpdateRecord(ctx, workflowActivityTable, id, servicenow.Record{"order": order}); err != nil {
			res.Failed[id] = err.Error()
			continue
		}
		res.Reordered = append(res.Reordered, id)
	}
	if len(res.Failed) == 0 {
		res.Failed = nil
	}

	if len(res.Reordered) > 0 {
		t.auditor.Emit(audit.Event{
			Action: audit.ActionUpdate,
			Table:  workflowActivityTable,
			SysID:  p.WorkflowID,
			Tool:   "reorder_workflow_activities",
		})
	}
	switch {
	case len(res.Reordered) == 0:
		res.Result = fail("Failed to reorder any of the %d activities", len(p.ActivityIDs))
	case res.Failed != nil:
		res.Result = ok("Reordered %d of %d activities", len(res.Reordered), len(p.ActivityIDs))
	default:
		res.Result = ok("Reordered %d activities successfully", len(res.Reordered))
	}
	return res
}
