package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThrownLemon/snow-mcp/internal/audit"
	"github.com/ThrownLemon/snow-mcp/internal/servicenow"
)

const (
	updateSetTable = "sys_update_set"
	updateXMLTable = "sys_update_xml"
)

// ChangesetTools manages update sets and their captured changes.
type ChangesetTools struct {
	client  servicenow.Client
	auditor *audit.Publisher
	logger  *slog.Logger
}

func NewChangesetTools(client servicenow.Client, auditor *audit.Publisher, logger *slog.Logger) *ChangesetTools {
	return &ChangesetTools{
		client:  client,
		auditor: auditor,
		logger:  logger.With("component", "changeset-tools"),
	}
}

type Changeset struct {
	SysID       string `json:"sys_id"`
	Name        string `json:"name"`
	State       string `json:"state"`
	Application string `json:"application,omitempty"`
	Developer   string `json:"developer,omitempty"`
	Description string `json:"description,omitempty"`
	CreatedOn   string `json:"sys_created_on,omitempty"`
	UpdatedOn   string `json:"sys_updated_on,omitempty"`
}

func changesetFromRecord(r servicenow.Record) Changeset {
	return Changeset{
		SysID:       r.String("sys_id"),
		Name:        r.String("name"),
		State:       r.String("state"),
		Application: r.DisplayString("application"),
		Developer:   r.String("sys_created_by"),
		Description: r.String("description"),
		CreatedOn:   r.String("sys_created_on"),
		UpdatedOn:   r.String("sys_updated_on"),
	}
}

type ListChangesetsParams struct {
	Limit       int    `json:"limit,omitempty"`
	Offset      int    `json:"offset,omitempty"`
	State       string `json:"state,omitempty"`
	Application string `json:"application,omitempty"`
	Developer   string `json:"developer,omitempty"`
	Timeframe   string `json:"timeframe,omitempty"`
	Query       string `json:"query,omitempty"`
}

type ListChangesetsResult struct {
	Result
	Changesets []Changeset `json:"changesets"`
	Total      int         `json:"total"`
	Limit      int         `json:"limit"`
	Offset     int         `json:"offset"`
}

func (t *ChangesetTools) ListChangesets(ctx context.Context, p ListChangesetsParams) ListChangesetsResult {
	limit := clampLimit(p.Limit, 10, 100)

	qb := servicenow.NewQueryBuilder()
	if p.State != "" {
		qb.WhereEquals("state", p.State)
	}
	if p.Application != "" {
		qb.WhereEquals("application", p.Application)
	}
	if p.Developer != "" {
		qb.WhereEquals("sys_created_by", p.Developer)
	}
	switch p.Timeframe {
	case "":
	case "today":
		qb.WhereGreaterThanOrEqual("sys_created_on", "javascript:gs.beginningOfToday()")
	case "week":
		qb.WhereGreaterThanOrEqual("sys_created_on", "javascript:gs.beginningOfThisWeek()")
	case "month":
		qb.WhereGreaterThanOrEqual("sys_created_on", "javascript:gs.beginningOfThisMonth()")
	default:
		return ListChangesetsResult{Result: fail("Invalid timeframe: %s (use today, week, or month)", p.Timeframe)}
	}
	qb.Raw(p.Query)

	records, total, err := t.client.ListRecords(ctx, updateSetTable, servicenow.ListOptions{
		Query:      qb.Build(),
		Limit:      limit,
		Offset:     p.Offset,
		OrderBy:    "sys_created_on",
		Descending: true,
	})
	if err != nil {
		return ListChangesetsResult{Result: fail("Failed to list changesets: %v", err)}
	}

	changesets := make([]Changeset, 0, len(records))
	for _, r := range records {
		changesets = append(changesets, changesetFromRecord(r))
	}
	if total < 0 {
		total = len(changesets)
	}
	return ListChangesetsResult{
		Result:     ok("Retrieved %d changesets", len(changesets)),
		Changesets: changesets,
		Total:      total,
		Limit:      limit,
		Offset:     p.Offset,
	}
}

// ChangesetChange is one captured customization inside an update set.
type ChangesetChange struct {
	SysID      string `json:"sys_id"`
	Name       string `json:"name"`
	Type       string `json:"type,omitempty"`
	Action     string `json:"action,omitempty"`
	TargetName string `json:"target_name,omitempty"`
	UpdatedOn  string `json:"sys_updated_on,omitempty"`
}

type GetChangesetParams struct {
	ChangesetID string `json:"changeset_id"`
}

type GetChangesetResult struct {
	Result
	Changeset *Changeset        `json:"changeset,omitempty"`
	Changes   []ChangesetChange `json:"changes,omitempty"`
}

func (t *ChangesetTools) GetChangesetDetails(ctx context.Context, p GetChangesetParams) GetChangesetResult {
	if p.ChangesetID == "" {
		return GetChangesetResult{Result: fail("changeset_id is required")}
	}

	rec, err := servicenow.ResolveRecord(ctx, t.client, updateSetTable, p.ChangesetID, "name")
	if err != nil {
		return GetChangesetResult{Result: resolveFail(err, "Changeset", p.ChangesetID)}
	}
	cs := changesetFromRecord(rec)

	changes, _, err := t.client.ListRecords(ctx, updateXMLTable, servicenow.ListOptions{
		Query:   fmt.Sprintf("update_set=%s", cs.SysID),
		Limit:   1000,
		OrderBy: "sys_updated_on",
	})
	if err != nil {
		return GetChangesetResult{Result: fail("Failed to fetch changeset changes: %v", err)}
	}

	out := make([]ChangesetChange, 0, len(changes))
	for _, c := range changes {
		out = append(out, ChangesetChange{
			SysID:     c.String("sys_id"),
			Name:      c.String("name"),
			Type:      c.String("type"),
			Action:    c.String("action"),
			TargetName: c.String("target_name"),
			UpdatedOn: c.String("sys_updated_on"),
		})
	}
	return GetChangesetResult{
		Result:    ok("Retrieved changeset %s with %d changes", cs.Name, len(out)),
		Changeset: &cs,
		Changes:   out,
	}
}

type CreateChangesetParams struct {
	Name        string `json:"name"`
	Application string `json:"application,omitempty"`
	Developer   string `json:"developer,omitempty"`
	Description string `json:"description,omitempty"`
}

type ChangesetResult struct {
	Result
	ChangesetID string `json:"changeset_id,omitempty"`
}

func (t *ChangesetTools) CreateChangeset(ctx context.Context, p CreateChangesetParams) ChangesetResult {
	if p.Name == "" {
		return ChangesetResult{Result: fail("name is required")}
	}

	rec := servicenow.Record{"name": p.Name}
	setIf(rec, "application", p.Application)
	setIf(rec, "description", p.Description)

	created, err := t.client.CreateRecord(ctx, updateSetTable, rec)
	if err != nil {
		return ChangesetResult{Result: fail("Failed to create changeset: %v", err)}
	}

	sysID := created.String("sys_id")
	t.auditor.Emit(audit.Event{
		Action: audit.ActionCreate,
		Table:  updateSetTable,
		SysID:  sysID,
		Tool:   "create_changeset",
	})
	return ChangesetResult{Result: ok("Changeset created successfully"), ChangesetID: sysID}
}

type UpdateChangesetParams struct {
	ChangesetID string `json:"changeset_id"`
	Name        string `json:"name,omitempty"`
	State       string `json:"state,omitempty"`
	Application string `json:"application,omitempty"`
	Description string `json:"description,omitempty"`
}

func (t *ChangesetTools) UpdateChangeset(ctx context.Context, p UpdateChangesetParams) ChangesetResult {
	if p.ChangesetID == "" {
		return ChangesetResult{Result: fail("changeset_id is required")}
	}

	rec := servicenow.Record{}
	setIf(rec, "name", p.Name)
	setIf(rec, "state", p.State)
	setIf(rec, "application", p.Application)
	setIf(rec, "description", p.Description)
	if len(rec) == 0 {
		return ChangesetResult{Result: fail("No fields to update")}
	}

	sysID, err := servicenow.ResolveSysID(ctx, t.client, updateSetTable, p.ChangesetID, "name")
	if err != nil {
		return ChangesetResult{Result: resolveFail(err, "Changeset", p.ChangesetID)}
	}

	if _, err := t.client.UpdateRecord(ctx, updateSetTable, sysID, rec); err != nil {
		return ChangesetResult{Result: fail("Failed to update changeset: %v", err)}
	}

	t.auditor.Emit(audit.Event{
		Action: audit.ActionUpdate,
		Table:  updateSetTable,
		SysID:  sysID,
		Tool:   "update_changeset",
	})
	return ChangesetResult{Result: ok("Changeset updated successfully"), ChangesetID: sysID}
}

type CommitChangesetParams struct {
	ChangesetID   string `json:"changeset_id"`
	CommitMessage string `json:"commit_message,omitempty"`
}

// CommitChangeset marks an update set complete, optionally recording a
// commit message in its description.
func (t *ChangesetTools) CommitChangeset(ctx context.Context, p CommitChangesetParams) ChangesetResult {
	return t.transition(ctx, p.ChangesetID, "complete", p.CommitMessage, "commit_changeset", "Changeset committed successfully")
}

type PublishChangesetParams struct {
	ChangesetID  string `json:"changeset_id"`
	PublishNotes string `json:"publish_notes,omitempty"`
}

func (t *ChangesetTools) PublishChangeset(ctx context.Context, p PublishChangesetParams) ChangesetResult {
	return t.transition(ctx, p.ChangesetID, "published", p.PublishNotes, "publish_changeset", "Changeset published successfully")
}

func (t *ChangesetTools) transition(ctx context.Context, id, state, notes, tool, msg string) ChangesetResult {
	if id == "" {
		return ChangesetResult{Result: fail("changeset_id is required")}
	}

	sysID, err := servicenow.ResolveSysID(ctx, t.client, updateSetTable, id, "name")
	if err != nil {
		return ChangesetResult{Result: resolveFail(err, "Changeset", id)}
	}

	rec := servicenow.Record{"state": state}
	setIf(rec, "description", notes)
	if _, err := t.client.UpdateRecord(ctx, updateSetTable, sysID, rec); err != nil {
		return ChangesetResult{Result: fail("Failed to update changeset state: %v", err)}
	}

	t.auditor.Emit(audit.Event{
		Action: audit.ActionUpdate,
		Table:  updateSetTable,
		SysID:  sysID,
		Tool:   tool,
	})
	return ChangesetResult{Result: ok("%s", msg), ChangesetID: sysID}
}

type AddFileToChangesetParams struct {
	ChangesetID string `json:"changeset_id"`
	FileName    string `json:"file_name"`
	FileContent string `json:"file_content"`
}

type AddFileResult struct {
	Result
	ChangeID string `json:"change_id,omitempty"`
}

// AddFileToChangeset records a file payload as a customization entry in the
// update set.
func (t *ChangesetTools) AddFileToChangeset(ctx context.Context, p AddFileToChangesetParams) AddFileResult {
	if p.ChangesetID == "" {
		return AddFileResult{Result: fail("changeset_id is required")}
	}
	if p.FileName == "" || p.FileContent == "" {
		return AddFileResult{Result: fail("file_name and file_content are required")}
	}

	sysID, err := servicenow.ResolveSysID(ctx, t.client, updateSetTable, p.ChangesetID, "name")
	if err != nil {
		return AddFileResult{Result: resolveFail(err, "Changeset", p.ChangesetID)}
	}

	created, err := t.client.CreateRecord(ctx, updateXMLTable, servicenow.Record{
		"update_set": sysID,
		"name":       p.FileName,
		"type":       "file",
		"payload":    p.FileContent,
	})
	if err != nil {
		return AddFileResult{Result: fail("Failed to add file to changeset: %v", err)}
	}

	changeID := created.String("sys_id")
	t.auditor.Emit(audit.Event{
		Action: audit.ActionCreate,
		Table:  updateXMLTable,
		SysID:  changeID,
		Tool:   "add_file_to_changeset",
	})
	return AddFileResult{Result: ok("File added to changeset successfully"), ChangeID: changeID}
}
