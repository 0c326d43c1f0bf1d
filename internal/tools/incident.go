package tools

import (
	"context"
	"log/slog"

	"github.com/ThrownLemon/snow-mcp/internal/audit"
	"github.com/ThrownLemon/snow-mcp/internal/servicenow"
)

const incidentTable = "incident"

// IncidentTools operates on incident records.
type IncidentTools struct {
	client  servicenow.Client
	auditor *audit.Publisher
	logger  *slog.Logger
}

func NewIncidentTools(client servicenow.Client, auditor *audit.Publisher, logger *slog.Logger) *IncidentTools {
	return &IncidentTools{
		client:  client,
		auditor: auditor,
		logger:  logger.With("component", "incident-tools"),
	}
}

// Incident is the subset of incident fields returned by list operations.
type Incident struct {
	SysID            string `json:"sys_id"`
	Number           string `json:"number"`
	ShortDescription string `json:"short_description"`
	Description      string `json:"description,omitempty"`
	State            string `json:"state"`
	Priority         string `json:"priority,omitempty"`
	AssignedTo       string `json:"assigned_to,omitempty"`
	Category         string `json:"category,omitempty"`
	CreatedOn        string `json:"sys_created_on,omitempty"`
	UpdatedOn        string `json:"sys_updated_on,omitempty"`
}

func incidentFromRecord(r servicenow.Record) Incident {
	return Incident{
		SysID:            r.String("sys_id"),
		Number:           r.String("number"),
		ShortDescription: r.String("short_description"),
		Description:      r.String("description"),
		State:            r.String("state"),
		Priority:         r.String("priority"),
		AssignedTo:       r.DisplayString("assigned_to"),
		Category:         r.String("category"),
		CreatedOn:        r.String("sys_created_on"),
		UpdatedOn:        r.String("sys_updated_on"),
	}
}

type CreateIncidentParams struct {
	ShortDescription string `json:"short_description"`
	Description      string `json:"description,omitempty"`
	CallerID         string `json:"caller_id,omitempty"`
	Category         string `json:"category,omitempty"`
	Subcategory      string `json:"subcategory,omitempty"`
	Priority         string `json:"priority,omitempty"`
	Impact           string `json:"impact,omitempty"`
	Urgency          string `json:"urgency,omitempty"`
	AssignedTo       string `json:"assigned_to,omitempty"`
	AssignmentGroup  string `json:"assignment_group,omitempty"`
}

type IncidentResult struct {
	Result
	IncidentID     string `json:"incident_id,omitempty"`
	IncidentNumber string `json:"incident_number,omitempty"`
}

func (t *IncidentTools) CreateIncident(ctx context.Context, p CreateIncidentParams) IncidentResult {
	if p.ShortDescription == "" {
		return IncidentResult{Result: fail("short_description is required")}
	}

	rec := servicenow.Record{"short_description": p.ShortDescription}
	setIf(rec, "description", p.Description)
	setIf(rec, "caller_id", p.CallerID)
	setIf(rec, "category", p.Category)
	setIf(rec, "subcategory", p.Subcategory)
	setIf(rec, "priority", p.Priority)
	setIf(rec, "impact", p.Impact)
	setIf(rec, "urgency", p.Urgency)
	setIf(rec, "assigned_to", p.AssignedTo)
	setIf(rec, "assignment_group", p.AssignmentGroup)

	created, err := t.client.CreateRecord(ctx, incidentTable, rec)
	if err != nil {
		return IncidentResult{Result: fail("Failed to create incident: %v", err)}
	}

	t.auditor.Emit(audit.Event{
		Action: audit.ActionCreate,
		Table:  incidentTable,
		SysID:  created.String("sys_id"),
		Tool:   "create_incident",
	})
	return IncidentResult{
		Result:         ok("Incident created successfully"),
		IncidentID:     created.String("sys_id"),
		IncidentNumber: created.String("number"),
	}
}

type UpdateIncidentParams struct {
	IncidentID       string `json:"incident_id"`
	ShortDescription string `json:"short_description,omitempty"`
	Description      string `json:"description,omitempty"`
	State            string `json:"state,omitempty"`
	Category         string `json:"category,omitempty"`
	Subcategory      string `json:"subcategory,omitempty"`
	Priority         string `json:"priority,omitempty"`
	Impact           string `json:"impact,omitempty"`
	Urgency          string `json:"urgency,omitempty"`
	AssignedTo       string `json:"assigned_to,omitempty"`
	AssignmentGroup  string `json:"assignment_group,omitempty"`
	WorkNotes        string `json:"work_notes,omitempty"`
	CloseNotes       string `json:"close_notes,omitempty"`
	CloseCode        string `json:"close_code,omitempty"`
}

func (t *IncidentTools) UpdateIncident(ctx context.Context, p UpdateIncidentParams) IncidentResult {
	if p.IncidentID == "" {
		return IncidentResult{Result: fail("incident_id is required")}
	}

	rec := servicenow.Record{}
	setIf(rec, "short_description", p.ShortDescription)
	setIf(rec, "description", p.Description)
	setIf(rec, "state", p.State)
	setIf(rec, "category", p.Category)
	setIf(rec, "subcategory", p.Subcategory)
	setIf(rec, "priority", p.Priority)
	setIf(rec, "impact", p.Impact)
	setIf(rec, "urgency", p.Urgency)
	setIf(rec, "assigned_to", p.AssignedTo)
	setIf(rec, "assignment_group", p.AssignmentGroup)
	setIf(rec, "work_notes", p.WorkNotes)
	setIf(rec, "close_notes", p.CloseNotes)
	setIf(rec, "close_code", p.CloseCode)
	if len(rec) == 0 {
		return IncidentResult{Result: fail("No fields to update")}
	}

	sysID, err := servicenow.ResolveSysID(ctx, t.client, incidentTable, p.IncidentID, "number")
	if err != nil {
		return IncidentResult{Result: resolveFail(err, "Incident", p.IncidentID)}
	}

	updated, err := t.client.UpdateRecord(ctx, incidentTable, sysID, rec)
	if err != nil {
		return IncidentResult{Result: fail("Failed to update incident: %v", err)}
	}

	t.auditor.Emit(audit.Event{
		Action: audit.ActionUpdate,
		Table:  incidentTable,
		SysID:  sysID,
		Tool:   "update_incident",
	})
	return IncidentResult{
		Result:         ok("Incident updated successfully"),
		IncidentID:     sysID,
		IncidentNumber: updated.String("number"),
	}
}

type AddCommentParams struct {
	IncidentID string `json:"incident_id"`
	Comment    string `json:"comment"`
	IsWorkNote bool   `json:"is_work_note,omitempty"`
}

func (t *IncidentTools) AddComment(ctx context.Context, p AddCommentParams) IncidentResult {
	if p.IncidentID == "" {
		return IncidentResult{Result: fail("incident_id is required")}
	}
	if p.Comment == "" {
		return IncidentResult{Result: fail("comment is required")}
	}

	sysID, err := servicenow.ResolveSysID(ctx, t.client, incidentTable, p.IncidentID, "number")
	if err != nil {
		return IncidentResult{Result: resolveFail(err, "Incident", p.IncidentID)}
	}

	field := "comments"
	msg := "Comment added successfully"
	if p.IsWorkNote {
		field = "work_notes"
		msg = "Work note added successfully"
	}

	if _, err := t.client.UpdateRecord(ctx, incidentTable, sysID, servicenow.Record{field: p.Comment}); err != nil {
		return IncidentResult{Result: fail("Failed to add comment: %v", err)}
	}

	t.auditor.Emit(audit.Event{
		Action: audit.ActionUpdate,
		Table:  incidentTable,
		SysID:  sysID,
		Tool:   "add_comment",
	})
	return IncidentResult{Result: ok("%s", msg), IncidentID: sysID}
}

type ResolveIncidentParams struct {
	IncidentID      string `json:"incident_id"`
	ResolutionCode  string `json:"resolution_code"`
	ResolutionNotes string `json:"resolution_notes"`
}

func (t *IncidentTools) ResolveIncident(ctx context.Context, p ResolveIncidentParams) IncidentResult {
	if p.IncidentID == "" {
		return IncidentResult{Result: fail("incident_id is required")}
	}
	if p.ResolutionCode == "" || p.ResolutionNotes == "" {
		return IncidentResult{Result: fail("resolution_code and resolution_notes are required")}
	}

	sysID, err := servicenow.ResolveSysID(ctx, t.client, incidentTable, p.IncidentID, "number")
	if err != nil {
		return IncidentResult{Result: resolveFail(err, "Incident", p.IncidentID)}
	}

	rec := servicenow.Record{
		"state":       "6", // Resolved
		"close_code":  p.ResolutionCode,
		"close_notes": p.ResolutionNotes,
	}
	updated, err := t.client.UpdateRecord(ctx, incidentTable, sysID, rec)
	if err != nil {
		return IncidentResult{Result: fail("Failed to resolve incident: %v", err)}
	}

	t.auditor.Emit(audit.Event{
		Action: audit.ActionUpdate,
		Table:  incidentTable,
		SysID:  sysID,
		Tool:   "resolve_incident",
	})
	return IncidentResult{
		Result:         ok("Incident resolved successfully"),
		IncidentID:     sysID,
		IncidentNumber: updated.String("number"),
	}
}

type ListIncidentsParams struct {
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
	State      string `json:"state,omitempty"`
	AssignedTo string `json:"assigned_to,omitempty"`
	Category   string `json:"category,omitempty"`
	Query      string `json:"query,omitempty"`
}

type ListIncidentsResult struct {
	Result
	Incidents []Incident `json:"incidents"`
	Total     int        `json:"total"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
}

func (t *IncidentTools) ListIncidents(ctx context.Context, p ListIncidentsParams) ListIncidentsResult {
	limit := clampLimit(p.Limit, 10, 100)

	qb := servicenow.NewQueryBuilder()
	if p.State != "" {
		qb.WhereEquals("state", p.State)
	}
	if p.AssignedTo != "" {
		qb.WhereEquals("assigned_to", p.AssignedTo)
	}
	if p.Category != "" {
		qb.WhereEquals("category", p.Category)
	}
	qb.Raw(p.Query)

	records, total, err := t.client.ListRecords(ctx, incidentTable, servicenow.ListOptions{
		Query:        qb.Build(),
		Limit:        limit,
		Offset:       p.Offset,
		DisplayValue: "true",
		OrderBy:      "sys_created_on",
		Descending:   true,
	})
	if err != nil {
		return ListIncidentsResult{Result: fail("Failed to list incidents: %v", err)}
	}

	incidents := make([]Incident, 0, len(records))
	for _, r := range records {
		incidents = append(incidents, incidentFromRecord(r))
	}
	if total < 0 {
		total = len(incidents)
	}
	return ListIncidentsResult{
		Result:    ok("Retrieved %d incidents", len(incidents)),
		Incidents: incidents,
		Total:     total,
		Limit:     limit,
		Offset:    p.Offset,
	}
}
