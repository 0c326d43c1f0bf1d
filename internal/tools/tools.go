// Package tools implements ServiceNow ITSM operations as tool functions.
//
// # Design
//
// Each tool family (incidents, catalog, changesets, knowledge, script
// includes, tables, workflows, natural language) is a struct holding the
// shared ServiceNow client, a logger, and the optional audit publisher.
// Operations take a params struct and return a result struct embedding
// [Result].
//
// # Error Handling
//
// Tool methods never return Go errors. Every failure — transport errors,
// API errors, validation errors, missing records — is caught and reported
// as Success=false with a human-readable Message. Callers (the MCP layer)
// serialize the result envelope as-is.
//
// # Record Identifiers
//
// Operations that target an existing record accept either a sys_id (32 hex
// characters) or the record's natural key (incident number, item name,
// script include name, ...). Natural keys are resolved via
// [servicenow.ResolveRecord] and must match exactly one record.
package tools

import (
	"errors"
	"fmt"

	"github.com/ThrownLemon/snow-mcp/internal/servicenow"
)

// Result is the common envelope embedded in every tool response.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Succeeded reports whether the operation succeeded. Used by the serving
// layer for metrics.
func (r Result) Succeeded() bool {
	return r.Success
}

func ok(format string, args ...interface{}) Result {
	return Result{Success: true, Message: fmt.Sprintf(format, args...)}
}

func fail(format string, args ...interface{}) Result {
	return Result{Success: false, Message: fmt.Sprintf(format, args...)}
}

// resolveFail turns a resolver error into a user-facing failure envelope.
// thing is the human name of the record type ("Incident", "Catalog item").
func resolveFail(err error, thing, id string) Result {
	switch {
	case errors.Is(err, servicenow.ErrNotFound):
		return fail("%s not found: %s", thing, id)
	case errors.Is(err, servicenow.ErrAmbiguous):
		return fail("Multiple %ss match '%s'; use a sys_id", lower(thing), id)
	default:
		return fail("Failed to find %s: %v", lower(thing), err)
	}
}

func lower(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}

// boolString converts a bool to the "true"/"false" strings ServiceNow
// expects in record payloads.
func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// clampLimit bounds a requested page size to [1, max], substituting def
// when the request leaves it unset.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// setIf adds a field to the record when the value is non-empty.
func setIf(r servicenow.Record, field, value string) {
	if value != "" {
		r[field] = value
	}
}
