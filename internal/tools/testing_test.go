package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ThrownLemon/snow-mcp/internal/servicenow"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// apiCall records one client invocation for assertions.
type apiCall struct {
	Method string
	Table  string
	SysID  string
	Opts   servicenow.ListOptions
	Body   servicenow.Record
}

// fakeClient implements servicenow.Client with programmable responses and
// a call log.
type fakeClient struct {
	calls []apiCall

	listFn   func(table string, opts servicenow.ListOptions) ([]servicenow.Record, int, error)
	getFn    func(table, sysID string) (servicenow.Record, error)
	createFn func(table string, body servicenow.Record) (servicenow.Record, error)
	updateFn func(table, sysID string, body servicenow.Record) (servicenow.Record, error)
	deleteFn func(table, sysID string) error
}

var _ servicenow.Client = (*fakeClient)(nil)

func (f *fakeClient) ListRecords(_ context.Context, table string, opts servicenow.ListOptions) ([]servicenow.Record, int, error) {
	f.calls = append(f.calls, apiCall{Method: "list", Table: table, Opts: opts})
	if f.listFn == nil {
		return nil, -1, fmt.Errorf("unexpected ListRecords on %s", table)
	}
	return f.listFn(table, opts)
}

func (f *fakeClient) GetRecord(_ context.Context, table, sysID string, _ servicenow.GetOptions) (servicenow.Record, error) {
	f.calls = append(f.calls, apiCall{Method: "get", Table: table, SysID: sysID})
	if f.getFn == nil {
		return nil, fmt.Errorf("unexpected GetRecord on %s", table)
	}
	return f.getFn(table, sysID)
}

func (f *fakeClient) CreateRecord(_ context.Context, table string, body servicenow.Record) (servicenow.Record, error) {
	f.calls = append(f.calls, apiCall{Method: "create", Table: table, Body: body})
	if f.createFn == nil {
		return nil, fmt.Errorf("unexpected CreateRecord on %s", table)
	}
	return f.createFn(table, body)
}

func (f *fakeClient) UpdateRecord(_ context.Context, table, sysID string, body servicenow.Record) (servicenow.Record, error) {
	f.calls = append(f.calls, apiCall{Method: "update", Table: table, SysID: sysID, Body: body})
	if f.updateFn == nil {
		return nil, fmt.Errorf("unexpected UpdateRecord on %s", table)
	}
	return f.updateFn(table, sysID, body)
}

func (f *fakeClient) DeleteRecord(_ context.Context, table, sysID string) error {
	f.calls = append(f.calls, apiCall{Method: "delete", Table: table, SysID: sysID})
	if f.deleteFn == nil {
		return fmt.Errorf("unexpected DeleteRecord on %s", table)
	}
	return f.deleteFn(table, sysID)
}

func (f *fakeClient) Close() {}

// lastCall returns the most recent call matching method, or fails the
// lookup with a zero value.
func (f *fakeClient) lastCall(method string) (apiCall, bool) {
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Method == method {
			return f.calls[i], true
		}
	}
	return apiCall{}, false
}

const testSysID = "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"

// singleRecordList returns a listFn that always finds one record.
func singleRecordList(rec servicenow.Record) func(string, servicenow.ListOptions) ([]servicenow.Record, int, error) {
	return func(string, servicenow.ListOptions) ([]servicenow.Record, int, error) {
		return []servicenow.Record{rec}, 1, nil
	}
}
