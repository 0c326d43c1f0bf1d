package servicenow

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrAmbiguous is returned when a natural-key lookup matches more than one record.
var ErrAmbiguous = errors.New("multiple records match")

var sysIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

// IsSysID reports whether s looks like a ServiceNow sys_id (32 hex characters).
func IsSysID(s string) bool {
	return sysIDPattern.MatchString(s)
}

// ResolveRecord fetches a record by sys_id or natural key. When id is a
// sys_id the record is fetched directly; otherwise the table is queried for
// {keyField}={id} and exactly one match is expected.
//
// Returns ErrNotFound when nothing matches and ErrAmbiguous when the natural
// key matches more than one record.
func ResolveRecord(ctx context.Context, c Client, table, id, keyField string) (Record, error) {
	if IsSysID(id) {
		return c.GetRecord(ctx, table, id, GetOptions{})
	}

	query := NewQueryBuilder().WhereEquals(keyField, id).Build()
	// Limit 2: one extra row is enough to detect ambiguity.
	records, _, err := c.ListRecords(ctx, table, ListOptions{Query: query, Limit: 2})
	if err != nil {
		return nil, fmt.Errorf("looking up %s by %s: %w", table, keyField, err)
	}
	switch len(records) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return records[0], nil
	default:
		return nil, fmt.Errorf("%w: %s %s=%s", ErrAmbiguous, table, keyField, id)
	}
}

// ResolveSysID is ResolveRecord reduced to the record's sys_id.
func ResolveSysID(ctx context.Context, c Client, table, id, keyField string) (string, error) {
	if IsSysID(id) {
		return id, nil
	}
	record, err := ResolveRecord(ctx, c, table, id, keyField)
	if err != nil {
		return "", err
	}
	sysID := record.String("sys_id")
	if sysID == "" {
		return "", fmt.Errorf("record in %s matching %s=%s has no sys_id", table, keyField, id)
	}
	return sysID, nil
}
