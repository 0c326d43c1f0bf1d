package audit

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/hamba/avro/v2"
)

// eventSchema is the Avro schema for audit events. All fields are strings;
// timestamps are RFC 3339.
var eventSchema = avro.MustParse(`{
	"type": "record",
	"name": "AuditEvent",
	"namespace": "com.snowmcp.audit",
	"fields": [
		{"name": "action", "type": "string"},
		{"name": "table", "type": "string"},
		{"name": "sys_id", "type": "string"},
		{"name": "tool", "type": "string"},
		{"name": "timestamp", "type": "string"}
	]
}`)

// SchemaRegistryClient is a minimal client for a Confluent-compatible Schema Registry.
type SchemaRegistryClient interface {
	// GetSchemaID returns the ID for the given subject's schema, registering
	// it if necessary.
	GetSchemaID(ctx context.Context, subject string, schema avro.Schema) (int, error)
}

// AvroSerializer converts audit events to Avro bytes with a Confluent magic
// byte prefix. Schema IDs are cached per subject after the first lookup.
type AvroSerializer struct {
	registry  SchemaRegistryClient
	schemaIDs map[string]int
}

func NewAvroSerializer(registry SchemaRegistryClient) *AvroSerializer {
	return &AvroSerializer{
		registry:  registry,
		schemaIDs: make(map[string]int),
	}
}

// Serialize converts a record to Avro bytes in the Confluent Wire Format:
// [Magic Byte (0)] [Schema ID (4 bytes)] [Avro Data]
//
// Not safe for concurrent use; the publisher worker is the only caller.
func (s *AvroSerializer) Serialize(ctx context.Context, subject string, schema avro.Schema, record interface{}) ([]byte, error) {
	schemaID, ok := s.schemaIDs[subject]
	if !ok {
		id, err := s.registry.GetSchemaID(ctx, subject, schema)
		if err != nil {
			return nil, fmt.Errorf("getting schema ID for subject %s: %w", subject, err)
		}
		s.schemaIDs[subject] = id
		schemaID = id
	}

	data, err := avro.Marshal(schema, record)
	if err != nil {
		return nil, fmt.Errorf("marshaling avro: %w", err)
	}

	// Confluent wire format: 1 byte magic + 4 bytes schema ID + data
	result := make([]byte, 5+len(data))
	result[0] = 0 // Magic byte
	binary.BigEndian.PutUint32(result[1:5], uint32(schemaID))
	copy(result[5:], data)

	return result, nil
}
