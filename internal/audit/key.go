package audit

import (
	"crypto/sha256"
	"encoding/hex"
)

// Key returns the Kafka message key for an event: the SHA-256 hash of the
// table name and sys_id joined by a null byte. Events for the same record
// always produce the same key and therefore land on the same partition,
// preserving per-record ordering. SHA-256 gives uniform distribution across
// partitions regardless of table or sys_id patterns.
func Key(e Event) []byte {
	hash := sha256.Sum256([]byte(e.Table + "\x00" + e.SysID))
	return []byte(hex.EncodeToString(hash[:]))
}
