package logstore

import "errors"

// ErrNotFound is returned when a lookup addresses a (partition, id)
// slot that has never been written.
var ErrNotFound = errors.New("logstore: entry not found")

// Store is the durable, per-partition ordered log persistence layer
// behind the write-ahead log worker. Any store whose records are
// ordered by (partition, id) satisfies this interface; this package
// ships two (FileStore, MemStore) plus an LSM-tree-backed one in
// logstore/lsm.
//
// Implementations need not be safe for concurrent use by multiple
// callers: the WAL worker that owns a given partition already
// serializes every read and write to that partition through its
// mailbox, per the single-writer model described in the replication
// engine's design. A single Store instance is, however, shared across
// many partitions (see ReadLogs/Propose/... taking a partition
// argument), so a Store's internal bookkeeping across partitions must
// itself be safe for concurrent use.
type Store interface {
	// ReadLogs iterates every entry for partition in id-ascending
	// order, starting at the partition's highest checkpoint entry of
	// either checkpoint type (the checkpoint itself included) so replay
	// can be bounded; with no checkpoint it returns every entry.
	ReadLogs(partition int) ([]LogEntry, error)

	// ReadLogsRange iterates entries for partition with id >= fromID,
	// in id-ascending order.
	ReadLogsRange(partition int, fromID uint64) ([]LogEntry, error)

	// Propose durably appends a Proposed (or ProposedCheckpoint) entry.
	Propose(partition int, entry LogEntry) error

	// Commit durably appends the Committed (or CommittedCheckpoint)
	// superseding record for an entry already written by Propose.
	Commit(partition int, entry LogEntry) error

	// GetMaxLog returns the highest id durably persisted for
	// partition, or 0 if the partition's log is empty.
	GetMaxLog(partition int) (uint64, error)

	// GetCurrentTerm returns the highest term durably persisted for
	// partition, or 0 if the partition's log is empty.
	GetCurrentTerm(partition int) (uint64, error)

	// Exists reports whether any record (of any lifecycle type) has
	// been written for (partition, id).
	Exists(partition int, id uint64) (bool, error)

	// Close releases any resources (file handles, connections) held by
	// the store.
	Close() error
}
