package lsm

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"raftcore/logstore"
)

// memTableSizeThreshold triggers a flush to a new SSTable, matching the
// teacher's 64MiB MemTableSizeThreshold.
const memTableSizeThreshold = 64 * 1024 * 1024

// Store is a logstore.Store backed by an LSM tree: every write is
// fsynced to a write-ahead log before landing in an in-memory skip
// list, and is only flushed to an SSTable once that memtable crosses
// the size threshold, matching the teacher's WAL-then-MemTable write
// path (storage/lsm_store.go's Put) so Propose/Commit stay
// synchronous-durable the way spec.md §6 requires of every Store. It
// exists to give the teacher's LSM machinery (memtable, bloom filter,
// SSTable, size-tiered compaction) a home in this domain; FileStore
// remains the default Store.
type Store struct {
	dataDir string
	wal     *wal

	mu          sync.RWMutex
	memTable    *memTable
	immutable   *memTable
	sstables    []*sstable // ascending age: sstables[0] oldest
	nextTableID uint64

	compactor *compactionManager
}

// NewStore opens (or creates) an LSM-tree Store rooted at dataDir,
// replaying any WAL records left over from entries that were acked but
// not yet flushed into an SSTable before the last close or crash.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("lsm: failed to create data directory: %w", err)
	}
	s := &Store{dataDir: dataDir, memTable: newMemTable()}
	if err := s.loadSSTables(); err != nil {
		return nil, err
	}

	w, err := openWAL(dataDir)
	if err != nil {
		return nil, err
	}
	s.wal = w

	records, err := w.readAll()
	if err != nil {
		return nil, fmt.Errorf("lsm: failed to replay wal: %w", err)
	}
	for _, r := range records {
		data, err := encodeEntry(r.entry)
		if err != nil {
			return nil, err
		}
		s.memTable.Put([]byte(logstore.Key(r.partition, r.entry.ID)), data)
	}

	s.compactor = newCompactionManager(s)
	return s, nil
}

func (s *Store) loadSSTables() error {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return fmt.Errorf("lsm: failed to list data directory: %w", err)
	}
	var maxID uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var id uint64
		if _, err := fmt.Sscanf(e.Name(), "sstable_%d.db", &id); err != nil {
			continue
		}
		sst, err := openSSTable(filepath.Join(s.dataDir, e.Name()))
		if err != nil {
			return fmt.Errorf("lsm: failed to open %s: %w", e.Name(), err)
		}
		s.sstables = append(s.sstables, sst)
		if id >= maxID {
			maxID = id + 1
		}
	}
	s.nextTableID = maxID
	return nil
}

func encodeEntry(e logstore.LogEntry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, fmt.Errorf("lsm: failed to encode entry: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeEntry(data []byte) (logstore.LogEntry, error) {
	var e logstore.LogEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return e, fmt.Errorf("lsm: failed to decode entry: %w", err)
	}
	return e, nil
}

func (s *Store) put(partition int, entry logstore.LogEntry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	s.mu.Lock()
	// Write-ahead: fsync to the wal before the memtable is touched, so
	// a crash before the next flush never loses an acked write.
	if err := s.wal.append(partition, entry); err != nil {
		s.mu.Unlock()
		return err
	}

	key := []byte(logstore.Key(partition, entry.ID))
	s.memTable.Put(key, data)
	needsFlush := s.memTable.Size() >= memTableSizeThreshold && s.immutable == nil
	if needsFlush {
		s.immutable = s.memTable
		s.memTable = newMemTable()
	}
	s.mu.Unlock()

	if needsFlush {
		if err := s.flushImmutable(); err != nil {
			return err
		}
	}
	return nil
}

// flushImmutable writes the frozen memtable out as a new SSTable. It is
// not called concurrently with itself since put only ever sets
// s.immutable when it was nil, and clears it here before releasing the
// slot for the next flush.
func (s *Store) flushImmutable() error {
	s.mu.Lock()
	imm := s.immutable
	if imm == nil {
		s.mu.Unlock()
		return nil
	}
	tableID := s.nextTableID
	s.nextTableID++
	s.mu.Unlock()

	writer, err := newSSTableWriter(s.dataDir, tableID)
	if err != nil {
		return err
	}
	for _, e := range imm.Iterator() {
		if err := writer.Write(e.Key, e.Value); err != nil {
			return fmt.Errorf("lsm: failed to write flushed entry: %w", err)
		}
	}
	if err := writer.Finalize(); err != nil {
		return fmt.Errorf("lsm: failed to finalize flushed sstable: %w", err)
	}
	sst, err := openSSTable(writer.filePath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.sstables = append(s.sstables, sst)
	s.immutable = nil
	// imm's contents are now durable in sst; shrink the wal down to
	// whatever landed in the live memtable since the swap.
	live, rewriteErr := walRecordsFor(s.memTable)
	if rewriteErr == nil {
		rewriteErr = s.wal.rewrite(live)
	}
	s.mu.Unlock()
	if rewriteErr != nil {
		return fmt.Errorf("lsm: failed to rewrite wal after flush: %w", rewriteErr)
	}
	return nil
}

// walRecordsFor snapshots a memtable's live entries back into
// (partition, LogEntry) records for wal.rewrite, parsing the partition
// out of the composite key logstore.Key encodes it into.
func walRecordsFor(m *memTable) ([]walRecord, error) {
	iter := m.Iterator()
	records := make([]walRecord, 0, len(iter))
	for _, e := range iter {
		partition, err := partitionFromKey(e.Key)
		if err != nil {
			return nil, err
		}
		entry, err := decodeEntry(e.Value)
		if err != nil {
			return nil, err
		}
		records = append(records, walRecord{partition: partition, entry: entry})
	}
	return records, nil
}

// partitionFromKey recovers the partition number logstore.Key encoded
// into a composite key's fixed-width "%08d:" prefix.
func partitionFromKey(key []byte) (int, error) {
	if len(key) < 8 {
		return 0, fmt.Errorf("lsm: malformed composite key %q", key)
	}
	return strconv.Atoi(string(key[:8]))
}

func (s *Store) Propose(partition int, entry logstore.LogEntry) error { return s.put(partition, entry) }
func (s *Store) Commit(partition int, entry logstore.LogEntry) error  { return s.put(partition, entry) }

// get looks up a single key across the memtable, the frozen immutable
// table (if any), and the sstables newest-first, matching the teacher's
// read path: never-flushed data always wins over disk.
func (s *Store) get(key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if v, ok := s.memTable.Get(key); ok {
		return v, true, nil
	}
	if s.immutable != nil {
		if v, ok := s.immutable.Get(key); ok {
			return v, true, nil
		}
	}
	for i := len(s.sstables) - 1; i >= 0; i-- {
		v, ok, err := s.sstables[i].Get(key)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return v, true, nil
		}
	}
	return nil, false, nil
}

// scanPartition returns every resolved entry (highest write wins) whose
// composite key falls in partition's range, id-ascending.
func (s *Store) scanPartition(partition int) ([]logstore.LogEntry, error) {
	prefix := fmt.Sprintf("%08d:", partition)

	s.mu.RLock()
	merged := make(map[string][]byte)
	for _, e := range s.memTable.Iterator() {
		if bytesHasPrefix(e.Key, prefix) {
			merged[string(e.Key)] = e.Value
		}
	}
	if s.immutable != nil {
		for _, e := range s.immutable.Iterator() {
			k := string(e.Key)
			if _, ok := merged[k]; !ok && bytesHasPrefix(e.Key, prefix) {
				merged[k] = e.Value
			}
		}
	}
	sstables := append([]*sstable(nil), s.sstables...)
	s.mu.RUnlock()

	for i := len(sstables) - 1; i >= 0; i-- {
		for _, idx := range sstables[i].index {
			k := string(idx.Key)
			if _, ok := merged[k]; ok || !bytesHasPrefix(idx.Key, prefix) {
				continue
			}
			v, ok, err := sstables[i].Get(idx.Key)
			if err != nil {
				return nil, err
			}
			if ok {
				merged[k] = v
			}
		}
	}

	entries := make([]logstore.LogEntry, 0, len(merged))
	for _, data := range merged {
		e, err := decodeEntry(data)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	sortByID(entries)
	return entries, nil
}

func bytesHasPrefix(b []byte, prefix string) bool {
	return len(b) >= len(prefix) && string(b[:len(prefix)]) == prefix
}

func sortByID(entries []logstore.LogEntry) {
	for i := 1; i < len(entries); i++ {
		j := i
		for j > 0 && entries[j-1].ID > entries[j].ID {
			entries[j-1], entries[j] = entries[j], entries[j-1]
			j--
		}
	}
}

func (s *Store) ReadLogs(partition int) ([]logstore.LogEntry, error) {
	all, err := s.scanPartition(partition)
	if err != nil {
		return nil, err
	}
	var lastCheckpoint uint64
	for _, e := range all {
		if e.Type.IsCheckpoint() && e.ID > lastCheckpoint {
			lastCheckpoint = e.ID
		}
	}
	entries := make([]logstore.LogEntry, 0, len(all))
	for _, e := range all {
		if e.ID < lastCheckpoint {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Store) ReadLogsRange(partition int, fromID uint64) ([]logstore.LogEntry, error) {
	all, err := s.scanPartition(partition)
	if err != nil {
		return nil, err
	}
	entries := make([]logstore.LogEntry, 0, len(all))
	for _, e := range all {
		if e.ID >= fromID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (s *Store) GetMaxLog(partition int) (uint64, error) {
	all, err := s.scanPartition(partition)
	if err != nil {
		return 0, err
	}
	var max uint64
	for _, e := range all {
		if e.ID > max {
			max = e.ID
		}
	}
	return max, nil
}

func (s *Store) GetCurrentTerm(partition int) (uint64, error) {
	all, err := s.scanPartition(partition)
	if err != nil {
		return 0, err
	}
	var max uint64
	for _, e := range all {
		if e.Term > max {
			max = e.Term
		}
	}
	return max, nil
}

func (s *Store) Exists(partition int, id uint64) (bool, error) {
	_, ok, err := s.get([]byte(logstore.Key(partition, id)))
	return ok, err
}

func (s *Store) Close() error {
	s.compactor.Stop()
	return s.wal.close()
}
