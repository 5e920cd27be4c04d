package lsm

import (
	"fmt"
	"os"
	"sort"
	"sync"
)

// compactionManager merges all sstables into one when ForceCompact is
// called, grounded on the teacher's size-tiered CompactionManager. No
// background loop is started, so compaction never runs on its own and
// Stop has nothing to stop. Unlike the teacher's KV store, merged entries are
// never tombstoned: a LogEntry's only lifecycle transition is
// Proposed->Committed, both stored under the same composite key, so a
// plain last-write-wins merge is enough.
type compactionManager struct {
	store *Store

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// compactionTrigger is an sstable count threshold; nothing in the
// package reads it.
const compactionTrigger = 4

func newCompactionManager(store *Store) *compactionManager {
	cm := &compactionManager{store: store, stopCh: make(chan struct{})}
	return cm
}

// ForceCompact merges all current sstables into one, synchronously.
// It is the only path that runs compact.
func (cm *compactionManager) ForceCompact() error {
	return cm.compact()
}

func (cm *compactionManager) Stop() {
	cm.mu.Lock()
	if !cm.running {
		cm.mu.Unlock()
		return
	}
	cm.running = false
	cm.mu.Unlock()
	close(cm.stopCh)
	cm.wg.Wait()
}

func (cm *compactionManager) compact() error {
	cm.store.mu.Lock()
	tables := append([]*sstable(nil), cm.store.sstables...)
	if len(tables) < 2 {
		cm.store.mu.Unlock()
		return nil
	}
	tableID := cm.store.nextTableID
	cm.store.nextTableID++
	cm.store.mu.Unlock()

	merged, err := mergeSSTables(tables)
	if err != nil {
		return fmt.Errorf("lsm: failed to merge sstables: %w", err)
	}

	writer, err := newSSTableWriter(cm.store.dataDir, tableID)
	if err != nil {
		return err
	}
	for _, e := range merged {
		if err := writer.Write(e.Key, e.Value); err != nil {
			return fmt.Errorf("lsm: failed to write compacted entry: %w", err)
		}
	}
	if err := writer.Finalize(); err != nil {
		return fmt.Errorf("lsm: failed to finalize compacted sstable: %w", err)
	}
	newTable, err := openSSTable(writer.filePath)
	if err != nil {
		return err
	}

	cm.store.mu.Lock()
	oldPaths := make([]string, len(tables))
	for i, t := range tables {
		oldPaths[i] = t.FilePath()
	}
	cm.store.sstables = []*sstable{newTable}
	cm.store.mu.Unlock()

	for _, path := range oldPaths {
		os.Remove(path)
	}
	return nil
}

// mergeSSTables merges tables (oldest first, as stored) into one
// sorted, deduplicated entry list, keeping each key's value from the
// newest table that has it.
func mergeSSTables(tables []*sstable) ([]Entry, error) {
	latest := make(map[string][]byte)
	for i := len(tables) - 1; i >= 0; i-- {
		t := tables[i]
		for _, idx := range t.index {
			key := string(idx.Key)
			if _, seenNewer := latest[key]; seenNewer {
				continue
			}
			v, ok, err := t.Get(idx.Key)
			if err != nil {
				return nil, err
			}
			if ok {
				latest[key] = v
			}
		}
	}

	entries := make([]Entry, 0, len(latest))
	for k, v := range latest {
		entries = append(entries, Entry{Key: []byte(k), Value: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		return string(entries[i].Key) < string(entries[j].Key)
	})
	return entries, nil
}
