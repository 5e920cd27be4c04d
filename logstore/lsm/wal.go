package lsm

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"raftcore/logstore"
)

// walRecord pairs a LogEntry with the partition it belongs to, since an
// lsm Store's write-ahead log backs every partition sharing the same
// data directory (unlike FileStore, which keeps one log per partition).
type walRecord struct {
	partition int
	entry     logstore.LogEntry
}

// wal is the durability layer put lacked: every record is fsynced here
// before the memtable is touched, grounded on the teacher's
// storage/wal.go (length-prefixed binary records ahead of the
// MemTable write) with an added per-flush rewrite so the log doesn't
// grow without bound once its contents are durable in an SSTable.
type wal struct {
	path string
	file *os.File
}

func openWAL(dataDir string) (*wal, error) {
	path := filepath.Join(dataDir, "wal.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("lsm: failed to open wal: %w", err)
	}
	return &wal{path: path, file: f}, nil
}

// append writes one record and fsyncs, matching the synchronous-durable
// requirement Propose/Commit carry in every other Store.
func (w *wal) append(partition int, entry logstore.LogEntry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	var header [12]byte
	binary.LittleEndian.PutUint64(header[0:8], uint64(partition))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(data)))

	if _, err := w.file.Write(header[:]); err != nil {
		return fmt.Errorf("lsm: failed to write wal record header: %w", err)
	}
	if _, err := w.file.Write(data); err != nil {
		return fmt.Errorf("lsm: failed to write wal record: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("lsm: failed to fsync wal: %w", err)
	}
	return nil
}

// readAll replays every record currently in the log, in write order.
func (w *wal) readAll() ([]walRecord, error) {
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("lsm: failed to seek wal: %w", err)
	}
	defer w.file.Seek(0, io.SeekEnd)

	reader := bufio.NewReader(w.file)
	var records []walRecord
	for {
		var header [12]byte
		if _, err := io.ReadFull(reader, header[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("lsm: failed to read wal record header: %w", err)
		}
		partition := int(binary.LittleEndian.Uint64(header[0:8]))
		size := binary.LittleEndian.Uint32(header[8:12])

		data := make([]byte, size)
		if _, err := io.ReadFull(reader, data); err != nil {
			return nil, fmt.Errorf("lsm: failed to read wal record body: %w", err)
		}
		entry, err := decodeEntry(data)
		if err != nil {
			return nil, err
		}
		records = append(records, walRecord{partition: partition, entry: entry})
	}
	return records, nil
}

// rewrite truncates the log and replaces its contents with live, called
// with the Store's mu held so the snapshot matches exactly the entries
// that remain unflushed once the swapped-out memtable reaches disk.
func (w *wal) rewrite(live []walRecord) error {
	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("lsm: failed to truncate wal: %w", err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("lsm: failed to seek wal: %w", err)
	}
	for _, r := range live {
		if err := w.append(r.partition, r.entry); err != nil {
			return err
		}
	}
	return nil
}

func (w *wal) close() error {
	return w.file.Close()
}
