package lsm

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// sstable is an immutable on-disk sorted run, unchanged in format from
// the teacher's SSTable:
//
//	[data block: sorted key-value pairs]
//	[index block: key -> offset]
//	[bloom filter block]
//	[28-byte footer: index offset, bloom offset, bloom len, num entries, magic]
const sstableMagicNumber = 0xDEADBEEF

type sstable struct {
	filePath    string
	index       []indexEntry
	bloomFilter *bloomFilter
}

type indexEntry struct {
	Key    []byte
	Offset int64
}

type sstableWriter struct {
	file        *os.File
	writer      *bufio.Writer
	filePath    string
	index       []indexEntry
	dataOffset  int64
	bloomFilter *bloomFilter
}

func newSSTableWriter(dataDir string, tableID uint64) (*sstableWriter, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("lsm: failed to create data directory: %w", err)
	}
	filePath := filepath.Join(dataDir, fmt.Sprintf("sstable_%d.db", tableID))
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("lsm: failed to create sstable file: %w", err)
	}
	return &sstableWriter{file: file, writer: bufio.NewWriter(file), filePath: filePath}, nil
}

func (w *sstableWriter) Write(key, value []byte) error {
	if w.bloomFilter == nil {
		w.bloomFilter = newBloomFilter(10000, 0.01)
	}
	w.bloomFilter.Add(key)

	w.index = append(w.index, indexEntry{Key: append([]byte(nil), key...), Offset: w.dataOffset})

	if err := binary.Write(w.writer, binary.LittleEndian, uint32(len(key))); err != nil {
		return err
	}
	w.dataOffset += 4
	if _, err := w.writer.Write(key); err != nil {
		return err
	}
	w.dataOffset += int64(len(key))

	if err := binary.Write(w.writer, binary.LittleEndian, uint32(len(value))); err != nil {
		return err
	}
	w.dataOffset += 4
	if _, err := w.writer.Write(value); err != nil {
		return err
	}
	w.dataOffset += int64(len(value))
	return nil
}

func (w *sstableWriter) Finalize() error {
	indexOffset := w.dataOffset
	for _, entry := range w.index {
		if err := binary.Write(w.writer, binary.LittleEndian, uint32(len(entry.Key))); err != nil {
			return err
		}
		if _, err := w.writer.Write(entry.Key); err != nil {
			return err
		}
		if err := binary.Write(w.writer, binary.LittleEndian, entry.Offset); err != nil {
			return err
		}
	}

	bloomOffset := indexOffset
	for _, entry := range w.index {
		bloomOffset += int64(4 + len(entry.Key) + 8)
	}

	var bloomData []byte
	if w.bloomFilter != nil {
		bloomData = w.bloomFilter.Serialize()
	}
	if len(bloomData) > 0 {
		if _, err := w.writer.Write(bloomData); err != nil {
			return err
		}
	}

	if err := binary.Write(w.writer, binary.LittleEndian, indexOffset); err != nil {
		return err
	}
	if err := binary.Write(w.writer, binary.LittleEndian, bloomOffset); err != nil {
		return err
	}
	if err := binary.Write(w.writer, binary.LittleEndian, uint32(len(bloomData))); err != nil {
		return err
	}
	if err := binary.Write(w.writer, binary.LittleEndian, uint32(len(w.index))); err != nil {
		return err
	}
	if err := binary.Write(w.writer, binary.LittleEndian, uint32(sstableMagicNumber)); err != nil {
		return err
	}

	if err := w.writer.Flush(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	return w.file.Close()
}

func openSSTable(filePath string) (*sstable, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("lsm: failed to open sstable: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < 28 {
		return nil, fmt.Errorf("lsm: sstable file too small")
	}
	if _, err := file.Seek(info.Size()-28, io.SeekStart); err != nil {
		return nil, err
	}

	var indexOffset, bloomOffset int64
	var bloomLen, numEntries, magic uint32
	for _, dst := range []any{&indexOffset, &bloomOffset, &bloomLen, &numEntries, &magic} {
		if err := binary.Read(file, binary.LittleEndian, dst); err != nil {
			return nil, err
		}
	}
	if magic != sstableMagicNumber {
		return nil, fmt.Errorf("lsm: bad sstable magic number")
	}

	if _, err := file.Seek(indexOffset, io.SeekStart); err != nil {
		return nil, err
	}
	index := make([]indexEntry, numEntries)
	for i := uint32(0); i < numEntries; i++ {
		var keyLen uint32
		if err := binary.Read(file, binary.LittleEndian, &keyLen); err != nil {
			return nil, err
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(file, key); err != nil {
			return nil, err
		}
		var offset int64
		if err := binary.Read(file, binary.LittleEndian, &offset); err != nil {
			return nil, err
		}
		index[i] = indexEntry{Key: key, Offset: offset}
	}

	var bf *bloomFilter
	if bloomLen > 0 {
		if _, err := file.Seek(bloomOffset, io.SeekStart); err != nil {
			return nil, err
		}
		bloomData := make([]byte, bloomLen)
		if _, err := io.ReadFull(file, bloomData); err != nil {
			return nil, err
		}
		bf = deserializeBloomFilter(bloomData)
	}

	return &sstable{filePath: filePath, index: index, bloomFilter: bf}, nil
}

func (s *sstable) Get(key []byte) ([]byte, bool, error) {
	if s.bloomFilter != nil && !s.bloomFilter.MayContain(key) {
		return nil, false, nil
	}

	idx := sort.Search(len(s.index), func(i int) bool {
		return string(s.index[i].Key) >= string(key)
	})
	if idx >= len(s.index) || string(s.index[idx].Key) != string(key) {
		return nil, false, nil
	}

	file, err := os.Open(s.filePath)
	if err != nil {
		return nil, false, err
	}
	defer file.Close()

	if _, err := file.Seek(s.index[idx].Offset, io.SeekStart); err != nil {
		return nil, false, err
	}
	reader := bufio.NewReader(file)

	var keyLen uint32
	if err := binary.Read(reader, binary.LittleEndian, &keyLen); err != nil {
		return nil, false, err
	}
	if _, err := reader.Discard(int(keyLen)); err != nil {
		return nil, false, err
	}
	var valueLen uint32
	if err := binary.Read(reader, binary.LittleEndian, &valueLen); err != nil {
		return nil, false, err
	}
	value := make([]byte, valueLen)
	if _, err := io.ReadFull(reader, value); err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *sstable) FilePath() string { return s.filePath }
