package saga

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Journal entry kinds.
const (
	EntryPoison     = "poison"
	EntryDeadLetter = "dead_letter"
)

// Entry is one journaled message that left the saga without completing.
type Entry struct {
	Kind          string          `json:"kind"`
	TransactionID string          `json:"transactionId,omitempty"`
	OrderID       string          `json:"orderId,omitempty"`
	Reason        string          `json:"reason"`
	Body          json.RawMessage `json:"body"`
	At            time.Time       `json:"at"`
}

// FileJournal appends dead-lettered and poison messages to a JSON-lines
// file so an operator can inspect and replay them.
type FileJournal struct {
	mu sync.Mutex
	f  *os.File
}

// NewFileJournal constructs a FileJournal targeting the given path.
func NewFileJournal(path string) (*FileJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileJournal{f: f}, nil
}

// Record appends the entry, stamping it if unstamped, and syncs the file.
func (j *FileJournal) Record(entry Entry) error {
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	n, err := j.f.Write(append(data, '\n'))
	if err != nil {
		return err
	}
	if n != len(data)+1 {
		return fmt.Errorf("partial write: wrote %d of %d bytes", n, len(data)+1)
	}

	return j.f.Sync()
}

// Close releases the underlying file handle.
func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}

// ReadEntries loads all journal entries from the file at path.
func ReadEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("malformed journal line: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}
