// Package journal keeps a local write-ahead log of committed ledger
// operations: a crash-surviving audit trail that also backs the
// "last operation" display without a register re-read.
package journal

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/ivmorgun/cashbot/internal/domain"
)

const (
	DefaultDir   = "./wal/operations"
	segmentLimit = 1000
	maxSegments  = 10

	opKeyPrefix = "op_"
)

// Entry is one committed operation: the rows written to the register in a
// single commit (one for cash operations, two for transfers).
type Entry struct {
	At     time.Time          `json:"at"`
	UserID int64              `json:"user_id"`
	Kind   string             `json:"kind"`
	Rows   []domain.LedgerRow `json:"rows"`
}

// Journal persists operation entries in a WAL.
type Journal struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// New opens (or creates) the journal in dir.
func New(dir string) (*Journal, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "op_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init operation journal")
	}

	return &Journal{wal: wal}, nil
}

// Append writes one committed operation to the journal.
func (j *Journal) Append(entry Entry) error {
	if j == nil || j.wal == nil {
		return errors.New("journal is not initialized")
	}
	if len(entry.Rows) == 0 {
		return errors.New("journal entry has no rows")
	}
	if entry.At.IsZero() {
		entry.At = time.Now()
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "marshal journal entry")
	}

	key := fmt.Sprintf("%s%d", opKeyPrefix, entry.UserID)

	j.mu.Lock()
	defer j.mu.Unlock()

	nextIndex := j.wal.CurrentIndex() + 1
	return j.wal.Write(nextIndex, key, payload)
}

// Last returns the most recent entry, or false when the journal is empty.
func (j *Journal) Last() (Entry, bool, error) {
	if j == nil || j.wal == nil {
		return Entry{}, false, errors.New("journal is not initialized")
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	for idx := j.wal.CurrentIndex(); idx >= 1; idx-- {
		key, payload, err := j.wal.Get(idx)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(key, opKeyPrefix) {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return Entry{}, false, errors.Wrap(err, "decode journal entry")
		}
		return entry, true, nil
	}
	return Entry{}, false, nil
}

// Close closes the underlying WAL.
func (j *Journal) Close() error {
	if j == nil || j.wal == nil {
		return errors.New("journal is not initialized")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	return j.wal.Close()
}
