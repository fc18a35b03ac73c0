// ============================================================================
// Conflict Engine - Stage Journal (Write-Ahead Log)
// ============================================================================
//
// Package: internal/storage/wal
// File: wal.go
// Purpose: Append-only JSON-lines journal of state machine progress
//
// Record format (one JSON object per line):
//   {"seq":1,"type":"STAGE","execution_id":"...","state":"detect",
//    "stage":"detection_complete","iteration":0,"timestamp":...,"checksum":...}
//
// Guarantees:
//   - seq is strictly increasing within a file, continuing across reopen
//   - every record carries a CRC32 over all other fields
//   - Replay stops at the first unparseable or tampered record
//
// Concurrency:
//   Many runs append concurrently; a mutex serialises writes.
//
// ============================================================================

package wal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// FileInterface is the subset of *os.File the journal writes through
type FileInterface interface {
	Write(p []byte) (n int, err error)
	Sync() error
	Close() error
}

// WAL is the stage journal
type WAL struct {
	mu           sync.Mutex
	file         FileInterface
	encoder      *json.Encoder
	path         string
	seq          uint64
	syncOnAppend bool
	closed       bool
	now          func() time.Time
}

/*
NewWAL opens or creates a journal.

Behavior:
- a missing file is created and seq starts at 0
- an existing file is opened for append and seq continues from its last record

Parameters:

	path         - journal file path
	syncOnAppend - fsync after every record
*/
func NewWAL(path string, syncOnAppend bool) (*WAL, error) {
	var seq uint64
	last, err := GetLastEvent(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("wal: scan %s: %w", path, err)
	}
	if last != nil {
		seq = last.Seq
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}

	return &WAL{
		file:         file,
		encoder:      json.NewEncoder(file),
		path:         path,
		seq:          seq,
		syncOnAppend: syncOnAppend,
		now:          time.Now,
	}, nil
}

// Append assigns the next seq, a timestamp when unset and the checksum,
// then writes the record
func (w *WAL) Append(event Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWALClosed
	}

	event.Seq = w.seq + 1
	if event.Timestamp == 0 {
		event.Timestamp = w.now().UnixMilli()
	}
	event.Checksum = CalculateChecksum(event)

	if err := w.encoder.Encode(event); err != nil {
		return fmt.Errorf("wal: append seq=%d: %w", event.Seq, err)
	}
	w.seq = event.Seq

	if w.syncOnAppend {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("wal: sync seq=%d: %w", event.Seq, err)
		}
	}
	return nil
}

// Replay feeds every record, in file order, to handler
func (w *WAL) Replay(handler EventHandler) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return ReplayFile(w.path, handler)
}

// History returns the records of one execution id in file order
func (w *WAL) History(executionID string) ([]Event, error) {
	var events []Event
	err := w.Replay(func(event Event) error {
		if event.ExecutionID == executionID {
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// GetLastSeq returns the seq of the last appended record
func (w *WAL) GetLastSeq() uint64 {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

// Path returns the journal file path
func (w *WAL) Path() string { return w.path }

// Close syncs and closes the file
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}

// ReplayFile reads a journal file without opening it for writing
func ReplayFile(path string, handler EventHandler) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return replay(file, handler)
}

func replay(r io.Reader, handler EventHandler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			return &CorruptionError{Line: line, Cause: err}
		}
		if expected := CalculateChecksum(event); expected != event.Checksum {
			return &ChecksumError{Seq: event.Seq, Expected: expected, Actual: event.Checksum}
		}
		if err := handler(event); err != nil {
			return err
		}
	}
	return scanner.Err()
}
