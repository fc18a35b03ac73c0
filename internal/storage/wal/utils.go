package wal

// ============================================================================
// Inspection helpers
// Responsibility: Read-only views over a journal file
// ============================================================================

import (
	"errors"
	"io"
	"os"
)

// GetLastEvent returns the last record of a journal, or nil for an empty file.
// A missing file reports an error wrapping os.ErrNotExist.
func GetLastEvent(path string) (*Event, error) {
	var last *Event
	err := ReplayFile(path, func(event Event) error {
		e := event
		last = &e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return last, nil
}

// ValidateWAL checks every record's checksum and seq ordering
func ValidateWAL(path string) error {
	var prev uint64
	line := 0
	return ReplayFile(path, func(event Event) error {
		line++
		if event.Seq <= prev {
			return &CorruptionError{Line: line, Cause: errors.New("seq out of order")}
		}
		prev = event.Seq
		return nil
	})
}

// WALStats summarises a journal
type WALStats struct {
	TotalEvents int               // Number of records
	EventTypes  map[EventType]int // Records per type
	Executions  int               // Distinct execution ids
	FirstSeq    uint64
	LastSeq     uint64
	TimeRange   [2]int64 // [earliest, latest] unix millis
}

// GetWALStats scans a journal and summarises it
func GetWALStats(path string) (*WALStats, error) {
	stats := &WALStats{EventTypes: make(map[EventType]int)}
	executions := make(map[string]struct{})

	err := ReplayFile(path, func(event Event) error {
		if stats.TotalEvents == 0 {
			stats.FirstSeq = event.Seq
			stats.TimeRange[0] = event.Timestamp
		}
		stats.TotalEvents++
		stats.EventTypes[event.Type]++
		stats.LastSeq = event.Seq
		if event.Timestamp < stats.TimeRange[0] {
			stats.TimeRange[0] = event.Timestamp
		}
		if event.Timestamp > stats.TimeRange[1] {
			stats.TimeRange[1] = event.Timestamp
		}
		executions[event.ExecutionID] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	stats.Executions = len(executions)
	return stats, nil
}

// DumpWAL copies a journal's raw records to w after validating them
func DumpWAL(path string, w io.Writer) error {
	if err := ValidateWAL(path); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
