// Run history
//
// Completed measurement runs are appended to a CSV file so offset drift
// can be tracked across sessions. The file is the source of truth; the
// chart renderer reads it back.
//
// Copyright (C) 2025
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package history

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"auto-offset-go/pkg/event"
	"auto-offset-go/pkg/log"
)

// Record is one completed run.
type Record struct {
	When            time.Time `json:"when"`
	Count           int64     `json:"count"`
	Offset          float64   `json:"offset"`
	TriggerDistance float64   `json:"trigger_distance"`
	TriggerDelta    float64   `json:"trigger_delta"`
	NozzleTemp      float64   `json:"nozzle_temp"`
	BedTemp         float64   `json:"bed_temp"`
	Duration        float64   `json:"duration_s"`
}

var csvHeader = []string{
	"when", "count", "offset", "trigger_distance", "trigger_delta",
	"nozzle_temp", "bed_temp", "duration_s",
}

// Store appends and loads run records.
type Store struct {
	mu       sync.Mutex
	filename string
	lg       *log.Logger
}

// NewStore creates a Store backed by the given CSV file.
func NewStore(filename string, lg *log.Logger) *Store {
	return &Store{filename: filename, lg: lg}
}

// Append writes one record, creating the file with a header row when it
// does not exist yet.
func (s *Store) Append(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, statErr := os.Stat(s.filename)
	f, err := os.OpenFile(s.filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("history: open '%s': %w", s.filename, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if os.IsNotExist(statErr) {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("history: write header: %w", err)
		}
	}
	row := []string{
		r.When.UTC().Format(time.RFC3339),
		strconv.FormatInt(r.Count, 10),
		formatFloat(r.Offset),
		formatFloat(r.TriggerDistance),
		formatFloat(r.TriggerDelta),
		formatFloat(r.NozzleTemp),
		formatFloat(r.BedTemp),
		formatFloat(r.Duration),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("history: write record: %w", err)
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// Load reads the most recent lastN records, oldest first. lastN <= 0
// loads everything.
func (s *Store) Load(lastN int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("history: open '%s': %w", s.filename, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("history: read '%s': %w", s.filename, err)
	}

	var records []Record
	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == "when" {
			continue
		}
		if len(row) != len(csvHeader) {
			s.lg.Warnf("history: skipping malformed row %d in '%s'", i+1, s.filename)
			continue
		}
		rec, err := parseRow(row)
		if err != nil {
			s.lg.Warnf("history: skipping row %d: %v", i+1, err)
			continue
		}
		records = append(records, rec)
	}
	if lastN > 0 && len(records) > lastN {
		records = records[len(records)-lastN:]
	}
	return records, nil
}

func parseRow(row []string) (Record, error) {
	var rec Record
	var err error
	if rec.When, err = time.Parse(time.RFC3339, row[0]); err != nil {
		return rec, err
	}
	if rec.Count, err = strconv.ParseInt(row[1], 10, 64); err != nil {
		return rec, err
	}
	floats := []*float64{
		&rec.Offset, &rec.TriggerDistance, &rec.TriggerDelta,
		&rec.NozzleTemp, &rec.BedTemp, &rec.Duration,
	}
	for i, dst := range floats {
		if *dst, err = strconv.ParseFloat(row[i+2], 64); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

// Observe subscribes the store to a bus so completed runs are recorded
// automatically. Recording failures are logged, never fatal.
func (s *Store) Observe(bus *event.Bus) uint64 {
	return bus.Subscribe(func(ev event.Event) {
		e, ok := ev.(event.RunCompleted)
		if !ok {
			return
		}
		err := s.Append(Record{
			When:            e.When,
			Count:           e.Count,
			Offset:          e.Offset,
			TriggerDistance: e.TriggerDistance,
			TriggerDelta:    e.TriggerDelta,
			NozzleTemp:      e.NozzleTemp,
			BedTemp:         e.BedTemp,
			Duration:        e.Duration,
		})
		if err != nil {
			s.lg.Warnf("history: could not record run %d: %v", e.Count, err)
		}
	})
}
