/*
Copyright (C) 2024  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package table implements the Table Engine: persist, update,
// get_table, get_history, find_where and find_where_advanced, on top
// of the encrypted append-only segment log. A Table's mutex serializes
// its operations across goroutines within one process; it does not
// coordinate with another Table handle or another process touching the
// same directory (single-writer assumption, spec §5).
package table

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/wpdas/chaindb/internal/aead"
	"github.com/wpdas/chaindb/internal/chainerr"
	"github.com/wpdas/chaindb/internal/events"
	"github.com/wpdas/chaindb/internal/segment"
)

// NoLimit signals "visit the whole log" to GetHistory/FindWhere/FindWhereAdvanced.
const NoLimit = -1

type Table struct {
	Dir      string
	Database string
	Name     string

	cipher *aead.Cipher
	bus    *events.Bus

	mu   sync.Mutex
	meta *segment.Metadata
}

// Open loads (or initializes) a table directory, creating it and any
// missing parent directories. It does not check that the database
// exists — callers are expected to have already validated that.
func Open(dir, database, name string, cipher *aead.Cipher, bus *events.Bus) (*Table, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, chainerr.IoErrorf(err, "creating table directory %s", dir)
	}
	meta, err := segment.ReadMetadata(dir, cipher)
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(filepath.Join(dir, segment.MetadataFile)); os.IsNotExist(statErr) {
		// first reference to this table: persist the zero-value
		// metadata so the table is visible to ListTables right away.
		if err := meta.Save(dir, cipher); err != nil {
			return nil, err
		}
	}
	return &Table{Dir: dir, Database: database, Name: name, cipher: cipher, bus: bus, meta: meta}, nil
}

func (t *Table) encodeLine(rec Record) (string, error) {
	plain, err := json.Marshal(rec)
	if err != nil {
		return "", chainerr.Wrap(chainerr.SerializationError, "marshaling record", err)
	}
	ct, err := t.cipher.Encrypt(plain)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

func (t *Table) decodeLine(line string) (Record, error) {
	raw, err := base64.StdEncoding.DecodeString(line)
	if err != nil {
		return nil, chainerr.Wrap(chainerr.SerializationError, "invalid base64 segment line", err)
	}
	plain, err := t.cipher.Decrypt(raw)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(plain, &rec); err != nil {
		return nil, chainerr.Wrap(chainerr.SerializationError, "malformed record JSON", err)
	}
	return rec, nil
}

// Persist assigns a fresh doc_id, appends the record, and publishes a
// TablePersist event. input is the caller's JSON object (typically
// {"data": {...}}); any doc_id it carries, top-level or nested under
// "data", is discarded in favor of the system-assigned one.
func (t *Table) Persist(input Record) (Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := cloneRecord(input)
	stripSystemDocID(rec)
	docID := uuid.New().String()
	rec["doc_id"] = docID

	line, err := t.encodeLine(rec)
	if err != nil {
		return nil, err
	}

	cur := segment.CurrentFileFor(t.meta.TotalRecords)
	if err := segment.AppendLine(t.Dir, cur, line); err != nil {
		return nil, err
	}

	t.meta.CurrentFile = cur
	t.meta.TotalRecords++
	if err := t.meta.Save(t.Dir, t.cipher); err != nil {
		return nil, err
	}

	t.bus.Emit(events.Event{
		Type:     events.TablePersist,
		Database: t.Database,
		Table:    t.Name,
		Payload:  eventPayload(rec),
	})

	return rec, nil
}

// Update rewrites the first (most recent) segment line whose doc_id
// matches target, replacing its payload with input while preserving
// doc_id. total_records and current_file are unchanged — this is a
// revision-in-place, not an appended new version; see spec.md §9 open
// question 1.
func (t *Table) Update(input Record, target string) (Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.meta.TotalRecords == 0 {
		return nil, chainerr.New(chainerr.RecordNotFound, "no records")
	}

	newRec := cloneRecord(input)
	stripSystemDocID(newRec)
	newRec["doc_id"] = target

	newLine, err := t.encodeLine(newRec)
	if err != nil {
		return nil, err
	}

	found := false
	for n := int64(t.meta.CurrentFile); n >= 0 && !found; n-- {
		segNum := uint32(n)
		lines, err := segment.ReadLines(t.Dir, segNum)
		if err != nil {
			return nil, err
		}
		matchIdx := -1
		for i, line := range lines {
			rec, err := t.decodeLine(line)
			if err != nil {
				return nil, err
			}
			if id, _ := rec["doc_id"].(string); id == target {
				matchIdx = i
				break
			}
		}
		if matchIdx == -1 {
			continue
		}
		lines[matchIdx] = newLine
		if err := segment.RewriteLines(t.Dir, segNum, lines); err != nil {
			return nil, err
		}
		found = true
	}

	if !found {
		return nil, chainerr.New(chainerr.RecordNotFound, "doc_id not found: "+target)
	}

	t.bus.Emit(events.Event{
		Type:     events.TableUpdate,
		Database: t.Database,
		Table:    t.Name,
		Payload:  eventPayload(newRec),
	})

	return newRec, nil
}

// GetTable returns the record stored on the last line of the current
// segment.
func (t *Table) GetTable() (Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.meta.TotalRecords == 0 {
		return nil, chainerr.New(chainerr.RecordNotFound, "table is empty")
	}
	lines, err := segment.ReadLines(t.Dir, t.meta.CurrentFile)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, chainerr.New(chainerr.SerializationError, "current segment unexpectedly empty")
	}
	return t.decodeLine(lines[len(lines)-1])
}

// GetHistory returns up to limit most recent records, most-recent
// first. limit == NoLimit (or any value >= total_records) returns the
// whole history.
func (t *Table) GetHistory(limit int) ([]Record, error) {
	return t.scan(true, limit, nil)
}

// FindWhere returns records whose top-level-then-data projection
// equals every (field, value) pair of criteria, in the requested
// order, stopping once limit matches are collected.
func (t *Table) FindWhere(criteria map[string]interface{}, limit int, reverse bool) ([]Record, error) {
	return t.scan(reverse, limit, func(rec Record) bool {
		return matchEquality(rec, criteria)
	})
}

// FindWhereAdvanced is FindWhere with per-field (operator, value) conditions.
func (t *Table) FindWhereAdvanced(criteria map[string]Condition, limit int, reverse bool) ([]Record, error) {
	return t.scan(reverse, limit, func(rec Record) bool {
		return matchAdvanced(rec, criteria)
	})
}

// scan walks the log in the requested direction — reverse: segments
// current_file..0, lines back-to-front; forward: segments 0..current_file,
// lines front-to-back — collecting records for which match returns true
// (or every record, if match is nil) until limit is reached or the log
// is exhausted.
func (t *Table) scan(reverse bool, limit int, match func(Record) bool) ([]Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Record
	if t.meta.TotalRecords == 0 || limit == 0 {
		return out, nil
	}

	visitSegment := func(segNum uint32) (bool, error) {
		lines, err := segment.ReadLines(t.Dir, segNum)
		if err != nil {
			return false, err
		}
		if reverse {
			for i := len(lines) - 1; i >= 0; i-- {
				rec, err := t.decodeLine(lines[i])
				if err != nil {
					return false, err
				}
				if match == nil || match(rec) {
					out = append(out, rec)
					if limit >= 0 && len(out) >= limit {
						return true, nil
					}
				}
			}
		} else {
			for _, line := range lines {
				rec, err := t.decodeLine(line)
				if err != nil {
					return false, err
				}
				if match == nil || match(rec) {
					out = append(out, rec)
					if limit >= 0 && len(out) >= limit {
						return true, nil
					}
				}
			}
		}
		return false, nil
	}

	if reverse {
		for n := int64(t.meta.CurrentFile); n >= 0; n-- {
			done, err := visitSegment(uint32(n))
			if err != nil {
				return nil, err
			}
			if done {
				break
			}
		}
	} else {
		for n := uint32(0); n <= t.meta.CurrentFile; n++ {
			done, err := visitSegment(n)
			if err != nil {
				return nil, err
			}
			if done {
				break
			}
		}
	}

	return out, nil
}

// TotalRecords reports the table's current record count.
func (t *Table) TotalRecords() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.meta.TotalRecords
}

// eventPayload implements the "inner payload" rule of spec.md §4.3.1:
// the data field if present, else the whole record (doc_id included).
func eventPayload(rec Record) interface{} {
	if data, ok := rec["data"]; ok {
		return data
	}
	return rec
}
