package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// NoteEntry is one timestamped, attributed line of an append-only log.
type NoteEntry struct {
	At     time.Time `json:"at"`
	Author string    `json:"author"`
	Text   string    `json:"text"`
}

// NoteLog is an ordered, append-only sequence of entries. Legacy systems kept
// these as a single growing text blob; storing structured entries avoids the
// read-modify-write-on-a-string pattern while the API keeps rendering the old
// "[timestamp] author: text" blocks.
type NoteLog []NoteEntry

const noteDelimiter = "\n\n---\n"

// Append returns the log with a new entry at the end. It never mutates or
// replaces prior entries.
func (l NoteLog) Append(author, text string, at time.Time) NoteLog {
	return append(l, NoteEntry{At: at, Author: author, Text: text})
}

// String renders the legacy display format.
func (l NoteLog) String() string {
	if len(l) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(l))
	for _, e := range l {
		blocks = append(blocks, fmt.Sprintf("[%s] %s: %s",
			e.At.Format("2006-01-02 15:04:05"), e.Author, e.Text))
	}
	return strings.Join(blocks, noteDelimiter)
}

/* ========================== Database round-trip ========================= */

// Value stores the structured entries as a JSON array.
func (l NoteLog) Value() (driver.Value, error) {
	if len(l) == 0 {
		return nil, nil
	}
	b, err := json.Marshal([]NoteEntry(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads the JSON array back. NULL and empty values scan to nil.
func (l *NoteLog) Scan(src any) error {
	if src == nil {
		*l = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("notelog: unsupported scan type %T", src)
	}
	if len(raw) == 0 {
		*l = nil
		return nil
	}
	var entries []NoteEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return err
	}
	*l = entries
	return nil
}

/* ============================ API round-trip ============================ */

// MarshalJSON emits the rendered display string, matching the shape legacy
// consumers expect for admin_comment / note_honoraire_montant.
func (l NoteLog) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON accepts either the rendered string (treated as a single
// opaque entry) or a structured entry array.
func (l *NoteLog) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*l = nil
		} else {
			*l = NoteLog{{Text: s}}
		}
		return nil
	}
	var entries []NoteEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	*l = entries
	return nil
}
