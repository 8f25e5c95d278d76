package models

import (
	"encoding/json"
	"fmt"

	"github.com/julianstephens/beaver/internal/utils"
)

// CheckedState is the mark stored for one day.
type CheckedState int

const (
	// CheckedUnset means no record exists for the day
	CheckedUnset CheckedState = iota
	CheckedDone
	CheckedNotDone
	CheckedSkipped
)

func (s CheckedState) String() string {
	switch s {
	case CheckedDone:
		return "done"
	case CheckedNotDone:
		return "not_done"
	case CheckedSkipped:
		return "skipped"
	default:
		return "unset"
	}
}

// Record is the mark of one habit on one calendar day.
type Record struct {
	Day  utils.Date
	Done CheckedState
	Text string

	extra fields
}

func (r Record) IsDone() bool { return r.Done == CheckedDone }

func (r Record) IsSkipped() bool { return r.Done == CheckedSkipped }

// MarshalJSON writes done as a boolean and carries skips in a side flag.
func (r Record) MarshalJSON() ([]byte, error) {
	known := []field{
		{"day", r.Day},
		{"done", r.Done == CheckedDone},
	}
	if r.Text != "" {
		known = append(known, field{"text", r.Text})
	}
	extra := r.extra
	if r.Done == CheckedSkipped {
		known = append(known, field{"skipped", true})
	} else if _, ok := extra["skipped"]; ok {
		extra = extra.clone()
		delete(extra, "skipped")
	}
	return encodeFields(extra, known...)
}

// UnmarshalJSON accepts both "done": "skipped" and "skipped": true.
func (r *Record) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}

	var rec Record
	if _, err := f.take("day", &rec.Day); err != nil {
		return err
	}
	if rec.Day.IsZero() {
		return fmt.Errorf("record is missing a day")
	}

	rec.Done = CheckedNotDone
	if raw, ok := f["done"]; ok {
		delete(f, "done")
		state, err := decodeDone(raw)
		if err != nil {
			return err
		}
		rec.Done = state
	}

	var skipped bool
	if _, err := f.take("skipped", &skipped); err != nil {
		return err
	}
	if skipped {
		rec.Done = CheckedSkipped
	}

	if _, err := f.take("text", &rec.Text); err != nil {
		return err
	}
	rec.extra = f.extra()
	*r = rec
	return nil
}

func decodeDone(raw json.RawMessage) (CheckedState, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return CheckedDone, nil
		}
		return CheckedNotDone, nil
	}
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil {
		return CheckedUnset, fmt.Errorf("invalid \"done\": %s", raw)
	}
	if s == nil {
		return CheckedNotDone, nil
	}
	switch *s {
	case "skipped":
		return CheckedSkipped, nil
	case "true":
		return CheckedDone, nil
	case "false", "":
		return CheckedNotDone, nil
	}
	return CheckedUnset, fmt.Errorf("invalid \"done\": %q", *s)
}
