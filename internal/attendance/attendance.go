package attendance

import (
	"fmt"
	"strings"
	"time"
)

// Status is the in/out state of a student for one calendar date.
type Status string

const (
	StatusIn  Status = "In"
	StatusOut Status = "Out"
)

// Entry records one student's attendance for a single calendar date.
// A day gets exactly one entry; repeated scans toggle it in place.
type Entry struct {
	Date    string     `json:"date"`
	TimeIn  *time.Time `json:"timeIn"`
	TimeOut *time.Time `json:"timeOut"`
	Status  Status     `json:"status"`
}

// Student is a roster record plus its accumulated attendance history.
// Identity and display fields come from the roster; Attendance is owned
// by the ledger and is the only part that mutates.
type Student struct {
	LRN        string  `json:"lrn"`
	FullName   string  `json:"fullName"`
	Grade      int     `json:"grade"`
	Section    string  `json:"section"`
	Phone      string  `json:"phone"`
	PhotoURL   string  `json:"photo,omitempty"`
	Attendance []Entry `json:"attendance"`
}

// ClassroomKey returns the roster/ledger partition key, e.g. "grade7-tesla".
func (s Student) ClassroomKey() string {
	return fmt.Sprintf("grade%d-%s", s.Grade, strings.ToLower(s.Section))
}

// EntryFor returns the attendance entry for the given date key, if any.
func (s Student) EntryFor(date string) (Entry, bool) {
	for _, e := range s.Attendance {
		if e.Date == date {
			return e, true
		}
	}
	return Entry{}, false
}

// Clone returns a copy whose attendance history does not share backing
// storage with the receiver.
func (s Student) Clone() Student {
	out := s
	out.Attendance = make([]Entry, len(s.Attendance))
	copy(out.Attendance, s.Attendance)
	return out
}

// DateOf projects a timestamp onto its UTC calendar-date key.
func DateOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// ApplyScan advances the student's attendance state for the date of now
// and returns the resulting entry.
//
// First scan of the day creates an In entry. A scan while In marks Out,
// keeping the original TimeIn. A scan while Out re-enters: TimeIn is
// updated and TimeOut cleared. Only the latest state per date is kept;
// intermediate same-day toggles are not logged. Entries are never removed,
// so history accumulates at most one entry per date.
func ApplyScan(s *Student, now time.Time) Entry {
	today := DateOf(now)
	ts := now.UTC()

	for i := range s.Attendance {
		e := &s.Attendance[i]
		if e.Date != today {
			continue
		}
		if e.Status == StatusIn {
			e.TimeOut = &ts
			e.Status = StatusOut
		} else {
			e.TimeIn = &ts
			e.TimeOut = nil
			e.Status = StatusIn
		}
		return *e
	}

	entry := Entry{Date: today, TimeIn: &ts, Status: StatusIn}
	s.Attendance = append(s.Attendance, entry)
	return entry
}

// Merge combines a roster record with its persisted ledger counterpart:
// identity and display fields from the roster, attendance history from
// the ledger. Used before ApplyScan so same-day re-scans see the entry
// written by the previous scan.
func Merge(roster Student, persisted Student) Student {
	out := roster.Clone()
	out.Attendance = make([]Entry, len(persisted.Attendance))
	copy(out.Attendance, persisted.Attendance)
	return out
}
