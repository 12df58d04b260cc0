// Package healthlog keeps the user's calendar of daily health notes.
package healthlog

import (
	"errors"
	"sort"
	"time"
)

// CollectionName is the store key all entries live under.
const CollectionName = "healthLogs"

// DateLayout is the calendar date format used as the entry key.
const DateLayout = "2006-01-02"

const (
	MinSeverity = 1
	MaxSeverity = 10

	// diagnosisSeverity is recorded for entries created from a symptom check.
	diagnosisSeverity = 5
)

var (
	ErrNotFound        = errors.New("health log not found")
	ErrInvalidDate     = errors.New("date must be YYYY-MM-DD")
	ErrInvalidSeverity = errors.New("symptom severity must be between 1 and 10")
	ErrEmptyLog        = errors.New("log text is empty")
)

// Entry is one day in the calendar. There is at most one Entry per Date.
type Entry struct {
	ID       string `json:"id"`
	Date     string `json:"date"`
	Log      string `json:"log"`
	Summary  string `json:"summary"`
	Severity int    `json:"symptom_severity"`
}

// TrendPoint is one point of the severity chart.
type TrendPoint struct {
	Date     string `json:"date"`
	Severity int    `json:"severity"`
}

// ParseDate validates a calendar date and returns it in canonical form.
func ParseDate(s string) (string, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", ErrInvalidDate
	}
	return t.Format(DateLayout), nil
}

func sortByDate(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date < entries[j].Date
	})
}
