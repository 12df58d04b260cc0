package healthlog

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"HealthAI/internal/geminiservice"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AI is the part of the gateway the health log needs.
type AI interface {
	SummarizeLog(ctx context.Context, text, lang string) string
	AnalyzeLogs(ctx context.Context, logs []geminiservice.LogRecord, lang string) (string, error)
}

// Service owns the read-modify-write cycle on the log collection.
type Service struct {
	mu    sync.Mutex
	store Store
	ai    AI
	log   *zerolog.Logger
	newID func() string
}

func NewService(store Store, ai AI, log *zerolog.Logger) *Service {
	return &Service{
		store: store,
		ai:    ai,
		log:   log,
		newID: func() string { return uuid.New().String() },
	}
}

type SaveRequest struct {
	Date     string
	Log      string
	Severity int
	Language string
}

// Save summarizes the log and stores it under its date, replacing any entry
// already there but keeping that entry's id. Summarization never fails the save.
func (s *Service) Save(ctx context.Context, req SaveRequest) (*Entry, error) {
	date, err := ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	if req.Severity < MinSeverity || req.Severity > MaxSeverity {
		return nil, ErrInvalidSeverity
	}
	text := strings.TrimSpace(req.Log)
	if text == "" {
		return nil, ErrEmptyLog
	}

	// Outside the lock: a slow model call must not block other saves.
	summary := s.ai.SummarizeLog(ctx, text, req.Language)

	return s.upsert(ctx, Entry{
		Date:     date,
		Log:      text,
		Summary:  summary,
		Severity: req.Severity,
	})
}

// SaveDiagnosis records a finished symptom check in the calendar.
func (s *Service) SaveDiagnosis(ctx context.Context, symptoms string, diagnosis *geminiservice.DiagnosisResult, date string) (*Entry, error) {
	date, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(symptoms) == "" {
		return nil, ErrEmptyLog
	}

	top := "Unknown"
	if diagnosis != nil {
		top = diagnosis.TopCause()
	}

	return s.upsert(ctx, Entry{
		Date:     date,
		Log:      fmt.Sprintf("%s. Diagnosis: %s", strings.TrimSpace(symptoms), top),
		Summary:  fmt.Sprintf("Check: %s", top),
		Severity: diagnosisSeverity,
	})
}

func (s *Service) upsert(ctx context.Context, entry Entry) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.store.All(ctx, CollectionName)
	if err != nil {
		return nil, err
	}

	replaced := false
	for i := range entries {
		if entries[i].Date == entry.Date {
			entry.ID = entries[i].ID
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entry.ID = s.newID()
		entries = append(entries, entry)
	}
	sortByDate(entries)

	if err := s.store.ReplaceAll(ctx, CollectionName, entries); err != nil {
		return nil, err
	}

	s.log.Info().Str("date", entry.Date).Bool("replaced", replaced).Msg("Health log saved")
	return &entry, nil
}

// Delete removes the entry for date.
func (s *Service) Delete(ctx context.Context, date string) error {
	date, err := ParseDate(date)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.store.All(ctx, CollectionName)
	if err != nil {
		return err
	}

	kept := entries[:0]
	for _, e := range entries {
		if e.Date != date {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return ErrNotFound
	}

	if err := s.store.ReplaceAll(ctx, CollectionName, kept); err != nil {
		return err
	}
	s.log.Info().Str("date", date).Msg("Health log deleted")
	return nil
}

func (s *Service) Get(ctx context.Context, date string) (*Entry, error) {
	date, err := ParseDate(date)
	if err != nil {
		return nil, err
	}

	entries, err := s.store.All(ctx, CollectionName)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Date == date {
			return &e, nil
		}
	}
	return nil, ErrNotFound
}

// List returns every entry, oldest first.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	entries, err := s.store.All(ctx, CollectionName)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	sortByDate(entries)
	return entries, nil
}

// Trend returns the severity series for the chart, oldest first.
func (s *Service) Trend(ctx context.Context) ([]TrendPoint, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	points := make([]TrendPoint, 0, len(entries))
	for _, e := range entries {
		points = append(points, TrendPoint{Date: e.Date, Severity: e.Severity})
	}
	return points, nil
}

// Analyze asks for a narrative over all logs. With no logs it returns
// geminiservice.ErrNoLogs without calling the model.
func (s *Service) Analyze(ctx context.Context, lang string) (string, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", geminiservice.ErrNoLogs
	}

	records := make([]geminiservice.LogRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, geminiservice.LogRecord{Date: e.Date, Log: e.Log, Severity: e.Severity})
	}
	return s.ai.AnalyzeLogs(ctx, records, lang)
}
