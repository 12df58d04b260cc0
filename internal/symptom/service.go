package symptom

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"HealthAI/internal/geminiservice"
	"HealthAI/internal/healthlog"
	"HealthAI/internal/utility"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
)

// AI is the part of the gateway the flow needs.
type AI interface {
	FollowUpQuestions(ctx context.Context, symptoms, lang string) []string
	Diagnose(ctx context.Context, req geminiservice.DiagnosisRequest) (*geminiservice.DiagnosisResult, error)
}

// Tracker records a finished check in the health log.
type Tracker interface {
	SaveDiagnosis(ctx context.Context, symptoms string, diagnosis *geminiservice.DiagnosisResult, date string) (*healthlog.Entry, error)
}

// Notifier pushes flow events to a live client. utility.Hub satisfies it.
type Notifier interface {
	Send(flowID string, v interface{}) error
}

type flowEntry struct {
	mu   sync.Mutex
	flow Flow
}

// Service holds the live flows. Flows idle for longer than the cache TTL, or
// pushed out by newer ones, are gone; callers then get ErrFlowNotFound.
type Service struct {
	flows    *expirable.LRU[string, *flowEntry]
	ai       AI
	tracker  Tracker
	tr       utility.Translator
	notifier Notifier
	log      *zerolog.Logger
	now      func() time.Time
}

type Option func(*Service)

// WithNotifier pushes every state change to n.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func NewService(ai AI, tracker Tracker, tr utility.Translator, log *zerolog.Logger, maxFlows int, ttl time.Duration, opts ...Option) *Service {
	s := &Service{
		ai:      ai,
		tracker: tracker,
		tr:      tr,
		log:     log,
		now:     time.Now,
	}
	s.flows = expirable.NewLRU[string, *flowEntry](maxFlows, func(id string, _ *flowEntry) {
		s.log.Debug().Str("flow_id", id).Msg("Symptom check evicted")
	}, ttl)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

/* ====================================================================
                        Flow lifecycle
==================================================================== */

// Create starts a flow in the input stage.
func (s *Service) Create(req CreateRequest) Flow {
	flow := Flow{
		ID:           uuid.New().String(),
		Stage:        StageInput,
		Symptoms:     strings.TrimSpace(req.Symptoms),
		Demographics: req.Demographics,
		Location:     req.Location,
		Language:     req.Language,
		Answers:      map[string]string{},
		UpdatedAt:    s.now(),
	}
	s.flows.Add(flow.ID, &flowEntry{flow: flow.clone()})
	s.log.Info().Str("flow_id", flow.ID).Msg("Symptom check created")
	return flow.clone()
}

// Get returns a snapshot of the flow.
func (s *Service) Get(id string) (Flow, error) {
	e, ok := s.flows.Get(id)
	if !ok {
		return Flow{}, ErrFlowNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flow.clone(), nil
}

// Submit sends the symptom text for follow-up questions. With questions the
// flow waits in the questions stage; without any it goes straight to the
// diagnosis.
func (s *Service) Submit(ctx context.Context, id string, req SubmitRequest) (Flow, error) {
	e, err := s.begin(id, StageInput, func(f *Flow) error {
		symptoms := f.Symptoms
		if req.Symptoms != "" {
			symptoms = strings.TrimSpace(req.Symptoms)
		}
		// A rejected submit leaves the flow untouched.
		if symptoms == "" {
			return geminiservice.ErrEmptySymptoms
		}

		f.Symptoms = symptoms
		if req.Demographics != nil {
			f.Demographics = *req.Demographics
		}
		if req.Location != nil {
			loc := *req.Location
			f.Location = &loc
		}
		if req.Language != "" {
			f.Language = req.Language
		}
		f.Questions = nil
		f.Answers = map[string]string{}
		f.Diagnosis = nil
		f.Error = ""
		return nil
	})
	if err != nil {
		return Flow{}, err
	}

	// The check finishes even if the caller goes away; the gateway timeout
	// still bounds it.
	ctx = context.WithoutCancel(ctx)

	snapshot := e.snapshot()
	questions := s.ai.FollowUpQuestions(ctx, snapshot.Symptoms, snapshot.Language)
	if len(questions) > 0 {
		return s.finish(e, func(f *Flow) {
			f.Stage = StageQuestions
			f.Questions = questions
		}), nil
	}

	s.log.Info().Str("flow_id", id).Msg("No follow-up questions, diagnosing directly")
	return s.diagnose(ctx, e, nil)
}

// Answer diagnoses with the user's answers. Answers to questions that were
// not asked, and blank answers, are dropped.
func (s *Service) Answer(ctx context.Context, id string, answers map[string]string) (Flow, error) {
	e, err := s.begin(id, StageQuestions, func(f *Flow) error { return nil })
	if err != nil {
		return Flow{}, err
	}

	snapshot := e.snapshot()
	kept := make(map[string]string, len(answers))
	for _, q := range snapshot.Questions {
		if a := strings.TrimSpace(answers[q]); a != "" {
			kept[q] = a
		}
	}
	return s.diagnose(context.WithoutCancel(ctx), e, kept)
}

// Skip diagnoses without answering the follow-up questions.
func (s *Service) Skip(ctx context.Context, id string) (Flow, error) {
	e, err := s.begin(id, StageQuestions, func(f *Flow) error { return nil })
	if err != nil {
		return Flow{}, err
	}
	return s.diagnose(context.WithoutCancel(ctx), e, nil)
}

// Reset returns the flow to the input stage with an empty form. Profile data
// (demographics, location, language) is kept.
func (s *Service) Reset(id string) (Flow, error) {
	return s.mutate(id, "", func(f *Flow) error {
		f.Stage = StageInput
		f.Symptoms = ""
		f.Questions = nil
		f.Answers = map[string]string{}
		f.Diagnosis = nil
		f.Error = ""
		return nil
	})
}

// AppendTranscript adds finished dictation text to the symptom description.
func (s *Service) AppendTranscript(id, text string) (Flow, error) {
	if strings.TrimSpace(text) == "" {
		return s.Get(id)
	}
	return s.mutate(id, StageInput, func(f *Flow) error {
		f.Symptoms = joinTranscript(f.Symptoms, text)
		return nil
	})
}

// Exists reports whether the flow is live.
func (s *Service) Exists(id string) bool {
	_, ok := s.flows.Peek(id)
	return ok
}

// Transcribe is AppendTranscript for the dictation socket.
func (s *Service) Transcribe(id, text string) (string, error) {
	flow, err := s.AppendTranscript(id, text)
	if err != nil {
		return "", err
	}
	return flow.Symptoms, nil
}

// AddTag appends a common symptom, in the flow's language, unless the text
// already mentions it.
func (s *Service) AddTag(id, tag string) (Flow, error) {
	if !isCommonTag(tag) {
		return Flow{}, ErrUnknownTag
	}
	return s.mutate(id, StageInput, func(f *Flow) error {
		label := s.tr.T(f.Language, "symptomChecker.tags."+tag, nil)
		switch {
		case strings.TrimSpace(f.Symptoms) == "":
			f.Symptoms = label
		case strings.Contains(f.Symptoms, label):
		default:
			f.Symptoms = f.Symptoms + ", " + label
		}
		return nil
	})
}

// SaveToTracker records the diagnosis in the health log under date, or today
// when date is empty.
func (s *Service) SaveToTracker(ctx context.Context, id, date string) (*healthlog.Entry, error) {
	flow, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if flow.Stage != StageResults {
		return nil, ErrInvalidStage
	}
	if flow.Diagnosis == nil {
		return nil, ErrNoDiagnosis
	}
	if date == "" {
		date = s.now().Format(healthlog.DateLayout)
	}
	return s.tracker.SaveDiagnosis(ctx, flow.Symptoms, flow.Diagnosis, date)
}

/* ====================================================================
                        Internals
==================================================================== */

func (s *Service) lookup(id string) (*flowEntry, error) {
	e, ok := s.flows.Get(id)
	if !ok {
		return nil, ErrFlowNotFound
	}
	return e, nil
}

// check must be called with e.mu held. An empty stage allows any.
func check(f *Flow, stage Stage) error {
	if f.Busy {
		return ErrBusy
	}
	if stage != "" && f.Stage != stage {
		return fmt.Errorf("%w: flow is in %s", ErrInvalidStage, f.Stage)
	}
	return nil
}

// mutate applies a synchronous change.
func (s *Service) mutate(id string, stage Stage, fn func(*Flow) error) (Flow, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Flow{}, err
	}

	e.mu.Lock()
	if err := check(&e.flow, stage); err != nil {
		e.mu.Unlock()
		return Flow{}, err
	}
	if err := fn(&e.flow); err != nil {
		e.mu.Unlock()
		return Flow{}, err
	}
	e.flow.UpdatedAt = s.now()
	snapshot := e.flow.clone()
	e.mu.Unlock()

	s.touch(id, e)
	s.notify(snapshot)
	return snapshot, nil
}

// begin marks the flow busy for a model call. The caller must end it with finish.
func (s *Service) begin(id string, stage Stage, fn func(*Flow) error) (*flowEntry, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := check(&e.flow, stage); err != nil {
		return nil, err
	}
	if err := fn(&e.flow); err != nil {
		return nil, err
	}
	e.flow.Busy = true
	e.flow.UpdatedAt = s.now()
	return e, nil
}

func (s *Service) finish(e *flowEntry, fn func(*Flow)) Flow {
	e.mu.Lock()
	fn(&e.flow)
	e.flow.Busy = false
	e.flow.UpdatedAt = s.now()
	snapshot := e.flow.clone()
	e.mu.Unlock()

	s.touch(snapshot.ID, e)
	s.notify(snapshot)
	return snapshot
}

// diagnose runs the diagnosis for a busy flow. A failure sends the flow back
// to the input stage with its input intact and the error recorded.
func (s *Service) diagnose(ctx context.Context, e *flowEntry, answers map[string]string) (Flow, error) {
	snapshot := e.snapshot()

	result, err := s.ai.Diagnose(ctx, geminiservice.DiagnosisRequest{
		Symptoms:     snapshot.Symptoms,
		Answers:      answers,
		Location:     snapshot.Location,
		Demographics: snapshot.Demographics,
		Language:     snapshot.Language,
	})
	if err != nil {
		s.log.Error().Err(err).Str("flow_id", snapshot.ID).Msg("Diagnosis failed, returning to input")
		msg := s.tr.T(snapshot.Language, "symptomChecker.error.fetch", nil)
		if !errors.Is(err, geminiservice.ErrDiagnosisUnavailable) {
			msg = s.tr.T(snapshot.Language, "symptomChecker.error.unknown", nil)
		}
		return s.finish(e, func(f *Flow) {
			f.Stage = StageInput
			f.Questions = nil
			f.Answers = map[string]string{}
			f.Diagnosis = nil
			f.Error = msg
		}), err
	}

	return s.finish(e, func(f *Flow) {
		f.Stage = StageResults
		if answers != nil {
			f.Answers = answers
		}
		f.Diagnosis = result
		f.Error = ""
	}), nil
}

func (e *flowEntry) snapshot() Flow {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flow.clone()
}

// touch re-adds the entry so an active flow's TTL starts over.
func (s *Service) touch(id string, e *flowEntry) {
	if current, ok := s.flows.Peek(id); ok && current == e {
		s.flows.Add(id, e)
	}
}

func (s *Service) notify(flow Flow) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(flow.ID, Event{Type: "flow", Flow: flow}); err != nil {
		s.log.Warn().Err(err).Str("flow_id", flow.ID).Msg("Failed to push flow update")
	}
}

func isCommonTag(tag string) bool {
	for _, t := range CommonTags {
		if t == tag {
			return true
		}
	}
	return false
}

// joinTranscript appends dictated text, adding a space only when neither
// side already has one at the seam.
func joinTranscript(prev, text string) string {
	if prev == "" {
		return strings.TrimSpace(text)
	}
	last, _ := utf8.DecodeLastRuneInString(prev)
	first, _ := utf8.DecodeRuneInString(text)
	if unicode.IsSpace(last) || unicode.IsSpace(first) {
		return prev + text
	}
	return prev + " " + text
}
