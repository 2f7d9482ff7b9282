package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	cronv3 "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"telegate/internal/domain"
	"telegate/internal/service/ports"
)

const (
	statusRunning   = "running"
	statusSucceeded = "succeeded"
	statusFailed    = "failed"
)

var ErrScheduleNotFound = errors.New("schedule_not_found")
var ErrDefaultProtected = errors.New("schedule_default_protected")
var ErrScheduleBusy = errors.New("schedule_busy")

var expressionParser = cronv3.NewParser(cronv3.SecondOptional | cronv3.Minute | cronv3.Hour | cronv3.Dom | cronv3.Month | cronv3.Dow | cronv3.Descriptor)

type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Sender delivers one rendered message.
type Sender interface {
	Send(ctx context.Context, req domain.SendRequest) (domain.SendResponse, error)
}

type Dependencies struct {
	Store       ports.StateStore
	Sender      Sender
	Logger      *zap.Logger
	DataDir     string
	SendTimeout time.Duration
	Now         func() time.Time
}

type Service struct {
	deps Dependencies

	mu      sync.Mutex
	runner  *cronv3.Cron
	entries map[string]cronv3.EntryID
	started bool
}

func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.SendTimeout <= 0 {
		deps.SendTimeout = 30 * time.Second
	}
	logger := cronLogger{logger: deps.Logger.Named("schedule").Sugar()}
	return &Service{
		deps: deps,
		runner: cronv3.New(
			cronv3.WithParser(expressionParser),
			cronv3.WithLogger(logger),
			cronv3.WithChain(cronv3.Recover(logger), cronv3.SkipIfStillRunning(logger)),
		),
		entries: map[string]cronv3.EntryID{},
	}
}

// Start registers every enabled schedule and starts the cron runner.
func (s *Service) Start() error {
	if err := s.validateStore(); err != nil {
		return err
	}
	specs := make([]domain.ScheduleSpec, 0)
	s.deps.Store.ReadSchedules(func(st ports.ScheduleAggregate) {
		for _, spec := range st.Schedules {
			specs = append(specs, spec)
		}
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, spec := range specs {
		if err := s.registerLocked(spec); err != nil {
			s.deps.Logger.Error("schedule registration failed", zap.String("schedule_id", spec.ID), zap.Error(err))
		}
	}
	s.runner.Start()
	s.started = true
	return nil
}

// Stop halts the runner and waits for running deliveries to finish or ctx to
// expire.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	done := s.runner.Stop()
	s.mu.Unlock()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) List() ([]domain.ScheduleView, error) {
	if err := s.validateStore(); err != nil {
		return nil, err
	}
	out := make([]domain.ScheduleView, 0)
	s.deps.Store.ReadSchedules(func(st ports.ScheduleAggregate) {
		for id, spec := range st.Schedules {
			out = append(out, domain.ScheduleView{Spec: spec, State: st.States[id]})
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Spec.Name == out[j].Spec.Name {
			return out[i].Spec.ID < out[j].Spec.ID
		}
		return out[i].Spec.Name < out[j].Spec.Name
	})
	return out, nil
}

func (s *Service) Get(id string) (domain.ScheduleView, error) {
	if err := s.validateStore(); err != nil {
		return domain.ScheduleView{}, err
	}
	var view domain.ScheduleView
	found := false
	s.deps.Store.ReadSchedules(func(st ports.ScheduleAggregate) {
		view.Spec, found = st.Schedules[id]
		if found {
			view.State = st.States[id]
		}
	})
	if !found {
		return domain.ScheduleView{}, ErrScheduleNotFound
	}
	return view, nil
}

func (s *Service) Create(spec domain.ScheduleSpec) (domain.ScheduleSpec, error) {
	if err := s.validateStore(); err != nil {
		return domain.ScheduleSpec{}, err
	}
	if strings.TrimSpace(spec.ID) == "" {
		spec.ID = "schedule-" + uuid.NewString()
	}
	schedule, err := validateSpec(&spec)
	if err != nil {
		return domain.ScheduleSpec{}, err
	}

	if err := s.deps.Store.WriteSchedules(func(st *ports.ScheduleAggregate) error {
		if _, exists := st.Schedules[spec.ID]; exists {
			return &ValidationError{Code: "schedule_exists", Message: fmt.Sprintf("schedule %q already exists", spec.ID)}
		}
		st.Schedules[spec.ID] = spec
		st.States[spec.ID] = s.alignState(spec, st.States[spec.ID], schedule)
		return nil
	}); err != nil {
		return domain.ScheduleSpec{}, err
	}
	s.sync(spec)
	return spec, nil
}

func (s *Service) Update(id string, spec domain.ScheduleSpec) (domain.ScheduleSpec, error) {
	if err := s.validateStore(); err != nil {
		return domain.ScheduleSpec{}, err
	}
	if spec.ID != "" && spec.ID != id {
		return domain.ScheduleSpec{}, &ValidationError{Code: "schedule_id_mismatch", Message: "schedule id mismatch"}
	}
	spec.ID = id
	schedule, err := validateSpec(&spec)
	if err != nil {
		return domain.ScheduleSpec{}, err
	}

	if err := s.deps.Store.WriteSchedules(func(st *ports.ScheduleAggregate) error {
		old, ok := st.Schedules[id]
		if !ok {
			return ErrScheduleNotFound
		}
		if spec.Meta == nil {
			spec.Meta = old.Meta
		}
		st.Schedules[id] = spec
		st.States[id] = s.alignState(spec, st.States[id], schedule)
		return nil
	}); err != nil {
		return domain.ScheduleSpec{}, err
	}
	s.sync(spec)
	return spec, nil
}

func (s *Service) Delete(id string) (bool, error) {
	if err := s.validateStore(); err != nil {
		return false, err
	}
	if id == domain.DefaultScheduleID {
		return false, ErrDefaultProtected
	}
	deleted := false
	if err := s.deps.Store.WriteSchedules(func(st *ports.ScheduleAggregate) error {
		if _, ok := st.Schedules[id]; ok {
			deleted = true
			delete(st.Schedules, id)
			delete(st.States, id)
		}
		return nil
	}); err != nil {
		return false, err
	}
	s.mu.Lock()
	s.unregisterLocked(id)
	s.mu.Unlock()
	return deleted, nil
}

// Run delivers the schedule immediately, regardless of whether it is enabled.
func (s *Service) Run(ctx context.Context, id string) (domain.ScheduleState, error) {
	view, err := s.Get(id)
	if err != nil {
		return domain.ScheduleState{}, err
	}
	runErr := s.execute(ctx, view.Spec)
	after, err := s.Get(id)
	if err != nil {
		return domain.ScheduleState{}, err
	}
	return after.State, runErr
}

func (s *Service) execute(ctx context.Context, spec domain.ScheduleSpec) error {
	handle, ok, err := s.tryAcquireLease(spec.ID)
	if err != nil {
		return fmt.Errorf("acquire schedule lease: %w", err)
	}
	if !ok {
		return ErrScheduleBusy
	}
	defer s.releaseLease(handle)

	startedAt := s.deps.Now().UTC().Format(time.RFC3339)
	running := statusRunning
	s.recordState(spec.ID, func(state *domain.ScheduleState) {
		state.LastRunAt = &startedAt
		state.LastStatus = &running
		state.LastError = nil
	})

	sendCtx, cancel := context.WithTimeout(ctx, s.deps.SendTimeout)
	defer cancel()
	_, err = s.deps.Sender.Send(sendCtx, domain.SendRequest{
		RenderRequest: domain.RenderRequest{
			Text:     spec.Text,
			Entities: spec.Entities,
			Raw:      spec.Raw,
			Metadata: spec.Metadata,
		},
		Channel:   spec.Channel,
		UserID:    spec.UserID,
		SessionID: spec.SessionID,
	})

	status := statusSucceeded
	var lastErr *string
	if err != nil {
		status = statusFailed
		msg := err.Error()
		lastErr = &msg
		s.deps.Logger.Error("scheduled delivery failed", zap.String("schedule_id", spec.ID), zap.Error(err))
	}
	s.recordState(spec.ID, func(state *domain.ScheduleState) {
		state.LastStatus = &status
		state.LastError = lastErr
		if schedule, parseErr := parseExpression(spec); parseErr == nil && spec.Enabled {
			next := schedule.Next(s.deps.Now()).UTC().Format(time.RFC3339)
			state.NextRunAt = &next
		}
	})
	return err
}

func (s *Service) recordState(id string, mutate func(state *domain.ScheduleState)) {
	if err := s.deps.Store.WriteSchedules(func(st *ports.ScheduleAggregate) error {
		if _, ok := st.Schedules[id]; !ok {
			return nil
		}
		state := st.States[id]
		mutate(&state)
		st.States[id] = state
		return nil
	}); err != nil {
		s.deps.Logger.Error("schedule state write failed", zap.String("schedule_id", id), zap.Error(err))
	}
}

func (s *Service) alignState(spec domain.ScheduleSpec, state domain.ScheduleState, schedule cronv3.Schedule) domain.ScheduleState {
	if !spec.Enabled {
		state.NextRunAt = nil
		return state
	}
	next := schedule.Next(s.deps.Now()).UTC().Format(time.RFC3339)
	state.NextRunAt = &next
	return state
}

// sync replaces the runner entry for spec. It is a no-op before Start.
func (s *Service) sync(spec domain.ScheduleSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.unregisterLocked(spec.ID)
	if err := s.registerLocked(spec); err != nil {
		s.deps.Logger.Error("schedule registration failed", zap.String("schedule_id", spec.ID), zap.Error(err))
	}
}

func (s *Service) registerLocked(spec domain.ScheduleSpec) error {
	if !spec.Enabled {
		return nil
	}
	schedule, err := parseExpression(spec)
	if err != nil {
		return err
	}
	s.entries[spec.ID] = s.runner.Schedule(schedule, cronv3.FuncJob(func() {
		if err := s.execute(context.Background(), spec); errors.Is(err, ErrScheduleBusy) {
			s.deps.Logger.Debug("schedule skipped, lease held elsewhere", zap.String("schedule_id", spec.ID))
		}
	}))
	return nil
}

func (s *Service) unregisterLocked(id string) {
	if entryID, ok := s.entries[id]; ok {
		s.runner.Remove(entryID)
		delete(s.entries, id)
	}
}

func (s *Service) validateStore() error {
	if s == nil || s.deps.Store == nil {
		return errors.New("state store is unavailable")
	}
	return nil
}

func validateSpec(spec *domain.ScheduleSpec) (cronv3.Schedule, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	spec.Cron = strings.TrimSpace(spec.Cron)
	spec.Timezone = strings.TrimSpace(spec.Timezone)
	spec.Channel = strings.ToLower(strings.TrimSpace(spec.Channel))
	if spec.Name == "" {
		return nil, &ValidationError{Code: "invalid_schedule_name", Message: "schedule name is required"}
	}
	if strings.TrimSpace(spec.Text) == "" {
		return nil, &ValidationError{Code: "invalid_schedule_text", Message: "schedule text is required"}
	}
	if spec.Channel == "" {
		spec.Channel = domain.DefaultChannel
	}
	schedule, err := parseExpression(*spec)
	if err != nil {
		return nil, &ValidationError{Code: "invalid_schedule_cron", Message: err.Error()}
	}
	return schedule, nil
}

func parseExpression(spec domain.ScheduleSpec) (cronv3.Schedule, error) {
	if spec.Cron == "" {
		return nil, errors.New("cron expression is required")
	}
	expr := spec.Cron
	if spec.Timezone != "" {
		if _, err := time.LoadLocation(spec.Timezone); err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", spec.Timezone, err)
		}
		expr = "CRON_TZ=" + spec.Timezone + " " + expr
	}
	schedule, err := expressionParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec.Cron, err)
	}
	return schedule, nil
}

// cronLogger adapts zap to the cron runner's logger.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
