package repo

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"telegate/internal/domain"
)

type State struct {
	Channels       domain.ChannelConfigMap         `json:"channels"`
	Schedules      map[string]domain.ScheduleSpec  `json:"schedules"`
	ScheduleStates map[string]domain.ScheduleState `json:"schedule_states"`
}

type Store struct {
	mu        sync.RWMutex
	state     State
	stateFile string
}

func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	s := &Store{
		stateFile: filepath.Join(dataDir, "state.json"),
		state:     defaultState(),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func defaultChannels() domain.ChannelConfigMap {
	return domain.ChannelConfigMap{
		"console": {
			"enabled": true,
		},
		"webhook": {
			"enabled":         false,
			"url":             "",
			"method":          "POST",
			"headers":         map[string]interface{}{},
			"timeout_seconds": 5,
		},
		"telegram": {
			"enabled":         false,
			"bot_token":       "",
			"chat_id":         "",
			"api_base":        "https://api.telegram.org",
			"parse_mode":      "HTML",
			"timeout_seconds": 8,
		},
	}
}

func defaultState() State {
	state := State{
		Channels:       defaultChannels(),
		Schedules:      map[string]domain.ScheduleSpec{},
		ScheduleStates: map[string]domain.ScheduleState{},
	}
	ensureDefaultSchedule(&state)
	return state
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.stateFile)
	if errors.Is(err, os.ErrNotExist) {
		return s.saveLocked()
	}
	if err != nil {
		return err
	}
	var state State
	if err := json.Unmarshal(b, &state); err != nil {
		return err
	}
	if state.Channels == nil {
		state.Channels = domain.ChannelConfigMap{}
	}
	normalized := domain.ChannelConfigMap{}
	for rawName, cfg := range state.Channels {
		name := strings.ToLower(strings.TrimSpace(rawName))
		if name == "" {
			continue
		}
		if cfg == nil {
			cfg = map[string]interface{}{}
		}
		normalized[name] = cfg
	}
	for name, cfg := range defaultChannels() {
		if _, ok := normalized[name]; !ok {
			normalized[name] = cfg
		}
	}
	state.Channels = normalized
	if state.Schedules == nil {
		state.Schedules = map[string]domain.ScheduleSpec{}
	}
	if state.ScheduleStates == nil {
		state.ScheduleStates = map[string]domain.ScheduleState{}
	}
	ensureDefaultSchedule(&state)
	s.state = state
	return nil
}

func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	ensureDefaultSchedule(&s.state)
	b, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.stateFile + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.stateFile)
}

// ensureDefaultSchedule keeps a disabled heartbeat schedule around so a fresh
// install shows a working example.
func ensureDefaultSchedule(state *State) {
	if state == nil {
		return
	}
	if state.Schedules == nil {
		state.Schedules = map[string]domain.ScheduleSpec{}
	}
	if _, ok := state.Schedules[domain.DefaultScheduleID]; ok {
		return
	}
	state.Schedules[domain.DefaultScheduleID] = domain.ScheduleSpec{
		ID:        domain.DefaultScheduleID,
		Name:      domain.DefaultScheduleName,
		Enabled:   false,
		Cron:      domain.DefaultScheduleCron,
		Channel:   domain.DefaultChannel,
		UserID:    "system",
		SessionID: "heartbeat",
		Text:      domain.DefaultScheduleText,
		Entities: []domain.MessageEntity{
			{Type: "bold", Offset: 8, Length: 9},
		},
		Meta: map[string]interface{}{domain.ScheduleMetaSystemBuilt: true},
	}
}

func (s *Store) Read(fn func(state *State)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&s.state)
}

func (s *Store) Write(fn func(state *State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(&s.state); err != nil {
		return err
	}
	return s.saveLocked()
}
