package adapters

import (
	"errors"

	"telegate/internal/repo"
	"telegate/internal/service/ports"
)

var errStoreUnavailable = errors.New("state store is unavailable")

type RepoStateStore struct {
	Store *repo.Store
}

func NewRepoStateStore(store *repo.Store) RepoStateStore {
	return RepoStateStore{Store: store}
}

func (s RepoStateStore) ReadChannels(fn func(state ports.ChannelsAggregate)) {
	if s.Store == nil || fn == nil {
		return
	}
	s.Store.Read(func(state *repo.State) {
		fn(ports.ChannelsAggregate{Channels: state.Channels})
	})
}

func (s RepoStateStore) WriteChannels(fn func(state *ports.ChannelsAggregate) error) error {
	if s.Store == nil {
		return errStoreUnavailable
	}
	return s.Store.Write(func(state *repo.State) error {
		if fn == nil {
			return nil
		}
		aggregate := ports.ChannelsAggregate{Channels: state.Channels}
		if err := fn(&aggregate); err != nil {
			return err
		}
		state.Channels = aggregate.Channels
		return nil
	})
}

func (s RepoStateStore) ReadSchedules(fn func(state ports.ScheduleAggregate)) {
	if s.Store == nil || fn == nil {
		return
	}
	s.Store.Read(func(state *repo.State) {
		fn(ports.ScheduleAggregate{
			Schedules: state.Schedules,
			States:    state.ScheduleStates,
		})
	})
}

func (s RepoStateStore) WriteSchedules(fn func(state *ports.ScheduleAggregate) error) error {
	if s.Store == nil {
		return errStoreUnavailable
	}
	return s.Store.Write(func(state *repo.State) error {
		if fn == nil {
			return nil
		}
		aggregate := ports.ScheduleAggregate{
			Schedules: state.Schedules,
			States:    state.ScheduleStates,
		}
		if err := fn(&aggregate); err != nil {
			return err
		}
		state.Schedules = aggregate.Schedules
		state.ScheduleStates = aggregate.States
		return nil
	})
}
