package ports

import "telegate/internal/domain"

type ChannelsAggregate struct {
	Channels domain.ChannelConfigMap
}

type ScheduleAggregate struct {
	Schedules map[string]domain.ScheduleSpec
	States    map[string]domain.ScheduleState
}

type StateStore interface {
	ReadChannels(func(state ChannelsAggregate))
	WriteChannels(func(state *ChannelsAggregate) error) error

	ReadSchedules(func(state ScheduleAggregate))
	WriteSchedules(func(state *ScheduleAggregate) error) error
}
