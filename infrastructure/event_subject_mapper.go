package infrastructure

import (
	"fmt"

	"looseline/events"
)

// EventSubjectMapper maps ledger events to NATS subjects under a prefix
type EventSubjectMapper struct {
	prefix string
}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper(prefix string) *EventSubjectMapper {
	return &EventSubjectMapper{prefix: prefix}
}

// MapEventToSubject converts an event to its subject
func (m *EventSubjectMapper) MapEventToSubject(eventType events.EventType) string {
	return fmt.Sprintf("%s.%s", m.prefix, eventType)
}

// StreamName is the JetStream stream holding every subject of the prefix
func (m *EventSubjectMapper) StreamName() string {
	return m.prefix + "_events"
}

// GetAllSubjects returns all subjects that are published to
func (m *EventSubjectMapper) GetAllSubjects() []string {
	types := events.AllEventTypes()
	subjects := make([]string, 0, len(types))
	for _, t := range types {
		subjects = append(subjects, m.MapEventToSubject(t))
	}
	return subjects
}
