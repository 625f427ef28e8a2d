package infrastructure

import (
	"testing"

	"looseline/events"

	"github.com/stretchr/testify/assert"
)

func TestEventSubjectMapper(t *testing.T) {
	mapper := NewEventSubjectMapper("looseline")

	assert.Equal(t, "looseline.wallet_operation_change", mapper.MapEventToSubject(events.EventTypeWalletOperationChange))
	assert.Equal(t, "looseline_events", mapper.StreamName())

	subjects := mapper.GetAllSubjects()
	assert.Len(t, subjects, len(events.AllEventTypes()))
	assert.Contains(t, subjects, "looseline.integrity_violation")
	assert.Contains(t, subjects, "looseline.statement_generated")
}
