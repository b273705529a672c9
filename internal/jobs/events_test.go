package jobs

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sra-fetch/internal/domain"
)

// TestEventBusSince verifies incremental event reads by sequence.
func TestEventBusSince(t *testing.T) {
	bus := NewEventBus(3)
	bus.Publish(Event{JobID: "job-1", Type: EventTypeStatus, Status: domain.JobStatusPrefetching})
	bus.Publish(Event{JobID: "job-1", Type: EventTypeStatus, Status: domain.JobStatusConverting})
	bus.Publish(Event{JobID: "job-1", Type: EventTypeResult, Status: domain.JobStatusDone})

	events := bus.Since(1)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].Seq)
	assert.Equal(t, int64(3), events[1].Seq)
	assert.False(t, events[0].Timestamp.IsZero(), "timestamp should be assigned")
}

// TestEventBusCapsHistory verifies buffer limit trimming behavior.
func TestEventBusCapsHistory(t *testing.T) {
	bus := NewEventBus(2)
	bus.Publish(Event{Message: "1"})
	bus.Publish(Event{Message: "2"})
	bus.Publish(Event{Message: "3"})

	events := bus.Since(0)
	require.Len(t, events, 2)
	assert.Equal(t, "2", events[0].Message)
	assert.Equal(t, "3", events[1].Message)
}

// TestEventBusWriteJSONLines verifies the report encoding.
func TestEventBusWriteJSONLines(t *testing.T) {
	bus := NewEventBus(10)
	bus.Publish(Event{JobID: "job-1", Accession: "SRR1", Type: EventTypeError, Step: domain.StepPrefetch, ExitCode: 2})
	bus.Publish(Event{JobID: "job-2", Accession: "SRR2", Type: EventTypeResult, Status: domain.JobStatusDone})

	var buf bytes.Buffer
	require.NoError(t, bus.WriteJSONLines(&buf))

	var decoded []Event
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var ev Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		decoded = append(decoded, ev)
	}
	require.Len(t, decoded, 2)
	assert.Equal(t, domain.StepPrefetch, decoded[0].Step)
	assert.Equal(t, 2, decoded[0].ExitCode)
}

// TestEventBusForJobAndDropped verifies per-job reads across ring wraparound.
func TestEventBusForJobAndDropped(t *testing.T) {
	bus := NewEventBus(3)
	bus.Publish(Event{JobID: "job-1", Message: "a"})
	bus.Publish(Event{JobID: "job-2", Message: "b"})
	bus.Publish(Event{JobID: "job-1", Message: "c"})
	bus.Publish(Event{JobID: "job-1", Message: "d"})

	assert.Equal(t, int64(1), bus.Dropped())

	events := bus.ForJob("job-1")
	require.Len(t, events, 2)
	assert.Equal(t, "c", events[0].Message)
	assert.Equal(t, "d", events[1].Message)

	all := bus.Since(0)
	require.Len(t, all, 3)
	assert.Equal(t, int64(2), all[0].Seq)
}
