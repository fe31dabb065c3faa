package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/table-reservation/internal/logging"
)

func sampleEvent() ReservationEvent {
	return ReservationEvent{
		Type:          EventReservationCreated,
		ReservationID: "r-1",
		VenueID:       "v-1",
		TableIDs:      []string{"t-1", "t-2"},
		Status:        "PENDING",
		CustomerName:  "Ada Lovelace",
		PartySize:     6,
		StartsAt:      "2026-05-10T19:00:00Z",
		EndsAt:        "2026-05-10T21:00:00Z",
		Actor:         "host@example.com",
		OccurredAt:    "2026-05-10T12:00:00Z",
	}
}

func TestFormatLine(t *testing.T) {
	line := FormatLine(sampleEvent())
	assert.True(t, strings.HasSuffix(line, "\n"))
	assert.Contains(t, line, "[2026-05-10T12:00:00Z] reservation.created")
	assert.Contains(t, line, "reservation_id=r-1")
	assert.Contains(t, line, `customer="Ada Lovelace"`)
	assert.Contains(t, line, "tables=[t-1,t-2]")
	assert.Contains(t, line, "window=2026-05-10T19:00:00Z..2026-05-10T21:00:00Z")
}

func TestHandleMessageAppends(t *testing.T) {
	dir := t.TempDir()
	c := &Consumer{Dir: dir, Log: logging.Discard()}
	body, err := json.Marshal(sampleEvent())
	require.NoError(t, err)

	require.NoError(t, c.HandleMessage(body))
	require.NoError(t, c.HandleMessage(body))

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	c := &Consumer{Dir: t.TempDir(), Log: logging.Discard()}
	assert.Error(t, c.HandleMessage([]byte("{not json")))
	assert.Error(t, c.HandleMessage([]byte(`{"type":"reservation.created"}`)))
}
