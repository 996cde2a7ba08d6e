package webhooks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKnownEvents(t *testing.T) {
	events := KnownEvents()
	assert.Len(t, events, 12)
	assert.Contains(t, events, "deal.created")
	assert.Contains(t, events, "activity.deleted")

	assert.True(t, IsKnownEvent("person.updated"))
	assert.False(t, IsKnownEvent("deal.*"))
	assert.False(t, IsKnownEvent("invoice.created"))
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 123456789, time.FixedZone("CET", 3600))
	assert.Equal(t, "2024-03-09T13:05:07.123Z", FormatTimestamp(ts))
}
