package webhooks

import (
	"sort"
	"time"
)

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

const (
	EntityOrganization = "organization"
	EntityPerson       = "person"
	EntityDeal         = "deal"
	EntityActivity     = "activity"
)

// TimestampFormat is ISO-8601 in UTC with millisecond precision.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

var knownEvents = func() map[string]struct{} {
	m := make(map[string]struct{})
	for _, entity := range []string{EntityOrganization, EntityPerson, EntityDeal, EntityActivity} {
		for _, action := range []string{ActionCreated, ActionUpdated, ActionDeleted} {
			m[EventName(entity, action)] = struct{}{}
		}
	}
	return m
}()

func EventName(entity, action string) string {
	return entity + "." + action
}

func IsKnownEvent(name string) bool {
	_, ok := knownEvents[name]
	return ok
}

// KnownEvents lists every event a subscription may ask for, sorted.
func KnownEvents() []string {
	out := make([]string, 0, len(knownEvents))
	for name := range knownEvents {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Envelope is the JSON body POSTed to subscribers.
type Envelope struct {
	Event     string `json:"event"`
	Entity    string `json:"entity"`
	EntityID  string `json:"entityId"`
	Action    string `json:"action"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}
