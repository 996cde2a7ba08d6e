package models

// Webhook is a subscription to CRM events. Secret is only ever serialized by the create response.
type Webhook struct {
	ID        string   `json:"id"`
	UserID    string   `json:"user_id"`
	URL       string   `json:"url"`
	Events    []string `json:"events"` // JSON array in DB
	Secret    string   `json:"-"`
	Active    bool     `json:"active"`
	CreatedAt int64    `json:"created_at"`
	UpdatedAt int64    `json:"updated_at"`
}

// Subscribes reports whether event is in the subscription's event set.
func (w *Webhook) Subscribes(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}
