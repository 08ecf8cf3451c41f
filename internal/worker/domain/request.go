package domain

import "time"

// Request is a marketplace job posting as seen by the auto-publish sweep
type Request struct {
	ID                string     `db:"id"`
	ClientID          string     `db:"client_id"`
	Title             string     `db:"title"`
	Status            string     `db:"status"`
	IsPublic          bool       `db:"is_public"`
	EnableAutoPublish bool       `db:"enable_auto_publish"`
	TargetProviderID  *string    `db:"target_provider_id"`
	ResponseDeadline  *time.Time `db:"response_deadline"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

// EligibleForAutoPublish mirrors the WHERE clause the storage layer uses.
// Keep the two in sync.
func (r *Request) EligibleForAutoPublish(now time.Time) bool {
	return r.Status == RequestStatusPending &&
		!r.IsPublic &&
		r.EnableAutoPublish &&
		r.TargetProviderID != nil &&
		r.ResponseDeadline != nil &&
		r.ResponseDeadline.Before(now)
}

// Notification is a persisted user notification. Data holds a JSON
// object or is empty.
type Notification struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Type      string    `db:"type"`
	Title     string    `db:"title"`
	Message   string    `db:"message"`
	Data      string    `db:"data"`
	IsRead    bool      `db:"is_read"`
	CreatedAt time.Time `db:"created_at"`
}
