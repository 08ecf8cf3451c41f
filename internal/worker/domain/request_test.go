package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequest_EligibleForAutoPublish(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)
	tomorrow := now.Add(24 * time.Hour)
	provider := "provider-1"

	eligible := func() Request {
		return Request{
			ID:                "r1",
			Status:            RequestStatusPending,
			IsPublic:          false,
			EnableAutoPublish: true,
			TargetProviderID:  &provider,
			ResponseDeadline:  &yesterday,
		}
	}

	tests := []struct {
		name   string
		mutate func(r *Request)
		want   bool
	}{
		{name: "all conditions hold", mutate: func(r *Request) {}, want: true},
		{name: "already public status", mutate: func(r *Request) { r.Status = RequestStatusPublic }},
		{name: "matched", mutate: func(r *Request) { r.Status = RequestStatusMatched }},
		{name: "public flag set", mutate: func(r *Request) { r.IsPublic = true }},
		{name: "auto publish disabled", mutate: func(r *Request) { r.EnableAutoPublish = false }},
		{name: "no target provider", mutate: func(r *Request) { r.TargetProviderID = nil }},
		{name: "no deadline", mutate: func(r *Request) { r.ResponseDeadline = nil }},
		{name: "deadline in future", mutate: func(r *Request) { r.ResponseDeadline = &tomorrow }},
		{name: "deadline exactly now", mutate: func(r *Request) { r.ResponseDeadline = &now }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := eligible()
			tt.mutate(&r)
			assert.Equal(t, tt.want, r.EligibleForAutoPublish(now))
		})
	}
}

func TestRetryableError(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("insert notification: %w", NewRetryableError(cause))

	var retryable *RetryableError
	assert.True(t, errors.As(err, &retryable))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "retryable error: connection reset")
}
