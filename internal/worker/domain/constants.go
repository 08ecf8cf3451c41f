package domain

// Request status constants
const (
	RequestStatusPending   = "PENDING"
	RequestStatusPublic    = "PUBLIC"
	RequestStatusMatched   = "MATCHED"
	RequestStatusCancelled = "CANCELLED"
)

// AutoPublishLockKey guards the sweep across worker instances
const AutoPublishLockKey = "locks:auto-publish-sweep"
