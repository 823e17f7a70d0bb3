package model

import "errors"

var (
	// ErrPermissionDenied is returned when the platform refuses an action.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound is returned when a message, member, role or channel no longer exists.
	ErrNotFound = errors.New("not found")
	// ErrConfigurationMissing marks a resource that must be provisioned out-of-band.
	ErrConfigurationMissing = errors.New("configuration missing")
)
