// Package services holds the intake business logic: finalizing a reviewed
// draft into a staff card and an external case, applying operator status
// actions to cards, and reporting over the submission history.
//
// This file centralizes the service-level error values. Translation into
// user-facing strings or HTTP status codes is done by the bot dispatcher and
// the HTTP handlers.
package services

import "errors"

var (
	// ErrNotFound indicates that an external id has no card index entry.
	ErrNotFound = errors.New("card not found")

	// ErrUnknownAction is returned for an operator action other than
	// work/close.
	ErrUnknownAction = errors.New("unknown action")

	// ErrBadCallback is returned when callback data does not have the
	// `adm:<action>:<id>` shape.
	ErrBadCallback = errors.New("malformed callback data")
)
