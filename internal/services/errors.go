// Package services implements the agent pipeline: normalization, intent
// gating, the creator-matcher cascade, enrichment, the decision state
// machine, and the ledger write. This file centralizes service-level error
// values so they can be consistently returned by service methods and checked
// by callers; translation into HTTP status codes happens at the handler layer.
package services

import "errors"

var (
	// ErrEmptyMessage is returned when an incoming message has no text.
	ErrEmptyMessage = errors.New("message text is empty")

	// ErrEmptyUserID is returned when an incoming message has no user id.
	ErrEmptyUserID = errors.New("user id is empty")

	// ErrUnknownPlatform is returned when the platform is not one of the
	// supported values.
	ErrUnknownPlatform = errors.New("unknown platform")

	// ErrUnknownCreator indicates an internal registry inconsistency: a
	// matcher tier resolved a handle the registry has no code for.
	ErrUnknownCreator = errors.New("creator not in registry")
)
