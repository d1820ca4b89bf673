// Package services holds the application services that sit between the HTTP
// layer and persistence. This file centralizes service-level error values so
// they can be returned consistently and mapped to HTTP statuses by handlers.
package services

import "errors"

var (
	// ErrAuditDisabled indicates that audit persistence is not configured.
	ErrAuditDisabled = errors.New("audit persistence disabled")
)
