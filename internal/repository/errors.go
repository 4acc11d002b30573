// Package repository holds the MySQL backed ticket registry.  Sentinel
// errors are shared with the HTTP and queue layers so they can map
// failures to status codes and ack decisions without knowing about SQL.
package repository

import "github.com/iliyamo/nft-ticket-registry/internal/apperr"

// ErrTicketExists is returned by Create when the asset unit is already
// registered.  For a mint that already succeeded this is an idempotency
// signal, not a failure.
var ErrTicketExists = apperr.New(apperr.DuplicateRegistration, "ticket already registered", "This ticket is already registered.")

// ErrTicketNotFound is returned when no record exists for an asset unit.
var ErrTicketNotFound = apperr.New(apperr.NotFound, "ticket not found", "Ticket not found.")

// ErrInvalidTransition is returned when a status change is not allowed,
// e.g. anything leaving CANCELLED.  Handlers translate it into 409.
var ErrInvalidTransition = apperr.New(apperr.Conflict, "invalid ticket status transition", "The ticket cannot change to that status.")
