// Package service implements the application operations behind the API:
// library and image management, pipeline definitions, job submission,
// result ingest, validation scoring, audit, and dashboards. Services
// validate domain rules, orchestrate the repositories, and record audit
// events; transport concerns stay in the api package.
package service

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidInput rejects requests whose fields fail domain validation.
var ErrInvalidInput = errors.New("invalid input")

const anonymousActor = "anonymous"

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints ids for new records.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Caller attributes a mutating operation to the authenticated subject and
// the HTTP request that carried it.
type Caller struct {
	Subject   string
	RequestID string
}

func (c Caller) actor() string {
	if c.Subject == "" {
		return anonymousActor
	}
	return c.Subject
}
