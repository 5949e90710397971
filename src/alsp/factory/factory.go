// Package factory provides user-defined factories for values that must be
// unique process-wide.
package factory

import (
	"github.com/gofrs/uuid"
	"go.uber.org/atomic"
)

// Request ids start above zero so that zero always means "no request".
var _requestID = atomic.NewInt64(0)

// UUID is a user-defined factory for a random uuid.UUID.
func UUID() uuid.UUID {
	return uuid.Must(uuid.NewV4())
}

// NextRequestID returns the next value of the process-wide request id counter.
// Ids are monotonically increasing and never reused, so the language server
// can cancel a specific in-flight request by id.
func NextRequestID() int64 {
	return _requestID.Inc()
}
