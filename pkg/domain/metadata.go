package domain

import "github.com/google/uuid"

// NewCorrelationID mints a fresh identifier for Metadata.CorrelationID,
// CausationID or OperationID. Callers that want to correlate a batch of
// appends (e.g. everything produced by handling one inbound command) share
// one value across the batch; callers that don't care about correlation
// can leave the field nil instead of calling this.
func NewCorrelationID() string {
	return uuid.NewString()
}
