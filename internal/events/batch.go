package events

import "time"

// BatchWindowFlush is emitted when a batch key-resolution window closes and
// its keys have been resolved against the owning backend.
type BatchWindowFlush struct {
	Backend      string
	ObjectType   string
	Field        string
	Keys         int
	DistinctKeys int
	Err          error
	Duration     time.Duration
}
