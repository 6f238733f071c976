// Package softfail carries best-effort failures that must never reach the caller:
// absent partitions, mirror writes, failed batch buckets and notification delivery.
// Callers report them to a Sink instead of swallowing the error.
package softfail

import (
	"sync"

	"github.com/sirupsen/logrus"
)

type Kind string

const (
	PartitionNotFound   Kind = "partition_not_found"
	MirrorInconsistency Kind = "mirror_inconsistency"
	BucketFailed        Kind = "bucket_failed"
	NotificationFailed  Kind = "notification_failed"
)

// Event describes one soft failure. Err is nil for PartitionNotFound.
type Event struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

type Sink interface {
	Report(Event)
}

// LogSink writes events through logrus. Partition absence is expected and logged at debug.
type LogSink struct {
	Log logrus.FieldLogger
}

func (s LogSink) Report(e Event) {
	entry := s.Log.WithFields(logrus.Fields{
		"kind": string(e.Kind),
		"op":   e.Op,
		"path": e.Path,
	})
	if e.Err != nil {
		entry = entry.WithError(e.Err)
	}
	if e.Kind == PartitionNotFound {
		entry.Debug("partition not found, treating as empty")
		return
	}
	entry.Warn("best-effort operation failed")
}

// Recorder keeps every event in memory, optionally forwarding to Next.
type Recorder struct {
	Next Sink

	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Report(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	if r.Next != nil {
		r.Next.Report(e)
	}
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many events of kind k were recorded.
func (r *Recorder) Count(k Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// Discard drops every event.
type Discard struct{}

func (Discard) Report(Event) {}
