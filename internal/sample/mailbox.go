package sample

import (
	"sync"
	"time"
)

// Snapshot is an immutable copy of the most recent sample plus its
// arrival metadata. Consumers always see a complete snapshot and never
// block waiting for a refresh.
type Snapshot struct {
	Sample     GeoSample
	Source     Source
	ReceivedAt time.Time
}

// Fresh reports whether the snapshot is still usable at the given time.
// maxAge <= 0 disables the staleness check.
func (s Snapshot) Fresh(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return true
	}
	return now.Sub(s.ReceivedAt) <= maxAge
}

// Mailbox is the single-slot handoff between transport producers and
// the tick consumer. Producers overwrite the slot; the consumer reads a
// snapshot without blocking. Absence of a fresh sample leaves the
// previous one authoritative until it is explicitly invalidated or
// times out on the consumer side.
type Mailbox struct {
	mu       sync.Mutex
	snap     Snapshot
	hasData  bool
	everSeen bool
	noData   string // reason from the last explicit no-data signal
}

// NewMailbox returns an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{}
}

// Publish stores a new sample. Invalid samples (including the (0,0)
// sentinel) are rejected and never replace the active one.
func (m *Mailbox) Publish(s GeoSample, src Source, now time.Time) bool {
	if !s.Valid() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = Snapshot{Sample: s, Source: src, ReceivedAt: now}
	m.hasData = true
	m.everSeen = true
	m.noData = ""
	return true
}

// Invalidate clears the active sample in response to an explicit
// no-data signal from the source. Previously seen history is kept for
// EverReceived.
func (m *Mailbox) Invalidate(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hasData = false
	m.noData = reason
}

// Latest returns the current snapshot and whether one is active.
func (m *Mailbox) Latest() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, m.hasData
}

// EverReceived reports whether any valid sample has ever been published
// this session. The placement engine uses this to pick the degraded
// path before first contact.
func (m *Mailbox) EverReceived() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.everSeen
}

// NoDataReason returns the reason attached to the last explicit
// invalidation, or "" when a sample is active.
func (m *Mailbox) NoDataReason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.noData
}
