package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yutaka0114/telepose/internal/httputil"
	"github.com/yutaka0114/telepose/internal/sample"
	"github.com/yutaka0114/telepose/internal/timeutil"
)

func newTestPoller(mock *httputil.MockHTTPClient) (*Poller, *sample.Mailbox, *timeutil.MockClock) {
	mailbox := sample.NewMailbox()
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	p := NewPoller(PollerConfig{
		SourceURL: "http://tracker.local/api/pose",
		Interval:  time.Second,
		Timeout:   3 * time.Second,
	}, mock, mailbox, clock, nil)
	return p, mailbox, clock
}

func TestPollOncePublishesValidSample(t *testing.T) {
	t.Parallel()

	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(200, `{
		"timestamp": 1767268800.25,
		"yaw_deg": 72.5,
		"pos": {"x": 1.0, "y": 2.0, "z": 3.0},
		"lat": 35.0004, "lon": 135.0007, "alt": 12.0,
		"calibrated": true, "calib_method": "compass",
		"calib_scale": 1.0, "calib_theta_deg": 3.5
	}`)

	p, mailbox, clock := newTestPoller(mock)
	require.NoError(t, p.PollOnce(context.Background()))

	snap, ok := mailbox.Latest()
	require.True(t, ok)
	assert.Equal(t, 35.0004, snap.Sample.Lat)
	assert.Equal(t, 135.0007, snap.Sample.Lon)
	assert.Equal(t, 72.5, snap.Sample.YawDeg)
	assert.Equal(t, sample.SourcePoll, snap.Source)
	assert.Equal(t, clock.Now(), snap.ReceivedAt)
	assert.False(t, snap.Sample.Timestamp.IsZero())
}

func TestPollOnceNoDataShapeInvalidates(t *testing.T) {
	t.Parallel()

	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(200, `{"lat": 35.0, "lon": 135.0}`)
	mock.AddResponse(200, `{"ok": false, "reason": "gps lost"}`)

	p, mailbox, _ := newTestPoller(mock)
	require.NoError(t, p.PollOnce(context.Background()))
	require.NoError(t, p.PollOnce(context.Background()))

	_, ok := mailbox.Latest()
	assert.False(t, ok)
	assert.Equal(t, "gps lost", mailbox.NoDataReason())
	assert.True(t, mailbox.EverReceived())
}

func TestPollOnceFailuresLeavePreviousSample(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		setup func(m *httputil.MockHTTPClient)
	}{
		{"transport error", func(m *httputil.MockHTTPClient) {
			m.AddErrorResponse(errors.New("connection refused"))
		}},
		{"non-success status", func(m *httputil.MockHTTPClient) {
			m.AddResponse(503, "busy")
		}},
		{"empty body", func(m *httputil.MockHTTPClient) {
			m.AddResponse(200, "")
		}},
		{"decode failure", func(m *httputil.MockHTTPClient) {
			m.AddResponse(200, "{not json")
		}},
		{"sentinel reading", func(m *httputil.MockHTTPClient) {
			m.AddResponse(200, `{"lat": 0, "lon": 0}`)
		}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			mock := httputil.NewMockHTTPClient()
			mock.AddResponse(200, `{"lat": 35.0, "lon": 135.0}`)
			tc.setup(mock)

			p, mailbox, _ := newTestPoller(mock)
			require.NoError(t, p.PollOnce(context.Background()))
			assert.Error(t, p.PollOnce(context.Background()))

			// The failure never disturbed the active sample.
			snap, ok := mailbox.Latest()
			require.True(t, ok)
			assert.Equal(t, 35.0, snap.Sample.Lat)
		})
	}
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(200, `{"lat": 35.0, "lon": 135.0}`)

	p, mailbox, clock := newTestPoller(mock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	// Advancing the mock clock fires the poll ticker. Keep advancing
	// until the goroutine has registered its ticker and polled once.
	assert.Eventually(t, func() bool {
		clock.Advance(time.Second)
		_, ok := mailbox.Latest()
		return ok
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop on context cancellation")
	}
}
