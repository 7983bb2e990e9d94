package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide frame counter.
var Stats = &stats{}

type stats struct {
	FramesSent   atomic.Int64 // frames handed to the transport
	FramesRecv   atomic.Int64 // frames read from the transport
	BytesSent    atomic.Int64 // cumulative bytes handed to the transport
	BytesRecv    atomic.Int64 // cumulative bytes read from the transport
	DecodeDrops  atomic.Int64 // frames that did not decode into any registered type
	SendFailures atomic.Int64 // sends the transport refused
}

func (s *stats) AddSent(n int) {
	s.FramesSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *stats) AddRecv(n int) {
	s.FramesRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

func (s *stats) AddDrop()        { s.DecodeDrops.Add(1) }
func (s *stats) AddSendFailure() { s.SendFailures.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// reportInterval is how often StartStatsReporter samples the counters.
const reportInterval = 10 * time.Second

// StartStatsReporter launches a goroutine that logs session traffic
// every 10 seconds. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()

		var prev snapshot
		for {
			select {
			case <-ticker.C:
				cur := takeSnapshot()
				if line, ok := formatDelta(prev, cur, reportInterval.Seconds()); ok {
					pterm.DefaultLogger.Info(line)
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

type snapshot struct {
	framesSent, framesRecv int64
	bytesSent, bytesRecv   int64
	drops, failures        int64
}

func takeSnapshot() snapshot {
	return snapshot{
		framesSent: Stats.FramesSent.Load(),
		framesRecv: Stats.FramesRecv.Load(),
		bytesSent:  Stats.BytesSent.Load(),
		bytesRecv:  Stats.BytesRecv.Load(),
		drops:      Stats.DecodeDrops.Load(),
		failures:   Stats.SendFailures.Load(),
	}
}

// formatDelta renders the change between two snapshots taken secs apart.
// It reports false when nothing moved.
func formatDelta(prev, cur snapshot, secs float64) (string, bool) {
	if cur == prev {
		return "", false
	}
	return fmt.Sprintf("In: %s/s (%d fr) | Out: %s/s (%d fr) | Drop: %d | Fail: %d",
		formatBytes(float64(cur.bytesRecv-prev.bytesRecv)/secs),
		cur.framesRecv-prev.framesRecv,
		formatBytes(float64(cur.bytesSent-prev.bytesSent)/secs),
		cur.framesSent-prev.framesSent,
		cur.drops-prev.drops,
		cur.failures-prev.failures,
	), true
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}
