package transport

import (
	"context"
	"errors"
	"io"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/silk/internal/util"
)

const (
	highWaterMark = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark  = 64 * 1024  // resume sending when bufferedAmount drops below this
)

// Sender inbox capacity per channel. The reliable lane gets more room since
// dropping there loses data the session relies on.
var sendBufferSize = [channelCount]int{
	Unreliable: 64,
	Reliable:   1024,
}

// ErrSendBufferFull is returned by Send when the channel's sender cannot
// keep up. The frame is dropped.
var ErrSendBufferFull = errors.New("send buffer full")

// dataChannel is the part of *webrtc.DataChannel the send loop writes
// through.
type dataChannel interface {
	Send(data []byte) error
	BufferedAmount() uint64
}

// sender is a goroutine-based frame writer that serializes all writes to a
// single DataChannel, adding open-gate and backpressure control. Callers
// never block: enqueue fails fast when the inbox is full.
type sender struct {
	ch          Channel
	inbox       chan []byte
	drainSignal chan struct{}
	onClosed    func() // called once if the DataChannel turns out closed
}

func newSenderState(ch Channel, onClosed func()) *sender {
	return &sender{
		ch:          ch,
		inbox:       make(chan []byte, sendBufferSize[ch]),
		drainSignal: make(chan struct{}, 1),
		onClosed:    onClosed,
	}
}

// newSender creates a sender, wires the backpressure callbacks on dc, and
// starts the background loop. The loop exits when ctx is cancelled or dc
// is found closed.
func newSender(ctx context.Context, ch Channel, dc *webrtc.DataChannel, openSignal <-chan struct{}, onClosed func()) *sender {
	s := newSenderState(ch, onClosed)

	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case s.drainSignal <- struct{}{}:
		default:
		}
	})

	go s.loop(ctx, dc, openSignal)

	return s
}

// loop is the single-writer goroutine. It waits for the DataChannel to open,
// then drains the inbox with backpressure awareness. A failed send drops
// that frame only.
func (s *sender) loop(ctx context.Context, dc dataChannel, openSignal <-chan struct{}) {
	// Phase 1: wait for DC to be open.
	select {
	case <-openSignal:
	case <-ctx.Done():
		return
	}

	// Phase 2: send frames with backpressure.
	for {
		select {
		case data := <-s.inbox:
			if dc.BufferedAmount() > uint64(highWaterMark) {
				select {
				case <-s.drainSignal:
				case <-ctx.Done():
					return
				}
			}

			err := dc.Send(data)
			if err == nil {
				continue
			}
			util.Stats.AddSendFailure()
			if errors.Is(err, io.ErrClosedPipe) {
				log.Warning("%s channel closed, stopping sender", s.ch)
				if s.onClosed != nil {
					s.onClosed()
				}
				return
			}
			log.Error("failed to send %d bytes on %s channel: %v", len(data), s.ch, err)
		case <-ctx.Done():
			return
		}
	}
}

// enqueue hands data to the loop without blocking.
func (s *sender) enqueue(data []byte) error {
	select {
	case s.inbox <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}
