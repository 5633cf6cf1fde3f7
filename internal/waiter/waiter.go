// Package waiter polls an agent's transcript until a new block of an
// expected kind shows up, the wait times out, or the run is interrupted.
package waiter

import (
	"context"
	"slices"
	"strconv"
	"time"

	"politerm/internal/channel"
	"politerm/internal/interrupt"
	"politerm/internal/logging"
	"politerm/internal/protocol"

	"golang.org/x/time/rate"
)

const (
	DefaultPollInterval = 400 * time.Millisecond
	DefaultCaptureLines = 400
	ReminderText        = "# Reminder: If finished, emit the tagged block now."
)

type Outcome int

const (
	Received Outcome = iota
	TimedOut
	Interrupted
)

func (o Outcome) String() string {
	switch o {
	case Received:
		return "received"
	case TimedOut:
		return "timed_out"
	case Interrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// SkipReason says why a decoded block was not returned.
type SkipReason string

const (
	SkipSeen      SkipReason = "seen"
	SkipKind      SkipReason = "unexpected_kind"
	SkipRecipient SkipReason = "wrong_recipient"
)

// Observer is notified of waiter activity. Implementations must not block.
type Observer interface {
	Nudged(party protocol.Party)
	Skipped(party protocol.Party, msg protocol.Message, reason SkipReason)
}

type nopObserver struct{}

func (nopObserver) Nudged(protocol.Party)                               {}
func (nopObserver) Skipped(protocol.Party, protocol.Message, SkipReason) {}

// Request describes one wait.
type Request struct {
	Party   protocol.Party
	Seen    *SeenSet
	Timeout time.Duration
	// Kinds limits the accepted kinds. Empty accepts any kind.
	Kinds []protocol.Kind
	// Recipient, when set, rejects blocks addressed to someone else. Blocks
	// with no recipient are accepted.
	Recipient protocol.Party
	Nudge     bool
	TaskID    string
}

type Result struct {
	Outcome Outcome
	Message protocol.Message
	Elapsed time.Duration
	Nudges  int
}

type Options struct {
	Channel      channel.Channel
	Interrupt    *interrupt.Controller
	Logger       *logging.Logger
	Clock        Clock
	Observer     Observer
	PollInterval time.Duration
	CaptureLines int
}

type Waiter struct {
	channel      channel.Channel
	interrupt    *interrupt.Controller
	logger       *logging.Logger
	decoder      protocol.Decoder
	clock        Clock
	observer     Observer
	pollInterval time.Duration
	captureLines int
}

func New(options Options) *Waiter {
	clock := options.Clock
	if clock == nil {
		clock = RealClock()
	}
	observer := options.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	pollInterval := options.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	captureLines := options.CaptureLines
	if captureLines <= 0 {
		captureLines = DefaultCaptureLines
	}
	return &Waiter{
		channel:      options.Channel,
		interrupt:    options.Interrupt,
		logger:       options.Logger,
		decoder:      protocol.Decoder{Logger: options.Logger},
		clock:        clock,
		observer:     observer,
		pollInterval: pollInterval,
		captureLines: captureLines,
	}
}

// Wait blocks until a qualifying block arrives, the timeout elapses or the
// run is interrupted. A timeout is an outcome, not an error.
func (w *Waiter) Wait(ctx context.Context, request Request) Result {
	seen := request.Seen
	if seen == nil {
		seen = NewSeenSet()
	}
	start := w.clock.Now()
	fields := map[string]string{
		"party":   request.Party.String(),
		"task_id": request.TaskID,
		"timeout": request.Timeout.String(),
	}
	w.logger.Info("waiting for block", fields)

	var nudges *rate.Limiter
	if nudgeEvery := request.Timeout / 3; request.Nudge && nudgeEvery > 0 {
		nudges = rate.NewLimiter(rate.Every(nudgeEvery), 1)
		// Spend the initial token so the first reminder waits a full period.
		nudges.AllowN(start, 1)
	}

	var changes <-chan struct{}
	if notifier, ok := w.channel.(channel.ChangeNotifier); ok {
		changes = notifier.Changes(request.Party)
	}

	result := Result{}
	for {
		if interrupt.Interrupted(ctx, w.interrupt) {
			result.Outcome = Interrupted
			result.Elapsed = w.clock.Now().Sub(start)
			return result
		}
		now := w.clock.Now()
		if now.Sub(start) >= request.Timeout {
			w.logger.Warn("timed out waiting for block", fields)
			result.Outcome = TimedOut
			result.Elapsed = now.Sub(start)
			return result
		}

		if msg, ok := w.poll(request, seen); ok {
			msg.ObservedAt = w.clock.Now()
			result.Outcome = Received
			result.Message = msg
			result.Elapsed = msg.ObservedAt.Sub(start)
			return result
		}

		if nudges != nil && nudges.AllowN(w.clock.Now(), 1) {
			if interrupt.Interrupted(ctx, w.interrupt) {
				continue
			}
			w.nudge(request.Party)
			result.Nudges++
		}

		select {
		case <-w.clock.After(w.pollInterval):
		case <-changes:
		case <-w.interrupt.Done():
		case <-ctx.Done():
		}
	}
}

func (w *Waiter) poll(request Request, seen *SeenSet) (protocol.Message, bool) {
	snapshot, err := w.channel.ReadSnapshot(request.Party, w.captureLines)
	if err != nil {
		w.logger.Warn("transcript read failed", map[string]string{
			"party": request.Party.String(),
			"error": err.Error(),
		})
		return protocol.Message{}, false
	}
	messages := w.decoder.Decode(snapshot)
	if len(messages) == 0 {
		return protocol.Message{}, false
	}
	msg := messages[0]
	key := msg.Key()
	switch {
	case seen.Contains(key):
		w.observer.Skipped(request.Party, msg, SkipSeen)
		return protocol.Message{}, false
	case len(request.Kinds) > 0 && !slices.Contains(request.Kinds, msg.Kind):
		w.logger.Debug("ignoring block of unexpected kind", map[string]string{
			"party": request.Party.String(),
			"id":    msg.ID,
			"type":  msg.Type,
		})
		w.observer.Skipped(request.Party, msg, SkipKind)
		return protocol.Message{}, false
	case request.Recipient.Valid() && msg.Recipient.Valid() && msg.Recipient != request.Recipient:
		w.observer.Skipped(request.Party, msg, SkipRecipient)
		return protocol.Message{}, false
	}
	if !seen.Mark(key) {
		return protocol.Message{}, false
	}
	w.logger.Info("received block", map[string]string{
		"party": request.Party.String(),
		"id":    msg.ID,
		"type":  msg.Kind.String(),
		"bytes": strconv.Itoa(len(msg.Body)),
	})
	return msg, true
}

func (w *Waiter) nudge(party protocol.Party) {
	w.logger.Info("nudging agent", map[string]string{"party": party.String()})
	w.observer.Nudged(party)
	if err := w.channel.Write(party, ReminderText); err != nil {
		w.logger.Warn("nudge failed", map[string]string{
			"party": party.String(),
			"error": err.Error(),
		})
	}
}
