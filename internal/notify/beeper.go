package notify

import (
	"time"

	"go.uber.org/zap"

	"cycletester/internal/relay"
)

const (
	defaultBeepInterval = 2 * time.Second
	beepDuration        = 80 * time.Millisecond
)

// Beeper pulses the configured relay beeper pins. While AwaitAck blocks, a
// background loop keeps beeping on an interval until the operator confirms.
type Beeper struct {
	Relays   relay.Controller
	Pins     []int
	Interval time.Duration
	Ack      *AckSource
	Log      *zap.SugaredLogger
}

func (b *Beeper) interval() time.Duration {
	if b.Interval > 0 {
		return b.Interval
	}
	return defaultBeepInterval
}

// Alert emits a single beep.
func (b *Beeper) Alert(message string) error {
	b.Log.Infow("operator action required", "message", message)
	if len(b.Pins) == 0 {
		return &DeliveryError{Channel: "beeper", Err: errNoBeeperPins}
	}
	if err := b.Relays.Pulse(b.Pins, beepDuration); err != nil {
		return &DeliveryError{Channel: "beeper", Err: err}
	}
	return nil
}

// AwaitAck beeps periodically until the operator confirms. Beeper failures
// are logged and never block the acknowledgement.
func (b *Beeper) AwaitAck() error {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(b.interval())
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := b.Relays.Pulse(b.Pins, beepDuration); err != nil {
					b.Log.Warnw("beeper pulse failed", "error", err)
				}
			}
		}
	}()

	err := b.Ack.Wait()
	close(stop)
	<-done
	return err
}

var errNoBeeperPins = errNoPins("no beeper pins configured")

type errNoPins string

func (e errNoPins) Error() string { return string(e) }
