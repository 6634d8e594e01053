package notify

import "go.uber.org/zap"

// Multi fans Alert out to every channel and delegates the blocking wait to
// the first channel. A failure on one channel is logged and does not stop
// the others.
type Multi struct {
	Channels []Notifier
	Log      *zap.SugaredLogger
}

func (m *Multi) Alert(message string) error {
	var firstErr error
	for _, n := range m.Channels {
		if err := n.Alert(message); err != nil {
			m.Log.Warnw("notification channel failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (m *Multi) AwaitAck() error {
	if len(m.Channels) == 0 {
		return nil
	}
	// The beeper keeps pulsing during its own AwaitAck, so it should be the
	// delegate when present.
	return m.Channels[0].AwaitAck()
}
