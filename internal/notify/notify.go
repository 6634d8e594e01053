package notify

import (
	"bufio"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Notifier alerts the operator and blocks until they acknowledge.
// Delivery failures are non-fatal and never block acknowledgement.
type Notifier interface {
	Alert(message string) error
	AwaitAck() error
}

// DeliveryError is a failed alert on one channel.
type DeliveryError struct {
	Channel string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s notification failed: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// AckSource turns an operator input stream (normally stdin) into a channel
// of acknowledgements. Reading happens on a dedicated goroutine so waiting
// is a blocking receive, not a poll.
type AckSource struct {
	acks chan error
}

func NewAckSource(r io.Reader) *AckSource {
	s := &AckSource{acks: make(chan error)}
	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			s.acks <- nil
		}
		if err := scanner.Err(); err != nil {
			s.acks <- err
		}
		close(s.acks)
	}()
	return s
}

// Wait blocks until the operator sends one line.
func (s *AckSource) Wait() error {
	err, ok := <-s.acks
	if !ok {
		return io.EOF
	}
	return err
}

// None is the silent notifier: no alert, acknowledgement still required.
type None struct {
	Ack *AckSource
	Log *zap.SugaredLogger
}

func (n *None) Alert(message string) error {
	n.Log.Infow("operator action required", "message", message)
	return nil
}

func (n *None) AwaitAck() error {
	n.Log.Info("waiting for operator confirmation (press Enter)")
	return n.Ack.Wait()
}
