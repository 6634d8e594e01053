package relay

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"cycletester/internal/timeutil"
)

// DeditecPort is the fixed TCP control port of the relay board.
const DeditecPort = 9912

const deditecDialTimeout = 3 * time.Second

// Deditec speaks to a Deditec 16-relay Ethernet board. Every command writes
// the complete 16-bit output state; the board acknowledges with a single
// zero byte and offers no readback, hence the write-through cache.
type Deditec struct {
	mu    sync.Mutex
	addr  string
	on    map[int]bool
	clock timeutil.Clock
	log   *zap.SugaredLogger

	dial func() (net.Conn, error)
}

func NewDeditec(ip string, clock timeutil.Clock, log *zap.SugaredLogger) *Deditec {
	addr := fmt.Sprintf("%s:%d", ip, DeditecPort)
	return &Deditec{
		addr:  addr,
		on:    make(map[int]bool),
		clock: clock,
		log:   log,
		dial: func() (net.Conn, error) {
			return net.DialTimeout("tcp", addr, deditecDialTimeout)
		},
	}
}

// CheckConnection dials the board and drops the connection, for preflight.
func (d *Deditec) CheckConnection() error {
	conn, err := d.dial()
	if err != nil {
		return fmt.Errorf("relay board unreachable at %s: %w", d.addr, err)
	}
	return conn.Close()
}

func (d *Deditec) SetGroup(pins []int, on bool) error {
	if err := validatePins(pins); err != nil {
		return &SetError{Pins: pins, On: on, Err: err}
	}
	if len(pins) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	next := make(map[int]bool, len(d.on))
	for pin, v := range d.on {
		next[pin] = v
	}
	for _, pin := range pins {
		next[pin] = on
	}
	if err := d.send(stateMask(next)); err != nil {
		return &SetError{Pins: pins, On: on, Err: err}
	}
	// Cache updates only after the board confirmed the new state.
	d.on = next
	d.log.Debugw("relay state updated", "pins", pins, "on", on)
	return nil
}

func (d *Deditec) States() map[int]bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	snapshot := make(map[int]bool, len(d.on))
	for pin, v := range d.on {
		snapshot[pin] = v
	}
	return snapshot
}

func (d *Deditec) AllOff() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.send(0); err != nil {
		return &SetError{Pins: allPins(), On: false, Err: err}
	}
	d.on = make(map[int]bool)
	return nil
}

func (d *Deditec) Pulse(pins []int, dur time.Duration) error {
	if err := d.SetGroup(pins, true); err != nil {
		return err
	}
	d.clock.Sleep(dur)
	return d.SetGroup(pins, false)
}

func (d *Deditec) Close() error { return nil }

// send transmits one full output frame and waits for the acknowledge byte.
func (d *Deditec) send(mask uint16) error {
	conn, err := d.dial()
	if err != nil {
		return fmt.Errorf("connecting to board: %w", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(deditecDialTimeout))
	if _, err := conn.Write(encodeFrame(mask)); err != nil {
		return fmt.Errorf("sending frame: %w", err)
	}
	ack := make([]byte, 1)
	if _, err := conn.Read(ack); err != nil {
		return fmt.Errorf("reading acknowledge: %w", err)
	}
	if ack[0] != 0 {
		return fmt.Errorf("board returned response code %d", ack[0])
	}
	return nil
}

// encodeFrame builds the set-outputs command frame for the 16-relay board.
func encodeFrame(mask uint16) []byte {
	frame := make([]byte, 9)
	copy(frame, []byte{0x63, 0x9a, 0x01, 0x01, 0x00, 0x00, 0x02})
	binary.BigEndian.PutUint16(frame[7:], mask)
	return frame
}

func stateMask(on map[int]bool) uint16 {
	var mask uint16
	for pin, v := range on {
		if v {
			mask |= 1 << (pin - 1)
		}
	}
	return mask
}

func allPins() []int {
	pins := make([]int, MaxPin)
	for i := range pins {
		pins[i] = i + 1
	}
	return pins
}
