package relay

import (
	"errors"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"cycletester/internal/timeutil"
)

func TestMemoryCacheWriteThrough(t *testing.T) {
	m := NewMemory(timeutil.NewStepClock(time.Unix(0, 0)))
	if err := m.SetGroup([]int{1, 2}, true); err != nil {
		t.Fatalf("SetGroup: %v", err)
	}
	states := m.States()
	if !states[1] || !states[2] {
		t.Errorf("states = %v, want pins 1,2 on", states)
	}

	m.FailNextSet(errors.New("board unplugged"))
	if err := m.SetGroup([]int{3}, true); err == nil {
		t.Fatal("expected injected failure")
	}
	if m.States()[3] {
		t.Error("cache reports pin 3 on after failed set")
	}

	if err := m.AllOff(); err != nil {
		t.Fatalf("AllOff: %v", err)
	}
	for pin, on := range m.States() {
		if on {
			t.Errorf("pin %d still on after AllOff", pin)
		}
	}
}

func TestMemoryRejectsBadPins(t *testing.T) {
	m := NewMemory(timeutil.NewStepClock(time.Unix(0, 0)))
	err := m.SetGroup([]int{17}, true)
	var setErr *SetError
	if !errors.As(err, &setErr) {
		t.Fatalf("got %v, want *SetError", err)
	}
}

func TestMemoryPulse(t *testing.T) {
	clock := timeutil.NewStepClock(time.Unix(0, 0))
	m := NewMemory(clock)
	if err := m.Pulse([]int{5}, 80*time.Millisecond); err != nil {
		t.Fatalf("Pulse: %v", err)
	}
	if m.States()[5] {
		t.Error("pin 5 left on after pulse")
	}
	pulses := m.Pulses()
	if len(pulses) != 1 || pulses[0].Duration != 80*time.Millisecond {
		t.Errorf("pulses = %+v", pulses)
	}
}

func TestEncodeFrame(t *testing.T) {
	frame := encodeFrame(0x0103)
	want := []byte{0x63, 0x9a, 0x01, 0x01, 0x00, 0x00, 0x02, 0x01, 0x03}
	if len(frame) != len(want) {
		t.Fatalf("frame length %d, want %d", len(frame), len(want))
	}
	for i := range want {
		if frame[i] != want[i] {
			t.Errorf("frame[%d] = %#x, want %#x", i, frame[i], want[i])
		}
	}
}

func TestStateMask(t *testing.T) {
	mask := stateMask(map[int]bool{1: true, 3: true, 16: true, 4: false})
	if mask != 0x8005 {
		t.Errorf("mask = %#x, want 0x8005", mask)
	}
}

// fakeBoard accepts frames like the real board: read the 9-byte command,
// answer with the given response code.
func fakeBoard(t *testing.T, response byte) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			buf := make([]byte, 9)
			if _, err := conn.Read(buf); err == nil {
				conn.Write([]byte{response})
			}
			conn.Close()
		}
	}()
	return ln
}

func newTestDeditec(addr string) *Deditec {
	d := NewDeditec("127.0.0.1", timeutil.NewStepClock(time.Unix(0, 0)), zap.NewNop().Sugar())
	d.dial = func() (net.Conn, error) {
		return net.DialTimeout("tcp", addr, time.Second)
	}
	return d
}

func TestDeditecSetGroupUpdatesCacheOnAck(t *testing.T) {
	ln := fakeBoard(t, 0)
	d := newTestDeditec(ln.Addr().String())

	if err := d.CheckConnection(); err != nil {
		t.Fatalf("CheckConnection: %v", err)
	}
	if err := d.SetGroup([]int{1, 2}, true); err != nil {
		t.Fatalf("SetGroup: %v", err)
	}
	if states := d.States(); !states[1] || !states[2] {
		t.Errorf("states = %v", states)
	}
}

func TestDeditecFailedSetLeavesCache(t *testing.T) {
	ln := fakeBoard(t, 5)
	d := newTestDeditec(ln.Addr().String())

	if err := d.SetGroup([]int{4}, true); err == nil {
		t.Fatal("expected error from non-zero response code")
	}
	if d.States()[4] {
		t.Error("cache reports pin 4 on after rejected frame")
	}
}
