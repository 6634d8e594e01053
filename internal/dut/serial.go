package dut

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

const (
	serialBaudRate    = 115200
	serialReadTimeout = 500 * time.Millisecond
	responseDeadline  = 5 * time.Second
)

var errResponseTimeout = errors.New("response timeout")

// SerialLink drives the real DUT over its production-test serial console.
// Each command is one line; the DUT replies with optional "#" trace lines
// followed by an "OK [payload]" or "ERROR" terminator.
type SerialLink struct {
	mu   sync.Mutex
	port serial.Port
	cmds map[string]string
	log  *zap.SugaredLogger
}

// OpenSerial opens the DUT console. cmds is the configured wire-text table
// keyed by logical command name.
func OpenSerial(portName string, cmds map[string]string, log *zap.SugaredLogger) (*SerialLink, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: serialBaudRate})
	if err != nil {
		return nil, fmt.Errorf("opening dut serial port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("configuring dut serial port %s: %w", portName, err)
	}
	return &SerialLink{port: port, cmds: cmds, log: log}, nil
}

func (l *SerialLink) SendCommand(name string) error {
	wire, ok := l.cmds[name]
	if !ok {
		return &CommandError{Name: name, Err: errors.New("not in dut_commands table")}
	}
	if wire == "" {
		// An empty entry disables an optional command for this DUT build.
		l.log.Debugw("dut command not configured, skipping", "command", name)
		return nil
	}
	if _, err := l.exchange(wire); err != nil {
		return &CommandError{Name: name, Err: err}
	}
	return nil
}

func (l *SerialLink) ReadField(field string) (float64, error) {
	payload, err := l.readRaw(field)
	if err != nil {
		return 0, err
	}
	v, err := parseFloatPayload(payload)
	if err != nil {
		return 0, &ReadError{Field: field, Err: err}
	}
	return v, nil
}

func (l *SerialLink) ReadText(field string) (string, error) {
	payload, err := l.readRaw(field)
	if err != nil {
		return "", err
	}
	if field == FieldMode {
		return parseModePayload(payload), nil
	}
	return parseTextPayload(payload), nil
}

func (l *SerialLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	return err
}

func (l *SerialLink) readRaw(field string) (string, error) {
	key, ok := fieldCommands[field]
	if !ok {
		return "", &ReadError{Field: field, Err: errors.New("unknown field")}
	}
	wire := l.cmds[key]
	if wire == "" {
		return "", &ReadError{Field: field, Err: fmt.Errorf("dut_commands.%s not configured", key)}
	}
	payload, err := l.exchange(wire)
	if err != nil {
		return "", &ReadError{Field: field, Err: err}
	}
	return payload, nil
}

// exchange writes one command line and collects the reply payload.
func (l *SerialLink) exchange(wire string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return "", errors.New("serial port closed")
	}
	if _, err := l.port.Write([]byte(wire + "\r\n")); err != nil {
		return "", fmt.Errorf("write: %w", err)
	}

	deadline := time.Now().Add(responseDeadline)
	var payload []string
	for {
		line, err := l.readLine(deadline)
		if err != nil {
			return "", err
		}
		switch {
		case line == "", strings.HasPrefix(line, "#"):
			// trace output, skip
		case line == "OK":
			return strings.Join(payload, " "), nil
		case strings.HasPrefix(line, "OK "):
			payload = append(payload, strings.TrimPrefix(line, "OK "))
			return strings.Join(payload, " "), nil
		case strings.HasPrefix(line, "ERROR"):
			return "", fmt.Errorf("dut replied %q", line)
		default:
			payload = append(payload, line)
		}
	}
}

func (l *SerialLink) readLine(deadline time.Time) (string, error) {
	var line []byte
	buf := make([]byte, 1)
	for time.Now().Before(deadline) {
		n, err := l.port.Read(buf)
		if err != nil {
			return "", fmt.Errorf("read: %w", err)
		}
		if n == 0 {
			continue // per-read timeout, retry until the deadline
		}
		switch buf[0] {
		case '\n':
			return strings.TrimRight(string(line), "\r"), nil
		default:
			line = append(line, buf[0])
		}
	}
	return "", errResponseTimeout
}

// parseFloatPayload accepts "KEY=VALUE" or a bare numeric token.
func parseFloatPayload(payload string) (float64, error) {
	tok := firstToken(payload)
	if tok == "" {
		return 0, errors.New("empty payload")
	}
	if i := strings.LastIndex(tok, "="); i >= 0 {
		tok = tok[i+1:]
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %q: %w", tok, err)
	}
	return v, nil
}

func parseTextPayload(payload string) string {
	tok := firstToken(payload)
	if i := strings.Index(tok, "="); i >= 0 {
		tok = tok[i+1:]
	}
	return tok
}

// parseModePayload scans a status reply for a known operation mode keyword.
func parseModePayload(payload string) string {
	upper := strings.ToUpper(payload)
	for _, mode := range []string{"DISCHARGING", "CHARGING", "IDLE"} {
		if strings.Contains(upper, mode) {
			return mode
		}
	}
	return parseTextPayload(payload)
}

func firstToken(payload string) string {
	fields := strings.Fields(payload)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
