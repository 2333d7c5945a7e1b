// internal/fieldbus/modbus/instrument.go
package modbus

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/goburrow/modbus"
	"github.com/goburrow/serial"

	"github.com/tamzrod/fieldrec/internal/fieldbus"
)

// Instrument is one RTU serial connection reading a fixed holding-register
// block. Calls are not serialized here: the poller exclusively owns the
// handle.
type Instrument struct {
	handler *modbus.RTUClientHandler
	client  modbus.Client
	base    uint16
	count   uint16
}

// Config is minimal transport + geometry config.
type Config struct {
	Port         string
	SlaveID      uint8
	BaseRegister uint16
	Count        uint16

	BaudRate int
	Parity   string
	DataBits int
	StopBits int
	Timeout  time.Duration
}

// Dial opens the serial port. ONE attempt, no retries.
func Dial(cfg Config) (*Instrument, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("%w: port required", fieldbus.ErrConnect)
	}

	h := modbus.NewRTUClientHandler(cfg.Port)
	h.BaudRate = cfg.BaudRate
	h.DataBits = cfg.DataBits
	h.Parity = cfg.Parity
	h.StopBits = cfg.StopBits
	h.SlaveId = cfg.SlaveID
	h.Timeout = cfg.Timeout

	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", fieldbus.ErrConnect, cfg.Port, err)
	}

	return &Instrument{
		handler: h,
		client:  modbus.NewClient(h),
		base:    cfg.BaseRegister,
		count:   cfg.Count,
	}, nil
}

// ReadBlock reads the whole configured block.
// Failures are classified into the fieldbus taxonomy.
func (i *Instrument) ReadBlock() ([]uint16, error) {
	raw, err := i.client.ReadHoldingRegisters(i.base, i.count)
	if err != nil {
		return nil, classify(err)
	}
	if len(raw) != int(i.count)*2 {
		return nil, fmt.Errorf("%w: short response: %d bytes", fieldbus.ErrTransientRead, len(raw))
	}
	return unpackRegisters(raw), nil
}

// Close closes the serial handle.
func (i *Instrument) Close() error {
	return i.handler.Close()
}

// ---- failure classification ----

// classify maps transport errors onto the fieldbus taxonomy.
// Unknown errors count as transient: the link is assumed alive until the
// transport itself proves dead.
func classify(err error) error {
	var mbErr *modbus.ModbusError
	if errors.As(err, &mbErr) {
		// The device answered with an exception; the link is alive.
		return fmt.Errorf("%w: %v", fieldbus.ErrTransientRead, err)
	}
	if errors.Is(err, serial.ErrTimeout) || os.IsTimeout(err) {
		return fmt.Errorf("%w: %v", fieldbus.ErrTransientRead, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("%w: %v", fieldbus.ErrHardIO, err)
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EIO, syscall.ENXIO, syscall.ENODEV, syscall.EBADF, syscall.ENOENT, syscall.EACCES:
			return fmt.Errorf("%w: %v", fieldbus.ErrHardIO, err)
		}
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		// The port itself failed (unplugged USB adapter).
		return fmt.Errorf("%w: %v", fieldbus.ErrHardIO, err)
	}
	return fmt.Errorf("%w: %v", fieldbus.ErrTransientRead, err)
}

// ---- helpers (pure geometry) ----

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}
