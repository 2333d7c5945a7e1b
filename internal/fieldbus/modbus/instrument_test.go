// internal/fieldbus/modbus/instrument_test.go
package modbus

import (
	"errors"
	"io"
	"os"
	"syscall"
	"testing"

	"github.com/goburrow/modbus"
	"github.com/goburrow/serial"

	"github.com/tamzrod/fieldrec/internal/fieldbus"
)

func TestClassify_DeviceExceptionIsTransient(t *testing.T) {
	err := classify(&modbus.ModbusError{FunctionCode: 3, ExceptionCode: 2})
	if !errors.Is(err, fieldbus.ErrTransientRead) {
		t.Fatalf("exception classified as %v", err)
	}
}

func TestClassify_TimeoutIsTransient(t *testing.T) {
	if err := classify(serial.ErrTimeout); !errors.Is(err, fieldbus.ErrTransientRead) {
		t.Fatalf("timeout classified as %v", err)
	}
}

func TestClassify_EOFIsHard(t *testing.T) {
	if err := classify(io.EOF); !errors.Is(err, fieldbus.ErrHardIO) {
		t.Fatalf("EOF classified as %v", err)
	}
}

func TestClassify_ErrnoIsHard(t *testing.T) {
	for _, errno := range []syscall.Errno{syscall.EIO, syscall.ENXIO, syscall.EBADF} {
		if err := classify(errno); !errors.Is(err, fieldbus.ErrHardIO) {
			t.Fatalf("errno %v classified as %v", errno, err)
		}
	}
}

func TestClassify_PathErrorIsHard(t *testing.T) {
	pe := &os.PathError{Op: "read", Path: "/dev/ttyUSB0", Err: syscall.ENODEV}
	if err := classify(pe); !errors.Is(err, fieldbus.ErrHardIO) {
		t.Fatalf("path error classified as %v", err)
	}
}

func TestClassify_UnknownIsTransient(t *testing.T) {
	if err := classify(errors.New("garbled frame")); !errors.Is(err, fieldbus.ErrTransientRead) {
		t.Fatalf("unknown error classified as %v", err)
	}
}

func TestUnpackRegisters(t *testing.T) {
	got := unpackRegisters([]byte{0x01, 0x02, 0xFF, 0x00})
	if len(got) != 2 || got[0] != 0x0102 || got[1] != 0xFF00 {
		t.Fatalf("unpackRegisters = %v", got)
	}
}
