// internal/pins/pins.go

// Package pins drives a unit's camera actuator and reads its status
// inputs. Assignments are explicit per-unit records from
// configuration; pin 0 means unassigned.
package pins

import (
	"errors"
	"log/slog"
)

// Assignment names the unit's pins. Zero values stay unwired.
type Assignment struct {
	// Control drives the camera actuator: high inserts, low
	// retracts.
	Control int

	// CameraState reads the actuator's position feedback.
	CameraState int

	// AirFilter reads high while the purge-air filter is clear.
	AirFilter int

	// CameraRemoved reads high while the camera is seated.
	CameraRemoved int
}

// Driver abstracts the pin electronics. Deployments provide a real
// one; the stock LogDriver only logs.
type Driver interface {
	SetOutput(pin int, high bool) error
	ReadInput(pin int) (bool, error)
}

// Controller is one unit's pin surface.
type Controller struct {
	unitID string
	asn    Assignment
	drv    Driver
	log    *slog.Logger
}

// New wires a controller. The driver is required even when every pin
// is unassigned.
func New(unitID string, asn Assignment, drv Driver, log *slog.Logger) (*Controller, error) {
	if unitID == "" {
		return nil, errors.New("pins: unit id is required")
	}
	if drv == nil {
		return nil, errors.New("pins: driver is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		unitID: unitID,
		asn:    asn,
		drv:    drv,
		log:    log.With("unit", unitID, "worker", "pins"),
	}, nil
}

// InsertCamera raises the control pin.
func (c *Controller) InsertCamera() error {
	return c.drive(true)
}

// RetractCamera lowers the control pin.
func (c *Controller) RetractCamera() error {
	return c.drive(false)
}

func (c *Controller) drive(high bool) error {
	if c.asn.Control == 0 {
		c.log.Warn("no control pin assigned")
		return errors.New("pins: no control pin assigned")
	}
	if err := c.drv.SetOutput(c.asn.Control, high); err != nil {
		c.log.Error("control pin write failed", "pin", c.asn.Control, "error", err)
		return err
	}
	c.log.Info("camera actuator driven", "pin", c.asn.Control, "high", high)
	return nil
}

// AirFilterOK reads the filter input. Unassigned or faulted reads are
// not-OK.
func (c *Controller) AirFilterOK() bool {
	return c.readInput(c.asn.AirFilter)
}

// CameraSeated reads the seat input. Unassigned or faulted reads are
// not-OK.
func (c *Controller) CameraSeated() bool {
	return c.readInput(c.asn.CameraRemoved)
}

// CameraState reads the actuator position feedback.
func (c *Controller) CameraState() bool {
	return c.readInput(c.asn.CameraState)
}

func (c *Controller) readInput(pin int) bool {
	if pin == 0 {
		return false
	}
	v, err := c.drv.ReadInput(pin)
	if err != nil {
		c.log.Warn("input pin read failed", "pin", pin, "error", err)
		return false
	}
	return v
}

// ------------------------------------------------------------
// ---- LOG DRIVER ----
// ------------------------------------------------------------

// LogDriver records pin operations without touching hardware. Inputs
// read as the configured defaults, high unless set otherwise.
type LogDriver struct {
	log *slog.Logger

	// InputHigh is the level every input reads. Defaults to true so
	// bench setups without the harness report a healthy strip.
	InputHigh bool
}

// NewLogDriver returns the stock mock driver.
func NewLogDriver(log *slog.Logger) *LogDriver {
	if log == nil {
		log = slog.Default()
	}
	return &LogDriver{log: log.With("worker", "pins"), InputHigh: true}
}

func (d *LogDriver) SetOutput(pin int, high bool) error {
	d.log.Info("pin set", "pin", pin, "high", high)
	return nil
}

func (d *LogDriver) ReadInput(pin int) (bool, error) {
	return d.InputHigh, nil
}
