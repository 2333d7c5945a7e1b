// internal/fieldbus/modbus/builder.go

package modbus

import (
	"log/slog"
	"time"

	cfg "github.com/tamzrod/fieldrec/internal/config"
	"github.com/tamzrod/fieldrec/internal/fieldbus"
)

// Build constructs a Poller for one unit, wired to dial this adapter.
// The dialer makes ONE attempt per call. No dial happens here: a
// missing device at boot is an ordinary reconnect case, not a startup
// failure.
func Build(u cfg.UnitConfig, publish fieldbus.PublishFunc, log *slog.Logger) (*fieldbus.Poller, error) {
	b := u.FieldBus

	dial := func() (fieldbus.Instrument, error) {
		inst, err := Dial(Config{
			Port:         b.Port,
			SlaveID:      b.SlaveID,
			BaseRegister: b.BaseRegister,
			Count:        b.Count,
			BaudRate:     b.BaudRate,
			Parity:       b.Parity,
			DataBits:     b.DataBits,
			StopBits:     b.StopBits,
			Timeout:      time.Duration(b.TimeoutMs) * time.Millisecond,
		})
		if err != nil {
			return nil, err
		}
		return inst, nil
	}

	return fieldbus.New(
		fieldbus.Config{
			UnitID:        u.ID,
			Count:         int(b.Count),
			Interval:      time.Duration(b.IntervalMs) * time.Millisecond,
			FailThreshold: b.FailThreshold,
			BackoffStart:  time.Duration(b.BackoffStartMs) * time.Millisecond,
			BackoffMax:    time.Duration(b.BackoffMaxMs) * time.Millisecond,
		},
		dial,
		publish,
		log,
	)
}
