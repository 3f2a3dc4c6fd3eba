package device

import (
	"github.com/warthog618/go-gpiocdev"

	"github.com/openfmrx/hvylya/internal/hvylyaerr"
)

// MuteLine drives a GPIO line as a mute/PTT-style relay for an external
// amplifier, gated on pilot/RDS SNR by the caller: silence the amplifier
// while no station is usefully tuned in.
type MuteLine struct {
	line *gpiocdev.Line
}

// OpenMuteLine requests offset on chip as an output, initially unmuted
// (logic low).
func OpenMuteLine(chip string, offset int) (*MuteLine, error) {
	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, hvylyaerr.NewIoError(chip, "request mute GPIO line", err)
	}
	return &MuteLine{line: line}, nil
}

// SetMuted drives the line high (muted) or low (unmuted).
func (m *MuteLine) SetMuted(muted bool) error {
	v := 0
	if muted {
		v = 1
	}
	if err := m.line.SetValue(v); err != nil {
		return hvylyaerr.NewSystemError("set mute GPIO line", err)
	}
	return nil
}

// Close releases the GPIO line, leaving it at its last driven value.
func (m *MuteLine) Close() error {
	return m.line.Close()
}
