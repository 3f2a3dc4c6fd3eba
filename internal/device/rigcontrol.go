package device

import (
	"github.com/xylo04/goHamlib"

	"github.com/openfmrx/hvylya/internal/hvylyaerr"
)

// RigControl drives an external tuner through hamlib, for the live
// command's frequency-step keys when the SDR device itself has no
// direct frequency-set ioctl (e.g. it is paired with a separate rig).
type RigControl struct {
	rig *goHamlib.Rig
}

// OpenRigControl opens the named hamlib rig model against device (a
// serial or network endpoint, model-dependent).
func OpenRigControl(model int, device string) (*RigControl, error) {
	rig := goHamlib.NewRig(model)
	rig.SetConf("rig_pathname", device)
	if err := rig.Open(); err != nil {
		return nil, hvylyaerr.NewIoError(device, "open hamlib rig", err)
	}
	return &RigControl{rig: rig}, nil
}

// SetFrequency tunes the rig's main VFO to hz.
func (r *RigControl) SetFrequency(hz float64) error {
	if err := r.rig.SetFreq(goHamlib.VFOCurr, hz); err != nil {
		return hvylyaerr.NewSystemError("hamlib set frequency", err)
	}
	return nil
}

// Frequency reads back the rig's current main VFO frequency.
func (r *RigControl) Frequency() (float64, error) {
	hz, err := r.rig.GetFreq(goHamlib.VFOCurr)
	if err != nil {
		return 0, hvylyaerr.NewSystemError("hamlib get frequency", err)
	}
	return hz, nil
}

// Close releases the rig handle.
func (r *RigControl) Close() error {
	return r.rig.Close()
}
