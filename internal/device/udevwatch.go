package device

import (
	"context"

	"github.com/jochenvg/go-udev"

	"github.com/openfmrx/hvylya/internal/logging"
)

// WatchTuner watches udev for "swradio" subsystem add/remove events and
// invokes onChange with the device node path, used by the live/scan CLI
// commands to pick up a tuner plugged in after startup instead of
// requiring a hardcoded device path up front.
func WatchTuner(ctx context.Context, onChange func(devnode string, added bool)) error {
	log := logging.For(logging.Device)

	u := udev.Udev{}
	monitor := u.NewMonitorFromNetlink("udev")
	if err := monitor.FilterAddMatchSubsystem("swradio"); err != nil {
		return err
	}

	deviceCh, errCh, err := monitor.DeviceChan(ctx)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case dev, ok := <-deviceCh:
				if !ok {
					return
				}
				added := dev.Action() == "add"
				log.Info("udev event", "action", dev.Action(), "devnode", dev.Devnode())
				onChange(dev.Devnode(), added)
			case err, ok := <-errCh:
				if !ok {
					return
				}
				log.Warn("udev monitor error", "error", err)
			}
		}
	}()
	return nil
}
