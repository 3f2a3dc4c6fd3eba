// Command hvylya is the FM/RDS receiver's operator-facing front end:
// live tuning and playback, a dial scanner, I/Q capture/replay, and a
// scriptable decode self-test, grounded on cmd/direwolf/main.go's
// pflag-based flag parsing and positional-subcommand dispatch.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/openfmrx/hvylya/internal/cli/keys"
	"github.com/openfmrx/hvylya/internal/config"
	"github.com/openfmrx/hvylya/internal/device"
	"github.com/openfmrx/hvylya/internal/fmreceiver"
	"github.com/openfmrx/hvylya/internal/logging"
	"github.com/openfmrx/hvylya/internal/pipeline"
	"github.com/openfmrx/hvylya/internal/rds"
)

func main() {
	configFile := pflag.StringP("config-file", "c", "", "Configuration file path.")
	logLevel := pflag.StringP("log-level", "l", "", "Log level (debug, info, warn, error).")
	help := pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprint(os.Stderr, `usage: hvylya [flags] <command> [args]

commands:
  live <frequency_hz>            tune and play live audio
  scan [device]                  sweep the FM band and report stations found
  dump <frequency_hz> <seconds>  capture raw I/Q to a timestamped file
  load <file_path>                replay a captured I/Q file
  test <file_path>...             decode captures and report RDS stats

flags:
`)
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help || len(pflag.Args()) == 0 {
		pflag.Usage()
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hvylya:", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hvylya:", err)
		os.Exit(1)
	}
	logging.SetLevel(level)

	args := pflag.Args()
	cmd, rest := args[0], args[1:]

	var runErr error
	switch cmd {
	case "live":
		runErr = runLive(cfg, rest)
	case "scan":
		runErr = runScan(cfg, rest)
	case "dump":
		runErr = runDump(cfg, rest)
	case "load":
		runErr = runLoad(cfg, rest)
	case "test":
		runErr = runTest(cfg, rest)
	default:
		fmt.Fprintf(os.Stderr, "hvylya: unknown command %q\n", cmd)
		pflag.Usage()
		os.Exit(2)
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, "hvylya:", runErr)
		os.Exit(1)
	}
}

func workerCount(cfg *config.Config) int {
	if cfg.Workers > 0 {
		return cfg.Workers
	}
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}

func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

const frequencyStepHz = 100000
const frequencyBandStepHz = 1000000

// runLive tunes the device to frequencyHz and streams decoded audio until
// the operator quits, driving a one-key-at-a-time control surface on the
// controlling terminal.
func runLive(cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("live: expected <frequency_hz>")
	}
	freqHz, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("live: invalid frequency_hz %q: %w", args[0], err)
	}

	log := logging.For(logging.Cli)
	recv := fmreceiver.New(workerCount(cfg))

	src, err := device.OpenSdrSource(cfg.Device.Path, recv.Input())
	if err != nil {
		return err
	}
	defer src.Close()

	left, right := recv.AudioOutputs()
	sink, err := device.OpenAudioSink(left, right, float64(fmreceiver.OutputAudioSamplingRate), 1024)
	if err != nil {
		return err
	}
	defer sink.Close()
	if err := sink.Start(); err != nil {
		return err
	}

	var rig *device.RigControl
	if cfg.Device.RigModel != "" {
		model, err := strconv.Atoi(cfg.Device.RigModel)
		if err != nil {
			return fmt.Errorf("live: invalid rig_model %q: %w", cfg.Device.RigModel, err)
		}
		rig, err = device.OpenRigControl(model, cfg.Device.RigDevice)
		if err != nil {
			return err
		}
		defer rig.Close()
	}

	var mute *device.MuteLine
	if cfg.Device.MuteGpioChip != "" {
		mute, err = device.OpenMuteLine(cfg.Device.MuteGpioChip, cfg.Device.MuteGpioLine)
		if err != nil {
			return err
		}
		defer mute.Close()
	}

	retune := func(hz float64) {
		freqHz = hz
		if rig == nil {
			log.Warn("no rig_model configured, frequency step is reported only", "frequency_hz", freqHz)
			return
		}
		if err := rig.SetFrequency(freqHz); err != nil {
			log.Error("retune failed", "error", err)
			return
		}
		log.Info("tuned", "frequency_hz", freqHz)
	}
	retune(freqHz)

	ctx, cancel := interruptContext()
	defer cancel()
	go func() {
		if err := src.Run(ctx); err != nil {
			log.Error("SDR source stopped", "error", err)
		}
	}()

	if err := recv.Pipeline().Start(); err != nil {
		return err
	}
	defer recv.Pipeline().Stop()

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				recv.ExpireStaleRds(now)
			}
		}
	}()

	if mute != nil {
		go func() {
			const noSignalSnrDb = 3.0
			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := mute.SetMuted(recv.PilotSNR() < noSignalSnrDb); err != nil {
						log.Warn("mute line update failed", "error", err)
					}
				}
			}
		}()
	}

	kr, err := keys.Open()
	if err != nil {
		log.Warn("no controlling terminal, running unattended until interrupted", "error", err)
		<-ctx.Done()
		return nil
	}
	defer kr.Close()

	stereo := true
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		ev, err := kr.Read()
		if err != nil {
			return err
		}
		switch {
		case ev.Key == keys.KeyLeft:
			retune(freqHz - frequencyStepHz)
		case ev.Key == keys.KeyRight:
			retune(freqHz + frequencyStepHz)
		case ev.Key == keys.KeyPageDown:
			retune(freqHz - frequencyBandStepHz)
		case ev.Key == keys.KeyPageUp:
			retune(freqHz + frequencyBandStepHz)
		case ev.Key == keys.KeyRune && (ev.Value == 's' || ev.Value == 'S'):
			stereo = !stereo
			if stereo {
				recv.SetStereoWeight(1)
			} else {
				recv.SetStereoWeight(0)
			}
			fmt.Printf("stereo: %v\n", stereo)
		case ev.Key == keys.KeyRune && (ev.Value == 'n' || ev.Value == 'N'):
			fmt.Printf("pilot snr=%.1fdB mono snr=%.1fdB stereo snr=%.1fdB rds snr=%.1fdB\n",
				recv.PilotSNR(), recv.MonoSNR(), recv.StereoSNR(), recv.RdsSNR())
		case ev.Key == keys.KeyRune && (ev.Value == 'r' || ev.Value == 'R'):
			printRdsState(os.Stdout, recv.RdsState())
		case ev.Key == keys.KeyRune && (ev.Value == 'q' || ev.Value == 'x' || ev.Value == 'Q' || ev.Value == 'X'):
			return nil
		}
	}
}

// runScan sweeps the FM broadcast band (87.5-108MHz) in 100kHz steps,
// reporting the frequencies at which the spectrum scanner sees a level
// above the noise floor. Sweeping requires a configured rig_model; with
// none, it reports a single spectrum snapshot at the device's current
// tuned frequency.
func runScan(cfg *config.Config, args []string) error {
	path := cfg.Device.Path
	if len(args) == 1 {
		path = args[0]
	}

	const (
		fftSize         = 1024
		averagingWindow = 8
		scale           = 1 << 20
		thresholdRatio  = 3.0
	)

	rb := pipeline.NewRingBuffer[complex64](1<<16, 0, 0, fftSize, 1)
	reader := pipeline.Connect[complex64](rb, 0, fftSize)
	scanner := fmreceiver.NewSpectrumScanner(reader, fftSize, averagingWindow, scale)

	p := pipeline.New(1)
	p.Add("spectrum_scanner", scanner)

	src, err := device.OpenSdrSource(path, rb)
	if err != nil {
		return err
	}
	defer src.Close()

	ctx, cancel := interruptContext()
	defer cancel()
	go func() {
		_ = src.Run(ctx)
	}()

	if err := p.Start(); err != nil {
		return err
	}
	defer p.Stop()

	var rig *device.RigControl
	if cfg.Device.RigModel != "" {
		model, err := strconv.Atoi(cfg.Device.RigModel)
		if err == nil {
			rig, _ = device.OpenRigControl(model, cfg.Device.RigDevice)
		}
		if rig != nil {
			defer rig.Close()
		}
	}

	report := func() {
		floor := minLevel(scanner)
		for i := 0; i < scanner.LevelsSize(); i++ {
			if scanner.Level(i) > floor*thresholdRatio {
				offsetHz := float64(i-scanner.LevelsSize()/2) * float64(cfg.Device.SampleRate) / float64(fftSize)
				fmt.Printf("bin %d offset=%.0fHz level=%.3f\n", i, offsetHz, scanner.Level(i))
			}
		}
	}

	if rig == nil {
		for !scanner.Ready() {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(50 * time.Millisecond):
			}
		}
		report()
		return nil
	}

	for freq := 87500000.0; freq <= 108000000.0; freq += frequencyStepHz {
		if err := rig.SetFrequency(freq); err != nil {
			return err
		}
		scanner.Reset()
		settleStart := time.Now()
		for !scanner.Ready() {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(10 * time.Millisecond):
			}
			if time.Since(settleStart) > time.Second {
				break
			}
		}
		floor := minLevel(scanner)
		peak := scanner.Level(scanner.LevelsSize() / 2)
		if peak > floor*thresholdRatio {
			fmt.Printf("%.1f MHz: level=%.3f\n", freq/1e6, peak)
		}
	}
	return nil
}

func minLevel(s *fmreceiver.SpectrumScanner) float64 {
	min := s.Level(0)
	for i := 1; i < s.LevelsSize(); i++ {
		if l := s.Level(i); l < min {
			min = l
		}
	}
	return min
}

// runDump captures raw I/Q from the device for the given duration, writing
// a timestamped dump file named by device.DumpFileName.
func runDump(cfg *config.Config, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("dump: expected <frequency_hz> <seconds>")
	}
	freqHz, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("dump: invalid frequency_hz %q: %w", args[0], err)
	}
	seconds, err := strconv.Atoi(args[1])
	if err != nil || seconds <= 0 {
		return fmt.Errorf("dump: invalid seconds %q", args[1])
	}

	if cfg.Device.RigModel != "" {
		model, err := strconv.Atoi(cfg.Device.RigModel)
		if err == nil {
			if rig, err := device.OpenRigControl(model, cfg.Device.RigDevice); err == nil {
				defer rig.Close()
				_ = rig.SetFrequency(freqHz)
			}
		}
	}

	rb := pipeline.NewRingBuffer[complex64](1<<16, 0, 0, 1, 1)
	reader := pipeline.Connect[complex64](rb, 0, 4096)

	name, err := device.DumpFileName(cfg.Device.SampleRate, time.Now())
	if err != nil {
		return err
	}
	sink, err := device.CreateFileIQSink(name, reader)
	if err != nil {
		return err
	}
	defer sink.Close()

	src, err := device.OpenSdrSource(cfg.Device.Path, rb)
	if err != nil {
		return err
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(seconds)*time.Second)
	defer cancel()

	go func() {
		if err := src.Run(ctx); err != nil {
			logging.For(logging.Cli).Error("SDR source stopped", "error", err)
		}
	}()

	if err := sink.Run(ctx); err != nil {
		return err
	}
	fmt.Println(name)
	return nil
}

// runLoad replays a previously captured I/Q file through the full
// receiver graph and plays the decoded audio, for offline review of a
// dump.
func runLoad(cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("load: expected <file_path>")
	}

	recv := fmreceiver.New(workerCount(cfg))

	src, err := device.OpenFileIQSource(args[0], recv.Input())
	if err != nil {
		return err
	}
	defer src.Close()

	left, right := recv.AudioOutputs()
	sink, err := device.OpenAudioSink(left, right, float64(fmreceiver.OutputAudioSamplingRate), 1024)
	if err != nil {
		return err
	}
	defer sink.Close()
	if err := sink.Start(); err != nil {
		return err
	}

	ctx, cancel := interruptContext()
	defer cancel()

	if err := recv.Pipeline().Start(); err != nil {
		return err
	}
	defer recv.Pipeline().Stop()

	runErr := src.Run(ctx)
	if runErr != nil {
		return runErr
	}
	for !recv.Pipeline().Stalled() {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil
}

// captureReport is the JSON shape printed per file by the test command.
type captureReport struct {
	File  string           `json:"file"`
	Stats rds.DecodingStats `json:"stats"`
}

// runTest decodes each given capture file with no audio output and prints
// its final RDS decoding stats as JSON, exiting non-zero if any capture
// never synced a single valid block (a stalled/broken decode).
func runTest(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("test: expected one or more <file_path> arguments")
	}

	reports := make([]captureReport, 0, len(args))
	anyStalled := false

	for _, path := range args {
		recv := fmreceiver.New(workerCount(cfg))

		src, err := device.OpenFileIQSource(path, recv.Input())
		if err != nil {
			return err
		}

		left, right := recv.AudioOutputs()
		drain := func(r *pipeline.Reader[float32]) {
			for {
				n := r.AvailableSize()
				if n == 0 {
					if r.EOF() {
						return
					}
					time.Sleep(10 * time.Millisecond)
					continue
				}
				r.Advance(n)
			}
		}

		if err := recv.Pipeline().Start(); err != nil {
			src.Close()
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() { _ = src.Run(ctx) }()
		go drain(left)
		go drain(right)

		for !recv.Pipeline().Stalled() {
			time.Sleep(10 * time.Millisecond)
		}
		cancel()
		recv.Pipeline().Stop()
		src.Close()

		stats := recv.RdsDecodingStats()
		reports = append(reports, captureReport{File: path, Stats: stats})
		if stats.ValidBlocks == 0 {
			anyStalled = true
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		return err
	}
	if anyStalled {
		return fmt.Errorf("one or more captures never synced a valid RDS block")
	}
	return nil
}

// printRdsState prints every currently-valid field of state in a flat
// key=value form, skipping anything still Invalidate()'d/unset.
func printRdsState(w *os.File, state *rds.State) {
	if state.ProgrammeIdentification.Valid() {
		fmt.Fprintf(w, "pi=%04X\n", state.ProgrammeIdentification.Value())
	}
	if state.ProgrammeType.Valid() {
		fmt.Fprintf(w, "pty=%d\n", state.ProgrammeType.Value())
	}
	if state.TrafficProgramme.Valid() {
		fmt.Fprintf(w, "tp=%v\n", state.TrafficProgramme.Value())
	}
	if state.TrafficAnnouncement.Valid() {
		fmt.Fprintf(w, "ta=%v\n", state.TrafficAnnouncement.Value())
	}
	if state.MusicSpeech.Valid() {
		fmt.Fprintf(w, "music=%v\n", state.MusicSpeech.Value())
	}
	if state.Stereo.Valid() {
		fmt.Fprintf(w, "stereo=%v\n", state.Stereo.Value())
	}
	if ps := renderBytes(state.ProgrammeServiceName); ps != "" {
		fmt.Fprintf(w, "ps=%q\n", ps)
	}
	if rt := renderBytes(state.RadioText); rt != "" {
		fmt.Fprintf(w, "rt=%q\n", rt)
	}
	if state.Country.Valid() && state.Language.Valid() {
		fmt.Fprintf(w, "country=%s language=%s\n", state.Country.Value(), state.Language.Value())
	}
	if state.CurrentTime.Valid() {
		fmt.Fprintf(w, "clock=%s\n", state.CurrentTime.Value().Format(time.RFC3339))
	}
	if ptn := renderBytes(state.ProgrammeTypeName); ptn != "" {
		fmt.Fprintf(w, "ptn=%q\n", ptn)
	}
}

// renderBytes concatenates a slice of per-character byte Values into a
// string, writing a space for each character that is not currently
// valid; it returns "" when no character is valid.
func renderBytes(values []*rds.Value[byte]) string {
	buf := make([]byte, 0, len(values))
	any := false
	for _, v := range values {
		if v == nil || !v.Valid() {
			buf = append(buf, ' ')
			continue
		}
		any = true
		buf = append(buf, v.Value())
	}
	if !any {
		return ""
	}
	return string(buf)
}
