package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"go1090/internal/adsb"
	"go1090/internal/basestation"
	"go1090/internal/demod"
	"go1090/internal/history"
	"go1090/internal/logging"
	"go1090/internal/rtlsdr"
	"go1090/internal/tracker"
)

// Application wires the capture → demodulate → decode → track →
// persist pipeline together and owns its lifecycle.
type Application struct {
	config  Config
	logger  *logrus.Logger
	verbose bool

	rtlsdr      *rtlsdr.RTLSDRDevice
	demodulator *demod.Demodulator
	tracker     *tracker.Tracker
	history     *history.Store
	logRotator  *logging.LogRotator
	baseStation *basestation.Writer
	dumpFile    *os.File

	candidateMu sync.RWMutex
	candidates  []uint32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewApplication creates an Application from config. It performs no I/O;
// see Start.
func NewApplication(config Config) *Application {
	ctx, cancel := context.WithCancel(context.Background())

	logger := logrus.New()
	if config.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	return &Application{
		config:  config,
		logger:  logger,
		verbose: config.Verbose,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start initializes every component, runs the pipeline until a shutdown
// signal arrives, and then drains cleanly.
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	}).Info("starting go1090")

	if err := app.initializeComponents(); err != nil {
		return fmt.Errorf("initialize components: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.run(); err != nil {
		app.logger.WithError(err).Error("application error")
		return err
	}

	<-sigChan
	app.logger.Info("received shutdown signal")
	app.shutdown()

	return nil
}

func (app *Application) initializeComponents() error {
	var err error

	app.rtlsdr, err = rtlsdr.NewRTLSDRDevice(app.config.DeviceIndex)
	if err != nil {
		return fmt.Errorf("initialize RTL-SDR: %w", err)
	}
	if err := app.rtlsdr.Configure(app.config.Frequency, adsb.SampleRateHz, app.config.Gain); err != nil {
		return fmt.Errorf("configure RTL-SDR: %w", err)
	}

	app.demodulator = demod.New(app.config.SnipLevel, app.config.CRCCheck, app.config.FixErrors)

	anchor := tracker.Anchor{Lat: app.config.ReceiverLat, Lon: app.config.ReceiverLon, Set: app.config.ReceiverSet}
	maxRange := app.config.MaxRangeNM
	if maxRange == 0 {
		maxRange = DefaultMaxRangeNM
	}
	app.tracker = tracker.New(anchor, maxRange)

	dbPath := app.config.DBPath
	if dbPath == "" {
		dbPath = DefaultDBPath
	}
	app.history, err = history.Open(dbPath, app.logger)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	app.tracker.OnSighting(app.saveSighting)

	app.logRotator, err = logging.NewLogRotator(app.config.LogDir, app.config.LogRotateUTC, app.logger)
	if err != nil {
		return fmt.Errorf("initialize log rotator: %w", err)
	}

	writer, err := app.logRotator.GetWriter()
	if err != nil {
		return fmt.Errorf("get log writer: %w", err)
	}
	app.baseStation = basestation.New(writer, app.logger, 1, 1)

	if app.config.DumpRaw != "" {
		app.dumpFile, err = os.OpenFile(app.config.DumpRaw, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open raw dump file: %w", err)
		}
	}

	app.refreshCandidates()

	return nil
}

func (app *Application) saveSighting(state tracker.AircraftState) {
	sighting := history.Sighting{
		ICAO:     adsbHexICAO(state.ICAO),
		Callsign: state.Callsign,
		Squawk:   state.Squawk,
		SeenAt:   state.LastSeen,
	}
	if state.HasPosition {
		lat, lon, alt := state.Lat, state.Lon, state.Altitude
		sighting.Lat, sighting.Lon, sighting.AltitudeFt = &lat, &lon, &alt
	}
	if state.HasVelocity {
		gs, hdg := state.GroundSpeed, state.Heading
		sighting.GroundSpeedKt, sighting.HeadingDeg = &gs, &hdg
	}
	if state.HasSignal {
		s := state.SignalStrength
		sighting.SignalStrength = &s
	}

	if err := app.history.SaveSighting(sighting); err != nil {
		app.logger.WithError(err).WithField("icao", sighting.ICAO).Warn("save sighting failed")
	}
}

func adsbHexICAO(v uint32) string {
	const hex = "0123456789ABCDEF"
	var b [6]byte
	for i := 5; i >= 0; i-- {
		b[i] = hex[v&0xF]
		v >>= 4
	}
	return string(b[:])
}

func (app *Application) run() error {
	dataChan := make(chan []byte, 100)

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		if err := app.rtlsdr.StartCapture(app.ctx, dataChan); err != nil {
			app.logger.WithError(err).Error("RTL-SDR capture failed")
		}
	}()

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.logRotator.Start(app.ctx)
	}()

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.processIQData(dataChan)
	}()

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.exportSnapshots()
	}()

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.refreshCandidatesLoop()
	}()

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.reportStatistics()
	}()

	app.logger.Info("pipeline started")
	return nil
}

func (app *Application) processIQData(dataChan <-chan []byte) {
	for {
		select {
		case <-app.ctx.Done():
			app.logger.Info("I/Q processing stopped")
			return
		case data := <-dataChan:
			if data == nil {
				continue
			}
			if app.dumpFile != nil {
				if _, err := app.dumpFile.Write(data); err != nil {
					app.logger.WithError(err).Debug("raw dump write failed")
				}
			}
			app.handleBuffer(data)
		}
	}
}

func (app *Application) handleBuffer(data []byte) {
	samples := bytesToIQ(data)
	now := time.Now().UTC()

	for _, frame := range app.demodulator.Process(samples, now) {
		msg := adsb.Decode(frame.Raw, frame.BitLen, frame.Signal, frame.Timestamp, app.config.CRCCheck, app.config.FixErrors)

		if msg.BitLen == adsb.ShortMessageBits && !msg.ICAORecovered {
			if !msg.ApplyICAORecovery(app.snapshotCandidates()) {
				continue // filtered: no candidate ICAO matches the AP field
			}
		}
		if !msg.CRCValid {
			continue
		}
		if app.config.ShowOnly != "" && msg.HexICAO() != app.config.ShowOnly {
			continue
		}

		app.tracker.Update(msg)
	}
}

// bytesToIQ converts unsigned 8-bit I/Q byte pairs (127.5 offset) into
// normalized complex samples.
func bytesToIQ(data []byte) []complex128 {
	samples := make([]complex128, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		iSample := (float64(data[i]) - 127.5) / 127.5
		qSample := (float64(data[i+1]) - 127.5) / 127.5
		samples[i/2] = complex(iSample, qSample)
	}
	return samples
}

func (app *Application) snapshotCandidates() []uint32 {
	app.candidateMu.RLock()
	defer app.candidateMu.RUnlock()
	return app.candidates
}

func (app *Application) refreshCandidates() {
	live := app.tracker.Candidates()

	seen := make(map[uint32]bool, len(live))
	merged := make([]uint32, 0, len(live))
	for _, icao := range live {
		seen[icao] = true
		merged = append(merged, icao)
	}

	if app.history != nil {
		recent, err := app.history.RecentICAOs(adsb.ICAOCandidateHours)
		if err != nil {
			app.logger.WithError(err).Debug("recent icao query failed")
		} else {
			for _, hex := range recent {
				v, err := parseHexICAO(hex)
				if err != nil || seen[v] {
					continue
				}
				seen[v] = true
				merged = append(merged, v)
			}
		}
	}

	app.candidateMu.Lock()
	app.candidates = merged
	app.candidateMu.Unlock()
}

func parseHexICAO(s string) (uint32, error) {
	var v uint32
	if _, err := fmt.Sscanf(s, "%06X", &v); err != nil {
		return 0, err
	}
	return v, nil
}

func (app *Application) refreshCandidatesLoop() {
	ticker := time.NewTicker(adsb.ICAOCandidateRefreshSec * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			app.refreshCandidates()
		}
	}
}

func (app *Application) exportSnapshots() {
	_, unsubscribe := app.subscribeBaseStation()
	defer unsubscribe()

	<-app.ctx.Done()
}

func (app *Application) subscribeBaseStation() (<-chan tracker.Event, func()) {
	ch, unsub := app.tracker.Subscribe(64)

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		for ev := range ch {
			if err := app.baseStation.WriteSnapshot(ev.Snapshot); err != nil {
				app.logger.WithError(err).Debug("basestation export failed")
			}
		}
	}()

	return ch, unsub
}

func (app *Application) reportStatistics() {
	ticker := time.NewTicker(adsb.WebsocketBroadcastSec * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			stats := app.demodulator.Stats.Snapshot()
			snaps := app.tracker.Sweep(time.Now().UTC())
			app.logger.WithFields(logrus.Fields{
				"samples_processed": stats.SamplesProcessed,
				"preambles_seen":    stats.PreamblesSeen,
				"long_decoded":      stats.LongDecoded,
				"short_decoded":     stats.ShortDecoded,
				"frames_rejected":   stats.FramesRejected,
				"aircraft_tracked":  len(snaps),
			}).Info("pipeline statistics")
		}
	}
}

func (app *Application) shutdown() {
	app.logger.Info("shutting down")
	app.cancel()

	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		app.logger.Info("all goroutines finished")
	case <-time.After(5 * time.Second):
		app.logger.Warn("shutdown timeout, forcing exit")
	}

	if app.rtlsdr != nil {
		app.rtlsdr.Close()
	}
	if app.logRotator != nil {
		app.logRotator.Close()
	}
	if app.history != nil {
		app.history.Close()
	}
	if app.dumpFile != nil {
		app.dumpFile.Close()
	}

	app.logger.Info("shutdown completed")
}
