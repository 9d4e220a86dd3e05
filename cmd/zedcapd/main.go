// zedcapd is the stereo camera capture daemon: it drives timed and
// distance-based captures from a ZED-family camera, tags each image set
// with the current GPS fix, and exposes a control socket for the CLI.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zedcapd/internal/camera"
	"zedcapd/internal/capture"
	"zedcapd/internal/config"
	"zedcapd/internal/gps"
	"zedcapd/internal/health"
	"zedcapd/internal/ipc"
	"zedcapd/internal/logging"
	"zedcapd/internal/metadata"
	"zedcapd/internal/metrics"
	"zedcapd/internal/session"
	"zedcapd/internal/store"
	"zedcapd/internal/video"
)

const version = "1.0.0"

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file (TOML, JSON, or YAML)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("zedcapd", version)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "zedcapd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	defer loader.Close()

	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()
	logging.SetDefault(log)

	log.Info("starting zedcapd", "version", version)

	// Capture index. Sequence numbering continues from the last run.
	index, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer index.Close()

	lastSeq, err := index.LastSequence()
	if err != nil {
		return err
	}

	// Camera gateway. Hardware SDK bindings register themselves the same
	// way; the simulator is the in-tree default.
	sim := camera.NewSim(camera.SimConfig{
		OutputDir:  cfg.Capture.OutputDir,
		FilePrefix: cfg.Capture.FilePrefix,
	}, log)
	if err := sim.ApplySettings(cfg.Camera.Settings); err != nil {
		return fmt.Errorf("initial camera settings: %w", err)
	}
	var gateway camera.Gateway = sim
	var recorder camera.Recorder = sim

	// GPS receiver.
	m := metrics.New()
	tracker := gps.NewTracker()
	var receiver *gps.Receiver
	if cfg.GPS.Enabled {
		receiver = gps.NewReceiver(tracker, log)
		receiver.OnFix(func(f gps.Fix) {
			m.RecordFix(f.Quality.String())
		})
		if err := receiver.Connect(cfg.GPS.Port, cfg.GPS.Baud); err != nil {
			// The daemon still serves time-based sessions without GPS.
			log.Error("gps connect failed, captures will carry no fix", "error", err)
			receiver = nil
		}
	}

	// Metadata sidecars plus metrics, fed by every capture.
	writer, err := metadata.NewWriter(cfg.Capture.OutputDir, log)
	if err != nil {
		return err
	}
	sink := captureSink{writer: writer, metrics: m}

	controller := capture.NewController(gateway, tracker, sink, log,
		capture.WithIndex(index),
		capture.WithStartSequence(lastSeq),
		capture.WithObserver(m),
	)
	if err := controller.SetPolicy(cfg.TriggerPolicy()); err != nil {
		return fmt.Errorf("initial policy: %w", err)
	}

	supOpts := []session.Option{session.WithJournal(index)}
	if receiver != nil {
		supOpts = append(supOpts, session.WithFixUpdates(receiver.Updates()))
	}
	supervisor := session.NewSupervisor(controller,
		session.Config{TickInterval: cfg.TickInterval()}, log, supOpts...)

	videoMgr := video.NewManager(recorder, cfg.Video.OutputDir, log,
		video.WithJournal(recordingJournal{store: index}))

	d := &daemon{
		version:    version,
		startedAt:  time.Now(),
		gateway:    gateway,
		tracker:    tracker,
		receiver:   receiver,
		controller: controller,
		supervisor: supervisor,
		videoMgr:   videoMgr,
		index:      index,
		metrics:    m,
	}

	// Hot-reload: camera settings and trigger policy follow config edits;
	// paths and listeners need a restart.
	loader.OnChange(func(newCfg *config.Config) {
		if err := controller.ApplySettings(newCfg.Camera.Settings); err != nil {
			log.Error("reloaded camera settings rejected", "error", err)
		}
		if err := controller.SetPolicy(newCfg.TriggerPolicy()); err != nil {
			log.Error("reloaded policy rejected", "error", err)
		}
	})
	if configPath != "" {
		if err := loader.Watch(); err != nil {
			log.Warn("config watch unavailable", "error", err)
		}
	}
	go func() {
		for err := range loader.Errors() {
			log.Error("config reload failed", "error", err)
		}
	}()

	// Control socket.
	server := ipc.NewServer(cfg.IPC.SocketPath, ipc.NewDaemonHandler(d), log)
	if err := server.Start(); err != nil {
		return err
	}
	defer server.Stop()

	// Health and metrics over HTTP, if configured.
	checker := health.NewChecker()
	checker.Register(&health.Component{Name: "camera", Critical: true, Check: health.CameraCheck(gateway)})
	checker.Register(&health.Component{Name: "store", Critical: true, Check: health.StoreCheck(index)})
	if receiver != nil {
		checker.Register(&health.Component{Name: "gps", Check: health.GPSCheck(tracker, cfg.MaxFixAge())})
	}
	checker.SetReady(true)

	var httpSrv *http.Server
	if cfg.HTTP.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		mux.Handle("/healthz", checker.Handler())
		mux.Handle("/readyz", checker.ReadinessHandler())
		httpSrv = &http.Server{Addr: cfg.HTTP.Addr, Handler: mux}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("http server failed", "error", err)
			}
		}()
		log.Info("http endpoints listening", "addr", cfg.HTTP.Addr)
	}

	// Gauge refresh loop.
	gaugeDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gaugeDone:
				return
			case <-ticker.C:
				m.DistanceM.Set(tracker.DistanceSinceReference())
				m.SessionState.Set(float64(supervisor.State()))
			}
		}
	}()

	log.Info("daemon ready", "socket", cfg.IPC.SocketPath,
		"policy", cfg.TriggerPolicy().String(), "output", cfg.Capture.OutputDir)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan
	log.Info("shutting down", "signal", sig.String())

	close(gaugeDone)
	if httpSrv != nil {
		httpSrv.Close()
	}
	if _, ok := videoMgr.Active(); ok {
		if _, err := videoMgr.Stop(); err != nil {
			log.Error("recording finalize failed", "error", err)
		}
	}
	if err := supervisor.Stop(); err != nil {
		log.Error("session stop failed", "error", err)
	}
	if receiver != nil {
		receiver.Close()
	}
	return nil
}

func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	return logging.New(&logging.Config{
		Level:     level,
		Format:    format,
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		Component: "zedcapd",
	})
}
