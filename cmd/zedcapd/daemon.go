package main

import (
	"time"

	"zedcapd/internal/camera"
	"zedcapd/internal/capture"
	"zedcapd/internal/gps"
	"zedcapd/internal/ipc"
	"zedcapd/internal/metrics"
	"zedcapd/internal/session"
	"zedcapd/internal/store"
	"zedcapd/internal/video"
)

// daemon bundles the running components behind the IPC control surface.
type daemon struct {
	version    string
	startedAt  time.Time
	gateway    camera.Gateway
	tracker    *gps.Tracker
	receiver   *gps.Receiver
	controller *capture.Controller
	supervisor *session.Supervisor
	videoMgr   *video.Manager
	index      *store.Store
	metrics    *metrics.Metrics
}

func (d *daemon) Status() ipc.StatusResponse {
	resp := ipc.StatusResponse{
		Version:    d.version,
		StartedAt:  d.startedAt,
		Uptime:     time.Since(d.startedAt),
		Session:    d.supervisor.State().String(),
		Controller: d.controller.Status(),
		Settings:   d.controller.Settings(),
	}
	if d.receiver != nil {
		resp.GPSConnected = d.receiver.Connected()
		resp.NMEATail = d.receiver.LastSentences()
	}
	if fix, ok := d.tracker.CurrentFix(); ok {
		f := fix
		resp.GPS = &f
	}
	if info, ok := d.videoMgr.Active(); ok {
		resp.Recording = &info
	}
	return resp
}

func (d *daemon) StartSession() error {
	err := d.supervisor.Start()
	d.updateSessionGauge()
	return err
}

func (d *daemon) StopSession() error {
	err := d.supervisor.Stop()
	d.updateSessionGauge()
	return err
}

func (d *daemon) PauseSession() error {
	err := d.supervisor.Pause()
	d.updateSessionGauge()
	return err
}

func (d *daemon) ResumeSession() error {
	err := d.supervisor.Resume()
	d.updateSessionGauge()
	return err
}

func (d *daemon) updateSessionGauge() {
	d.metrics.SessionState.Set(float64(d.supervisor.State()))
}

func (d *daemon) SingleShot() (capture.Record, error) {
	return d.controller.SingleShot()
}

func (d *daemon) ListCaptures(limit int) ([]capture.Record, error) {
	return d.index.ListCaptures(limit)
}

func (d *daemon) SetPolicy(p capture.Policy) error {
	return d.controller.SetPolicy(p)
}

func (d *daemon) Settings() camera.Settings {
	return d.controller.Settings()
}

func (d *daemon) ApplySettings(s camera.Settings) error {
	return d.controller.ApplySettings(s)
}

func (d *daemon) ResetFault() error {
	return d.controller.Reset()
}

func (d *daemon) StartVideo(opts camera.RecordingOptions) (video.Info, error) {
	return d.videoMgr.Start(opts)
}

func (d *daemon) StopVideo() (video.Info, error) {
	return d.videoMgr.Stop()
}

// captureSink fans a finished record out to the metadata writer and the
// metrics instruments.
type captureSink struct {
	writer  capture.Sink
	metrics *metrics.Metrics
}

func (s captureSink) Write(rec capture.Record) error {
	s.metrics.RecordCapture(rec.Trigger, rec.Sequence)
	return s.writer.Write(rec)
}

// recordingJournal adapts the SQLite store to the video manager.
type recordingJournal struct {
	store *store.Store
}

func (j recordingJournal) RecordingStarted(id, path, codec string, at time.Time) error {
	return j.store.InsertRecording(store.Recording{
		ID: id, Path: path, Codec: codec, Started: at,
	})
}

func (j recordingJournal) RecordingStopped(id string, at time.Time) error {
	return j.store.FinishRecording(id, at)
}
