// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"tinygo.org/x/bluetooth"

	"github.com/kortschak/ppgrec/battery"
	"github.com/kortschak/ppgrec/capture"
	"github.com/kortschak/ppgrec/export"
	"github.com/kortschak/ppgrec/fanout"
	"github.com/kortschak/ppgrec/heart"
	"github.com/kortschak/ppgrec/history"
	"github.com/kortschak/ppgrec/internal/config"
	"github.com/kortschak/ppgrec/internal/errors"
	"github.com/kortschak/ppgrec/internal/forkbeard"
	"github.com/kortschak/ppgrec/internal/logger"
	"github.com/kortschak/ppgrec/logsink"
	"github.com/kortschak/ppgrec/pmd"
	"github.com/kortschak/ppgrec/record"
	"github.com/kortschak/ppgrec/relay"
	"github.com/kortschak/ppgrec/synth"
	"github.com/kortschak/ppgrec/transport/ble"
	"github.com/kortschak/ppgrec/transport/mqtt"
	"github.com/kortschak/ppgrec/transport/redis"
)

const (
	// https://bitbucket.org/bluetooth-SIG/public/src/05be78f4ef6461cce0370663adf778613a1754eb/assigned_numbers/company_identifiers/company_identifiers.yaml#lines-11148:11149
	polarElectroOY = 0x6b

	connectTimeout = 30 * time.Second
	batteryPeriod  = time.Minute
	previewLength  = 512
)

// recorder owns the sensor connection, the capture session and its
// delivery paths.
type recorder struct {
	log     zerolog.Logger
	fs      afero.Fs
	session *capture.Session
	preview *preview
	history *history.Repository
	dev     *bluetooth.Device

	// closers are closed in reverse order after the
	// session has stopped.
	closers []io.Closer
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	last    capture.Info
	battery battery.Status
	closed  bool
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func newRecorder(ctx context.Context, cfg *config.Config, log zerolog.Logger) (_ *recorder, err error) {
	ctx, cancel := context.WithCancel(ctx)
	r := &recorder{
		log:     log,
		fs:      afero.NewOsFs(),
		preview: newPreview(previewLength),
		cancel:  cancel,
	}
	defer func() {
		if err != nil {
			r.Close()
		}
	}()

	var adapter *bluetooth.Adapter
	if cfg.Source != config.SourceSynth || cfg.Transport == config.TransportBLE {
		adapter = bluetooth.DefaultAdapter
		err = adapter.Enable()
		if err != nil {
			return nil, errors.Wrap(errors.ErrConnect, err).WithMessage("failed to enable bluetooth")
		}
	}

	src, bleOpts, err := r.source(ctx, cfg, adapter)
	if err != nil {
		return nil, err
	}

	opts := []capture.Option{
		capture.WithLogger(logger.Component(log, "capture")),
		capture.WithHistory(r),
		capture.WithSinks(r.preview),
	}
	t, err := r.transport(cfg, adapter, bleOpts)
	if err != nil {
		return nil, err
	}
	if t != nil {
		rl := relay.New(t, cfg.RelayDepth, logger.Component(log, "relay"))
		r.closers = append(r.closers, closerFunc(func() error {
			err := rl.Close()
			st := rl.Stats()
			log.Info().Uint64("sent", st.Sent).Uint64("dropped", st.Dropped).Uint64("failed", st.Failed).Msg("relay closed")
			return err
		}))
		opts = append(opts, capture.WithTransport(rl))
	}

	if cfg.HistoryDB != "" {
		r.history, err = history.Open(ctx, cfg.HistoryDB, logger.Component(log, "history"))
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, r.history)
	}

	r.session = capture.New(src, logsink.New(cfg.BaseDir, logsink.WithFs(r.fs)), opts...)

	if r.dev != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			battery.Watch(ctx, func() (int, error) { return battery.Level(r.dev) }, batteryPeriod, cfg.BatteryLow, r.batteryStatus)
		}()
	}
	return r, nil
}

// source connects to the configured sensor and returns its capture
// source and the options needed to keep the sensor out of the peer
// count of a bluetooth transport.
func (r *recorder) source(ctx context.Context, cfg *config.Config, adapter *bluetooth.Adapter) (capture.Source, []ble.Option, error) {
	if cfg.Source == config.SourceSynth {
		return synth.New(synth.WithLogger(logger.Component(r.log, "synth"))), nil, nil
	}

	var addr bluetooth.Address
	err := addr.UnmarshalText([]byte(cfg.Addr))
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrInvalidConfig, err).WithData(cfg.Addr)
	}
	company := -1
	if cfg.Source == config.SourcePMD {
		company = polarElectroOY
	}
	r.log.Info().Str("addr", cfg.Addr).Msg("scanning")
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	dev, err := forkbeard.Connect(connectCtx, adapter, addr, company)
	cancel()
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrConnect, err).WithData(cfg.Addr)
	}
	r.dev = &dev
	r.closers = append(r.closers, closerFunc(dev.Disconnect))
	r.log.Info().Str("addr", cfg.Addr).Msg("connected")

	var src capture.Source = heart.NewSource(r.dev, logger.Component(r.log, "heart"))
	if cfg.Source == config.SourcePMD {
		l, err := pmd.NewListener(r.dev)
		if err != nil {
			return nil, nil, errors.Wrap(errors.ErrConnect, err).WithMessage("failed to create measurement listener")
		}
		r.closers = append(r.closers, l)
		r.log.Info().Stringer("features", l.Features()).Msg("measurement features")
		src = capture.Multi(pmd.NewSource(l, logger.Component(r.log, "pmd")), src)
	}
	return src, []ble.Option{ble.Ignore(addr)}, nil
}

// transport returns the configured wireless transport, or nil if
// records are only logged.
func (r *recorder) transport(cfg *config.Config, adapter *bluetooth.Adapter, opts []ble.Option) (fanout.Transport, error) {
	switch cfg.Transport {
	case config.TransportBLE:
		return ble.Advertise(adapter, cfg.BLE.Name, logger.Component(r.log, "ble"), opts...)
	case config.TransportMQTT:
		t, err := mqtt.Dial(mqtt.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}, logger.Component(r.log, "mqtt"))
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, t)
		return t, nil
	case config.TransportRedis:
		t := redis.Dial(cfg.Redis.Addr, cfg.Redis.Stream, logger.Component(r.log, "redis"), redis.WithMaxLen(cfg.Redis.MaxLen))
		r.closers = append(r.closers, t)
		return t, nil
	}
	return nil, nil
}

// RecordSession retains info for export and forwards it to the
// history repository if one is configured.
func (r *recorder) RecordSession(ctx context.Context, info capture.Info) error {
	r.mu.Lock()
	r.last = info
	r.mu.Unlock()

	r.log.Info().
		Stringer("mode", info.Mode).
		Str("path", info.Path).
		Int("records", info.Records).
		Dur("duration", info.Stop.Sub(info.Start)).
		Msg("recording complete")
	if r.history == nil {
		return nil
	}
	return r.history.RecordSession(ctx, info)
}

// lastLog returns the path of the most recently completed log.
func (r *recorder) lastLog() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last.Path, r.last.Path != ""
}

func (r *recorder) batteryStatus(s battery.Status, err error) {
	if err != nil {
		r.log.Debug().Err(err).Msg("failed to read battery level")
		return
	}
	r.mu.Lock()
	r.battery = s
	r.mu.Unlock()
	if s.Low {
		r.log.Warn().Stringer("battery", s).Msg("sensor battery low")
		return
	}
	r.log.Info().Stringer("battery", s).Msg("sensor battery")
}

// status returns a one line description of the recorder state.
func (r *recorder) status() string {
	r.mu.Lock()
	bat := r.battery
	r.mu.Unlock()
	var s string
	if mode, path, n := r.session.Status(); mode != 0 {
		s = fmt.Sprintf("recording %s: %d records to %s", mode, n, path)
	} else {
		s = "idle"
	}
	if bat.Level != 0 {
		s += " battery " + bat.String()
	}
	return s
}

func (r *recorder) start(ctx context.Context, mode record.Mode) error {
	err := r.session.Start(ctx, mode)
	if err != nil {
		return err
	}
	_, path, _ := r.session.Status()
	r.log.Info().Stringer("mode", mode).Str("path", path).Msg("recording")
	return nil
}

func (r *recorder) stop() error {
	return r.session.Stop()
}

// runHeadless records mode until ctx is done or, if d is positive,
// until d has elapsed.
func (r *recorder) runHeadless(ctx context.Context, mode record.Mode, d time.Duration) error {
	err := r.start(ctx, mode)
	if err != nil {
		return err
	}
	wait := ctx
	if d > 0 {
		var cancel context.CancelFunc
		wait, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	<-wait.Done()
	return r.stop()
}

// export writes an xlsx rendering of the log at path to w.
func (r *recorder) export(path string, w io.Writer) (export.Summary, error) {
	f, err := r.fs.Open(path)
	if err != nil {
		return export.Summary{}, errors.Wrap(errors.ErrIO, err).WithData(path)
	}
	defer f.Close()
	return export.Write(w, f, time.Local, logger.Component(r.log, "export"))
}

// Close stops any recording and releases the sensor and transports.
func (r *recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	var errs []error
	if r.session != nil {
		errs = append(errs, r.session.Close())
	}
	r.cancel()
	r.wg.Wait()
	for _, c := range slices.Backward(r.closers) {
		errs = append(errs, c.Close())
	}
	return stderrors.Join(errs...)
}
