// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package capture implements a recording session that binds a sensor
// subscription to a log file and an optional wireless link.
//
// A Session is either idle or recording. Start and Stop are idempotent:
// starting a recording session and stopping an idle session are no-ops.
// Sensor callbacks may run concurrently with Start and Stop; a callback
// arriving after Stop is dropped.
package capture

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kortschak/ppgrec/fanout"
	"github.com/kortschak/ppgrec/internal/errors"
	"github.com/kortschak/ppgrec/record"
)

// Source is a sensor event source.
type Source interface {
	// Supported returns whether the source can deliver
	// readings for the mode.
	Supported(mode record.Mode) bool

	// Subscribe starts delivery of readings for mode to fn
	// at approximately the given interval. Sources may
	// deliver at the closest rate the sensor supports. fn
	// may be called from any goroutine, but calls are not
	// concurrent with each other.
	Subscribe(ctx context.Context, mode record.Mode, interval time.Duration, fn func(record.Reading)) (Subscription, error)
}

// Subscription is an active Source subscription.
type Subscription interface {
	// Unsubscribe stops delivery. When Unsubscribe
	// returns no further calls to the subscription's
	// function will be made.
	Unsubscribe() error
}

// LogFile is the session log capability.
type LogFile interface {
	Open(mode record.Mode) (path string, err error)
	Append(line []byte) error
	Close() error
	Status() (path string, records int)
}

// Info describes a completed recording session.
type Info struct {
	Mode    record.Mode
	Path    string
	Start   time.Time
	Stop    time.Time
	Records int
	Stats   map[string]fanout.Stats
}

// History records completed sessions.
type History interface {
	RecordSession(ctx context.Context, info Info) error
}

// Session is a capture session state machine. The zero value is not
// usable; use New.
type Session struct {
	src       Source
	log       LogFile
	transport fanout.Transport
	extra     []fanout.Sink
	history   History
	logger    zerolog.Logger
	now       func() time.Time
	dispatch  *fanout.Dispatcher

	mu      sync.Mutex
	running atomic.Bool
	current atomic.Pointer[snapshot]
	mode    record.Mode
	sub     Subscription
	sinks   []fanout.Sink
	live    *atomic.Bool
	path    string
	started time.Time
}

// snapshot is the mode and log path of a running session.
type snapshot struct {
	mode record.Mode
	path string
}

// Option configures a Session.
type Option func(*Session)

// WithTransport adds a wireless sink delivering over t.
func WithTransport(t fanout.Transport) Option { return func(s *Session) { s.transport = t } }

// WithSinks adds sinks that receive every record after the file and
// wireless sinks.
func WithSinks(sinks ...fanout.Sink) Option {
	return func(s *Session) { s.extra = append(s.extra, sinks...) }
}

// WithHistory records completed sessions to h.
func WithHistory(h History) Option { return func(s *Session) { s.history = h } }

// WithLogger sets the diagnostic logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Session) { s.logger = l } }

// WithClock sets the clock used for session start and stop times.
func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }

// New returns an idle Session reading from src and writing to log.
func New(src Source, log LogFile, opts ...Option) *Session {
	s := &Session{
		src:    src,
		log:    log,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.dispatch = fanout.NewDispatcher(s.logger)
	return s
}

// Start begins recording mode. If the session is already recording
// Start does nothing. Start fails without committing any resource if
// the mode is not supported by the source or the log cannot be opened.
func (s *Session) Start(ctx context.Context, mode record.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		s.logger.Debug().Stringer("mode", s.mode).Stringer("requested", mode).Msg("start ignored: already recording")
		return nil
	}
	errFactory := errors.NewFactory()
	if !mode.Valid() {
		return errFactory.WithData(errors.ErrInvalidMode, mode)
	}
	if !s.src.Supported(mode) {
		return errFactory.WithData(errors.ErrCapability, mode)
	}

	path, err := s.log.Open(mode)
	if err != nil {
		return err
	}

	sinks := []fanout.Sink{fanout.FileSink{Log: s.log}}
	if s.transport != nil {
		sinks = append(sinks, fanout.WirelessSink{Transport: s.transport})
	}
	sinks = append(sinks, s.extra...)
	s.dispatch.Reset()
	channel := mode.Channel()
	live := new(atomic.Bool)
	live.Store(true)
	sub, err := s.src.Subscribe(ctx, mode, mode.Interval(), func(r record.Reading) {
		if !live.Load() {
			return
		}
		s.dispatch.Dispatch(record.NewSample(channel, r), sinks...)
	})
	if err != nil {
		live.Store(false)
		if cerr := s.log.Close(); cerr != nil {
			s.logger.Warn().Err(cerr).Str("path", path).Msg("failed to close log after subscribe failure")
		}
		return errFactory.Wrap(errors.ErrSubscribe, err).WithData(mode)
	}

	s.mode = mode
	s.sub = sub
	s.sinks = sinks
	s.live = live
	s.path = path
	s.started = s.now()
	s.current.Store(&snapshot{mode: mode, path: path})
	s.running.Store(true)
	s.logger.Info().Stringer("mode", mode).Str("path", path).Dur("interval", mode.Interval()).Msg("recording started")
	return nil
}

// Stop ends the current recording. If the session is idle Stop does
// nothing. The sensor subscription is cancelled before the log is
// closed. The session is idle when Stop returns, even if an error is
// returned.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return nil
	}

	var unsubErr error
	if err := s.sub.Unsubscribe(); err != nil {
		unsubErr = errors.Wrap(errors.ErrUnsubscribe, err)
	}
	s.live.Store(false)
	_, records := s.log.Status()
	closeErr := s.log.Close()

	info := Info{
		Mode:    s.mode,
		Path:    s.path,
		Start:   s.started,
		Stop:    s.now(),
		Records: records,
		Stats:   make(map[string]fanout.Stats, len(s.sinks)),
	}
	for _, sink := range s.sinks {
		info.Stats[sink.Name()] = s.dispatch.Stats(sink.Name())
	}
	s.sub = nil
	s.sinks = nil
	s.live = nil
	s.path = ""
	s.current.Store(nil)
	s.running.Store(false)

	err := errors.Join(unsubErr, closeErr)
	level := zerolog.InfoLevel
	if err != nil {
		level = zerolog.WarnLevel
	}
	s.logger.WithLevel(level).Err(err).
		Stringer("mode", info.Mode).
		Str("path", info.Path).
		Int("records", info.Records).
		Uint64("wireless_failed", info.Stats["wireless"].Failed).
		Dur("duration", info.Stop.Sub(info.Start)).
		Msg("recording stopped")

	if s.history != nil {
		if herr := s.history.RecordSession(context.Background(), info); herr != nil {
			s.logger.Warn().Err(herr).Msg("failed to record session history")
		}
	}
	return err
}

// Close stops any running recording. It is intended for application
// teardown.
func (s *Session) Close() error { return s.Stop() }

// Running returns whether the session is recording.
func (s *Session) Running() bool { return s.running.Load() }

// Status returns the current mode, log path and number of records
// written. The mode is zero when the session is idle. Status does not
// wait for a Start or Stop in progress.
func (s *Session) Status() (mode record.Mode, path string, records int) {
	c := s.current.Load()
	if c == nil {
		return 0, "", 0
	}
	_, records = s.log.Status()
	return c.mode, c.path, records
}

// Stats returns the delivery counts for the named sink, for example
// "file" or "wireless", in the current or most recent session.
func (s *Session) Stats(sink string) fanout.Stats { return s.dispatch.Stats(sink) }
