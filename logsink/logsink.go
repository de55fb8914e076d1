// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package logsink implements the append-only log file written during a
// capture session.
package logsink

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/kortschak/ppgrec/internal/errors"
	"github.com/kortschak/ppgrec/record"
)

const (
	dirPerm  = 0o700
	filePerm = 0o644

	// Suffix is appended to every log file name.
	Suffix = "_log.txt"

	timeLayout = "20060102150405"
)

// Log is a session log file. A Log may be opened and closed repeatedly;
// each Open starts a new file. All methods are safe for concurrent use.
type Log struct {
	fs   afero.Fs
	dir  string
	now  func() time.Time
	sync bool

	mu   sync.Mutex
	file afero.File
	w    *bufio.Writer
	path string
	n    int
}

// Option configures a Log.
type Option func(*Log)

// WithFs sets the filesystem the log is written to. The default is
// the operating system's filesystem.
func WithFs(fs afero.Fs) Option { return func(l *Log) { l.fs = fs } }

// WithClock sets the clock used to name log files.
func WithClock(now func() time.Time) Option { return func(l *Log) { l.now = now } }

// WithSync sets whether every append is flushed to the file. Appends
// are flushed by default; without sync, lines are buffered until Close.
func WithSync(sync bool) Option { return func(l *Log) { l.sync = sync } }

// New returns a closed Log writing files into dir.
func New(dir string, opts ...Option) *Log {
	l := &Log{
		fs:   afero.NewOsFs(),
		dir:  dir,
		now:  time.Now,
		sync: true,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Path returns the path of the log file for mode opened at time t.
func Path(dir string, mode record.Mode, t time.Time) string {
	return filepath.Join(dir, t.Format(timeLayout)+"_"+mode.Label()+Suffix)
}

// Open creates the log directory if needed, opens a new log file for
// mode and writes the header. Open on an already open Log closes the
// previous file first.
func (l *Log) Open(mode record.Mode) (path string, err error) {
	errFactory := errors.NewFactory()
	if !mode.Valid() {
		return "", errFactory.WithData(errors.ErrInvalidMode, mode)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		if err := l.close(); err != nil {
			return "", err
		}
	}

	err = l.fs.MkdirAll(l.dir, dirPerm)
	if err != nil {
		return "", errFactory.Wrap(errors.ErrIO, err).WithData(l.dir)
	}
	path = Path(l.dir, mode, l.now().Local())
	f, err := l.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return "", errFactory.Wrap(errors.ErrIO, err).WithData(path)
	}
	w := bufio.NewWriterSize(f, 4096)
	_, err = w.WriteString(record.Header)
	if err == nil {
		err = w.Flush()
	}
	if err != nil {
		f.Close()
		return "", errFactory.Wrap(errors.ErrIO, err).WithData(path)
	}
	l.file = f
	l.w = w
	l.path = path
	l.n = 0
	return path, nil
}

// Append writes line to the open log file. If no file is open the
// line is silently dropped.
func (l *Log) Append(line []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	_, err := l.w.Write(line)
	if err == nil && l.sync {
		err = l.w.Flush()
	}
	if err != nil {
		// A bufio.Writer keeps its first write error, so discard
		// the unwritten lines and start over on the same file.
		l.w.Reset(l.file)
		return errors.Wrap(errors.ErrIO, err).WithData(l.path)
	}
	l.n++
	return nil
}

// Close flushes and closes the open log file. Close on a closed Log
// is a no-op.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.close()
}

func (l *Log) close() error {
	err := l.w.Flush()
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	path := l.path
	l.file = nil
	l.w = nil
	l.path = ""
	if err != nil {
		return errors.Wrap(errors.ErrIO, err).WithData(path)
	}
	return nil
}

// IsOpen returns whether a log file is open.
func (l *Log) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file != nil
}

// Status returns the path of the current log file and the number of
// records appended to it. The path is empty when the Log is closed.
func (l *Log) Status() (path string, records int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path, l.n
}
