// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kortschak/ppgrec/logsink"
	"github.com/kortschak/ppgrec/record"
	"github.com/kortschak/ppgrec/transport/redis"
)

func TestReceiverHandle(t *testing.T) {
	fs := afero.NewMemMapFs()
	now := time.Date(2024, time.March, 5, 7, 8, 9, 0, time.Local)
	clock := func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	rcv := newReceiver(logsink.New("/logs", logsink.WithFs(fs), logsink.WithClock(clock)), zerolog.Nop())

	for _, line := range []string{
		"HR,2000000,72.35,2\r\n",
		"HR,2500000,73.1,2",
		"not a record",
		"RR,3000000,829.00,2\r\n",
	} {
		rcv.handle([]byte(line))
	}
	require.NoError(t, rcv.Close())

	records, rejected := rcv.counts()
	assert.Equal(t, 3, records)
	assert.Equal(t, 1, rejected)

	hr, err := afero.ReadFile(fs, filepath.Join("/logs", "20240305070810_hr_log.txt"))
	require.NoError(t, err)
	assert.Equal(t, record.Header+"HR,2000000,72.35,2\r\nHR,2500000,73.10,2\r\n", string(hr))

	rr, err := afero.ReadFile(fs, filepath.Join("/logs", "20240305070811_rr_log.txt"))
	require.NoError(t, err)
	assert.Equal(t, record.Header+"RR,3000000,829.00,2\r\n", string(rr))
}

func TestModeFor(t *testing.T) {
	assert.Equal(t, record.PPGSignal, modeFor(record.PPG))
	assert.Equal(t, record.HRValue, modeFor(record.HR))
	assert.Equal(t, record.RRSignal, modeFor(record.RR))
}

type fakeStream struct {
	mu      sync.Mutex
	entries []redis.Entry
	afters  []string
	fail    int
}

func (s *fakeStream) Read(ctx context.Context, after string, count int64, block time.Duration) ([]redis.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.afters = append(s.afters, after)
	if s.fail > 0 {
		s.fail--
		return nil, errors.New("connection refused")
	}
	if len(s.entries) == 0 {
		return nil, nil
	}
	n := min(int(count), len(s.entries))
	e := s.entries[:n]
	s.entries = s.entries[n:]
	return e, nil
}

func TestFollow(t *testing.T) {
	src := &fakeStream{entries: []redis.Entry{
		{ID: "1-0", Line: "HR,2000000,72.35,2\r\n"},
		{ID: "2-0", Line: "HR,2500000,73.10,2\r\n"},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	var got []string
	follow(ctx, src, "0", 0, func(b []byte) {
		got = append(got, strings.TrimSpace(string(b)))
		if len(got) == 2 {
			cancel()
		}
	}, zerolog.Nop())
	assert.Equal(t, []string{"HR,2000000,72.35,2", "HR,2500000,73.10,2"}, got)
	assert.Equal(t, []string{"0"}, src.afters)

	src = &fakeStream{fail: 1}
	ctx, cancel = context.WithTimeout(context.Background(), retryDelay/2)
	defer cancel()
	follow(ctx, src, "5-0", 0, func([]byte) {}, zerolog.Nop())
	assert.Equal(t, []string{"5-0"}, src.afters, "should wait before retrying")
}
