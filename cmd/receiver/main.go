// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The receiver command collects records relayed by a recorder over
// MQTT or a Redis stream and writes them to local log files in the
// same format as the recorder.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kortschak/ppgrec/internal/config"
	"github.com/kortschak/ppgrec/internal/logger"
	"github.com/kortschak/ppgrec/logsink"
	"github.com/kortschak/ppgrec/transport/mqtt"
	"github.com/kortschak/ppgrec/transport/redis"
)

const streamBlock = 2 * time.Second

func main() {
	os.Exit(Main())
}

func Main() int {
	// The receiver has no sensor.
	args := append([]string{"--source", config.SourceSynth}, os.Args[1:]...)
	cfg, err := config.Load("receiver", args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "receiver: %v\n", err)
		return 2
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "receiver: %v\n", err)
		return 2
	}
	log := logger.New(os.Stderr, level, logger.IsService())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rcv := newReceiver(logsink.New(cfg.BaseDir), logger.Component(log, "receiver"))
	defer func() {
		if err := rcv.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close log")
		}
		records, rejected := rcv.counts()
		log.Info().Int("records", records).Int("rejected", rejected).Msg("receiver stopped")
	}()

	switch cfg.Transport {
	case config.TransportMQTT:
		t, err := mqtt.Dial(mqtt.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}, logger.Component(log, "mqtt"))
		if err != nil {
			log.Error().Err(err).Msg("failed to connect")
			return 1
		}
		defer t.Close()
		err = t.Subscribe(rcv.handle)
		if err != nil {
			log.Error().Err(err).Msg("failed to subscribe")
			return 1
		}
		log.Info().Str("topic", cfg.MQTT.Topic).Msg("subscribed")
		<-ctx.Done()
	case config.TransportRedis:
		t := redis.Dial(cfg.Redis.Addr, cfg.Redis.Stream, logger.Component(log, "redis"))
		defer t.Close()
		log.Info().Str("stream", cfg.Redis.Stream).Msg("following")
		follow(ctx, t, "$", streamBlock, rcv.handle, log)
	default:
		log.Error().Str("transport", cfg.Transport).Msg("receiver requires mqtt or redis transport")
		return 2
	}
	return 0
}
