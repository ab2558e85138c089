// Copyright 2020-2021 The OS-NVR Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; version 2.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package log

import (
	"context"
	"testing"
	"time"
)

func newTestLogger(t *testing.T) (context.Context, *Logger) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := NewMockLogger()
	if err := logger.Start(ctx); err != nil {
		t.Fatalf("start logger: %v", err)
	}
	return ctx, logger
}

func TestLoggerSubscribeReceivesEvent(t *testing.T) {
	_, logger := newTestLogger(t)

	feed, cancel := logger.Subscribe()
	defer cancel()

	go logger.Error().Src("app").Track(3).Msg("boom")

	got := <-feed
	if got.Level != LevelError {
		t.Fatalf("level: expected %v, got %v", LevelError, got.Level)
	}
	if got.Src != "app" {
		t.Fatalf("src: expected app, got %v", got.Src)
	}
	if got.Track != 3 {
		t.Fatalf("track: expected 3, got %v", got.Track)
	}
	if got.Msg != "boom" {
		t.Fatalf("msg: expected boom, got %v", got.Msg)
	}
}

func TestLoggerMsgf(t *testing.T) {
	_, logger := newTestLogger(t)

	feed, cancel := logger.Subscribe()
	defer cancel()

	go logger.Warn().Msgf("count=%d", 3)

	got := <-feed
	if got.Msg != "count=3" {
		t.Fatalf("expected count=3, got %v", got.Msg)
	}
}

func TestLoggerUnsubscribeStopsDelivery(t *testing.T) {
	_, logger := newTestLogger(t)

	feed1, cancel1 := logger.Subscribe()
	defer cancel1()
	feed2, cancel2 := logger.Subscribe()
	cancel2()

	go logger.Info().Msg("test")

	select {
	case got := <-feed1:
		if got.Msg != "test" {
			t.Fatalf("expected test, got %v", got.Msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber")
	}

	select {
	case _, ok := <-feed2:
		if ok {
			t.Fatal("unsubscribed feed should not receive events")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("unsubscribed feed was never closed")
	}
}

func TestLoggerTrackDefaultsToUnset(t *testing.T) {
	_, logger := newTestLogger(t)

	feed, cancel := logger.Subscribe()
	defer cancel()

	go logger.Info().Src("app").Msg("no track")

	got := <-feed
	if got.Track != 0 {
		t.Fatalf("expected unset track (0), got %v", got.Track)
	}
}

func TestLoggerLevels(t *testing.T) {
	_, logger := newTestLogger(t)

	feed, cancel := logger.Subscribe()
	defer cancel()

	events := []func() *Event{logger.Error, logger.Warn, logger.Info, logger.Debug}
	expected := []Level{LevelError, LevelWarning, LevelInfo, LevelDebug}

	for i, newEvent := range events {
		go newEvent().Msg("x")
		got := <-feed
		if got.Level != expected[i] {
			t.Fatalf("case %d: expected %v, got %v", i, expected[i], got.Level)
		}
	}
}
