// Command mp4mux is a demonstration CLI: it reads one or more H.264-in-RTP
// sources described by a YAML config file and muxes them into a single
// MP4 file, exiting once every source reaches end-of-stream or a
// muxer limit fires.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/shirou/gopsutil/v3/disk"

	"mp4mux/cmd/mp4mux/config"
	"mp4mux/pkg/eventstore"
	"mp4mux/pkg/log"
	"mp4mux/pkg/muxer"
	"mp4mux/pkg/rtpsource"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: mp4mux <config.yaml>")
		os.Exit(2)
	}
	if err := run(os.Args[1]); err != nil {
		fmt.Fprintln(os.Stderr, "mp4mux:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := checkFreeDisk(cfg.OutputPath, cfg.MinFreeDiskBytes); err != nil {
		return err
	}

	logCtx, cancelLog := context.WithCancel(context.Background())
	var logWG sync.WaitGroup
	defer func() {
		cancelLog()
		logWG.Wait()
	}()

	var logger *log.Logger
	if cfg.LogDBPath != "" {
		logger, err = log.NewLogger(cfg.LogDBPath, &logWG)
		if err != nil {
			return fmt.Errorf("open log database: %w", err)
		}
	} else {
		logger = log.NewMockLogger()
	}
	if err := logger.Start(logCtx); err != nil {
		return fmt.Errorf("start logger: %w", err)
	}
	go logger.LogToStdout(logCtx)
	if cfg.LogDBPath != "" {
		go logger.LogToDB(logCtx)
	}

	var notifier muxer.Notifier = muxer.NopNotifier{}
	if cfg.EventDBPath != "" {
		store, err := eventstore.Open(cfg.EventDBPath)
		if err != nil {
			return fmt.Errorf("open event store: %w", err)
		}
		defer store.Close()
		notifier = store
	}

	out, err := os.Create(cfg.OutputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer out.Close()

	opts := []muxer.Option{
		muxer.WithInterleaveDuration(cfg.InterleaveDurationMs * 1000),
		muxer.WithFileSizeLimit(cfg.FileSizeLimitBytes),
		muxer.WithDurationLimit(cfg.DurationLimitMs * 1000),
		muxer.WithNotifier(notifier),
		muxer.WithLogger(logger),
	}
	if cfg.Latitude != 0 || cfg.Longitude != 0 {
		opts = append(opts, muxer.WithLocation(cfg.Latitude, cfg.Longitude))
	}
	m := muxer.New(out, opts...)

	var conns []net.PacketConn
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()

	for _, tc := range cfg.Tracks {
		sdpBytes, err := os.ReadFile(tc.SDPFile)
		if err != nil {
			return fmt.Errorf("read sdp file %s: %w", tc.SDPFile, err)
		}
		sps, pps, err := rtpsource.ParseH264ParameterSets(sdpBytes)
		if err != nil {
			return fmt.Errorf("parse sdp %s: %w", tc.SDPFile, err)
		}

		addr, err := net.ResolveUDPAddr("udp", tc.ListenAddr)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", tc.ListenAddr, err)
		}
		conn, err := net.ListenUDP("udp", addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", tc.ListenAddr, err)
		}
		conns = append(conns, conn)

		src := rtpsource.New(conn, sps, pps, tc.Width, tc.Height)
		m.AddSource(src)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := m.Start(ctx); err != nil {
		return fmt.Errorf("start muxer: %w", err)
	}

	doneCh := make(chan struct{})
	go func() {
		m.Wait()
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-ctx.Done():
	}

	if err := m.Stop(); err != nil {
		return fmt.Errorf("stop muxer: %w", err)
	}

	fmt.Println("wrote", cfg.OutputPath)
	return nil
}

func checkFreeDisk(outputPath string, minFreeBytes uint64) error {
	if minFreeBytes == 0 {
		return nil
	}
	dir := filepath.Dir(outputPath)
	usage, err := disk.Usage(dir)
	if err != nil {
		return fmt.Errorf("check free disk space: %w", err)
	}
	if usage.Free < minFreeBytes {
		return fmt.Errorf("only %d bytes free at %s, need at least %d", usage.Free, dir, minFreeBytes)
	}
	return nil
}
