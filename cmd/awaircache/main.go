package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/runsascoded/awair-sub000/internal/colfile"
	"github.com/runsascoded/awair-sub000/internal/config"
	"github.com/runsascoded/awair-sub000/internal/encoding"
	"github.com/runsascoded/awair-sub000/internal/fetch"
	"github.com/runsascoded/awair-sub000/internal/logger"
	"github.com/runsascoded/awair-sub000/internal/poller"
	"github.com/runsascoded/awair-sub000/internal/remotecache"
)

var Version = "dev"

const usage = `usage: awaircache <command> [flags]

commands:
  stats    initialize against the remote file and print cache stats as JSON
  read     print decoded rows as JSON lines (-start, -end)
  follow   poll the remote file for new data until interrupted
  write    generate a local sample file (-rows, -out)

Run 'awaircache <command> -h' for command flags.
`

func main() {
	config.CheckVersion(Version)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	cfg := &Config{}
	if err := config.Load(cfg, os.Args[2:]); err != nil {
		logger.Fatal("Config error: %v", err)
	}

	logger.RegisterCategories("startup", "remote", "poll", "debug-cache", "debug-slice")
	if cfg.Debug {
		logger.SetCategoryFilter(nil)
		logger.SetMinLevel(logger.LevelDebug)
	} else if len(cfg.LogFilter) > 0 {
		logger.SetCategoryFilter(cfg.LogFilter)
	}

	var err error
	switch command {
	case "stats":
		err = runStats(cfg)
	case "read":
		err = runRead(cfg)
	case "follow":
		err = runFollow(cfg)
	case "write":
		err = runWrite(cfg)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal("%v", err)
	}
}

func openRemote(cfg *Config) (*remotecache.RemoteFile, *fetch.HTTPFetcher, error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("missing required config: url")
	}

	fetchOpts := fetch.DefaultOptions()
	fetchOpts.Timeout = cfg.Timeout
	fetchOpts.MaxRequestsPerSec = cfg.MaxRPS
	fetcher := fetch.NewHTTPFetcher(cfg.URL, fetchOpts)

	rf := remotecache.Open(fetcher, remotecache.Options{
		InitialFetchSize:   cfg.InitialFetch,
		CacheBytes:         cfg.CacheBytes,
		MaxBlockCountDelta: cfg.MaxBlockDelta,
		MinSizeRatio:       cfg.MinSizeRatio,
	})

	if err := rf.Initialize(context.Background()); err != nil {
		fetcher.Close()
		return nil, nil, fmt.Errorf("initializing %s: %w", cfg.URL, err)
	}
	return rf, fetcher, nil
}

func runStats(cfg *Config) error {
	rf, fetcher, err := openRemote(cfg)
	if err != nil {
		return err
	}
	defer fetcher.Close()

	out, err := encoding.JSONiter.MarshalIndent(rf.Stats(), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func runRead(cfg *Config) error {
	rf, fetcher, err := openRemote(cfg)
	if err != nil {
		return err
	}
	defer fetcher.Close()

	end := cfg.End
	if end < 0 {
		end = int(rf.Footer().TotalRows)
	}

	rows, err := rf.ReadRows(context.Background(), cfg.Start, end)
	if err != nil {
		return fmt.Errorf("reading rows [%d, %d): %w", cfg.Start, end, err)
	}

	columns := rf.Footer().Columns
	enc := encoding.JSONiter.NewEncoder(os.Stdout)
	for _, row := range rows {
		record := make(map[string]interface{}, len(columns)+1)
		record["ts"] = row.Timestamp
		for i, name := range columns {
			if i < len(row.Values) {
				record[name] = row.Values[i]
			}
		}
		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("encoding row: %w", err)
		}
	}
	return nil
}

func runFollow(cfg *Config) error {
	rf, fetcher, err := openRemote(cfg)
	if err != nil {
		return err
	}
	defer fetcher.Close()

	if cfg.MetricsListen != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Printf("startup", "metrics listening on %s", cfg.MetricsListen)
			if err := http.ListenAndServe(cfg.MetricsListen, mux); err != nil {
				logger.Error("metrics server: %v", err)
			}
		}()
	}

	p := poller.New(rf, poller.Config{
		MinInterval: cfg.PollMin,
		MaxInterval: cfg.PollMax,
		Factor:      cfg.PollFactor,
	})
	p.SetDataCallback(func() {
		stats := rf.Stats()
		logger.Printf("poll", "new data: %d bytes, %d blocks, %d rows",
			stats.FileSize, stats.BlockCount, rf.Footer().TotalRows)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Printf("startup", "signal received, stopping...")
		p.Stop()
	}()

	logger.Printf("startup", "following %s (%d blocks, %d rows)",
		cfg.URL, rf.Stats().BlockCount, rf.Footer().TotalRows)

	if err := p.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	logger.Printf("startup", "stopped after %d polls (%d with new data)", p.Polls(), p.DataHits())
	return nil
}

func runWrite(cfg *Config) error {
	columns := cfg.Columns
	if len(columns) == 0 {
		columns = colfile.DefaultColumns()
	}

	w := colfile.NewWriter(columns, cfg.BlockRows)
	base := time.Now().Add(-time.Duration(cfg.Rows) * time.Minute).Unix()
	for i := 0; i < cfg.Rows; i++ {
		values := make([]float64, len(columns))
		for c := range values {
			values[c] = 20 + 10*rand.Float64() + float64(c)*100
		}
		w.Append(colfile.Row{Timestamp: base + int64(i)*60, Values: values})
	}

	data, err := w.Finish()
	if err != nil {
		return fmt.Errorf("building file: %w", err)
	}
	if err := os.WriteFile(cfg.Out, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", cfg.Out, err)
	}

	logger.Printf("startup", "wrote %s: %d rows, %d bytes", cfg.Out, cfg.Rows, len(data))
	return nil
}
