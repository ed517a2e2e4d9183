package main

import "time"

type Config struct {
	URL string `name:"url" help:"URL of the remote column file"`

	CacheBytes    int64   `name:"cache-bytes" help:"Block cache budget in bytes" default:"10485760"`
	InitialFetch  int64   `name:"initial-fetch" help:"Bytes fetched from end of file at startup" default:"131072"`
	MaxBlockDelta int     `name:"max-block-delta" help:"Block count jump treated as a rewrite" default:"5"`
	MinSizeRatio  float64 `name:"min-size-ratio" help:"Size ratio below which the file counts as rewritten" default:"0.8"`

	Timeout time.Duration `name:"timeout" help:"HTTP request timeout" default:"30s"`
	MaxRPS  float64       `name:"max-rps" help:"Cap on outgoing requests per second (0 = unlimited)"`

	PollMin    time.Duration `name:"poll-min" help:"Poll interval after new data" default:"5s"`
	PollMax    time.Duration `name:"poll-max" help:"Poll interval ceiling while quiet" default:"5m"`
	PollFactor float64       `name:"poll-factor" help:"Poll backoff multiplier" default:"1.5"`

	MetricsListen string `name:"metrics-listen" help:"Address for Prometheus /metrics (follow only)"`

	Start int `name:"start" help:"First row to read (read only)"`
	End   int `name:"end" help:"Row after the last to read (read only)" default:"-1"`

	Rows      int      `name:"rows" help:"Rows to generate (write only)" default:"1000"`
	BlockRows int      `name:"block-rows" help:"Rows per block (write only)" default:"10000"`
	Out       string   `name:"out" help:"Output path (write only)" default:"data.acf"`
	Columns   []string `name:"columns" help:"Column names (write only)"`

	Debug     bool     `name:"debug" help:"Enable all debug logging"`
	LogFilter []string `name:"log-filter" help:"Log categories to show"`
}
