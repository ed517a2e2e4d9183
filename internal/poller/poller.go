// Package poller drives periodic refreshes of a remote file with an
// adaptive interval: polls speed up while new data is arriving and back
// off toward a maximum while the file is quiet.
package poller

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/runsascoded/awair-sub000/internal/logger"
)

// Refresher is the subset of the remote cache the poller drives.
type Refresher interface {
	Refresh(ctx context.Context) (bool, error)
}

type Config struct {
	MinInterval time.Duration // interval right after new data arrived
	MaxInterval time.Duration // ceiling while the file is quiet
	Factor      float64       // backoff multiplier per quiet poll
}

func DefaultConfig() Config {
	return Config{
		MinInterval: 5 * time.Second,
		MaxInterval: 5 * time.Minute,
		Factor:      1.5,
	}
}

// DataCallback runs after every poll that found new data.
type DataCallback func()

type Poller struct {
	refresher Refresher
	config    Config
	stopChan  chan struct{}
	running   atomic.Bool
	onData    DataCallback

	polls    atomic.Uint64
	dataHits atomic.Uint64
}

func New(refresher Refresher, config Config) *Poller {
	def := DefaultConfig()
	if config.MinInterval <= 0 {
		config.MinInterval = def.MinInterval
	}
	if config.MaxInterval < config.MinInterval {
		config.MaxInterval = config.MinInterval
	}
	if config.Factor <= 1 {
		config.Factor = def.Factor
	}
	return &Poller{
		refresher: refresher,
		config:    config,
		stopChan:  make(chan struct{}),
	}
}

func (p *Poller) SetDataCallback(cb DataCallback) {
	p.onData = cb
}

// Run polls until Stop is called or the context is cancelled. Refresh
// errors are logged and retried at the next tick; they never end the loop.
func (p *Poller) Run(ctx context.Context) error {
	if p.running.Swap(true) {
		return fmt.Errorf("poller already running")
	}
	defer p.running.Store(false)

	interval := p.config.MinInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopChan:
			return nil
		case <-timer.C:
		}

		p.polls.Add(1)
		changed, err := p.refresher.Refresh(ctx)
		switch {
		case err != nil:
			logger.Error("poll: refresh failed, retrying in %v: %v", interval, err)
		case changed:
			p.dataHits.Add(1)
			interval = p.config.MinInterval
			if p.onData != nil {
				p.onData()
			}
		default:
			interval = time.Duration(float64(interval) * p.config.Factor)
			if interval > p.config.MaxInterval {
				interval = p.config.MaxInterval
			}
		}

		timer.Reset(interval)
	}
}

func (p *Poller) Stop() {
	select {
	case <-p.stopChan:
	default:
		close(p.stopChan)
	}
}

// Polls reports how many refresh attempts have run.
func (p *Poller) Polls() uint64 {
	return p.polls.Load()
}

// DataHits reports how many polls found new data.
func (p *Poller) DataHits() uint64 {
	return p.dataHits.Load()
}
