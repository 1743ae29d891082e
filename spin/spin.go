/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package spin is a synthetic CPU/sleep load generator, used to perturb
// the system while wiretime measures it. It has nothing to do with the
// measurement logic.
package spin

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// Config describes the load shape
type Config struct {
	// Workers is how many spin/sleep loops run in parallel
	Workers int
	// Loops is the number of additions per burst
	Loops int64
	// Sleep between bursts
	Sleep time.Duration
	// ReportInterval between CPU usage log lines, 0 disables reporting
	ReportInterval time.Duration
}

// keeps the spin loop from being optimized away
var sink int64

// Run generates load until ctx is cancelled
func Run(ctx context.Context, cfg Config) error {
	log.Infof("generating load: %d workers, %d loops per burst, %v sleep", cfg.Workers, cfg.Loops, cfg.Sleep)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Workers; i++ {
		g.Go(func() error {
			return worker(ctx, cfg.Loops, cfg.Sleep)
		})
	}
	if cfg.ReportInterval > 0 {
		g.Go(func() error {
			return report(ctx, cfg.ReportInterval)
		})
	}
	return g.Wait()
}

func worker(ctx context.Context, loops int64, sleep time.Duration) error {
	request := unix.NsecToTimespec(sleep.Nanoseconds())
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		var sum int64
		for l := int64(0); l <= loops; l++ {
			sum++
		}
		sink = sum

		if sleep > 0 {
			// same clock the measurement scheduler runs on
			_ = unix.ClockNanosleep(unix.CLOCK_MONOTONIC, 0, &request, nil)
		}
	}
}

// report logs the process CPU utilisation the load actually achieves
func report(ctx context.Context, interval time.Duration) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Errorf("looking up own process: %v", err)
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if val, err := proc.Percent(0); err == nil {
				log.Infof("load cpu: %.1f%%", val)
			}
		}
	}
}
