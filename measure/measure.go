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

// Package measure implements the wiretime measurement engine: a
// phase-aligned transmission loop that sends one PTPv2 Sync packet per
// cycle, collects the kernel's TX timestamps for it while waiting for the
// next cycle, and aggregates queuing-to-wire latencies.
package measure

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/netdevtools/wiretime/dscp"
	"github.com/netdevtools/wiretime/protocol"
	"github.com/netdevtools/wiretime/stats"
	"github.com/netdevtools/wiretime/timestamp"
	"github.com/netdevtools/wiretime/tracefs"
)

var snapshotTakenAnnotation = color.RedString("(SNAPSHOT TAKEN)")

// Runner owns all per-process measurement state: the socket, the
// scheduler, the current cycle's Triple and the aggregated statistics.
// Everything is mutated from the single measurement loop.
type Runner struct {
	cfg    *Config
	conn   *net.UDPConn
	connFd int
	sched  *Scheduler
	coll   *Collector
	agg    *stats.Aggregator
	sinks  *tracefs.Sinks

	triple  Triple
	seq     uint16
	packets uint64
}

// New sets up the measurement channel: a connected UDP socket aimed at the
// PTP event multicast address with full TX timestamping enabled, plus the
// optional tracefs sinks. Any failure here is fatal to the run.
func New(cfg *Config) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// PTP event message address and port, since some hardware can only
	// timestamp PTP packets
	raddr := &net.UDPAddr{IP: net.ParseIP(protocol.EventIPv4Addr), Port: protocol.PortEvent}
	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("creating measurement socket: %w", err)
	}

	connFd, err := timestamp.ConnFd(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("getting socket fd: %w", err)
	}

	if err := timestamp.EnableTXTimestamps(connFd, cfg.Iface); err != nil {
		conn.Close()
		return nil, err
	}

	if cfg.DSCP != 0 {
		localIP := conn.LocalAddr().(*net.UDPAddr).IP
		if err := dscp.Enable(connFd, localIP, cfg.DSCP); err != nil {
			conn.Close()
			return nil, fmt.Errorf("setting DSCP on socket: %w", err)
		}
	}

	root := cfg.TracefsRoot
	if root == "" {
		root = tracefs.DefaultRoot
	}

	return &Runner{
		cfg:    cfg,
		conn:   conn,
		connFd: connFd,
		sched:  NewScheduler(connFd, cfg.Period, cfg.Addend),
		coll:   NewCollector(connFd),
		agg:    stats.NewAggregator(),
		sinks:  tracefs.Open(root),
	}, nil
}

// Aggregator exposes the statistics for the monitoring endpoint and the
// final summary.
func (r *Runner) Aggregator() *stats.Aggregator {
	return r.agg
}

// Close releases the socket and the tracefs sinks
func (r *Runner) Close() {
	r.conn.Close()
	r.sinks.Close()
}

// Run cycles until SIGINT or SIGTERM arrives. The signal only sets the
// shutdown condition; the loop notices it between cycles, so the caller
// always gets control back to print the final summary.
func (r *Runner) Run() error {
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, unix.SIGINT, unix.SIGTERM)
	defer signal.Stop(sigchan)

	log.Infof("measuring TX latency on %s, period %d ns, addend %d ns, threshold %d us",
		r.cfg.Iface, r.cfg.Period, r.cfg.Addend, r.cfg.Threshold)

	for {
		select {
		case sig := <-sigchan:
			log.Warningf("%s received, stopping measurement", sig)
			return nil
		default:
		}
		if err := r.cycle(); err != nil {
			return err
		}
	}
}

// cycle performs one wait-send-evaluate iteration
func (r *Runner) cycle() error {
	r.sinks.Marker("starting slack time")

	next, err := r.sched.NextWake()
	if err != nil {
		return err
	}
	for {
		ready, done, err := r.sched.Poll(next)
		if err != nil {
			return err
		}
		if ready {
			r.coll.Drain(&r.triple)
		}
		if done {
			break
		}
	}

	r.sinks.Marker("starting cycle")

	if err := r.send(); err != nil {
		// the sample for this sequence will likely come up incomplete,
		// which is its own diagnostic
		log.Errorf("sending packet %d: %v", r.seq, err)
	}

	if r.packets > 0 {
		r.evaluate()
	}

	r.seq++
	r.triple.Reset()
	r.packets++
	return nil
}

func (r *Runner) send() error {
	b, err := protocol.Bytes(protocol.NewSync(r.seq))
	if err != nil {
		return err
	}
	n, err := r.conn.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(b))
	}
	return nil
}

// evaluate judges the previous packet's triple: the timestamps collected
// during this cycle's wait belong to the packet sent one cycle ago, and by
// now they have had a full period to arrive. The very first packet gets a
// report line but is excluded from statistics: its latency carries warm-up
// bias from cold caches and an idle NIC.
func (r *Runner) evaluate() {
	seq := r.seq - 1
	first := r.packets == 1

	if !r.triple.Complete() {
		for _, stage := range r.triple.Missing() {
			log.Warningf("seq: %05d, missing %s timestamp", seq, stage)
		}
		if r.sinks.TakeSnapshot() {
			log.Warning("snapshot taken")
		}
		if !first {
			r.agg.Incomplete()
		}
		return
	}

	latency, err := r.triple.Latency()
	if err != nil {
		log.Warningf("seq: %05d, %v", seq, err)
		if !first {
			r.agg.Incomplete()
		}
		return
	}

	r.sinks.Markerf("%6d us latency", latency)

	annotation := ""
	if r.cfg.Threshold > 0 && latency > r.cfg.Threshold {
		if r.sinks.TakeSnapshot() {
			annotation = " " + snapshotTakenAnnotation
		}
	}

	log.Infof("seq: %05d, socket: %s, driver: %s, hw: %s, latency: %5d us%s",
		seq, tsString(r.triple.Socket), tsString(r.triple.Driver), tsString(r.triple.HW),
		latency, annotation)

	if !first {
		r.agg.Update(latency)
	}
}

// tsString renders a stage timestamp as seconds.microseconds
func tsString(t time.Time) string {
	return fmt.Sprintf("%5d.%06d", t.Unix(), t.Nanosecond()/1000)
}
