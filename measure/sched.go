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

package measure

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// convergenceThreshold is the maximum tolerated early wake, in
// nanoseconds. Wakes earlier than this are treated as spurious and the
// wait is repeated with the remaining delta.
const convergenceThreshold = 50000

// timeoutShaveShift makes each wait 1/1024th shorter than the remaining
// time, to compensate for select() oversleeping.
const timeoutShaveShift = 10

func monotonicNow() (int64, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0, fmt.Errorf("clock_gettime: %w", err)
	}
	return ts.Nano(), nil
}

// NextWake returns the smallest instant not before now that is phase
// aligned: (next - addend) mod period == 0. Recomputing from the current
// time every cycle keeps processing jitter from accumulating into drift.
func NextWake(now, period, addend int64) int64 {
	r := (now - addend) % period
	if r < 0 {
		r += period
	}
	if r == 0 {
		return now
	}
	return now + period - r
}

// Scheduler blocks until phase-aligned instants while watching the
// measurement socket, so that timestamp notifications can be collected
// during the otherwise idle wait.
type Scheduler struct {
	connFd int
	period int64
	addend int64
}

// NewScheduler returns a Scheduler for the given socket and phase settings
func NewScheduler(connFd int, period, addend int64) *Scheduler {
	return &Scheduler{connFd: connFd, period: period, addend: addend}
}

// NextWake computes the upcoming wake instant from the current time
func (s *Scheduler) NextWake() (int64, error) {
	now, err := monotonicNow()
	if err != nil {
		return 0, err
	}
	return NextWake(now, s.period, s.addend), nil
}

// Poll performs one bounded wait towards the wake instant. ready reports
// that the socket has data or exceptional conditions pending, at which
// point the caller should drain the error queue. done reports that the
// wake instant has been reached within the convergence threshold; until
// then the caller keeps polling. A signal interrupting the wait is not an
// error, the poll just comes back early with neither flag set.
func (s *Scheduler) Poll(next int64) (ready, done bool, err error) {
	now, err := monotonicNow()
	if err != nil {
		return false, false, err
	}

	remaining := next - now
	if remaining < 0 {
		remaining = 0
	}
	// wait for a little less than required, because we'll oversleep
	timeout := remaining - remaining>>timeoutShaveShift
	tv := unix.NsecToTimeval(timeout)

	rfds := &unix.FdSet{}
	efds := &unix.FdSet{}
	rfds.Set(s.connFd)
	efds.Set(s.connFd)

	n, err := unix.Select(s.connFd+1, rfds, nil, efds, &tv)
	if err != nil {
		if err == unix.EINTR {
			return false, false, nil
		}
		return false, false, fmt.Errorf("select: %w", err)
	}
	ready = n > 0

	now, err = monotonicNow()
	if err != nil {
		return false, false, err
	}
	return ready, now-next >= -convergenceThreshold, nil
}
