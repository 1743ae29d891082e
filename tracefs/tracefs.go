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

// Package tracefs writes to the kernel trace ring buffer control files:
// the snapshot trigger, which freezes the ring buffer contents for offline
// inspection, and trace_marker, which annotates the trace with text lines.
// Both sinks are optional and degrade to no-ops when tracefs is not
// mounted.
package tracefs

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// DefaultRoot is where tracefs is usually mounted
const DefaultRoot = "/sys/kernel/tracing"

// Sinks holds the open trace control files. Either file may be nil, in
// which case the corresponding operation silently does nothing.
type Sinks struct {
	snapshot *os.File
	marker   *os.File
}

// Open opens the snapshot and trace_marker files under root. Failure to
// open is logged once and not treated as an error: measurement works fine
// without tracing, it just can't take snapshots.
func Open(root string) *Sinks {
	s := &Sinks{}
	var err error
	s.snapshot, err = os.OpenFile(filepath.Join(root, "snapshot"), os.O_WRONLY, 0)
	if err != nil {
		s.snapshot = nil
	}
	s.marker, err = os.OpenFile(filepath.Join(root, "trace_marker"), os.O_WRONLY, 0)
	if err != nil {
		s.marker = nil
	}
	if s.snapshot == nil || s.marker == nil {
		log.Warningf("can't take snapshot: no %s?", root)
	}
	return s
}

// HasSnapshot reports whether the snapshot sink is usable
func (s *Sinks) HasSnapshot() bool {
	return s.snapshot != nil
}

// TakeSnapshot asks the kernel to freeze the current trace buffer.
// Returns whether a snapshot was actually requested.
func (s *Sinks) TakeSnapshot() bool {
	if s.snapshot == nil {
		return false
	}
	if _, err := s.snapshot.WriteString("1\n"); err != nil {
		log.Errorf("taking trace snapshot: %v", err)
		return false
	}
	return true
}

// Marker appends one line to the kernel trace
func (s *Sinks) Marker(text string) {
	if s.marker == nil {
		return
	}
	if _, err := s.marker.WriteString(text + "\n"); err != nil {
		log.Errorf("writing trace marker: %v", err)
	}
}

// Markerf appends one formatted line to the kernel trace
func (s *Sinks) Markerf(format string, args ...any) {
	if s.marker == nil {
		return
	}
	s.Marker(fmt.Sprintf(format, args...))
}

// Close closes whatever sinks are open
func (s *Sinks) Close() {
	if s.snapshot != nil {
		s.snapshot.Close()
		s.snapshot = nil
	}
	if s.marker != nil {
		s.marker.Close()
		s.marker = nil
	}
}
