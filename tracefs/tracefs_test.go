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

package tracefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeTracefs(t *testing.T) string {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "snapshot"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "trace_marker"), nil, 0644))
	return root
}

func TestSinks(t *testing.T) {
	root := fakeTracefs(t)
	s := Open(root)
	defer s.Close()

	require.True(t, s.HasSnapshot())
	require.True(t, s.TakeSnapshot())
	s.Marker("starting cycle")
	s.Markerf("%6d us latency", 42)

	snap, err := os.ReadFile(filepath.Join(root, "snapshot"))
	require.NoError(t, err)
	require.Equal(t, "1\n", string(snap))

	markers, err := os.ReadFile(filepath.Join(root, "trace_marker"))
	require.NoError(t, err)
	require.Equal(t, "starting cycle\n    42 us latency\n", string(markers))
}

func TestSinksDegrade(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "missing"))
	defer s.Close()

	require.False(t, s.HasSnapshot())
	require.False(t, s.TakeSnapshot())
	// no panic on a degraded marker sink
	s.Marker("starting slack time")
	s.Markerf("%d", 1)
}
