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
	"net"
	"os"

	yaml "gopkg.in/yaml.v2"
)

// Config specifies measurement run options
type Config struct {
	// Iface is the network interface hardware timestamping is enabled on
	Iface string `yaml:"iface"`
	// Period between transmissions, in nanoseconds
	Period int64 `yaml:"period"`
	// Addend is the phase offset within the period, in nanoseconds.
	// Non-zero values move the transmission out of phase with the timer
	// interrupt.
	Addend int64 `yaml:"addend"`
	// Threshold in microseconds above which a latency sample triggers a
	// trace snapshot. 0 disables threshold-triggered snapshots.
	Threshold int64 `yaml:"threshold"`
	// MonitoringPort is where the prometheus endpoint listens, 0 disables it
	MonitoringPort int `yaml:"monitoring_port"`
	// DSCP class to mark probe packets with, 0 leaves the default
	DSCP int `yaml:"dscp"`
	// TracefsRoot overrides where tracefs is mounted
	TracefsRoot string `yaml:"tracefs_root"`
}

// ReadConfig reads config from the file
func ReadConfig(path string) (*Config, error) {
	c := &Config{}
	cData, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(cData, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the config before the measurement loop starts
func (c *Config) Validate() error {
	if c.Iface == "" {
		return fmt.Errorf("interface must be specified")
	}
	if _, err := net.InterfaceByName(c.Iface); err != nil {
		return fmt.Errorf("looking up interface %q: %w", c.Iface, err)
	}
	if c.Period <= 0 {
		return fmt.Errorf("period must be positive")
	}
	if c.Addend < 0 {
		return fmt.Errorf("addend must be non-negative")
	}
	if c.Addend >= c.Period {
		return fmt.Errorf("addend must be less than period")
	}
	if c.Threshold < 0 {
		return fmt.Errorf("threshold must be non-negative")
	}
	if c.DSCP < 0 || c.DSCP > 63 {
		return fmt.Errorf("dscp must be between 0 and 63")
	}
	return nil
}
