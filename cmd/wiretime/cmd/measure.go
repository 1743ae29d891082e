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

package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/netdevtools/wiretime/measure"
	"github.com/netdevtools/wiretime/stats"
	"github.com/netdevtools/wiretime/tracefs"
)

// flags
var (
	measureIfaceFlag          string
	measurePeriodFlag         int64
	measureAddendFlag         int64
	measureThresholdFlag      int64
	measureMonitoringPortFlag int
	measureDSCPFlag           int
	measureTracefsFlag        string
	measureConfigFlag         string
)

func init() {
	RootCmd.AddCommand(measureCmd)
	measureCmd.Flags().StringVarP(&measureIfaceFlag, "iface", "i", "eth0", "network interface to enable hardware timestamping on")
	measureCmd.Flags().Int64VarP(&measurePeriodFlag, "period", "p", 1000000000, "time between transmissions, in nanoseconds")
	measureCmd.Flags().Int64VarP(&measureAddendFlag, "addend", "a", 0, "phase offset within the period, in nanoseconds")
	measureCmd.Flags().Int64VarP(&measureThresholdFlag, "threshold", "t", 0, "latency in microseconds above which a trace snapshot is taken, 0 disables")
	measureCmd.Flags().IntVar(&measureMonitoringPortFlag, "monitoringport", 0, "port to serve prometheus metrics on, 0 disables")
	measureCmd.Flags().IntVar(&measureDSCPFlag, "dscp", 0, "DSCP class to mark probe packets with, 0 leaves the default")
	measureCmd.Flags().StringVar(&measureTracefsFlag, "tracefs", tracefs.DefaultRoot, "where tracefs is mounted")
	measureCmd.Flags().StringVarP(&measureConfigFlag, "config", "c", "", "config file to read instead of flags")
}

var measureCmd = &cobra.Command{
	Use:   "measure",
	Short: "Measure the queuing-to-wire latency of this host's TX path",
	Long: `Transmits one minimal PTPv2 Sync packet per period and correlates the
kernel's scheduler, driver and hardware TX timestamps into a
queuing-to-wire latency. Statistics are printed on SIGINT/SIGTERM.`,
	Run: func(_ *cobra.Command, _ []string) {
		ConfigureVerbosity()

		cfg := &measure.Config{
			Iface:          measureIfaceFlag,
			Period:         measurePeriodFlag,
			Addend:         measureAddendFlag,
			Threshold:      measureThresholdFlag,
			MonitoringPort: measureMonitoringPortFlag,
			DSCP:           measureDSCPFlag,
			TracefsRoot:    measureTracefsFlag,
		}
		if measureConfigFlag != "" {
			var err error
			cfg, err = measure.ReadConfig(measureConfigFlag)
			if err != nil {
				log.Fatalf("reading config: %v", err)
			}
		}

		runner, err := measure.New(cfg)
		if err != nil {
			log.Fatal(err)
		}
		defer runner.Close()

		if cfg.MonitoringPort != 0 {
			exporter := stats.NewExporter(runner.Aggregator(), cfg.MonitoringPort)
			go func() {
				if err := exporter.Start(); err != nil {
					log.Errorf("monitoring server: %v", err)
				}
			}()
		}

		err = runner.Run()
		runner.Aggregator().Snapshot().Text(os.Stdout)
		if err != nil {
			log.Fatalf("measurement failed: %v", err)
		}
	},
}
