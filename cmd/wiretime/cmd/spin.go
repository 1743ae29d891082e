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
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/netdevtools/wiretime/spin"
)

// flags
var (
	spinWorkersFlag int
	spinLoopsFlag   int64
	spinSleepFlag   time.Duration
)

func init() {
	RootCmd.AddCommand(spinCmd)
	spinCmd.Flags().IntVarP(&spinWorkersFlag, "workers", "w", 1, "number of spinning goroutines")
	spinCmd.Flags().Int64Var(&spinLoopsFlag, "loops", 1000000, "busy-loop iterations per burst")
	spinCmd.Flags().DurationVar(&spinSleepFlag, "sleep", 0, "sleep between bursts, 0 spins continuously")
}

var spinCmd = &cobra.Command{
	Use:   "spin",
	Short: "Generate CPU load to exercise the TX path under contention",
	Run: func(cmd *cobra.Command, _ []string) {
		ConfigureVerbosity()

		ctx, stop := signal.NotifyContext(cmd.Context(), unix.SIGINT, unix.SIGTERM)
		defer stop()

		cfg := spin.Config{
			Workers:        spinWorkersFlag,
			Loops:          spinLoopsFlag,
			Sleep:          spinSleepFlag,
			ReportInterval: time.Second,
		}
		if err := spin.Run(ctx, cfg); err != nil {
			log.Fatal(err)
		}
	},
}
