package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"ledsign/internal/device"
	"ledsign/internal/monitor"
)

func newMonitorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Print signs as they are plugged in and removed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			cache, err := ctx.openCache(cfg, logger)
			if err != nil {
				return fmt.Errorf("open geometry cache: %w", err)
			}
			defer cache.Close()

			c := cmd.Context()
			backend := ctx.signBackend(cfg, logger)
			out := cmd.OutOrStdout()

			paths, err := device.Enumerate(c, backend)
			if err != nil {
				return err
			}
			for _, path := range paths {
				fmt.Fprintf(out, "present   %s\n", path)
			}

			var mu sync.Mutex
			m := monitor.New(logger, func(evCtx context.Context, ev monitor.Event) {
				mu.Lock()
				defer mu.Unlock()
				line := fmt.Sprintf("%-9s %s", ev.Action, ev.Path)
				if ev.Action == monitor.Attached {
					// udev announces the node before its permissions settle.
					time.Sleep(200 * time.Millisecond)
					s := summarize(evCtx, backend, ev.Path, deviceOptions(cfg, cache, logger))
					if s.Error == "" {
						line += fmt.Sprintf("  serial=%s letters=%s", s.Serial, s.Letters)
					}
				}
				fmt.Fprintln(out, line)
			})
			if err := m.Start(c); err != nil {
				return err
			}
			defer m.Stop()
			<-c.Done()
			return nil
		},
	}
}
