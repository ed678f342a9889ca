package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"ledsign/internal/device"
	"ledsign/internal/protocol"
)

type deviceSummary struct {
	Path     string `json:"path"`
	Serial   string `json:"serial,omitempty"`
	Letters  string `json:"letters,omitempty"`
	Access   string `json:"access,omitempty"`
	Firmware string `json:"firmware,omitempty"`
	Error    string `json:"error,omitempty"`
}

func newDevicesCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List attached signs",
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

			backend := ctx.signBackend(cfg, logger)
			paths, err := device.Enumerate(cmd.Context(), backend)
			if err != nil {
				return err
			}
			summaries := make([]deviceSummary, 0, len(paths))
			for _, path := range paths {
				summaries = append(summaries, summarize(cmd.Context(), backend, path, deviceOptions(cfg, cache, logger)))
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), summaries)
			}
			out := cmd.OutOrStdout()
			if len(summaries) == 0 {
				fmt.Fprintln(out, "No signs attached")
				return nil
			}
			rows := make([][]string, 0, len(summaries))
			for _, s := range summaries {
				if s.Error != "" {
					rows = append(rows, []string{s.Path, "", "", "", s.Error})
					continue
				}
				rows = append(rows, []string{s.Path, s.Serial, s.Letters, s.Access, s.Firmware})
			}
			renderTable(out, "Device|Serial|Letters|Access|Firmware", rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func summarize(ctx context.Context, backend protocol.Backend, path string, opts device.Options) deviceSummary {
	summary := deviceSummary{Path: path}
	dev, err := device.Open(ctx, backend, path, opts)
	if err != nil {
		summary.Error = err.Error()
		return summary
	}
	defer dev.Close()
	summary.Serial, _ = dev.Serial()
	summary.Firmware, _ = dev.Firmware()
	if hw, err := dev.Hardware(); err == nil {
		summary.Letters = hw.UserString()
	}
	summary.Access = dev.AccessMode().String()
	return summary
}

func newInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show sign metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDevice(cmd, func(_ context.Context, s *session) error {
				d := s.dev
				hw, err := d.Hardware()
				if err != nil {
					return err
				}
				serial, err := d.Serial()
				if err != nil {
					return err
				}
				firmware, err := d.Firmware()
				if err != nil {
					return err
				}
				brightness, err := d.Brightness()
				if err != nil {
					return err
				}
				psu, err := d.PSUCurrent()
				if err != nil {
					return err
				}
				storage, err := d.StorageSize()
				if err != nil {
					return err
				}
				paused, err := d.Paused()
				if err != nil {
					return err
				}
				renderFields(cmd.OutOrStdout(), [][2]string{
					{"Device", d.Path()},
					{"Serial", serial},
					{"Firmware", firmware},
					{"Access", titler.String(d.AccessMode().String())},
					{"Letters", hw.UserString()},
					{"Pixels", strconv.Itoa(hw.PixelCount())},
					{"LED depth", strconv.Itoa(hw.LedDepth())},
					{"Brightness", printer.Sprintf("%.0f%%", brightness*100)},
					{"PSU current", printer.Sprintf("%.1f A", psu)},
					{"Storage", formatBytes(storage)},
					{"Paused", yesNo(paused)},
					{"Program", formatSeconds(d.ProgramDuration())},
				})
				return nil
			})
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show LED driver telemetry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDevice(cmd, func(c context.Context, s *session) error {
				status, err := s.dev.Status(c)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), map[string]float64{
						"temperature_c":  status.Temperature,
						"load":           status.Load,
						"program_time_s": status.ProgramTime,
						"current_a":      status.Current,
					})
				}
				renderFields(cmd.OutOrStdout(), [][2]string{
					{"Temperature", printer.Sprintf("%.1f °C", status.Temperature)},
					{"Load", printer.Sprintf("%.1f%%", status.Load*100)},
					{"Program time", formatSeconds(status.ProgramTime)},
					{"Current", printer.Sprintf("%.3f A", status.Current)},
				})
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
