package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"ledsign/internal/config"
	"ledsign/internal/pixelset"
	"ledsign/internal/program"
	"ledsign/internal/timeline"
	"ledsign/internal/watch"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var bypass bool
	var follow bool

	cmd := &cobra.Command{
		Use:   "upload <program.bin>",
		Short: "Verify a program file and store it on the sign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			return ctx.withDevice(cmd, func(c context.Context, s *session) error {
				bypass = bypass || s.cfg.Program.BypassVerification
				upload := func(c context.Context) error {
					return uploadFile(c, cmd, s, path, bypass)
				}
				if err := upload(c); err != nil {
					return err
				}
				if !follow {
					return nil
				}
				w, err := watch.NewFile(path, 0, s.logger)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for changes\n", w.Path())
				err = w.Run(c, upload)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&bypass, "bypass", false, "Upload even when verification reports overlapping keypoints")
	cmd.Flags().BoolVarP(&follow, "watch", "w", false, "Upload again whenever the file changes")
	return cmd
}

func uploadFile(ctx context.Context, cmd *cobra.Command, s *session, path string, bypass bool) error {
	hw, err := s.dev.Hardware()
	if err != nil {
		return err
	}
	prog, err := program.Open(path, hw, programOptions(s.cfg, s.logger))
	if err != nil {
		return err
	}
	report, err := prog.Verify(ctx)
	if err != nil {
		return err
	}
	if report.HasErrors() && !bypass {
		fmt.Fprintln(cmd.ErrOrStderr(), report.String())
	}
	compiled, err := prog.Compile(ctx, bypass)
	if err != nil {
		return fmt.Errorf("compile %s: %w", path, err)
	}
	if err := s.dev.Upload(ctx, compiled, progressLine(cmd.ErrOrStderr())); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s (%s, %s)\n", path, formatBytes(len(compiled.Payload)), formatSeconds(s.dev.ProgramDuration()))
	return nil
}

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var bypass bool
	cmd := &cobra.Command{
		Use:   "download <program.bin>",
		Short: "Save the program stored on the sign to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			return ctx.withDevice(cmd, func(c context.Context, s *session) error {
				prog := s.dev.Program()
				if err := prog.Save(c, path, bypass || s.cfg.Program.BypassVerification); err != nil {
					return fmt.Errorf("save %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s to %s\n", prog, path)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&bypass, "bypass", false, "Save even when the stored program has unresolved errors")
	return cmd
}

// openProgram returns the program in file, or the stored program when file
// is empty.
func openProgram(s *session, file string) (*program.Program, error) {
	if file == "" {
		return s.dev.Program(), nil
	}
	path, err := config.ExpandPath(file)
	if err != nil {
		return nil, err
	}
	hw, err := s.dev.Hardware()
	if err != nil {
		return nil, err
	}
	return program.Open(path, hw, programOptions(s.cfg, s.logger))
}

func newKeypointsCommand(ctx *commandContext) *cobra.Command {
	var letter int
	cmd := &cobra.Command{
		Use:   "keypoints [program.bin]",
		Short: "List the keypoints of a program file or of the stored program",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDevice(cmd, func(c context.Context, s *session) error {
				prog, err := openProgram(s, firstArg(args))
				if err != nil {
					return err
				}
				var filter pixelset.Set
				if letter >= 0 {
					if filter, err = prog.Hardware().LetterMask(letter); err != nil {
						return err
					}
				}
				kps, err := prog.Keypoints(c, filter)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(kps) == 0 {
					fmt.Fprintln(out, "No keypoints")
					return nil
				}
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(kps))
				for i, kp := range kps {
					rows = append(rows, []string{
						strconv.Itoa(i + 1),
						formatSeconds(timeline.Seconds(kp.Start())),
						formatSeconds(timeline.Seconds(int64(kp.End))),
						colorCell(kp.Color, colorize),
						kp.Pixels.String(),
						kp.Label(),
					})
				}
				renderTable(out, ">#|>Start|>End|Color|Pixels|Source", rows)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&letter, "letter", "l", -1, "Only show keypoints touching this letter (0-based)")
	return cmd
}

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [program.bin]",
		Short: "Check a program file or the stored program for overlapping keypoints",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDevice(cmd, func(c context.Context, s *session) error {
				prog, err := openProgram(s, firstArg(args))
				if err != nil {
					return err
				}
				report, err := prog.Verify(c)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !report.HasErrors() {
					fmt.Fprintln(out, "No overlapping keypoints")
					return nil
				}
				fmt.Fprintln(out, report.String())
				return fmt.Errorf("%d overlapping keypoint pairs", len(report.Conflicts))
			})
		},
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
