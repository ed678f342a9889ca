package main

import (
	"github.com/spf13/cobra"

	"ledsign/internal/protocol"
)

func newRootCommand() *cobra.Command {
	return newRootCommandWith(nil)
}

// newRootCommandWith builds the command tree. A nil backend talks to real
// signs over USB.
func newRootCommandWith(backend protocol.Backend) *cobra.Command {
	var configFlag string
	var deviceFlag string

	ctx := newCommandContext(&configFlag, &deviceFlag, backend)

	rootCmd := &cobra.Command{
		Use:           "ledsign",
		Short:         "Program and inspect LED signs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVarP(&deviceFlag, "device", "d", "", "USB device node of the sign (default: first sign found)")

	rootCmd.AddCommand(newDevicesCommand(ctx))
	rootCmd.AddCommand(newInfoCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newUploadCommand(ctx))
	rootCmd.AddCommand(newDownloadCommand(ctx))
	rootCmd.AddCommand(newKeypointsCommand(ctx))
	rootCmd.AddCommand(newVerifyCommand(ctx))
	rootCmd.AddCommand(newMonitorCommand(ctx))
	rootCmd.AddCommand(newCacheCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
