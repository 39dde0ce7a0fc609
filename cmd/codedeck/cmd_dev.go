package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codedeck/codedeck/internal/devserver"
)

var flagDevAddr string

func init() {
	devCmd.Flags().StringVar(&flagDevAddr, "addr", "localhost:7850", "listen address")
	rootCmd.AddCommand(devCmd)
}

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Run a local stand-in control plane with scripted replies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := devserver.New(devserver.WithLogger(slog.Default()))
		fmt.Printf("dev control plane on http://%s (seeded thread: %s)\n", flagDevAddr, srv.FirstThreadID())
		return srv.Run(ctx, flagDevAddr)
	},
}
