package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var flagThreadTitle string

func init() {
	threadsNewCmd.Flags().StringVar(&flagThreadTitle, "title", "", "title for the new thread")
	threadsCmd.AddCommand(threadsNewCmd)
	rootCmd.AddCommand(threadsCmd)
}

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "List conversation threads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		threads, err := newGatewayClient(cfg).ListThreads(cmd.Context())
		if err != nil {
			return err
		}
		if len(threads) == 0 {
			fmt.Println("no threads")
			return nil
		}
		for _, t := range threads {
			title := t.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%s  %s  %s\n", t.ID, t.CreatedAt, title)
		}
		return nil
	},
}

var threadsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a new conversation thread",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		thread, err := newGatewayClient(cfg).CreateThread(cmd.Context(), flagThreadTitle)
		if err != nil {
			return err
		}
		fmt.Println(thread.ID)
		return nil
	},
}
