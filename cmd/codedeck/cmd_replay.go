package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codedeck/codedeck/internal/journal"
	"github.com/codedeck/codedeck/internal/timeline"
	"github.com/codedeck/codedeck/internal/tokens"
)

var flagReplaySince uint64

func init() {
	replayCmd.Flags().Uint64Var(&flagReplaySince, "since", 0, "replay only events after this sequence number")
	rootCmd.AddCommand(replayCmd)
}

var replayCmd = &cobra.Command{
	Use:   "replay <thread-id>",
	Short: "Rebuild a thread's conversation from the local journal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		threadID := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer store.Close()

		var items []timeline.Item
		err = store.Replay(cmd.Context(), threadID, flagReplaySince, func(ev timeline.RawEvent) error {
			if it, ok := timeline.Normalize(ev); ok {
				items = append(items, it)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("replay journal: %w", err)
		}
		if len(items) == 0 {
			fmt.Println("no journaled events for this thread")
			return nil
		}

		estimator := tokens.NewEstimator()
		turns := timeline.SortTurns(timeline.Aggregate(timeline.Merge(nil, items)))
		for _, turn := range turns {
			usage := estimator.CountTurn(turn)
			fmt.Printf("== turn %s  %s  ~%d tokens\n", turn.TurnID, turn.Status, usage.Total())
			if turn.UserText != "" {
				fmt.Printf("   you: %s\n", turn.UserText)
			}
			for _, call := range turn.ToolCalls {
				fmt.Printf("   tool %s: %s\n", call.ToolName, truncate(call.Text, 120))
			}
			if turn.AssistantText != "" {
				fmt.Printf("   assistant: %s\n", turn.AssistantText)
			}
		}

		last, err := store.LastSeq(cmd.Context(), threadID)
		if err == nil {
			fmt.Printf("-- journal cursor: %d\n", last)
		}
		return nil
	},
}
