package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sendCmd, approveCmd, respondCmd, interruptCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <thread-id> <text>",
	Short: "Post a user message to a thread",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		turnID, err := newGatewayClient(cfg).SendMessage(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(turnID)
		return nil
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <thread-id> <approval-id> <allow|deny>",
	Short: "Decide a pending command approval",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		decision := args[2]
		if decision != "allow" && decision != "deny" {
			return fmt.Errorf("decision must be allow or deny, got %q", decision)
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := newGatewayClient(cfg).SubmitApproval(cmd.Context(), args[0], args[1], decision); err != nil {
			return err
		}
		fmt.Println("submitted; the approval clears when the decision event arrives on the feed")
		return nil
	},
}

var respondCmd = &cobra.Command{
	Use:   "respond <thread-id> <interaction-id> <answer>",
	Short: "Answer a pending interaction prompt",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := newGatewayClient(cfg).SubmitInteraction(cmd.Context(), args[0], args[1], args[2]); err != nil {
			return err
		}
		fmt.Println("submitted")
		return nil
	},
}

var interruptCmd = &cobra.Command{
	Use:   "interrupt <thread-id> <turn-id>",
	Short: "Stop the assistant's running turn",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return newGatewayClient(cfg).InterruptTurn(cmd.Context(), args[0], args[1])
	},
}
