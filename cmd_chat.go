package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"github.com/tanpawarit/Chative-Support-Orchestrator/agent/agents/orchestrator"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the orchestrator from the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sessionID, _ := cmd.Flags().GetString("session")
		userID, _ := cmd.Flags().GetString("user")
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		line := liner.NewLiner()
		defer line.Close()
		line.SetCtrlCAborts(true)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "session %s (/reset to start over, /quit to leave)\n", sessionID)
		for {
			text, err := line.Prompt("you> ")
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			line.AppendHistory(text)

			switch text {
			case "/quit", "/exit":
				return nil
			case "/reset":
				if err := a.orch.Reset(ctx, sessionID); err != nil {
					fmt.Fprintf(out, "reset failed: %v\n", err)
				}
				continue
			}

			reply, err := a.orch.Handle(ctx, orchestrator.Request{SessionID: sessionID, UserID: userID, Text: text})
			if err != nil && reply.Text == "" {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "bot [%s]> %s\n", reply.AgentType, reply.Text)
			if reply.Escalated {
				fmt.Fprintln(out, "(conversation handed to human support)")
			}
		}
	},
}

func init() {
	chatCmd.Flags().String("session", "", "session id to resume")
	chatCmd.Flags().String("user", "", "logged-in user id")
}
