package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"brightthread/internal/agent"
)

var (
	chatOrderID   string
	chatUserID    string
	chatSessionID string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the order-support agent from the terminal",
	Long: `chat opens an interactive conversation against one order. Each line you
type is one turn; the session persists, so quitting and resuming with
--session continues where you left off.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if chatOrderID == "" && chatSessionID == "" {
			return fmt.Errorf("either --order or --session is required")
		}

		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		sessionID := chatSessionID
		fmt.Println("BrightThread order support. Type your message, or /quit to exit.")

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				break
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "/quit" || line == "/exit" {
				break
			}

			result, err := a.coordinator.HandleTurn(cmd.Context(), agent.TurnRequest{
				UserID:    chatUserID,
				SessionID: sessionID,
				OrderID:   chatOrderID,
				Message:   line,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			if sessionID == "" {
				sessionID = result.SessionID
				fmt.Printf("(session %s)\n", sessionID)
			}
			fmt.Println(result.Response)
		}
		return scanner.Err()
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatOrderID, "order", "", "order id to discuss")
	chatCmd.Flags().StringVar(&chatUserID, "user", "cli", "user id for the session")
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "resume an existing session")
	rootCmd.AddCommand(chatCmd)
}
