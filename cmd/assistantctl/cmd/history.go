package cmd

import (
	"errors"
	"fmt"

	"ai-productivity-app/assistant/pkg/di"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVarP(&historyConversation, "conversation", "c", "", "conversation id")
	historyCmd.Flags().IntVarP(&historyPages, "pages", "p", 1, "number of pages to load, 0 loads everything")
	_ = historyCmd.MarkFlagRequired("conversation")
}

var (
	historyConversation string
	historyPages        int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the messages of a conversation, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyPages < 0 {
			return errors.New("--pages must not be negative")
		}
		return withContainer(cmd, di.Options{}, func(e *env) error {
			mgr := e.container.Session
			mgr.SwitchConversation(historyConversation, nil)

			pages := 0
			for historyPages == 0 || pages < historyPages {
				loaded, err := mgr.LoadOlder(e.ctx)
				if err != nil {
					return err
				}
				if !loaded {
					break
				}
				pages++
			}

			printMessages(e.out, mgr.Messages())
			if e.container.History.HasMore() {
				fmt.Fprintf(e.out, "(%d page(s) loaded, older messages remain)\n", pages)
			}
			return nil
		})
	},
}
