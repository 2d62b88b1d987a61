package cmd

import (
	"fmt"

	"ai-productivity-app/assistant/conversation/models"
	"ai-productivity-app/assistant/pkg/di"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVarP(&fetchConversation, "conversation", "c", "", "conversation id")
	fetchCmd.Flags().StringVarP(&fetchMessage, "message", "m", "", "message id")
	_ = fetchCmd.MarkFlagRequired("conversation")
	_ = fetchCmd.MarkFlagRequired("message")
}

var (
	fetchConversation string
	fetchMessage      string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the attachments of a message into the local cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, di.Options{}, func(e *env) error {
			msg, err := findMessage(e, fetchConversation, fetchMessage)
			if err != nil {
				return err
			}

			atts := msg.Base().Attachments
			if len(atts) == 0 {
				fmt.Fprintln(e.out, "message has no attachments")
				return nil
			}
			for _, att := range atts {
				path, err := e.container.Cache.EnsureLocal(e.ctx, att)
				if err != nil {
					return err
				}
				fmt.Fprintf(e.out, "%s -> %s\n", att.Name, path)
			}
			return nil
		})
	},
}

// findMessage pages back through the conversation until messageID shows up
func findMessage(e *env, conversationID, messageID string) (models.Message, error) {
	mgr := e.container.Session
	mgr.SwitchConversation(conversationID, nil)

	for {
		for _, m := range mgr.Messages() {
			if m.Base().ID == messageID {
				return m, nil
			}
		}
		loaded, err := mgr.LoadOlder(e.ctx)
		if err != nil {
			return nil, err
		}
		if !loaded {
			return nil, fmt.Errorf("message %s not found in conversation %s", messageID, conversationID)
		}
	}
}
