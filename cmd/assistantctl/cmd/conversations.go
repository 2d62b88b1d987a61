package cmd

import (
	"ai-productivity-app/assistant/conversation/models"
	"ai-productivity-app/assistant/pkg/di"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(conversationsCmd)
	conversationsCmd.Flags().StringVarP(&conversationsSearch, "search", "s", "", "filter by title")
}

var conversationsSearch string

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"ls"},
	Short:   "List recent conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, di.Options{}, func(e *env) error {
			dir := e.container.Directory

			var convs []models.Conversation
			if conversationsSearch != "" {
				found, err := dir.Search(e.ctx, conversationsSearch)
				if err != nil {
					return err
				}
				convs = found
			} else {
				if err := dir.Refresh(e.ctx); err != nil {
					return err
				}
				convs = dir.Conversations()
			}

			printConversations(e.out, convs)
			return nil
		})
	},
}
