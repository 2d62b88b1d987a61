package cmd

import (
	"context"
	"fmt"

	"ai-productivity-app/assistant/conversation/feedback"
	"ai-productivity-app/assistant/conversation/models"
	"ai-productivity-app/assistant/pkg/di"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(feedbackCmd)

	feedbackCmd.Flags().StringVarP(&feedbackConversation, "conversation", "c", "", "conversation id")
	feedbackCmd.Flags().StringVarP(&feedbackMessage, "message", "m", "", "assistant message id")
	feedbackCmd.Flags().StringVar(&feedbackReason, "reason", "", "report reason for a thumbs-down")
	feedbackCmd.Flags().StringVar(&feedbackComment, "comment", "", "free-form report text for a thumbs-down")
	_ = feedbackCmd.MarkFlagRequired("conversation")
	_ = feedbackCmd.MarkFlagRequired("message")
}

var (
	feedbackConversation string
	feedbackMessage      string
	feedbackReason       string
	feedbackComment      string
)

// pendingReports collects thumbs-down requests; the command submits them with its flags
type pendingReports struct {
	opened [][2]string
}

func (p *pendingReports) OpenReport(_ context.Context, conversationID, messageID string) error {
	p.opened = append(p.opened, [2]string{conversationID, messageID})
	return nil
}

var feedbackCmd = &cobra.Command{
	Use:       "feedback up|down",
	Short:     "Give a thumbs-up or thumbs-down to an assistant reply",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(models.ThumbsUp), string(models.ThumbsDown)},
	RunE: func(cmd *cobra.Command, args []string) error {
		polarity := models.Polarity(args[0])
		flow := &pendingReports{}

		return withContainer(cmd, di.Options{ReportFlow: flow}, func(e *env) error {
			out, err := e.container.Session.RegisterFeedback(e.ctx, polarity, feedbackConversation, feedbackMessage)
			if err != nil {
				return err
			}

			switch out {
			case feedback.OutcomeStored:
				fmt.Fprintln(e.out, "feedback recorded")
			case feedback.OutcomeUnchanged:
				fmt.Fprintln(e.out, "feedback already recorded")
			case feedback.OutcomeReportRequested:
				for _, r := range flow.opened {
					if err := e.container.Feedback.SubmitReport(e.ctx, r[0], r[1], feedbackReason, feedbackComment); err != nil {
						return err
					}
				}
				fmt.Fprintln(e.out, "report submitted")
			}
			return nil
		})
	},
}
