package cmd

import (
	"fmt"
	"strings"

	"ai-productivity-app/assistant/attachment/staging"
	"ai-productivity-app/assistant/pkg/di"
	apperrors "ai-productivity-app/assistant/pkg/errors"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringSliceVarP(&sendAttach, "attach", "a", nil, "file to attach (repeatable)")
	sendCmd.Flags().StringVarP(&sendConversation, "conversation", "c", "", "conversation id; empty starts a new conversation")
	sendCmd.Flags().BoolVar(&sendRetry, "retry", false, "resubmit the prompt if the reply fails once")
}

var (
	sendAttach       []string
	sendConversation string
	sendRetry        bool
)

var sendCmd = &cobra.Command{
	Use:   "send [text]",
	Short: "Send a prompt, optionally with attachments, and print the reply",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		return withContainer(cmd, di.Options{}, func(e *env) error {
			return runSend(e, text)
		})
	},
}

func runSend(e *env, text string) error {
	mgr := e.container.Session
	area := mgr.Staging()

	if sendConversation != "" {
		mgr.SwitchConversation(sendConversation, nil)
	}

	for _, path := range sendAttach {
		att, err := staging.FromFile(path)
		if err != nil {
			return fmt.Errorf("attach %s: %w", path, err)
		}
		if err := area.Add(att); err != nil {
			return fmt.Errorf("attach %s: %w", path, err)
		}
	}

	err := mgr.SendMessage(e.ctx, text, area.List())
	if err != nil && sendRetry && retryable(err) {
		fmt.Fprintf(e.out, "reply failed, retrying: %v\n", err)
		err = mgr.Retry(e.ctx, text)
	}

	printMessages(e.out, mgr.Messages())
	if id := mgr.ConversationID(); id != "" {
		fmt.Fprintf(e.out, "conversation: %s\n", id)
	}
	if n := area.Len(); n > 0 {
		fmt.Fprintf(e.out, "%d attachment(s) still staged\n", n)
	}
	return err
}

func retryable(err error) bool {
	appErr, ok := apperrors.As(err)
	return ok && appErr.Retryable() && appErr.Code != apperrors.CodeUploadFailure
}
