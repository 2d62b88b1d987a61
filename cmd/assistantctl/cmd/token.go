package cmd

import (
	"fmt"

	"ai-productivity-app/assistant/pkg/config"
	"ai-productivity-app/assistant/pkg/jwt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVarP(&tokenUser, "user", "u", "", "user id to issue the token for")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	_ = tokenCmd.MarkFlagRequired("user")
}

var (
	tokenUser  string
	tokenEmail string
)

// tokenCmd mints a bearer token signed with JWT_SECRET, for use against the dev server
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a dev server bearer token (export it as API_TOKEN)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.New()
		token, err := jwt.NewService(cfg.Server.JWTSecret, cfg.Server.JWTExpiry).GenerateToken(tokenUser, tokenEmail)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}
