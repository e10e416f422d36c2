package cmd

import (
	"fmt"
	"time"

	"vizdirector/core/auth"

	"github.com/spf13/cobra"
)

var (
	tokenOperator string
	tokenTTL      time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a control token for the HTTP API",
	Long: `Sign a bearer token with CONTROL_JWT_SECRET. Send it as
"Authorization: Bearer <token>" or as ?token= on the websocket URL.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tok, err := auth.GenerateToken(cfg.JWTSecret, tokenOperator, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenOperator, "operator", "booth", "operator name carried in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 12*time.Hour, "token lifetime, 0 for no expiry")
}
