package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/AngelCh415/insights-sync/internal/models"
	"github.com/AngelCh415/insights-sync/internal/session"
)

var syncFlags struct {
	account string
	token   string
	user    string
	org     string
	quiet   bool
}

var syncLeadsCmd = &cobra.Command{
	Use:   "sync-leads",
	Short: "Discover one account's leads and store the new ones as prospects",
	RunE: func(cmd *cobra.Command, args []string) error {
		token := syncFlags.token
		if token == "" {
			token = os.Getenv("INSIGHTS_ACCESS_TOKEN")
		}
		sess, err := session.Validate(models.Session{
			AccountID:   strings.TrimPrefix(syncFlags.account, "act_"),
			AccessToken: token,
			UserID:      syncFlags.user,
			OrgID:       syncFlags.org,
		})
		if err != nil {
			return eris.Wrap(err, "sync-leads: --account and a token are required")
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.syncer.Run(ctx, a.client.WithToken(sess.AccessToken), sess)
		if err != nil {
			return err
		}
		if syncFlags.quiet {
			res.Leads = nil
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", " ")
		return enc.Encode(res)
	},
}

func init() {
	f := syncLeadsCmd.Flags()
	f.StringVar(&syncFlags.account, "account", "", "ad account id (with or without act_)")
	f.StringVar(&syncFlags.token, "token", "", "platform access token (default $INSIGHTS_ACCESS_TOKEN)")
	f.StringVar(&syncFlags.user, "user", "", "user id")
	f.StringVar(&syncFlags.org, "org", "", "organization id")
	f.BoolVar(&syncFlags.quiet, "quiet", false, "print counts only")
	rootCmd.AddCommand(syncLeadsCmd)
}
