package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pinsync/pinsync/internal/auth"
	"github.com/pinsync/pinsync/internal/backend"
	"github.com/pinsync/pinsync/internal/ui"
)

var tokenCmd = &cobra.Command{
	Use:     "token",
	GroupID: "auth",
	Short:   "Sign in, sign out and manage access tokens",
}

var tokenLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a refresh token and fetch a first access token",
	Long: `Store a refresh token in the credentials file and exchange it for an
access token. A running daemon notices the new credentials on its own.

  pinsync token login --refresh-token <token>
  pinsync token issue alice | pinsync token login --refresh-token -`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		refresh, _ := cmd.Flags().GetString("refresh-token")
		tokenURL, _ := cmd.Flags().GetString("token-url")

		if refresh == "-" {
			var line string
			if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
				fatal("reading refresh token from stdin: %v", err)
			}
			refresh = line
		}
		refresh = strings.TrimSpace(refresh)
		if refresh == "" {
			fatal("--refresh-token is required")
		}
		if tokenURL == "" {
			tokenURL = strings.TrimRight(cfg.APIURL, "/") + "/auth/refresh"
		}

		if err := auth.WriteCredentials(cfg.CredentialsPath, auth.Credentials{
			RefreshToken: refresh,
			TokenURL:     tokenURL,
		}); err != nil {
			fatal("%v", err)
		}

		s := openStore(ctx)
		defer s.Close()
		sink := commandSink()
		defer sink.Close()

		provider := auth.NewProvider(s, auth.NewFileSession(cfg.CredentialsPath), sink.Logger("auth"))
		if _, ok, err := provider.Refresh(ctx); err != nil || !ok {
			if err == nil {
				err = fmt.Errorf("no token returned")
			}
			fmt.Printf("%s Credentials saved, but the first refresh failed: %v\n", ui.RenderWarn("⚠"), err)
			os.Exit(1)
		}
		fmt.Printf("%s Signed in (credentials in %s)\n", ui.RenderPass("✓"), cfg.CredentialsPath)
	},
}

var tokenRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Exchange the stored refresh token for a new access token",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		s := openStore(ctx)
		defer s.Close()
		sink := commandSink()
		defer sink.Close()

		provider := auth.NewProvider(s, auth.NewFileSession(cfg.CredentialsPath), sink.Logger("auth"))
		_, ok, err := provider.Refresh(ctx)
		if err != nil {
			fatal("%v", err)
		}
		if !ok {
			fmt.Printf("%s Not signed in. Run 'pinsync token login' first.\n", ui.RenderWarn("⚠"))
			os.Exit(1)
		}
		fmt.Printf("%s Access token refreshed\n", ui.RenderPass("✓"))
	},
}

var tokenLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials and the cached access token",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		if err := auth.RemoveCredentials(cfg.CredentialsPath); err != nil {
			fatal("%v", err)
		}

		s := openStore(ctx)
		defer s.Close()
		sink := commandSink()
		defer sink.Close()

		if err := auth.NewProvider(s, nil, sink.Logger("auth")).Clear(ctx); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s Signed out\n", ui.RenderPass("✓"))
	},
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue <owner>",
	Short: "Mint a refresh token for a user of this server",
	Long: `Mint a refresh token signed with server.jwt_secret. Run this on the
machine that runs 'pinsync serve' and hand the token to the user, who signs
in with 'pinsync token login'.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		issuer, err := backend.NewIssuer(cfg.Server.JWTSecret, cfg.Server.AccessTTL, cfg.Server.RefreshTTL)
		if err != nil {
			fatal("%v (set server.jwt_secret or PINSYNC_SERVER_JWT_SECRET)", err)
		}
		token, ttl, err := issuer.Issue(args[0], backend.RefreshToken)
		if err != nil {
			fatal("%v", err)
		}
		if jsonOutput {
			printJSON(map[string]any{"owner": args[0], "refresh_token": token, "expires_in": int(ttl.Seconds())})
			return
		}
		fmt.Println(token)
	},
}

func init() {
	tokenLoginCmd.Flags().String("refresh-token", "", "Refresh token, or - to read it from stdin")
	tokenLoginCmd.Flags().String("token-url", "", "Token endpoint (default: <api_url>/auth/refresh)")

	tokenCmd.AddCommand(tokenLoginCmd)
	tokenCmd.AddCommand(tokenRefreshCmd)
	tokenCmd.AddCommand(tokenLogoutCmd)
	tokenCmd.AddCommand(tokenIssueCmd)
	rootCmd.AddCommand(tokenCmd)
}
