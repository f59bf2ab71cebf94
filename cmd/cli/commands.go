package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/and161185/storefront-sync/internal/convert"
	"github.com/and161185/storefront-sync/internal/model"
	"github.com/and161185/storefront-sync/internal/service"
)

type app struct {
	v    *viper.Viper
	dial dialer
}

// call sends one request and prints the response. A failed response is an error.
func (a *app) call(cmd *cobra.Command, req service.Request) error {
	bearer, err := a.bearer()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), a.v.GetDuration("timeout"))
	defer cancel()

	cl, closeFn, err := a.dial(ctx, a.v, bearer)
	if err != nil {
		return fmt.Errorf("dial: %v", err)
	}
	defer closeFn()

	in, err := convert.ToProtoRequest(req)
	if err != nil {
		return err
	}
	out, err := cl.Dispatch(ctx, in)
	if err != nil {
		return fmt.Errorf("%s: %v", req.Action, err)
	}
	resp := convert.FromProtoResponse(out)
	printJSON(cmd.OutOrStdout(), resp)
	if !resp.Success {
		return fmt.Errorf("%s failed: %s (%v)", req.Action, resp.Error, resp.Details["category"])
	}
	return nil
}

type credFlags struct {
	externalID string
	file       string
	creds      model.Credentials
}

func (c *credFlags) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&c.externalID, "external-id", "", "17-digit external account id")
	f.StringVar(&c.creds.Login, "login", "", "account login")
	f.StringVar(&c.creds.Password, "password", "", "account password")
	f.StringVar(&c.creds.SharedSecret, "shared-secret", "", "shared secret")
	f.StringVar(&c.creds.IdentitySecret, "identity-secret", "", "identity secret")
	f.StringVar(&c.creds.APIKey, "api-key", "", "platform API key")
	f.StringVar(&c.file, "credentials-file", "", "JSON credentials bundle (- for stdin); flags override its fields")
	_ = cmd.MarkFlagRequired("external-id")
}

// resolve merges the credentials file with explicit flags.
func (c *credFlags) resolve() (model.Credentials, error) {
	if c.file == "" {
		return c.creds, nil
	}
	b, err := readAll(c.file)
	if err != nil {
		return model.Credentials{}, err
	}
	var out model.Credentials
	if err := json.Unmarshal(b, &out); err != nil {
		return model.Credentials{}, fmt.Errorf("credentials file: %v", err)
	}
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&out.Login, c.creds.Login)
	pick(&out.Password, c.creds.Password)
	pick(&out.SharedSecret, c.creds.SharedSecret)
	pick(&out.IdentitySecret, c.creds.IdentitySecret)
	pick(&out.APIKey, c.creds.APIKey)
	return out, nil
}

func newTokenCmd(v *viper.Viper) *cobra.Command {
	var (
		subject   string
		ttl       time.Duration
		key       string
		printOnly bool
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator token with the server signing key and save it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if key == "" {
				key = v.GetString("jwt_key")
			}
			if key == "" {
				return fmt.Errorf("signing key required (--jwt-key or SFCTL_JWT_KEY)")
			}
			tok, exp, err := service.NewOperatorAuth([]byte(key)).Issue(subject, ttl)
			if err != nil {
				return err
			}
			if printOnly {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), tok)
				return nil
			}
			if err := saveToken(tok, exp); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "token saved, expires %s\n", exp.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	cmd.Flags().StringVar(&key, "jwt-key", "", "HS256 signing key")
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the token instead of saving it")
	return cmd
}

func newTestLoginCmd(a *app) *cobra.Command {
	var cf credFlags
	cmd := &cobra.Command{
		Use:   "test-login",
		Short: "Check that an account is reachable and public",
		RunE: func(cmd *cobra.Command, _ []string) error {
			creds, err := cf.resolve()
			if err != nil {
				return err
			}
			return a.call(cmd, service.Request{Action: service.ActionTestLogin, ExternalID: cf.externalID, Credentials: creds})
		},
	}
	cf.bind(cmd)
	return cmd
}

func newCreateBotCmd(a *app) *cobra.Command {
	var (
		cf   credFlags
		name string
	)
	cmd := &cobra.Command{
		Use:   "create-bot",
		Short: "Register an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			creds, err := cf.resolve()
			if err != nil {
				return err
			}
			return a.call(cmd, service.Request{
				Action:      service.ActionCreateBot,
				Name:        name,
				ExternalID:  cf.externalID,
				Credentials: creds,
			})
		},
	}
	cf.bind(cmd)
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newSyncCmd(a *app) *cobra.Command {
	var attempt int
	cmd := &cobra.Command{
		Use:   "sync <account-id>",
		Short: "Run an inventory sync now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.call(cmd, service.Request{Action: service.ActionSyncNow, AccountID: args[0], RetryAttempt: attempt})
		},
	}
	cmd.Flags().IntVar(&attempt, "retry-attempt", 0, "fetch attempts already consumed")
	return cmd
}

func newToggleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <account-id>",
		Short: "Flip whether scheduled syncs include the account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.call(cmd, service.Request{Action: service.ActionToggleStatus, AccountID: args[0]})
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <account-id>",
		Short: "Delete an account and detach its storefront rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.call(cmd, service.Request{Action: service.ActionDeleteBot, AccountID: args[0]})
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts and their sync status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.call(cmd, service.Request{Action: service.ActionListBots})
		},
	}
}
