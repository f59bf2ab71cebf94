// Command sfctl is the operator CLI for the storefront sync service.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	grpcserver "github.com/and161185/storefront-sync/internal/server/grpc"
)

func main() {
	if err := newRootCmd(nil).Execute(); err != nil {
		os.Exit(1)
	}
}

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "sfctl")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "sfctl")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (run `sfctl token` first)")
	}
	return tf.AccessToken, nil
}

// ---- grpc dial ----

type bearerCreds struct {
	token  string
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

func loadTLS(caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	if skipVerify {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil //nolint:gosec // operator opt-in
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

// dialer opens a Control client. close releases the connection.
type dialer func(ctx context.Context, v *viper.Viper, bearer string) (client grpcserver.ControlClient, close func(), err error)

func dialGRPC(_ context.Context, v *viper.Viper, bearer string) (grpcserver.ControlClient, func(), error) {
	var creds credentials.TransportCredentials
	if v.GetBool("plaintext") {
		creds = insecure.NewCredentials()
	} else {
		c, err := loadTLS(v.GetString("ca"), v.GetBool("insecure"))
		if err != nil {
			return nil, nil, err
		}
		creds = c
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if bearer != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: bearer, secure: !v.GetBool("plaintext")}))
	}
	cc, err := grpc.NewClient(v.GetString("addr"), opts...)
	if err != nil {
		return nil, nil, err
	}
	return grpcserver.NewControlClient(cc), func() { _ = cc.Close() }, nil
}

// ---- utils ----

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// ---- root ----

func newRootCmd(dial dialer) *cobra.Command {
	if dial == nil {
		dial = dialGRPC
	}
	v := viper.New()
	v.SetEnvPrefix("SFCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "sfctl",
		Short:         "Operate the storefront sync service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	pf := root.PersistentFlags()
	pf.String("addr", "localhost:8443", "server address")
	pf.String("ca", "", "CA certificate (PEM)")
	pf.Bool("insecure", false, "skip TLS verification (dev only)")
	pf.Bool("plaintext", false, "connect without TLS")
	pf.String("token", "", "operator bearer token (default: saved token)")
	pf.Duration("timeout", 2*time.Minute, "request timeout")
	_ = v.BindPFlags(pf)

	a := &app{v: v, dial: dial}
	root.AddCommand(
		newTokenCmd(v),
		newTestLoginCmd(a),
		newCreateBotCmd(a),
		newSyncCmd(a),
		newToggleCmd(a),
		newDeleteCmd(a),
		newListCmd(a),
	)
	return root
}

func (a *app) bearer() (string, error) {
	if t := a.v.GetString("token"); t != "" {
		return t, nil
	}
	return loadToken()
}
