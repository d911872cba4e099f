// Command aggregator runs key generation and signing ceremonies against the
// signer nodes listed in its configuration.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/taurusgroup/frost-bridge/internal/config"
	"github.com/taurusgroup/frost-bridge/internal/log"
	"github.com/taurusgroup/frost-bridge/pkg/aggregator"
	"github.com/taurusgroup/frost-bridge/pkg/musig"
	"github.com/taurusgroup/frost-bridge/pkg/party"
	"github.com/taurusgroup/frost-bridge/pkg/signerclient"
	"github.com/taurusgroup/frost-bridge/pkg/storage/leveldb"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type app struct {
	configPath string
	cfg        *config.Aggregator
	log        zerolog.Logger
	store      *leveldb.Store
	agg        *aggregator.Aggregator
	registry   *prometheus.Registry
}

func newCommand() *cobra.Command {
	a := new(app)
	root := &cobra.Command{
		Use:          "aggregator",
		Short:        "Coordinate FROST ceremonies between signer nodes",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.store.Close()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "aggregator.yaml", "path to the YAML configuration")
	root.AddCommand(a.dkgCommand(), a.signCommand(), a.pubkeyCommand(), a.tweakCommand(), a.healthCommand(), a.monitorCommand())
	return root
}

func (a *app) open() error {
	cfg, err := config.LoadAggregator(a.configPath)
	if err != nil {
		return err
	}
	if a.log, err = log.New(cfg.Log.Level, cfg.Log.Pretty); err != nil {
		return err
	}
	if a.store, err = leveldb.Open(cfg.DataDir); err != nil {
		return err
	}
	clients := make(map[party.ID]signerclient.Client, len(cfg.Participants))
	for _, p := range cfg.Participants {
		clients[p.ID] = signerclient.NewRPC(p.ID, p.URL)
	}
	a.registry = prometheus.NewRegistry()
	a.agg, err = aggregator.New(clients, a.store,
		aggregator.WithLogger(a.log),
		aggregator.WithRegisterer(a.registry),
		aggregator.WithCallTimeout(cfg.CallTimeout),
		aggregator.WithMaxAttempts(cfg.MaxAttempts),
		aggregator.WithRetryBackoff(cfg.RetryBackoff),
	)
	if err != nil {
		_ = a.store.Close()
		return err
	}
	a.cfg = cfg
	return nil
}

// identityFlags adds the flags naming a musig identity.
type identityFlags struct {
	issuer    bool
	publicKey string
	asset     string
}

func (f *identityFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.issuer, "issuer", false, "the key belongs to an issuer rather than a user")
	cmd.Flags().StringVar(&f.publicKey, "pubkey", "", "hex compressed public key of the user or issuer")
	cmd.Flags().StringVar(&f.asset, "asset", "", "asset identifier")
	_ = cmd.MarkFlagRequired("pubkey")
	_ = cmd.MarkFlagRequired("asset")
}

func (f *identityFlags) id() (musig.ID, error) {
	role := musig.RoleUser
	if f.issuer {
		role = musig.RoleIssuer
	}
	return musig.Parse(fmt.Sprintf("%s/%s/%s", role, f.publicKey, f.asset))
}

func interrupted(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type keyOutput struct {
	MusigID            string            `json:"musig_id"`
	Threshold          int               `json:"threshold"`
	Participants       int               `json:"participants"`
	PublicKey          string            `json:"public_key"`
	VerificationShares map[string]string `json:"verification_shares"`
}

func (a *app) dkgCommand() *cobra.Command {
	var f identityFlags
	cmd := &cobra.Command{
		Use:   "dkg",
		Short: "Generate the threshold key of an identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := f.id()
			if err != nil {
				return err
			}
			ctx, stop := interrupted(cmd)
			defer stop()
			public, err := a.agg.RunDKG(ctx, id, a.params())
			if err != nil {
				return err
			}
			return printJSON(cmd, newKeyOutput(id, public))
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) pubkeyCommand() *cobra.Command {
	var f identityFlags
	cmd := &cobra.Command{
		Use:   "pubkey",
		Short: "Print the threshold key of an identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := f.id()
			if err != nil {
				return err
			}
			public, err := a.agg.GetPublicKey(cmd.Context(), id)
			if err != nil {
				return err
			}
			if public == nil {
				return fmt.Errorf("no key for %s", id)
			}
			return printJSON(cmd, newKeyOutput(id, public))
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) healthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that every signer node answers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			failures := a.agg.Health(cmd.Context())
			status := make(map[string]string, len(a.cfg.Participants))
			for _, id := range a.agg.Participants() {
				status[id.String()] = "ok"
				if err, ok := failures[id]; ok {
					status[id.String()] = err.Error()
				}
			}
			if err := printJSON(cmd, status); err != nil {
				return err
			}
			if len(failures) > 0 {
				return fmt.Errorf("%d of %d participants unhealthy", len(failures), len(status))
			}
			return nil
		},
	}
}

func decodeHex(flag, s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", flag, err)
	}
	return b, nil
}
