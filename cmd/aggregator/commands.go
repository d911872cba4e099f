package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/taurusgroup/frost-bridge/pkg/aggregator"
	"github.com/taurusgroup/frost-bridge/pkg/musig"
	"github.com/taurusgroup/frost-bridge/pkg/party"
	"github.com/taurusgroup/frost-bridge/pkg/tweak"
	"github.com/taurusgroup/frost-bridge/protocols/frost/keygen"
)

func (a *app) params() keygen.Params {
	return keygen.Params{N: len(a.cfg.Participants), T: a.cfg.Threshold}
}

func newKeyOutput(id musig.ID, public *keygen.PublicKeyPackage) *keyOutput {
	out := &keyOutput{
		MusigID:            id.String(),
		Threshold:          public.Params.T,
		Participants:       public.Params.N,
		PublicKey:          hex.EncodeToString(public.XOnly()),
		VerificationShares: make(map[string]string, len(public.VerificationShares)),
	}
	for j, Y_j := range public.VerificationShares {
		b, _ := Y_j.MarshalBinary()
		out.VerificationShares[j.String()] = hex.EncodeToString(b)
	}
	return out
}

func (a *app) signCommand() *cobra.Command {
	var (
		f          identityFlags
		message    string
		quorum     []uint
		tweakInput string
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a message with the threshold key of an identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := f.id()
			if err != nil {
				return err
			}
			m, err := decodeHex("message", message)
			if err != nil {
				return err
			}
			var opts []aggregator.SignOption
			if len(quorum) > 0 {
				ids := make([]party.ID, 0, len(quorum))
				for _, q := range quorum {
					if q == 0 || q > 0xFFFF {
						return fmt.Errorf("--quorum: invalid participant %d", q)
					}
					ids = append(ids, party.ID(q))
				}
				opts = append(opts, aggregator.WithQuorum(ids...))
			}
			if tweakInput != "" {
				input, err := decodeHex("tweak-input", tweakInput)
				if err != nil {
					return err
				}
				t, err := tweak.ScalarFromInput(input)
				if err != nil {
					return err
				}
				opts = append(opts, aggregator.WithTweak(t))
			}

			ctx, stop := interrupted(cmd)
			defer stop()
			sig, err := a.agg.RunSigning(ctx, id, m, opts...)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{"signature": hex.EncodeToString(sig)})
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&message, "message", "", "hex message to sign, usually a 32 byte sighash")
	cmd.Flags().UintSliceVar(&quorum, "quorum", nil, "comma separated participants to sign with")
	cmd.Flags().StringVar(&tweakInput, "tweak-input", "", "hex input data of a tweak printed by the tweak command")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

// tweakCommand derives a fresh deposit key from the identity's key.
func (a *app) tweakCommand() *cobra.Command {
	var (
		f    identityFlags
		data string
	)
	cmd := &cobra.Command{
		Use:   "tweak",
		Short: "Derive a tweaked public key from the threshold key of an identity",
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
			generated, err := tweak.GenerateTweakWithNonce([]byte(data))
			if err != nil {
				return err
			}
			base, err := tweak.ToBtcec(public.PublicKey)
			if err != nil {
				return err
			}
			tweaked, err := tweak.TweakPubkey(base, generated.Scalar)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{
				"tweak_input": hex.EncodeToString(generated.InputData),
				"public_key":  hex.EncodeToString(tweaked.XOnly[:]),
				"odd":         tweaked.Odd,
			})
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&data, "data", "", "data bound into the tweak, e.g. a deposit reference")
	return cmd
}

// monitorCommand serves metrics and checks the signers periodically.
func (a *app) monitorCommand() *cobra.Command {
	var (
		listen   string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Serve metrics and periodically check signer health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen == "" {
				listen = a.cfg.Listen
			}
			if listen == "" {
				return errors.New("no listen address")
			}
			ctx, stop := interrupted(cmd)
			defer stop()

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
			server := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
			errc := make(chan error, 1)
			go func() { errc <- server.ListenAndServe() }()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case err := <-errc:
					return err
				case <-ctx.Done():
					shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return server.Shutdown(shutdown)
				case <-ticker.C:
					for id, err := range a.agg.Health(ctx) {
						a.log.Warn().Err(err).Stringer("participant", id).Msg("participant unhealthy")
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "metrics address, defaults to the configured one")
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "health check interval")
	return cmd
}
