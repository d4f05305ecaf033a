package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	waerrors "github.com/waweb-dev/waweb/internal/errors"
	"github.com/waweb-dev/waweb/pkg/signal"
)

func keysCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Inspect and manage identity keys and sessions",
		Long: `Inspect and manage the end to end encryption state.

Keys and sessions live in the configured store backend (file, sqlite,
s3 or memory). The identity is created on first use.`,
	}

	cmd.AddCommand(
		keysShowCmd(a),
		keysSessionsCmd(a),
		keysRefillCmd(a),
		keysForgetCmd(a),
		keysEstablishCmd(a),
		keysAcceptCmd(a),
	)
	return cmd
}

// withKeys runs fn with an open key store and manager.
func (a *app) withKeys(ctx context.Context, fn func(*session) error) error {
	s, err := a.openKeys(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func keysShowCmd(a *app) *cobra.Command {
	var (
		asJSON   bool
		deviceID uint32
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the local identity and public bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withKeys(cmd.Context(), func(s *session) error {
				b := s.manager.Bundle(deviceID)
				if asJSON {
					data, err := json.MarshalIndent(b, "", "  ")
					if err != nil {
						return err
					}
					fmt.Fprintln(a.out, string(data))
					return nil
				}
				id := s.manager.Identity()
				fmt.Fprintf(a.out, "  Agreement:       %s\n", s.manager.Agreement().Name())
				fmt.Fprintf(a.out, "  Registration ID: %d\n", id.RegistrationID)
				fmt.Fprintf(a.out, "  Fingerprint:     %s\n", fingerprint(id.DH.Public, id.SigningPublic))
				fmt.Fprintf(a.out, "  Created:         %s\n", id.CreatedAt.Format("2006-01-02 15:04:05"))
				fmt.Fprintf(a.out, "  Signed prekey:   #%d\n", b.SignedPreKeyID)
				fmt.Fprintf(a.out, "  One-time keys:   %d\n", s.manager.PreKeyCount())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the public bundle as JSON")
	cmd.Flags().Uint32Var(&deviceID, "device", 0, "device id to put in the bundle")
	return cmd
}

func keysSessionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List peers with an established session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withKeys(cmd.Context(), func(s *session) error {
				peers, err := s.manager.Sessions(cmd.Context())
				if err != nil {
					return waerrors.Classify(err, "W600")
				}
				if len(peers) == 0 {
					a.info("No sessions")
					return nil
				}
				for _, p := range peers {
					fmt.Fprintln(a.out, p)
				}
				return nil
			})
		},
	}
}

func keysRefillCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refill",
		Short: "Top up the one-time prekey pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withKeys(cmd.Context(), func(s *session) error {
				n, err := s.manager.RefillPreKeys(cmd.Context())
				if err != nil {
					return waerrors.Classify(err, "W600")
				}
				a.success("Added %d prekeys (%d available)", n, s.manager.PreKeyCount())
				return nil
			})
		},
	}
}

func keysForgetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <peer>",
		Short: "Delete the session with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withKeys(cmd.Context(), func(s *session) error {
				if err := s.manager.DeleteSession(cmd.Context(), args[0]); err != nil {
					return waerrors.Classify(err, "W600")
				}
				a.success("Forgot session with %s", args[0])
				return nil
			})
		},
	}
}

func keysEstablishCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "establish <peer> <bundle.json>",
		Short: "Start a session from a peer's published bundle",
		Long: `Start a session from a peer's published bundle.

The initial message printed on success must reach the peer, who
completes the session with 'waweb keys accept'.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var b signal.Bundle
			if err := readJSONFile(args[1], &b); err != nil {
				return err
			}
			return a.withKeys(cmd.Context(), func(s *session) error {
				msg, err := s.manager.EstablishSession(cmd.Context(), args[0], &b)
				if err != nil {
					return waerrors.Classify(err, "W504")
				}
				data, err := json.MarshalIndent(msg, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, string(data))
				return nil
			})
		},
	}
}

func keysAcceptCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "accept <peer> <initial.json>",
		Short: "Complete a session a peer started with our bundle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var msg signal.InitialMessage
			if err := readJSONFile(args[1], &msg); err != nil {
				return err
			}
			return a.withKeys(cmd.Context(), func(s *session) error {
				if err := s.manager.AcceptSession(cmd.Context(), args[0], &msg); err != nil {
					return waerrors.Classify(err, "W504")
				}
				a.success("Session with %s established", args[0])
				return nil
			})
		},
	}
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return waerrors.New("W750").Wrap(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return waerrors.New("W750").Wrap(fmt.Errorf("%s: %w", path, err))
	}
	return nil
}

// fingerprint renders a short, comparable digest of the public identity.
func fingerprint(keys ...[]byte) string {
	h := sha256.New()
	for _, k := range keys {
		h.Write(k)
	}
	sum := hex.EncodeToString(h.Sum(nil)[:16])
	groups := make([]string, 0, len(sum)/4)
	for i := 0; i < len(sum); i += 4 {
		groups = append(groups, sum[i:i+4])
	}
	return strings.Join(groups, " ")
}
