package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	waerrors "github.com/waweb-dev/waweb/internal/errors"
	"github.com/waweb-dev/waweb/pkg/client"
)

// maxCodeAttempts bounds how often a refused code may be retyped.
const maxCodeAttempts = 3

func pairCmd(a *app) *cobra.Command {
	var (
		code    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "pair <phone>",
		Short: "Link this device with a phone number instead of a QR code",
		Long: `Link this device by phone number.

The phone number is given in international form. The server shows a
six digit code on the phone which is then typed here (or passed with
--code).

Examples:
  waweb pair +40712345678
  waweb pair "+1 (555) 010-9999" --code 424242`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runPair(ctx, args[0], code, timeout)
		},
	}

	cmd.Flags().StringVarP(&code, "code", "c", "", "pairing code shown on the phone")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 2*time.Minute, "how long to wait for the login")

	return cmd
}

func (a *app) runPair(ctx context.Context, phone, code string, timeout time.Duration) error {
	if _, err := client.NormalizePhone(phone); err != nil {
		return waerrors.Classify(err, "W303")
	}
	if code != "" {
		if _, err := client.NormalizeCode(code); err != nil {
			return waerrors.Classify(err, "W304")
		}
	}

	s, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	events := s.client.Events()
	if err := s.client.Connect(ctx); err != nil {
		return waerrors.Classify(err, "W201")
	}
	if s.client.State() == client.StateAuthenticated {
		return a.loggedIn(s)
	}

	if err := s.client.RequestPairingCode(ctx, phone); err != nil {
		return waerrors.Classify(err, "W306")
	}
	a.success("Pairing requested for %s", phone)

	reader := bufio.NewReader(a.in)
	for attempt := 1; ; attempt++ {
		if code == "" {
			code, err = prompt(a.out, reader, "Enter the code shown on your phone: ")
			if err != nil {
				return waerrors.New("W750").Wrap(err)
			}
		}
		ok, err := s.client.VerifyPairingCode(ctx, code)
		if err != nil {
			return waerrors.Classify(err, "W304")
		}
		if ok {
			break
		}
		if attempt >= maxCodeAttempts {
			return waerrors.New("W304").WithDetail(fmt.Sprintf("code refused %d times", attempt))
		}
		a.warn("Code refused, try again")
		code = ""
	}

	return a.awaitAuthenticated(ctx, s, events, timeout)
}

// awaitAuthenticated waits for the status push that completes a pairing.
func (a *app) awaitAuthenticated(ctx context.Context, s *session, events <-chan client.Event, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if s.client.State() == client.StateAuthenticated {
			return a.loggedIn(s)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return waerrors.New("W202").WithDetail(fmt.Sprintf("no login within %s", timeout))
		case ev, ok := <-events:
			if !ok {
				return waerrors.New("W207")
			}
			switch e := ev.(type) {
			case client.Authenticated:
				return a.loggedIn(s)
			case client.Disconnected:
				if err := a.disconnected(e); err != nil {
					return err
				}
			}
		}
	}
}

func prompt(w io.Writer, r *bufio.Reader, question string) (string, error) {
	fmt.Fprint(w, question)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
