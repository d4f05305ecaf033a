package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	waerrors "github.com/waweb-dev/waweb/internal/errors"
	"github.com/waweb-dev/waweb/pkg/client"
)

func connectCmd(a *app) *cobra.Command {
	var (
		qrPNG   string
		timeout time.Duration
		listen  bool
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Link this device by QR code or restore the saved login",
		Long: `Connect to WhatsApp Web.

Without saved credentials the server issues a login challenge which
is drawn as a QR code; scan it from the phone under Linked devices.
The tokens of a successful login are saved and reused next time.

Examples:
  waweb connect
  waweb connect --qr-png ./qr.png
  waweb connect --listen`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runConnect(ctx, qrPNG, timeout, listen)
		},
	}

	cmd.Flags().StringVar(&qrPNG, "qr-png", "", "also write the QR code to this PNG file")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 2*time.Minute, "how long to wait for the login")
	cmd.Flags().BoolVarP(&listen, "listen", "l", false, "stay connected and print incoming messages")

	return cmd
}

func (a *app) runConnect(ctx context.Context, qrPNG string, timeout time.Duration, listen bool) error {
	s, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	events := s.client.Events()
	a.printBanner()
	if err := s.client.Connect(ctx); err != nil {
		return waerrors.Classify(err, "W201")
	}

	if err := a.awaitLogin(ctx, s, events, qrPNG, timeout); err != nil {
		return err
	}
	if !listen {
		return nil
	}
	a.info("Listening for messages, press Ctrl+C to stop")
	return a.streamMessages(ctx, s, events)
}

// awaitLogin draws challenges until the server authenticates the device.
func (a *app) awaitLogin(ctx context.Context, s *session, events <-chan client.Event, qrPNG string, timeout time.Duration) error {
	if s.client.State() == client.StateAuthenticated {
		return a.loggedIn(s)
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
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
			case client.QRCode:
				payload := qrPayload(e.Ref, s.manager.Identity().DH.Public, s.client.Connection().ClientID)
				fmt.Fprintln(a.out, "\nScan this QR code with WhatsApp on your phone:")
				printQR(payload)
				if qrPNG != "" {
					if err := writeQRPNG(qrPNG, payload); err != nil {
						a.warn("%v", err)
					} else {
						a.info("QR code saved to %s", qrPNG)
					}
				}
				if e.TTL > 0 {
					a.info("The code expires in %s", e.TTL.Round(time.Second))
				}
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

// loggedIn persists the tokens of an authenticated client.
func (a *app) loggedIn(s *session) error {
	creds := s.client.Credentials()
	if err := saveCredentials(a.cfg.CredentialsPath(), creds); err != nil {
		return err
	}
	who := "this device"
	if creds != nil && creds.Wid != "" {
		who = creds.Wid
	}
	a.success("Logged in as %s", who)
	return nil
}

// disconnected maps a terminal disconnect to an error. Reconnecting
// reasons return nil.
func (a *app) disconnected(e client.Disconnected) error {
	switch e.Reason {
	case client.ReasonSessionExpired:
		_ = removeCredentials(a.cfg.CredentialsPath())
		return waerrors.New("W301")
	case client.ReasonConnectionReplaced:
		return waerrors.New("W205")
	case client.ReasonLogout:
		_ = removeCredentials(a.cfg.CredentialsPath())
		return waerrors.New("W302")
	case client.ReasonConnectionClosed, client.ReasonConnectionLost:
		a.warn("Connection %s, reconnecting", e.Reason)
		return nil
	}
	if e.Err != nil {
		return waerrors.Classify(e.Err, "W204")
	}
	return waerrors.New("W207")
}

// streamMessages prints inbound messages until ctx ends or the connection
// ends for good.
func (a *app) streamMessages(ctx context.Context, s *session, events <-chan client.Event) error {
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(a.out, "\n  Shutting down...")
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch e := ev.(type) {
			case client.Message:
				a.printMessage(e)
			case client.Authenticated:
				if err := saveCredentials(a.cfg.CredentialsPath(), s.client.Credentials()); err != nil {
					a.warn("%v", err)
				}
				a.success("Reconnected")
			case client.Disconnected:
				if err := a.disconnected(e); err != nil {
					return err
				}
			}
		}
	}
}

func (a *app) printMessage(m client.Message) {
	from := ""
	kind := "json"
	if m.Node != nil {
		from = m.Node.AttrString("from")
		kind = m.Node.Tag
	}
	text := m.Text()
	if text == "" {
		text = fmt.Sprintf("<%d bytes>", len(m.Raw))
	}
	if from != "" {
		fmt.Fprintf(a.out, "[%s] %s: %s\n", kind, from, text)
		return
	}
	fmt.Fprintf(a.out, "[%s] %s\n", kind, text)
	a.logger.Debug("message", "tag", m.Tag, "kind", kind)
}
