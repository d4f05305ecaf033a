package main

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	waerrors "github.com/waweb-dev/waweb/internal/errors"
	"github.com/waweb-dev/waweb/pkg/client"
	"github.com/waweb-dev/waweb/pkg/media"
)

func sendCmd(a *app) *cobra.Command {
	var (
		file     string
		caption  string
		category string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send <peer> [text...]",
		Short: "Send a text or media message",
		Long: `Send a message using the saved login.

The peer is a phone number or a full JID. Messages to peers with an
established session are encrypted end to end.

Examples:
  waweb send +40712345678 hello there
  waweb send 40712345678@s.whatsapp.net --file photo.jpg --caption "look"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer := args[0]
			text := strings.Join(args[1:], " ")
			if file == "" && text == "" {
				return waerrors.New("W750").WithDetail("nothing to send: give a text or --file")
			}
			if file != "" && text != "" {
				return waerrors.New("W750").WithDetail("give either a text or --file, not both")
			}
			var opts []media.Option
			if caption != "" {
				opts = append(opts, media.WithCaption(caption))
			}
			if category != "" {
				opts = append(opts, media.WithCategory(media.Category(category)))
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return a.runSend(ctx, peer, text, file, opts)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "send this file as media")
	cmd.Flags().StringVar(&caption, "caption", "", "caption for media")
	cmd.Flags().StringVar(&category, "as", "", "media category: image, video, audio or document")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", time.Minute, "overall time limit")

	return cmd
}

func (a *app) runSend(ctx context.Context, peer, text, file string, opts []media.Option) error {
	if _, err := client.ParsePeer(peer); err != nil {
		return waerrors.Classify(err, "W401")
	}

	var desc *media.Descriptor
	if file != "" {
		var err error
		desc, err = media.FromFile(file, opts...)
		if err != nil {
			return waerrors.Classify(err, "W454")
		}
	}

	s, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	wait := time.Minute
	if dl, ok := ctx.Deadline(); ok {
		wait = time.Until(dl)
	}
	if err := a.connectAuthenticated(ctx, s, wait); err != nil {
		return err
	}

	var id string
	if desc != nil {
		id, err = s.client.SendMedia(ctx, peer, desc)
	} else {
		id, err = s.client.SendText(ctx, peer, text)
	}
	if err != nil {
		return waerrors.Classify(err, "W400")
	}
	a.success("Sent %s to %s", id, peer)
	return nil
}
