package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"qrscanner/internal/api/handler"
	"qrscanner/pkg/display"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/logger"
	"qrscanner/pkg/pagegroup"
	"qrscanner/pkg/scanevents"
	"qrscanner/pkg/scanevents/wsconn"
	"strings"

	"github.com/spf13/cobra"
)

var errChannelClosed = errors.New("push channel closed before the scan finished")

type watchOptions struct {
	format string
	width  int
	debug  bool
}

func (o *watchOptions) flags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.format, "format", string(display.FormatText), "Output format: text or html")
	cmd.Flags().IntVar(&o.width, "width", 60, "Maximum width of displayed URLs")
	cmd.Flags().BoolVar(&o.debug, "debug", false, "Log every push channel message")
}

func watchCommand(a *app) *cobra.Command {
	var opts watchOptions
	cmd := &cobra.Command{
		Use:   "watch SCAN_ID",
		Short: "Follows a submitted scan on the push channel and prints its results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := pagegroup.ParseTextPolicy(a.cfg.Display.ExtractionText)
			if err != nil {
				return err
			}

			return watch(cmd.Context(), a.cfg.HTTP.PublicURL, args[0], policy, opts, cmd.OutOrStdout())
		},
	}
	opts.flags(cmd)

	return cmd
}

// channelURL turns the public address of the server into the URL of its
// push channel.
func channelURL(publicURL string) (string, error) {
	u, err := url.Parse(publicURL)
	if err != nil {
		return "", fmt.Errorf("invalid public url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid public url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + handler.ChannelPath

	return u.String(), nil
}

// watch attaches to the push channel of scanID and renders its events on out
// until the scan completes or fails.
func watch(ctx context.Context,
	publicURL, scanID string,
	policy pagegroup.TextPolicy,
	opts watchOptions,
	out io.Writer) error {
	f := display.Format(opts.format)
	if f != display.FormatText && f != display.FormatHTML {
		return fmt.Errorf("unknown format %q", opts.format)
	}
	wsURL, err := channelURL(publicURL)
	if err != nil {
		return err
	}

	client := scanevents.New(scanID, wsconn.New(wsconn.Options{URL: wsURL}), scanevents.Options{
		Debug: opts.debug || logger.IsDebug(ctx),
	})

	region := display.NewWriter(out)
	display.Bind(client, display.Components{
		Progress: display.NewProgress(region, f),
		Results:  display.NewResults(region, f, opts.width),
		AI:       display.NewAIResults(region, f, policy),
	})

	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
	}
	client.OnComplete(func(domain.CompleteEvent) { finish(nil) })
	client.OnError(func(ev domain.ErrorEvent) { finish(fmt.Errorf("scan failed: %s", ev.Error)) })
	client.OnDisconnect(func() { finish(errChannelClosed) })

	client.Connect(ctx)
	if err := client.Err(); err != nil {
		return fmt.Errorf("could not connect to %s: %w", wsURL, err)
	}
	defer client.Disconnect()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
