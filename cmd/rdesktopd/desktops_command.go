package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/cobra"

	"rdesktopd/internal/announce"
	"rdesktopd/internal/config"
	"rdesktopd/internal/server"
)

type desktopView struct {
	ID     uint64 `json:"id"`
	Width  int32  `json:"width"`
	Height int32  `json:"height"`
}

func newDesktopsCommand(ctx *commandContext) *cobra.Command {
	var addr string
	var asJSON bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "desktops",
		Short: "List the desktops a running daemon is streaming",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			reqCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			target := strings.TrimSpace(addr)
			if target == "" {
				target, err = discoverAddress(reqCtx, cfg)
				if err != nil {
					return err
				}
			}

			list, err := server.FetchDesktops(reqCtx, target, uint64(cfg.Server.APIRevision))
			if err != nil {
				if errors.Is(err, server.ErrRejected) {
					return fmt.Errorf("%w; check server.api_revision", err)
				}
				return fmt.Errorf("query %s: %w", target, err)
			}

			views := make([]desktopView, 0, len(list.Entries))
			for _, entry := range list.Entries {
				views = append(views, desktopView{ID: entry.ID, Width: entry.Width, Height: entry.Height})
			}
			if asJSON {
				return writeJSON(cmd, views)
			}

			out := cmd.OutOrStdout()
			if len(views) == 0 {
				fmt.Fprintln(out, "No desktops are being streamed")
				return nil
			}
			rows := make([][]string, 0, len(views))
			for _, v := range views {
				rows = append(rows, []string{
					strconv.FormatUint(v.ID, 10),
					strconv.Itoa(int(v.Width)),
					strconv.Itoa(int(v.Height)),
				})
			}
			printTable(out, []string{"ID", "Width", "Height"}, rows, 0, 1, 2)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Daemon address (default: ask the daemon over the session bus)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print desktops as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "How long to wait for the daemon")
	return cmd
}

func discoverAddress(ctx context.Context, cfg *config.Config) (string, error) {
	if !cfg.Announce.Enabled {
		return "", errors.New("announce is disabled; pass --addr")
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return "", fmt.Errorf("connect session bus: %w; pass --addr", err)
	}
	defer conn.Close()

	port, err := announce.Lookup(ctx, conn, cfg.Announce.BusName, cfg.Announce.ObjectPath)
	if err != nil {
		return "", fmt.Errorf("discover daemon: %w; is rdesktopd running?", err)
	}
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port))), nil
}
