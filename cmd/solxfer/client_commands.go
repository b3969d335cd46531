package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/brojonat/solxfer/client"
	"github.com/urfave/cli/v2"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP client commands for interacting with a solxfer server",
		Subcommands: []*cli.Command{
			clientTransferCommand(),
			clientWalletCommand(),
		},
	}
}

func newClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
	return client.NewClient(c.String("server-url"), nil, logger)
}

func clientTransferCommand() *cli.Command {
	return &cli.Command{
		Name:      "transfer",
		Usage:     "Ask the server to send SOL from its connected wallet",
		ArgsUsage: "ADDRESS AMOUNT",
		Flags: append([]cli.Flag{
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   2 * time.Minute,
				Usage:   "How long to wait for the transfer to be confirmed",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq filter applied to the JSON outcome (e.g. '.message')",
			},
		}, clusterFlags()...),
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("address and amount are required")
			}

			code, err := compileJQ(c.String("jq"))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			result, err := newClient(c).Transfer(ctx, c.Args().Get(0), c.Args().Get(1))
			if err != nil {
				return fmt.Errorf("transfer request failed: %w", err)
			}

			out := newTransferOutput(result.Done, result.Message, c.String("explorer-host"), c.String("cluster"))
			return printTransfer(c, code, out)
		},
	}
}

func clientWalletCommand() *cli.Command {
	return &cli.Command{
		Name:  "wallet",
		Usage: "Show whether the server's wallet is connected",
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			status, err := newClient(c).Wallet(ctx)
			if err != nil {
				return fmt.Errorf("failed to get wallet: %w", err)
			}

			w := c.App.Writer
			if c.Bool("json") {
				return writeJSON(w, status)
			}
			if !status.Connected {
				fmt.Fprintln(w, "Wallet: not connected")
				return nil
			}
			fmt.Fprintf(w, "Wallet: connected\n")
			fmt.Fprintf(w, "  Public key: %s\n", status.PublicKey)
			return nil
		},
	}
}
