package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/brojonat/solxfer/service/solana"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

// errTransferFailed marks a transfer whose outcome was already printed.
var errTransferFailed = errors.New("transfer failed")

// transferOutput is what the transfer commands print.
type transferOutput struct {
	Done        bool   `json:"done"`
	Message     string `json:"message"`
	ExplorerURL string `json:"explorer_url,omitempty"`
}

func newTransferOutput(done bool, message, explorerHost, cluster string) transferOutput {
	out := transferOutput{Done: done, Message: message}
	if done {
		out.ExplorerURL = solana.ExplorerTxURL(explorerHost, message, cluster)
	}
	return out
}

func clusterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "cluster",
			Usage:   "Solana cluster (devnet, testnet, mainnet-beta, localnet)",
			EnvVars: []string{"SOLANA_CLUSTER"},
			Value:   "devnet",
		},
		&cli.StringFlag{
			Name:    "explorer-host",
			Usage:   "Block explorer host for transaction links",
			EnvVars: []string{"EXPLORER_HOST"},
			Value:   solana.DefaultExplorerHost,
		},
	}
}

func transferCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "keypair",
			Aliases:  []string{"k"},
			Usage:    "Path to a solana-keygen JSON keypair file",
			EnvVars:  []string{"WALLET_KEYPAIR_PATH"},
			Required: true,
		},
		&cli.StringFlag{
			Name:     "address",
			Aliases:  []string{"a"},
			Usage:    "Destination address (base58)",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "amount",
			Usage:    "Amount in SOL (e.g. 1.5)",
			Required: true,
		},
		&cli.StringFlag{
			Name:    "rpc-url",
			Usage:   "RPC endpoint (defaults to the cluster's public endpoint)",
			EnvVars: []string{"SOLANA_RPC_URL"},
		},
		&cli.StringFlag{
			Name:    "ws-url",
			Usage:   "Websocket endpoint (defaults to the cluster's public endpoint)",
			EnvVars: []string{"SOLANA_WS_URL"},
		},
		&cli.StringFlag{
			Name:  "jq",
			Usage: "jq filter applied to the JSON outcome (e.g. '.message')",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Log workflow progress to stderr",
		},
	}

	return &cli.Command{
		Name:  "transfer",
		Usage: "Send SOL directly to the cluster using a local keypair",
		Description: `Runs the transfer workflow in-process: builds a system transfer from the
keypair's account, signs it, submits it and waits for the cluster to report
it as processed.

Example:
  solxfer transfer --keypair ~/.config/solana/id.json \
    --address 9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM --amount 0.01`,
		Flags: append(flags, clusterFlags()...),
		Action: func(c *cli.Context) error {
			code, err := compileJQ(c.String("jq"))
			if err != nil {
				return err
			}

			cluster := c.String("cluster")
			defaultRPC, defaultWS, err := solana.ClusterEndpoints(cluster)
			if err != nil {
				return err
			}
			rpcURL := c.String("rpc-url")
			if rpcURL == "" {
				rpcURL = defaultRPC
			}
			wsURL := c.String("ws-url")
			if wsURL == "" {
				wsURL = defaultWS
			}

			wallet, err := solana.LoadKeypairWallet(c.String("keypair"))
			if err != nil {
				return err
			}

			level := slog.LevelError
			if c.Bool("verbose") {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			conn := solana.NewConnection(rpcURL, wsURL, cluster, nil, logger)
			transferer := solana.NewTransferer(conn, cluster, nil, logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			outcome := transferer.Transfer(ctx, wallet, solana.TransferRequest{
				Address: c.String("address"),
				Amount:  c.String("amount"),
			})

			out := newTransferOutput(outcome.Done, outcome.Message, c.String("explorer-host"), cluster)
			return printTransfer(c, code, out)
		},
	}
}

// printTransfer writes out in the requested format and turns a failed
// transfer into a non-zero exit.
func printTransfer(c *cli.Context, code *gojq.Code, out transferOutput) error {
	w := c.App.Writer

	switch {
	case code != nil:
		if err := writeJQ(w, code, out); err != nil {
			return err
		}
	case c.Bool("json"):
		if err := writeJSON(w, out); err != nil {
			return err
		}
	case out.Done:
		fmt.Fprintf(w, "✓ Transfer confirmed\n")
		fmt.Fprintf(w, "  Signature: %s\n", out.Message)
		fmt.Fprintf(w, "  Explorer:  %s\n", out.ExplorerURL)
	default:
		fmt.Fprintf(w, "✗ Transfer failed: %s\n", out.Message)
	}

	if !out.Done {
		return errTransferFailed
	}
	return nil
}

func explorerURLCommand() *cli.Command {
	return &cli.Command{
		Name:      "explorer-url",
		Usage:     "Print the block explorer link for a transaction signature",
		ArgsUsage: "SIGNATURE",
		Flags:     clusterFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("signature is required")
			}
			if _, _, err := solana.ClusterEndpoints(c.String("cluster")); err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, solana.ExplorerTxURL(c.String("explorer-host"), c.Args().Get(0), c.String("cluster")))
			return nil
		},
	}
}
