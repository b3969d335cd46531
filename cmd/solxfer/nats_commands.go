package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	natspkg "github.com/brojonat/solxfer/service/nats"
	"github.com/itchyny/gojq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// subscribeCommand streams transfer events from JetStream.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to transfer events",
		ArgsUsage: "[from_address]",
		Description: `Subscribe to transfer events published to NATS JetStream.

Events are published to the subject transfers.{from_address}; attempts made
without a connected wallet go to transfers.disconnected. With no argument,
every event is streamed.

Example:
  solxfer nats subscribe --filter '.done and .lamports > 1000000000' --json`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "solxfer-cli",
			},
			&cli.StringFlag{
				Name:  "filter",
				Usage: "jq predicate; only events for which it is truthy are shown",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() > 1 {
				return fmt.Errorf("at most one address may be given")
			}

			subject := natspkg.StreamSubjects
			if c.NArg() == 1 {
				subject = "transfers." + c.Args().Get(0)
			}

			filter, err := compileJQ(c.String("filter"))
			if err != nil {
				return err
			}

			return streamTransfers(c, subject, filter)
		},
	}
}

func streamTransfers(c *cli.Context, subject string, filter *gojq.Code) error {
	natsURL := c.String("nats-url")
	jsonOutput := c.Bool("json")
	durable := c.Bool("durable")
	consumerName := c.String("consumer-name")
	w := c.App.Writer

	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if !jsonOutput {
		fmt.Fprintf(w, "📡 Subscribing to: %s\n", subject)
		fmt.Fprintf(w, "   NATS: %s\n", natsURL)
		if durable {
			fmt.Fprintf(w, "   Consumer: %s (durable)\n", consumerName)
		}
		fmt.Fprintf(w, "\nWaiting for transfers... (Ctrl-C to exit)\n\n")
	}

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if durable {
		consumerConfig.Durable = consumerName
		consumerConfig.Name = consumerName
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cons, err := js.CreateOrUpdateConsumer(ctx, natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	msgChan := make(chan jetstream.Msg, 10)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		msgChan <- msg
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer cc.Stop()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			var event natspkg.TransferEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
				msg.Ack()
				continue
			}
			msg.Ack()

			keep, err := matchesFilter(filter, &event)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Filter error: %v\n", err)
				continue
			}
			if !keep {
				continue
			}

			count++
			if jsonOutput {
				data, _ := json.Marshal(event)
				fmt.Fprintln(w, string(data))
			} else {
				printTransferEvent(w, count, &event)
			}

		case <-ctx.Done():
			if !jsonOutput {
				fmt.Fprintf(w, "\n\n✅ Received %d transfers\n", count)
				fmt.Fprintln(w, "Shutting down...")
			}
			return nil
		}
	}
}

// matchesFilter reports whether the jq predicate holds for event. A nil filter matches everything.
func matchesFilter(filter *gojq.Code, event *natspkg.TransferEvent) (bool, error) {
	if filter == nil {
		return true, nil
	}
	input, err := toJQInput(event)
	if err != nil {
		return false, err
	}
	v, ok := filter.Run(input).Next()
	if !ok {
		return false, nil
	}
	if err, isErr := v.(error); isErr {
		return false, err
	}
	return isTruthy(v), nil
}

func printTransferEvent(w io.Writer, n int, event *natspkg.TransferEvent) {
	status := "✓ confirmed"
	if !event.Done {
		status = "✗ failed"
	}

	fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Transfer #%d  %s\n", n, status)
	fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
	if event.Signature != "" {
		fmt.Fprintf(w, "Signature:    %s\n", event.Signature)
	}
	from := event.FromAddress
	if from == "" {
		from = "(no wallet)"
	}
	fmt.Fprintf(w, "From:         %s\n", from)
	fmt.Fprintf(w, "To:           %s\n", event.ToAddress)
	fmt.Fprintf(w, "Amount:       %s SOL (%d lamports)\n", event.Amount, event.Lamports)
	if !event.Done {
		fmt.Fprintf(w, "Error:        %s\n", event.Message)
	}
	fmt.Fprintf(w, "Cluster:      %s\n", event.Cluster)
	fmt.Fprintf(w, "Duration:     %dms\n", event.DurationMS)
	fmt.Fprintf(w, "Published:    %s\n", event.PublishedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "\n")
}

// inspectStreamCommand shows information about the NATS JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the TRANSFERS JetStream stream",
		Action: func(c *cli.Context) error {
			nc, err := nats.Connect(c.String("nats-url"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			stream, err := js.Stream(context.Background(), natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}

			info, err := stream.Info(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			w := c.App.Writer
			if c.Bool("json") {
				return writeJSON(w, info)
			}

			fmt.Fprintf(w, "Stream: %s\n", info.Config.Name)
			fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
			fmt.Fprintf(w, "Description:  %s\n", info.Config.Description)
			fmt.Fprintf(w, "Subjects:     %v\n", info.Config.Subjects)
			fmt.Fprintf(w, "Messages:     %d\n", info.State.Msgs)
			fmt.Fprintf(w, "Bytes:        %d\n", info.State.Bytes)
			fmt.Fprintf(w, "Consumers:    %d\n", info.State.Consumers)
			fmt.Fprintf(w, "Max Age:      %s\n", info.Config.MaxAge)
			fmt.Fprintf(w, "Storage:      %s\n", info.Config.Storage)
			return nil
		},
	}
}
