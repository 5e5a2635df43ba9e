package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/omochice/syncws/internal/transcript"
	"github.com/omochice/syncws/pkg/wsclient"
)

func newConnectCommand(a *app) *cobra.Command {
	var (
		engine string
		record string
	)

	cmd := &cobra.Command{
		Use:   "connect <uri>",
		Short: "Connect, print received messages and send stdin lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.cfg.ClientOptions(a.logger)
			if engine != "" {
				opts.Engine = engine
			}
			return a.connect(args[0], opts, record)
		},
	}

	cmd.Flags().StringVar(&engine, "engine", "", fmt.Sprintf("transport engine (%s)", strings.Join(wsclient.Engines(), ", ")))
	cmd.Flags().StringVar(&record, "record", "", "append received messages to this transcript file")

	return cmd
}

func (a *app) connect(uri string, opts wsclient.Options, record string) error {
	client, err := wsclient.New(opts)
	if err != nil {
		return err
	}

	var recorder *transcript.Writer
	if record != "" {
		f, err := os.OpenFile(record, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open transcript: %w", err)
		}
		defer f.Close()
		recorder = transcript.NewWriter(f)
	}

	if err := client.Connect(uri); err != nil {
		return err
	}
	handle := wsclient.NewHandle(client)
	defer handle.Release()

	a.logger.Info().Str("uri", uri).Str("session", client.SessionID()).Msg("connected")
	fmt.Fprintln(a.stdout, "Type your messages (or 'quit' to exit):")

	received := make(chan struct{})
	go func() {
		defer close(received)
		for {
			msg, ok := client.Receive()
			if !ok {
				return
			}
			fmt.Fprintf(a.stdout, "< %s\n", msg)
			if recorder != nil {
				if err := recorder.Write(client.SessionID(), msg); err != nil {
					a.logger.Warn().Err(err).Msg("failed to record message")
				}
			}
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to read input")
		}
	}()

	for {
		select {
		case <-received:
			fmt.Fprintln(a.stdout, "Server closed the connection")
			return nil
		case line, ok := <-lines:
			if !ok {
				return a.disconnect(client, received)
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if text == "quit" || text == "exit" {
				return a.disconnect(client, received)
			}
			if err := client.Send(text); err != nil {
				a.logger.Warn().Err(err).Msg("failed to send message")
			}
		}
	}
}

func (a *app) disconnect(client *wsclient.Client, received <-chan struct{}) error {
	err := client.Close()
	<-received
	fmt.Fprintln(a.stdout, "Disconnected from server")
	return err
}
