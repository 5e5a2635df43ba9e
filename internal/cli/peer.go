package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/omochice/syncws/internal/peer"
)

func newPeerCommand(a *app) *cobra.Command {
	var (
		addr     string
		greeting []string
		echo     bool
	)

	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Run a WebSocket peer that greets and echoes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.PeerOptions()
			if cmd.Flags().Changed("greeting") {
				cfg.Greeting = greeting
			}
			if cmd.Flags().Changed("echo") {
				cfg.Echo = echo
			}
			if !cmd.Flags().Changed("addr") {
				addr = a.cfg.Peer.Addr
			}

			p := peer.New(cfg, peer.Hooks{}, a.logger)

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			errChan := make(chan error, 1)
			go func() {
				errChan <- p.Start(addr)
			}()

			select {
			case err := <-errChan:
				return err
			case sig := <-sigChan:
				a.logger.Info().Str("signal", sig.String()).Msg("shutting down")
				p.CloseAll(1001, "peer shutting down")
				p.Stop()
			}

			a.logger.Info().Msg("peer stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	cmd.Flags().StringSliceVar(&greeting, "greeting", nil, "messages sent to every new connection")
	cmd.Flags().BoolVar(&echo, "echo", true, "echo received messages")

	return cmd
}
