package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/omochice/syncws/internal/transcript"
)

func newReplayCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <file>",
		Short: "Print a transcript recorded by connect --record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open transcript: %w", err)
			}
			defer f.Close()

			r := transcript.NewReader(f)
			for {
				rec, err := r.Next()
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "%d\t%s\t%s\t%s\n",
					rec.Seq, rec.ReceivedAt.Format(time.RFC3339), rec.Session, rec.Payload)
			}
		},
	}
}
