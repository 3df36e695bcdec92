package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/sprout-iot/sprout/internal/errors"
	"github.com/sprout-iot/sprout/pkg/frame"
	"github.com/sprout-iot/sprout/pkg/reading"
)

func replayCmd(global *globalFlags) *cobra.Command {
	var maxFrame int

	cmd := &cobra.Command{
		Use:   "replay FILE|-",
		Short: "Run a captured device log through framing and validation",
		Long: `Replay reads raw device output from FILE (or stdin for "-"),
assembles frames and validates them exactly as the gateway does.

Every accepted reading is printed to stdout as one canonical JSON line.
Rejections and discarded partial frames are reported on stderr.

Examples:
  sprout replay capture.log
  cat /dev/ttyUSB0 | sprout replay -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader
			if args[0] == "-" {
				in = cmd.InOrStdin()
			} else {
				f, err := os.Open(args[0])
				if err != nil {
					return errors.New("E600").WithDetail(args[0]).Wrap(err)
				}
				defer f.Close()
				in = f
			}

			stats, err := replay(in, cmd.OutOrStdout(), cmd.ErrOrStderr(), maxFrame)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d accepted, %d rejected, %d discarded\n",
				stats.accepted, stats.rejected, stats.discarded)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxFrame, "max-frame", frame.DefaultMaxFrameSize, "Maximum frame size in bytes")
	return cmd
}

type replayStats struct {
	accepted  int
	rejected  int
	discarded int
}

// replay frames and validates everything read from in.
func replay(in io.Reader, out, errOut io.Writer, maxFrame int) (replayStats, error) {
	var stats replayStats
	w := bufio.NewWriter(out)
	defer w.Flush()

	asm := frame.NewAssembler(maxFrame)
	asm.OnDiscard = func(err error) {
		stats.discarded++
		fmt.Fprintf(errOut, "discarded: %s\n", reading.Reason(err))
	}

	emit := func(candidate []byte) {
		p, err := reading.Validate(candidate)
		if err != nil {
			stats.rejected++
			fmt.Fprintf(errOut, "rejected: %s\n", reading.Reason(err))
			return
		}
		stats.accepted++
		w.Write(p.Bytes())
		w.WriteByte('\n')
	}

	buf := make([]byte, 4096)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			asm.Each(buf[:n], emit)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, errors.New("E600").Wrap(err)
		}
	}
	asm.Reset()
	return stats, nil
}
