package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/danmuck/carlink/internal/protocol/frame"
	"github.com/spf13/cobra"
)

type decodedLine struct {
	Line    int      `json:"line"`
	Kind    string   `json:"kind,omitempty"`
	Peer    string   `json:"peer,omitempty"`
	Text    string   `json:"text,omitempty"`
	Peers   []string `json:"peers,omitempty"`
	Success *bool    `json:"success,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode [file]",
		Short: "Decode captured wire lines to JSON (stdin when no file)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return decodeLines(in, cmd.OutOrStdout())
		},
	}
}

// decodeLines writes one JSON object per input line. Malformed lines are reported,
// not fatal.
func decodeLines(in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	enc := json.NewEncoder(out)
	n := 0
	for scanner.Scan() {
		n++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		row := decodedLine{Line: n}
		f, err := frame.Decode(raw)
		if err != nil {
			row.Error = err.Error()
		} else {
			row.Kind = f.Kind.String()
			row.Peer = f.Peer
			row.Text = f.Text
			row.Peers = f.Peers
			if f.Kind == frame.KindAck {
				ok := f.Success
				row.Success = &ok
			}
		}
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("decode: read input: %w", err)
	}
	return nil
}
