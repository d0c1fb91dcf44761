package main

import (
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/upjiang/mcptools/internal/payload"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [payload]",
	Short: "Decode a tracking payload (JSON, base64 JSON or quoted dict text) and print it as JSON",
	Long: `Decode a tracking payload the same way analyze_tracking_data does and print
the result as indented JSON. Without an argument the payload is read from stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}

func runDecode(cmd *cobra.Command, args []string) error {
	var in string
	if len(args) == 1 {
		in = args[0]
	} else {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		in = strings.TrimSpace(string(b))
	}

	v, err := payload.DecodeString(in)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
