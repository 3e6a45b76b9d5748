package main

import (
	"bufio"
	"os"
	"strconv"

	"github.com/kashguard/go-sphinx-relay/internal/weave"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func parseAmount(s string) (int64, error) {
	amt, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "amount %q", s)
	}
	return amt, nil
}

// newDecodeCmd regroups woven payloads read one per line from stdin.
func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode",
		Short: "Regroup woven message chunks read line by line from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			var payloads []string
			scanner := bufio.NewScanner(os.Stdin)
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			for scanner.Scan() {
				payloads = append(payloads, scanner.Text())
			}
			if err := scanner.Err(); err != nil {
				return err
			}
			return printJSON(weave.Regroup(payloads))
		},
	}
}
