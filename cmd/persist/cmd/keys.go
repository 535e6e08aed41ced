package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys <dir>",
	Short: "List keys in a store",
	Long:  "List every key stored in a directory, decoded from its entry names.",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeys,
}

func init() {
	rootCmd.AddCommand(keysCmd)
}

func runKeys(cmd *cobra.Command, args []string) (err error) {
	s, err := openStore(args[0], false)
	if err != nil {
		return err
	}
	defer closeStore(s, &err)

	keys, err := s.Keys()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		fmt.Fprintln(out, "(no keys)")
		return nil
	}
	for _, k := range keys {
		fmt.Fprintln(out, k)
	}
	return nil
}
