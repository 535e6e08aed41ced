package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <dir> <key>",
	Short: "Delete an entry",
	Long:  "Delete an entry and everything stored below it.",
	Args:  cobra.ExactArgs(2),
	RunE:  runRm,
}

func init() {
	rootCmd.AddCommand(rmCmd)
}

func runRm(cmd *cobra.Command, args []string) (err error) {
	s, err := openStore(args[0], true)
	if err != nil {
		return err
	}
	defer closeStore(s, &err)

	key := args[1]
	if !s.Exists(key) {
		return fmt.Errorf("key %q not found", key)
	}
	return s.Delete(key)
}
