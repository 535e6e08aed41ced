package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var metaCmd = &cobra.Command{
	Use:   "meta <dir> [depth]",
	Short: "Show or set store metadata",
	Long:  "Print the metadata of a store, or set its forced-nesting depth.",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runMeta,
}

func init() {
	rootCmd.AddCommand(metaCmd)
}

func runMeta(cmd *cobra.Command, args []string) (err error) {
	if len(args) == 2 {
		depth, err := strconv.Atoi(args[1])
		if err != nil || depth < 0 {
			return fmt.Errorf("invalid depth %q", args[1])
		}

		s, err := openStore(args[0], true)
		if err != nil {
			return err
		}
		s.Meta().SetDepth(depth)
		return s.Close()
	}

	s, err := openStore(args[0], false)
	if err != nil {
		return err
	}
	defer closeStore(s, &err)

	doc := make(map[string]any)
	for _, k := range s.Meta().Keys() {
		doc[k], _ = s.Meta().Get(k)
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	defer enc.Close()
	return enc.Encode(doc)
}
