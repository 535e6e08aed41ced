package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aweris/persist"
)

var setCmd = &cobra.Command{
	Use:   "set <dir> <key> <field=value>...",
	Short: "Set fields of an entry",
	Long:  "Set fields of an entry, creating it when missing. Values are parsed as YAML; fields of a nested store must be mappings.",
	Args:  cobra.MinimumNArgs(3),
	RunE:  runSet,
}

func init() {
	rootCmd.AddCommand(setCmd)
}

func runSet(cmd *cobra.Command, args []string) (err error) {
	assignments, err := parseAssignments(args[2:])
	if err != nil {
		return err
	}

	s, err := openStore(args[0], true)
	if err != nil {
		return err
	}
	defer closeStore(s, &err)

	entry, err := s.Fetch(args[1])
	if err != nil {
		return err
	}

	switch t := entry.(type) {
	case map[string]any:
		for field, v := range assignments {
			t[field] = v
		}
	case persist.Mapping:
		for field, v := range assignments {
			if err := t.Store(field, v); err != nil {
				return fmt.Errorf("set %s: %w", field, err)
			}
		}
	}
	return s.Sync()
}

func parseAssignments(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, arg := range args {
		field, raw, ok := strings.Cut(arg, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid assignment %q, want field=value", arg)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("parse value of %q: %w", field, err)
		}
		out[field] = v
	}
	return out, nil
}
