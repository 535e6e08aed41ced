package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aweris/persist"
)

var getCmd = &cobra.Command{
	Use:   "get <dir> <key> [field]",
	Short: "Print an entry",
	Long:  "Print an entry, or one field of it, as YAML. Nested stores are printed in full.",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) (err error) {
	s, err := openStore(args[0], false)
	if err != nil {
		return err
	}
	defer closeStore(s, &err)

	key := args[1]
	if !s.Exists(key) {
		return fmt.Errorf("key %q not found", key)
	}

	v, err := s.Fetch(key)
	if err != nil {
		return err
	}

	if len(args) == 3 {
		if v, err = field(v, args[2]); err != nil {
			return fmt.Errorf("%w in %q", err, key)
		}
	}

	out, err := plain(v)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	defer enc.Close()
	return enc.Encode(out)
}

func field(v any, name string) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if f, ok := t[name]; ok {
			return f, nil
		}
	case persist.Mapping:
		if t.Exists(name) {
			return t.Fetch(name)
		}
	}
	return nil, fmt.Errorf("field %q not found", name)
}

// plain converts v into YAML-encodable data, reading nested stores as it goes.
func plain(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			p, err := plain(e)
			if err != nil {
				return nil, err
			}
			out[k] = p
		}
		return out, nil
	case persist.Mapping:
		keys, err := t.Keys()
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, len(keys))
		for _, k := range keys {
			e, err := t.Fetch(k)
			if err != nil {
				return nil, err
			}
			if out[k], err = plain(e); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	return v, nil
}
