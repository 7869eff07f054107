package client

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/primlo/nibbana/internal/runtime"
)

// newPropsCommand constructs the `props` command group. Properties set from
// the CLI are always persistent; transient ones would end with the process.
func newPropsCommand() *cobra.Command {
	propsCmd := &cobra.Command{Use: "props", Short: "Persistent super-property operations"}
	propsCmd.AddCommand(
		&cobra.Command{
			Use:   "set <key=value...>",
			Short: "Replace the persistent super properties",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				props, err := parseAssignments(args)
				if err != nil {
					return err
				}
				return withRuntime(cmd, func(rt *runtime.Runtime) error {
					return rt.Client().SetSuperProperties(cmd.Context(), props, true)
				})
			},
		},
		&cobra.Command{
			Use:   "extend <key=value...>",
			Short: "Merge into the persistent super properties",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				props, err := parseAssignments(args)
				if err != nil {
					return err
				}
				return withRuntime(cmd, func(rt *runtime.Runtime) error {
					return rt.Client().ExtendSuperProperties(cmd.Context(), props, true)
				})
			},
		},
		&cobra.Command{
			Use:   "unset <key>",
			Short: "Remove a super property",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRuntime(cmd, func(rt *runtime.Runtime) error {
					return rt.Client().UnsetSuperProperty(cmd.Context(), args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every super property",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withRuntime(cmd, func(rt *runtime.Runtime) error {
					return rt.Client().ClearSuperProperties(cmd.Context())
				})
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the super properties as JSON",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withRuntime(cmd, func(rt *runtime.Runtime) error {
					props, err := rt.Client().SuperProperties()
					if err != nil {
						return err
					}
					return json.NewEncoder(cmd.OutOrStdout()).Encode(props)
				})
			},
		},
	)
	return propsCmd
}
