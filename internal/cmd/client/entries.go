package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/primlo/nibbana/internal/runtime"
	"github.com/primlo/nibbana/pkg/entry"
	"github.com/primlo/nibbana/pkg/nibbana"
)

// newLogCommand constructs the `log` command.
func newLogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log <message...>",
		Short: "Record a log entry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			data := make([]any, len(args))
			for i, a := range args {
				data[i] = a
			}
			return withRuntime(cmd, func(rt *runtime.Runtime) error {
				c := rt.Client()
				switch entry.Kind(kind) {
				case entry.KindLog:
					return c.Log(cmd.Context(), data...)
				case entry.KindWarn:
					return c.Warn(cmd.Context(), data...)
				case entry.KindDebug:
					return c.Debug(cmd.Context(), data...)
				case entry.KindError:
					return c.Error(cmd.Context(), data...)
				default:
					return fmt.Errorf("invalid --kind %q; use log|warn|debug|error", kind)
				}
			})
		},
	}
	cmd.Flags().String("kind", "log", "Entry kind: log|warn|debug|error")
	return cmd
}

// newEventCommand constructs the `event` command.
func newEventCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event <name>",
		Short: "Record a named event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("payload")
			dur, _ := cmd.Flags().GetDuration("duration")

			var payload any
			if raw != "" {
				if err := json.Unmarshal([]byte(raw), &payload); err != nil {
					return fmt.Errorf("invalid --payload: %w", err)
				}
			}
			var opts []nibbana.EventOption
			if dur > 0 {
				opts = append(opts, nibbana.WithDuration(dur))
			}
			return withRuntime(cmd, func(rt *runtime.Runtime) error {
				return rt.Client().Event(cmd.Context(), args[0], payload, opts...)
			})
		},
	}
	cmd.Flags().String("payload", "", "Event payload as JSON")
	cmd.Flags().Duration("duration", 0, "Event duration, e.g. 250ms")
	return cmd
}

// newIdentifyCommand constructs the `identify` command.
func newIdentifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "identify <user-id>",
		Short: "Identify the user stamped on later entries (\"\" clears it)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(rt *runtime.Runtime) error {
				return rt.Client().Identify(cmd.Context(), args[0])
			})
		},
	}
}

// newPendingCommand constructs the `pending` command.
func newPendingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Print buffered entries as JSON lines, oldest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			where, _ := cmd.Flags().GetString("where")
			count, _ := cmd.Flags().GetBool("count")
			return withRuntime(cmd, func(rt *runtime.Runtime) error {
				entries, err := rt.Client().PendingEntries(cmd.Context(), where)
				if err != nil {
					return err
				}
				if count {
					fmt.Fprintln(cmd.OutOrStdout(), len(entries))
					return nil
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, e := range entries {
					if err := enc.Encode(e); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().String("where", "", `CEL filter, e.g. kind == "error"`)
	cmd.Flags().Bool("count", false, "Print only the number of matching entries")
	return cmd
}

// newFlushCommand constructs the `flush` command.
func newFlushCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Upload buffered entries now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")
			return withRuntime(cmd, func(rt *runtime.Runtime) error {
				ctx := cmd.Context()
				if timeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, timeout)
					defer cancel()
				}
				res, err := rt.Client().UploadNow(ctx)
				if err != nil {
					var uerr *nibbana.UploadError
					if errors.As(err, &uerr) {
						return fmt.Errorf("%d entries kept for retry: %w", uerr.Count, uerr.Err)
					}
					return err
				}
				if res.NoOp {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to upload")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "uploaded: %d\n", res.Uploaded)
				return nil
			})
		},
	}
	cmd.Flags().Duration("timeout", time.Minute, "Give up waiting after this long (0 = no limit)")
	return cmd
}

// newClearCommand constructs the `clear` command.
func newClearCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every buffered entry without uploading (requires --confirm)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			confirm, _ := cmd.Flags().GetBool("confirm")
			if !confirm {
				return errors.New("refusing to drop entries without --confirm")
			}
			return withRuntime(cmd, func(rt *runtime.Runtime) error {
				if err := rt.Client().ClearEntries(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "cleared")
				return nil
			})
		},
	}
	cmd.Flags().Bool("confirm", false, "Confirm dropping all buffered entries")
	return cmd
}

// parseAssignments turns key=value arguments into properties. Values that
// parse as JSON keep their type; anything else is a string.
func parseAssignments(args []string) (entry.Properties, error) {
	props := entry.Properties{}
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid property %q; use key=value", a)
		}
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			parsed = v
		}
		props[k] = parsed
	}
	return props, nil
}
