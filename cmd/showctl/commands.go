package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bbernstein/lacylights-showsync/internal/rpc"
	"github.com/bbernstein/lacylights-showsync/internal/show"
)

// printState renders a state reply according to --json.
func printState(cmd *cobra.Command, ctx *commandContext, st rpc.State) error {
	if ctx.json {
		return writeJSON(cmd, st)
	}
	fmt.Fprint(cmd.OutOrStdout(), renderState(st, shouldColorize(cmd.OutOrStdout())))
	return nil
}

// stateCommand builds a command whose RPC returns the new state.
func stateCommand(ctx *commandContext, use, short string, args cobra.PositionalArgs,
	call func(context.Context, *rpc.Client, []string) (rpc.State, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, argv []string) error {
			reqCtx, cancel := ctx.requestContext(cmd)
			defer cancel()
			st, err := call(reqCtx, ctx.client(), argv)
			if err != nil {
				return err
			}
			return printState(cmd, ctx, st)
		},
	}
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid track number %q (tracks are numbered from 1)", s)
	}
	return n - 1, nil
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return stateCommand(ctx, "status", "Show playback status", cobra.NoArgs,
		func(c context.Context, client *rpc.Client, _ []string) (rpc.State, error) {
			return client.State(c)
		})
}

func newTransportCommands(ctx *commandContext) []*cobra.Command {
	play := stateCommand(ctx, "play [track]", "Start or resume playback, optionally at a track number",
		cobra.MaximumNArgs(1),
		func(c context.Context, client *rpc.Client, args []string) (rpc.State, error) {
			if len(args) == 0 {
				return client.Play(c, nil)
			}
			idx, err := parseIndex(args[0])
			if err != nil {
				return rpc.State{}, err
			}
			return client.Play(c, &idx)
		})
	pause := stateCommand(ctx, "pause", "Pause playback", cobra.NoArgs,
		func(c context.Context, client *rpc.Client, _ []string) (rpc.State, error) {
			return client.Pause(c)
		})
	stop := stateCommand(ctx, "stop", "Stop playback and rewind", cobra.NoArgs,
		func(c context.Context, client *rpc.Client, _ []string) (rpc.State, error) {
			return client.Stop(c)
		})
	next := stateCommand(ctx, "next", "Skip to the next track", cobra.NoArgs,
		func(c context.Context, client *rpc.Client, _ []string) (rpc.State, error) {
			return client.Next(c)
		})
	prev := stateCommand(ctx, "prev", "Go back one track", cobra.NoArgs,
		func(c context.Context, client *rpc.Client, _ []string) (rpc.State, error) {
			return client.Previous(c)
		})
	prev.Aliases = []string{"previous"}
	return []*cobra.Command{play, pause, stop, next, prev}
}

func newSeekCommand(ctx *commandContext) *cobra.Command {
	return stateCommand(ctx, "seek <position>", "Seek within the current track (90, 1:30 or 1m30s)",
		cobra.ExactArgs(1),
		func(c context.Context, client *rpc.Client, args []string) (rpc.State, error) {
			pos, err := parsePosition(args[0])
			if err != nil {
				return rpc.State{}, err
			}
			return client.Seek(c, pos)
		})
}

func newVolumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "volume [0-100]",
		Short: "Show or set the volume",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := ctx.requestContext(cmd)
			defer cancel()
			client := ctx.client()

			if len(args) == 0 {
				v, err := client.Volume(reqCtx)
				if err != nil {
					return err
				}
				if ctx.json {
					return writeJSON(cmd, map[string]int{"volume": v})
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			}

			v, err := strconv.Atoi(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("invalid volume %q", args[0])
			}
			st, err := client.SetVolume(reqCtx, v)
			if err != nil {
				return err
			}
			return printState(cmd, ctx, st)
		},
	}
}

func newSelectCommand(ctx *commandContext) *cobra.Command {
	return stateCommand(ctx, "select <track>", "Jump to a track number", cobra.ExactArgs(1),
		func(c context.Context, client *rpc.Client, args []string) (rpc.State, error) {
			idx, err := parseIndex(args[0])
			if err != nil {
				return rpc.State{}, err
			}
			return client.Select(c, idx)
		})
}

func newRepeatCommand(ctx *commandContext) *cobra.Command {
	cmd := stateCommand(ctx, "repeat <none|one|all>", "Set the repeat mode", cobra.ExactArgs(1),
		func(c context.Context, client *rpc.Client, args []string) (rpc.State, error) {
			return client.SetRepeat(c, args[0])
		})
	cmd.ValidArgs = []string{"none", "one", "all"}
	return cmd
}

func newPlaylistCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "playlist",
		Short: "List the playlist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := ctx.requestContext(cmd)
			defer cancel()
			client := ctx.client()

			entries, err := client.Playlist(reqCtx)
			if err != nil {
				return err
			}
			if ctx.json {
				return writeJSON(cmd, entries)
			}
			st, err := client.State(reqCtx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Playlist is empty")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				marker := ""
				if e.Index == st.TrackIndex {
					marker = "▶"
				}
				length := "-"
				if e.DurationMS > 0 {
					length = formatPosition(time.Duration(e.DurationMS) * time.Millisecond)
				}
				rows = append(rows, []string{
					marker,
					strconv.Itoa(e.Index + 1),
					e.Title,
					e.Track,
					length,
					strconv.Itoa(e.CueCount),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"", "#", "Title", "Track", "Length", "Cues"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignRight},
				shouldColorize(out),
			))
			return nil
		},
	}
}

func newColorsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "colors",
		Short: "List named colors and groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := ctx.requestContext(cmd)
			defer cancel()
			names, err := ctx.client().Colors(reqCtx)
			if err != nil {
				return err
			}
			if ctx.json {
				return writeJSON(cmd, names)
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newColorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "color <name|#rrggbb>",
		Short: "Light the strip with a color or group while stopped",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := ctx.requestContext(cmd)
			defer cancel()
			// Group names contain spaces ("guilty kiss").
			name := strings.Join(args, " ")
			if err := ctx.client().SetColor(reqCtx, name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Showing %s\n", name)
			return nil
		},
	}
}

func newTestPatternCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "test-pattern [color_wipe|rainbow]",
		Short:     "Run a diagnostic LED pattern while stopped",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: show.ListTestPatterns(),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqCtx, cancel := ctx.requestContext(cmd)
			defer cancel()
			name := show.PatternColorWipe
			if len(args) > 0 {
				name = args[0]
			}
			if err := ctx.client().TestPattern(reqCtx, name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Running %s test pattern\n", name)
			return nil
		},
	}
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream state changes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			watchCtx := cmd.Context()
			if watchCtx == nil {
				watchCtx = context.Background()
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			return ctx.client().Watch(watchCtx, func(ev rpc.Event) {
				if ctx.json {
					_ = writeJSON(cmd, map[string]any{"event": ev.Name, "state": ev.State})
					return
				}
				fmt.Fprintf(out, "-- %s (revision %d) --\n", ev.Name, ev.State.Revision)
				fmt.Fprint(out, renderState(ev.State, colorize))
			})
		},
	}
}
