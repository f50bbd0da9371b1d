package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/bbernstein/lacylights-showsync/internal/rpc"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

const stateLabelWidth = 10

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderState(st rpc.State, colorize bool) string {
	var b strings.Builder
	line := func(label, value string) {
		fmt.Fprintf(&b, "%-*s %s\n", stateLabelWidth, label+":", value)
	}

	status := st.Status
	if colorize {
		switch st.Status {
		case "playing":
			status = ansiGreen + status + ansiReset
		case "paused":
			status = ansiYellow + status + ansiReset
		}
	}
	line("Status", status)

	if st.PlaylistLength == 0 {
		line("Track", "(playlist empty)")
	} else {
		title := st.Title
		if title == "" {
			title = "untitled"
		}
		line("Track", fmt.Sprintf("%d/%d %s", st.TrackIndex+1, st.PlaylistLength, title))
		if st.NextTitle != "" {
			line("Next", st.NextTitle)
		}
	}

	position := formatPosition(st.Position())
	if st.DurationMS > 0 {
		position += " / " + formatPosition(st.Duration())
	}
	line("Position", position)
	line("Volume", strconv.Itoa(st.Volume))
	line("Repeat", st.RepeatMode)

	if st.HardwareError != "" {
		msg := st.HardwareError
		if colorize {
			msg = ansiRed + msg + ansiReset
		}
		line("Error", msg)
	}
	return b.String()
}

func formatPosition(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(100 * time.Millisecond)
	minutes := int(d / time.Minute)
	seconds := (d % time.Minute).Seconds()
	return fmt.Sprintf("%d:%04.1f", minutes, seconds)
}

// parsePosition accepts Go durations (1m30s), m:ss(.f) and plain seconds.
func parsePosition(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if m, sec, ok := strings.Cut(s, ":"); ok {
		minutes, err := strconv.Atoi(m)
		if err != nil || minutes < 0 {
			return 0, fmt.Errorf("invalid position %q", s)
		}
		seconds, err := strconv.ParseFloat(sec, 64)
		if err != nil || seconds < 0 || seconds >= 60 {
			return 0, fmt.Errorf("invalid position %q", s)
		}
		return time.Duration(minutes)*time.Minute + time.Duration(seconds*float64(time.Second)), nil
	}
	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid position %q (use 90, 1:30 or 1m30s)", s)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
