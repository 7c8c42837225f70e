package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/ubuntu/sshdconf/internal/backup"
	"github.com/ubuntu/sshdconf/internal/sshdconfig"
)

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func bold(s string) string {
	return color.New(color.Bold).Sprint(s)
}

// printDiff prints removed lines in red and added lines in green.
func printDiff(w io.Writer, diff []string) {
	for _, l := range diff {
		switch {
		case strings.HasPrefix(l, "-"):
			fmt.Fprintln(w, color.RedString("%s", l))
		case strings.HasPrefix(l, "+"):
			fmt.Fprintln(w, color.GreenString("%s", l))
		default:
			fmt.Fprintln(w, l)
		}
	}
}

// printPatch prints every directive of p on its own line, as written in the configuration.
func printPatch(w io.Writer, p sshdconfig.Patch) {
	for _, s := range p {
		fmt.Fprintf(w, "  %s %s\n", color.HiBlueString(s.Name), s.Value)
	}
}

// printBackups prints one backup per line, most recent first.
func printBackups(w io.Writer, records []backup.Record) error {
	tw := newTabWriter(w)
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			bold(r.Name),
			r.Created().Format("2006-01-02 15:04:05"),
			r.Meta.User,
			color.MagentaString("%s", r.Meta.Comment))
	}
	return tw.Flush()
}
