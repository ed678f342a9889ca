package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	printer = message.NewPrinter(language.English)
	titler  = cases.Title(language.English)
)

// renderTable writes rows under the columns listed in layout, separated by
// '|'. A column name starting with '>' is right aligned.
func renderTable(out io.Writer, layout string, rows [][]string) {
	names := strings.Split(layout, "|")
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	style := table.StyleRounded
	style.Format.Header = text.FormatDefault
	tw.SetStyle(style)

	header := make(table.Row, len(names))
	configs := make([]table.ColumnConfig, len(names))
	for i, name := range names {
		align := text.AlignLeft
		if rest, ok := strings.CutPrefix(name, ">"); ok {
			name, align = rest, text.AlignRight
		}
		header[i] = name
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(names))
		for i := range min(len(row), len(names)) {
			r[i] = row[i]
		}
		tw.AppendRow(r)
	}
	tw.Render()
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderFields(out io.Writer, fields [][2]string) {
	width := 0
	for _, f := range fields {
		width = max(width, len(f[0]))
	}
	for _, f := range fields {
		fmt.Fprintf(out, "%-*s  %s\n", width+1, f[0]+":", f[1])
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// colorCell renders #rrggbb, led by a swatch on terminals.
func colorCell(color uint32, colorize bool) string {
	hex := fmt.Sprintf("#%06x", color&0xffffff)
	if !colorize {
		return hex
	}
	return fmt.Sprintf("\x1b[48;2;%d;%d;%dm  \x1b[0m %s", color>>16&0xff, color>>8&0xff, color&0xff, hex)
}

func formatBytes(n int) string {
	return printer.Sprintf("%d bytes", n)
}

func formatSeconds(s float64) string {
	return printer.Sprintf("%.3fs", s)
}

// progressLine redraws an upload counter in place on terminals and stays
// silent elsewhere.
func progressLine(out io.Writer) func(done, total int) {
	if !shouldColorize(out) {
		return nil
	}
	return func(done, total int) {
		fmt.Fprintf(out, "\r%s", printer.Sprintf("uploading %d/%d bytes", done, total))
		if done == total {
			fmt.Fprintln(out)
		}
	}
}
