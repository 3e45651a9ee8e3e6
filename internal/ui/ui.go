// Package ui renders relq command output.
package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/pterm/pterm"
)

var (
	// Out and Err receive all output.
	Out io.Writer = os.Stdout
	Err io.Writer = os.Stderr

	// Colors
	PrimaryColor   = lipgloss.Color("#00D9FF")
	SuccessColor   = lipgloss.Color("#00FF88")
	WarningColor   = lipgloss.Color("#FFB800")
	ErrorColor     = lipgloss.Color("#FF4444")
	SecondaryColor = lipgloss.Color("#6C757D")

	// Styles
	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true).
			MarginBottom(1)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(SuccessColor).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)

	InfoStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)

	SecondaryStyle = lipgloss.NewStyle().
			Foreground(SecondaryColor)
)

// NullText is shown for SQL NULL cells.
const NullText = "NULL"

func termWidth() int {
	if w := pterm.GetTerminalWidth(); w > 0 {
		return w
	}
	return 80
}

// PrintSuccess prints a success message
func PrintSuccess(format string, args ...any) {
	fmt.Fprintln(Out, SuccessStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

// PrintError prints an error message
func PrintError(format string, args ...any) {
	fmt.Fprintln(Err, ErrorStyle.Render("✗ "+fmt.Sprintf(format, args...)))
}

// PrintWarning prints a warning message
func PrintWarning(format string, args ...any) {
	fmt.Fprintln(Out, WarningStyle.Render("⚠ "+fmt.Sprintf(format, args...)))
}

// PrintInfo prints an info message
func PrintInfo(format string, args ...any) {
	fmt.Fprintln(Out, InfoStyle.Render("ℹ "+fmt.Sprintf(format, args...)))
}

// PrintBox prints content in a box
func PrintBox(title string, content string) {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Padding(0, 2).
		Width(min(termWidth(), 100) - 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, TitleStyle.Render(title), content))
	fmt.Fprintln(Out, box)
}

// PrintKeyValues prints aligned key/value lines in key order.
func PrintKeyValues(values map[string]string) {
	keys := make([]string, 0, len(values))
	width := 0
	for k := range values {
		keys = append(keys, k)
		width = max(width, len(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(Out, "%s  %s\n", SecondaryStyle.Render(fmt.Sprintf("%-*s", width, k)), values[k])
	}
}

// PrintTable prints a table using pterm
func PrintTable(headers []string, rows [][]string) error {
	data := pterm.TableData{headers}
	data = append(data, rows...)
	return pterm.DefaultTable.WithHasHeader().WithWriter(Out).WithData(data).Render()
}

// PrintRows prints result rows as a table with columns in name order.
func PrintRows(rows []map[string]any) error {
	if len(rows) == 0 {
		PrintInfo("no rows")
		return nil
	}
	headers, data := TableData(rows)
	return PrintTable(headers, data)
}

// TableData converts rows into sorted headers and formatted cells. Columns
// missing from a row are rendered empty.
func TableData(rows []map[string]any) ([]string, [][]string) {
	seen := map[string]bool{}
	var headers []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
		}
	}
	sort.Strings(headers)

	data := make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(headers))
		for j, h := range headers {
			if v, ok := row[h]; ok {
				cells[j] = FormatValue(v)
			}
		}
		data[i] = cells
	}
	return headers, data
}

// FormatValue renders one cell.
func FormatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return NullText
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

// PrintMarkdown renders markdown content
func PrintMarkdown(content string) error {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(min(termWidth(), 100)),
	)
	if err != nil {
		return err
	}
	out, err := r.Render(content)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(Out, out)
	return err
}

// PrintSQL prints a statement followed by its numbered arguments.
func PrintSQL(sql string, args []any) {
	printers := ColorPrinters()
	printers["primary"].Fprintln(Out, sql)
	for i, a := range args {
		printers["info"].Fprintf(Out, "  $%d = ", i+1)
		fmt.Fprintf(Out, "%s (%T)\n", FormatValue(a), a)
	}
}

// PrintSection prints a section header
func PrintSection(title string) {
	section := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(SecondaryColor).
		Render(title)
	fmt.Fprintln(Out, section)
}

// Spinner starts a spinner. Stop it with Success, Fail or Stop.
func Spinner(message string) *pterm.SpinnerPrinter {
	s, err := pterm.DefaultSpinner.WithWriter(Err).WithRemoveWhenDone(true).Start(message)
	if err != nil {
		return nil
	}
	return s
}

// StopSpinner stops s if it is running.
func StopSpinner(s *pterm.SpinnerPrinter) {
	if s != nil {
		_ = s.Stop()
	}
}

// ColorPrinters returns color printers for common use cases
func ColorPrinters() map[string]*color.Color {
	return map[string]*color.Color{
		"success": color.New(color.FgGreen, color.Bold),
		"error":   color.New(color.FgRed, color.Bold),
		"warning": color.New(color.FgYellow, color.Bold),
		"info":    color.New(color.FgCyan),
		"primary": color.New(color.FgCyan, color.Bold),
	}
}

// Indent prefixes every line of s.
func Indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
