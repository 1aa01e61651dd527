package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"n2nmaid"
)

var (
	purple = lipgloss.Color("99")
	green  = lipgloss.Color("76")
	red    = lipgloss.Color("204")
	yellow = lipgloss.Color("214")
	blue   = lipgloss.Color("75")
	dim    = lipgloss.Color("243")
	faint  = lipgloss.Color("238")
)

var (
	AccentStyle  = lipgloss.NewStyle().Foreground(purple)
	SuccessStyle = lipgloss.NewStyle().Foreground(green)
	ErrorStyle   = lipgloss.NewStyle().Foreground(red)
	WarnStyle    = lipgloss.NewStyle().Foreground(yellow)
	InfoStyle    = lipgloss.NewStyle().Foreground(blue)
	MutedStyle   = lipgloss.NewStyle().Foreground(dim)
	BoldStyle    = lipgloss.NewStyle().Bold(true)
	LabelStyle   = lipgloss.NewStyle().Foreground(dim)
)

func Accent(s string) string  { return AccentStyle.Render(s) }
func Bold(s string) string    { return BoldStyle.Render(s) }
func Muted(s string) string   { return MutedStyle.Render(s) }
func Success(s string) string { return SuccessStyle.Render(s) }
func Warn(s string) string    { return WarnStyle.Render(s) }

func SuccessMsg(format string, a ...any) string {
	return SuccessStyle.Render("✓") + " " + fmt.Sprintf(format, a...)
}

func WarnMsg(format string, a ...any) string {
	return WarnStyle.Render("!") + " " + fmt.Sprintf(format, a...)
}

func ErrorMsg(format string, a ...any) string {
	return ErrorStyle.Render("✗") + " " + fmt.Sprintf(format, a...)
}

func InfoMsg(format string, a ...any) string {
	return AccentStyle.Render("●") + " " + fmt.Sprintf(format, a...)
}

// LevelTag renders a log level as a fixed-width coloured tag.
func LevelTag(l n2nmaid.Level) string {
	tag := fmt.Sprintf("%-4s", l.String())
	switch l {
	case n2nmaid.LevelErr:
		return ErrorStyle.Render(tag)
	case n2nmaid.LevelWarn:
		return WarnStyle.Render(tag)
	case n2nmaid.LevelInfo:
		return InfoStyle.Render(tag)
	default:
		return MutedStyle.Render(tag)
	}
}

// LogLine renders one edge log record without a trailing newline.
func LogLine(rec n2nmaid.LogRecord) string {
	return MutedStyle.Render(rec.Time.Local().Format("15:04:05")) + " " + LevelTag(rec.Level) + " " + rec.Text
}

// StatusText colours a connection status.
func StatusText(s n2nmaid.Status) string {
	switch s {
	case n2nmaid.StatusConnected:
		return SuccessStyle.Render(s.String())
	case n2nmaid.StatusError:
		return ErrorStyle.Render(s.String())
	case n2nmaid.StatusConnecting, n2nmaid.StatusDisconnecting:
		return WarnStyle.Render(s.String())
	default:
		return MutedStyle.Render(s.String())
	}
}

// StatusMsg renders a status change line.
func StatusMsg(rep n2nmaid.StatusReport) string {
	switch rep.Status {
	case n2nmaid.StatusConnected:
		if rep.NetworkInfo != nil {
			return SuccessMsg("connected as %s/%s", rep.NetworkInfo.IP, rep.NetworkInfo.Mask)
		}
		return SuccessMsg("connected")
	case n2nmaid.StatusError:
		return ErrorMsg("%s", rep.Reason)
	default:
		return InfoMsg("%s", StatusText(rep.Status))
	}
}

// Pair holds a key-value pair for KeyValues output.
// Fields are unexported; use KV to construct.
type Pair struct {
	key   string
	value string
}

func KV(key, value string) Pair {
	return Pair{key: key, value: value}
}

// KeyValues renders aligned "key:  value" lines.
// Returns a multi-line string with trailing newline.
func KeyValues(indent string, pairs ...Pair) string {
	maxLen := 0
	for _, p := range pairs {
		if len(p.key) > maxLen {
			maxLen = len(p.key)
		}
	}

	var sb strings.Builder
	for _, p := range pairs {
		label := fmt.Sprintf("%-*s", maxLen+1, p.key+":")
		sb.WriteString(indent + LabelStyle.Render(label) + " " + p.value + "\n")
	}
	return sb.String()
}

// PeerTable renders the peer list as a table.
func PeerTable(list []n2nmaid.PeerInfo) string {
	rows := make([][]string, 0, len(list))
	for _, p := range list {
		latency := "-"
		if p.LatencyMs != nil {
			latency = fmt.Sprintf("%.1f ms", *p.LatencyMs)
		}
		rows = append(rows, []string{p.Name, p.VPNIP, p.Mode, p.PublicAddr, latency})
	}
	return Table([]string{"Name", "VPN IP", "Mode", "Public", "Latency"}, rows)
}

// Table renders a styled table with rounded borders.
func Table(headers []string, rows [][]string) string {
	headerStyle := lipgloss.NewStyle().
		Foreground(purple).
		Bold(true).
		Padding(0, 1)

	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	oddStyle := cellStyle.Foreground(dim)
	evenStyle := cellStyle

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(faint)).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row%2 == 0:
				return evenStyle
			default:
				return oddStyle
			}
		}).
		Headers(headers...).
		Rows(rows...)

	return t.String()
}
