package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/notexe/memo/internal/reminder"
)

var (
	UserStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("81")). // Bright cyan
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")). // Coral red
			Bold(true)

	InfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("222")) // Warm yellow

	SystemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("183")). // Soft purple
			Italic(true)

	StatusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")). // Medium gray
			Italic(true)

	DueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("215")). // Orange
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("114")). // Green
			Bold(true)
)

const timeLayout = "2006-01-02 15:04"

type Formatter struct {
	colored bool
}

func NewFormatter(colored bool) *Formatter {
	return &Formatter{colored: colored}
}

func (f *Formatter) Colored() bool {
	return f.colored
}

func (f *Formatter) FormatUtterance(text string) string {
	prefix := "Heard: "
	if f.colored {
		prefix = UserStyle.Render("Heard: ")
	}
	return prefix + text
}

func (f *Formatter) FormatError(err error) string {
	prefix := "Error: "
	if f.colored {
		prefix = ErrorStyle.Render("Error: ")
	}
	return prefix + err.Error()
}

func (f *Formatter) FormatInfo(info string) string {
	if f.colored {
		return InfoStyle.Render(info)
	}
	return info
}

func (f *Formatter) FormatSystem(msg string) string {
	if f.colored {
		return SystemStyle.Render(msg)
	}
	return msg
}

func (f *Formatter) FormatSuccess(msg string) string {
	if f.colored {
		return SuccessStyle.Render("✓ ") + msg
	}
	return "✓ " + msg
}

// FormatAnnouncement renders the console line for a due reminder.
func (f *Formatter) FormatAnnouncement(r reminder.Reminder) string {
	at := r.TriggerTime.Local().Format("15:04")
	if f.colored {
		return DueStyle.Render("[REMINDER DUE]") + " " + r.Task + " " + DimStyle.Render("("+at+")")
	}
	return fmt.Sprintf("[REMINDER DUE] %s (%s)", r.Task, at)
}

// FormatReminders renders a table of reminders. Colored output goes through
// glamour as a markdown table.
func (f *Formatter) FormatReminders(reminders []reminder.Reminder) string {
	if len(reminders) == 0 {
		return f.FormatInfo("No reminders.")
	}

	if f.colored {
		if rendered, err := renderMarkdown(remindersMarkdown(reminders)); err == nil {
			return rendered
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-5s %-10s %-16s %s\n", "ID", "STATUS", "TIME", "TASK")
	for _, r := range reminders {
		fmt.Fprintf(&sb, "%-5d %-10s %-16s %s", r.ID, r.Status, r.TriggerTime.Local().Format(timeLayout), r.Task)
		if r.Repeat != reminder.RepeatNone {
			fmt.Fprintf(&sb, " (%s)", r.Repeat)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func remindersMarkdown(reminders []reminder.Reminder) string {
	var sb strings.Builder
	sb.WriteString("| ID | Status | Time | Task | Repeat |\n")
	sb.WriteString("|---:|--------|------|------|--------|\n")
	for _, r := range reminders {
		repeat := string(r.Repeat)
		if repeat == "" {
			repeat = "-"
		}
		fmt.Fprintf(&sb, "| %d | %s | %s | %s | %s |\n",
			r.ID, r.Status, r.TriggerTime.Local().Format(timeLayout), escapeCell(r.Task), repeat)
	}
	return sb.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func renderMarkdown(md string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	out, err := renderer.Render(md)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n"), nil
}

// FormatHealth renders one service health line.
func (f *Formatter) FormatHealth(service string, err error) string {
	if err == nil {
		if f.colored {
			return SuccessStyle.Render("✓") + " " + service + DimStyle.Render(" ok")
		}
		return "✓ " + service + " ok"
	}
	if f.colored {
		return ErrorStyle.Render("✗") + " " + service + DimStyle.Render(" "+err.Error())
	}
	return "✗ " + service + " " + err.Error()
}

func (f *Formatter) FormatWelcome(apiURL, safeWord string) string {
	if f.colored {
		titleStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("81")).
			Bold(true)
		labelStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
		valueStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("114"))
		subtitleStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
		box := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

		content := strings.Join([]string{
			titleStyle.Render("memo • voice reminders"),
			labelStyle.Render("API: ") + valueStyle.Render(apiURL),
			labelStyle.Render("Safe word: ") + valueStyle.Render(safeWord),
			"",
			subtitleStyle.Render("Type /help for commands"),
		}, "\n")
		return "\n" + box.Render(content) + "\n\n"
	}

	return strings.Join([]string{
		"",
		"memo • voice reminders",
		"API: " + apiURL,
		"Safe word: " + safeWord,
		"Type /help for commands",
		"",
		"",
	}, "\n")
}

type helpEntry struct {
	cmd, desc string
}

var helpEntries = []helpEntry{
	{"<utterance>", "Handle text as if it were spoken"},
	{"/record <file>", "Transcribe an audio file and handle it"},
	{"/list", "List reminders"},
	{"/done <id>", "Mark a due reminder completed"},
	{"/cancel <id>", "Cancel a reminder"},
	{"/delete <id>", "Delete a reminder"},
	{"/health", "Check the reminder and speech services"},
	{"/help", "Show this help"},
	{"/quit", "Exit"},
}

func (f *Formatter) FormatHelp(safeWord string) string {
	example := fmt.Sprintf("%s remind me to call mom at 6 pm", safeWord)

	if f.colored {
		headerStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("81")).
			Bold(true)
		cmdStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("114"))
		descStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

		lines := []string{"", headerStyle.Render("Commands"), ""}
		for _, e := range helpEntries {
			lines = append(lines, "  "+cmdStyle.Render(fmt.Sprintf("%-16s", e.cmd))+" "+descStyle.Render(e.desc))
		}
		lines = append(lines, "", headerStyle.Render("Example"), DimStyle.Render("  "+example), "")
		return strings.Join(lines, "\n")
	}

	lines := []string{"", "Commands:"}
	for _, e := range helpEntries {
		lines = append(lines, fmt.Sprintf("  %-16s - %s", e.cmd, e.desc))
	}
	lines = append(lines, "", "Example: "+example, "")
	return strings.Join(lines, "\n")
}

// FormatPrompt returns the input prompt.
func (f *Formatter) FormatPrompt() string {
	if f.colored {
		promptStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("62"))
		arrowStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("114")).
			Bold(true)
		return promptStyle.Render("memo") + arrowStyle.Render(" > ")
	}
	return "memo > "
}
