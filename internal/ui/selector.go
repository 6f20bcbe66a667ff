package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/notexe/memo/internal/reminder"
)

// ErrCancelled is returned when the user backs out of a selector.
var ErrCancelled = errors.New("cancelled")

// Selector lets the user pick one reminder from a list, with arrow keys on a
// terminal or by number otherwise.
type Selector struct {
	question  string
	reminders []reminder.Reminder
	selected  int
	colored   bool
	in        io.Reader
	out       io.Writer

	cursorStyle   lipgloss.Style
	selectedStyle lipgloss.Style
	optionStyle   lipgloss.Style
	questionStyle lipgloss.Style
	hintStyle     lipgloss.Style
}

func NewSelector(question string, reminders []reminder.Reminder, colored bool) *Selector {
	return &Selector{
		question:  question,
		reminders: reminders,
		colored:   colored,
		in:        os.Stdin,
		out:       os.Stdout,

		cursorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true),
		selectedStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("114")).Bold(true),
		optionStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		questionStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true),
		hintStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true),
	}
}

// WithIO replaces stdin and stdout.
func (s *Selector) WithIO(in io.Reader, out io.Writer) *Selector {
	s.in = in
	s.out = out
	return s
}

// Run shows the menu and returns the chosen reminder.
func (s *Selector) Run() (reminder.Reminder, error) {
	if len(s.reminders) == 0 {
		return reminder.Reminder{}, errors.New("nothing to choose from")
	}

	f, ok := s.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return s.runSimple()
	}

	fd := int(f.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return s.runSimple()
	}
	defer func() {
		_ = term.Restore(fd, oldState)
		fmt.Fprint(s.out, "\033[?25h")
	}()
	fmt.Fprint(s.out, "\033[?25l")

	totalLines := len(s.reminders) + 3
	s.printMenu()

	reader := bufio.NewReader(f)
	for {
		b, err := reader.ReadByte()
		if err != nil {
			return reminder.Reminder{}, err
		}

		switch b {
		case 13, 10, ' ':
			s.clearMenu(totalLines)
			return s.reminders[s.selected], nil
		case 3, 'q':
			s.clearMenu(totalLines)
			return reminder.Reminder{}, ErrCancelled
		case 'j':
			s.moveDown()
		case 'k':
			s.moveUp()
		case 27:
			b2, _ := reader.ReadByte()
			if b2 == '[' {
				b3, _ := reader.ReadByte()
				switch b3 {
				case 'A':
					s.moveUp()
				case 'B':
					s.moveDown()
				}
			}
		}

		s.clearMenu(totalLines)
		s.printMenu()
	}
}

func (s *Selector) label(r reminder.Reminder) string {
	return fmt.Sprintf("#%d %s - %s (%s)", r.ID, r.Task, r.TriggerTime.Local().Format(timeLayout), r.Status)
}

func (s *Selector) printMenu() {
	var sb strings.Builder

	hint := "[j/k or arrows] move  [enter] select  [q] cancel"
	if s.colored {
		sb.WriteString(s.questionStyle.Render(s.question) + "\r\n")
		sb.WriteString(s.hintStyle.Render(hint) + "\r\n\r\n")
	} else {
		sb.WriteString(s.question + "\r\n" + hint + "\r\n\r\n")
	}

	for i, r := range s.reminders {
		cursor := "  "
		if i == s.selected {
			cursor = "> "
		}
		switch {
		case !s.colored:
			sb.WriteString(cursor + s.label(r))
		case i == s.selected:
			sb.WriteString(s.cursorStyle.Render(cursor) + s.selectedStyle.Render(s.label(r)))
		default:
			sb.WriteString(DimStyle.Render(cursor) + s.optionStyle.Render(s.label(r)))
		}
		sb.WriteString("\r\n")
	}

	fmt.Fprint(s.out, sb.String())
}

func (s *Selector) clearMenu(lines int) {
	for i := 0; i < lines; i++ {
		fmt.Fprint(s.out, "\033[A\033[2K\r")
	}
}

// runSimple numbers the options and reads a choice from one input line.
// An empty or invalid answer cancels.
func (s *Selector) runSimple() (reminder.Reminder, error) {
	fmt.Fprintln(s.out, s.question)
	for i, r := range s.reminders {
		fmt.Fprintf(s.out, "  [%d] %s\n", i+1, s.label(r))
	}
	fmt.Fprint(s.out, "Enter number: ")

	input, _ := bufio.NewReader(s.in).ReadString('\n')
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n < 1 || n > len(s.reminders) {
		return reminder.Reminder{}, ErrCancelled
	}
	return s.reminders[n-1], nil
}

func (s *Selector) moveUp() {
	if s.selected > 0 {
		s.selected--
	} else {
		s.selected = len(s.reminders) - 1
	}
}

func (s *Selector) moveDown() {
	if s.selected < len(s.reminders)-1 {
		s.selected++
	} else {
		s.selected = 0
	}
}
