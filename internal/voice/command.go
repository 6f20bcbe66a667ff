package voice

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// CommandKind identifies what an utterance asks for.
type CommandKind string

const (
	CommandList    CommandKind = "list"
	CommandCreate  CommandKind = "create"
	CommandUnknown CommandKind = "unknown"
)

// Command is a parsed utterance.
type Command struct {
	Kind CommandKind
	Task string
	When string
}

// CheckSafeWord reports whether text starts with the safe word and returns the
// rest of the utterance. Matching ignores case and surrounding punctuation;
// the returned remainder keeps its original casing.
func CheckSafeWord(text, word string) (string, bool) {
	word = strings.ToLower(strings.TrimSpace(word))
	t := strings.TrimSpace(text)
	if word == "" {
		return t, true
	}
	if len(t) < len(word) || !strings.EqualFold(t[:len(word)], word) {
		return "", false
	}
	rest := t[len(word):]
	if rest != "" {
		r := []rune(rest)[0]
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return "", false
		}
	}
	return strings.TrimLeftFunc(rest, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}), true
}

// createPattern matches "remind me to <task> at <time>" and "create <task>
// at <time>". The greedy task group makes the last " at " the separator.
var createPattern = regexp.MustCompile(`(?is)^(?:remind\s+me\s+to|create)\s+(.+)\s+at\s+(.+)$`)

var listPattern = regexp.MustCompile(`(?i)^list`)

// ParseCommand understands "list ...", "remind me to <task> at <time>" and
// "create <task> at <time>". The last " at " separates the task from the time.
func ParseCommand(text string) Command {
	t := strings.TrimSpace(text)

	if listPattern.MatchString(t) {
		return Command{Kind: CommandList}
	}

	m := createPattern.FindStringSubmatch(t)
	if m == nil {
		return Command{Kind: CommandUnknown}
	}
	task := strings.TrimSpace(m[1])
	when := strings.TrimSpace(m[2])
	if task == "" || when == "" {
		return Command{Kind: CommandUnknown}
	}
	return Command{Kind: CommandCreate, Task: task, When: when}
}

var clockPattern = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)?$`)

const isoLayout = "2006-01-02T15:04:05"

// ResolveTime turns a spoken time such as "6 pm", "6:30pm" or "18:00" into
// the next matching local timestamp after now. ISO input and anything it
// does not recognise are returned unchanged for the server to validate.
func ResolveTime(when string, now time.Time) string {
	w := strings.ToLower(strings.TrimSpace(when))
	m := clockPattern.FindStringSubmatch(w)
	if m == nil {
		return strings.TrimSpace(when)
	}

	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}

	switch strings.ReplaceAll(m[3], ".", "") {
	case "am":
		if hour < 1 || hour > 12 {
			return strings.TrimSpace(when)
		}
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour < 1 || hour > 12 {
			return strings.TrimSpace(when)
		}
		if hour != 12 {
			hour += 12
		}
	default:
		if m[2] == "" {
			// A bare number is ambiguous.
			return strings.TrimSpace(when)
		}
	}
	if hour > 23 || minute > 59 {
		return strings.TrimSpace(when)
	}

	at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at.Format(isoLayout)
}
