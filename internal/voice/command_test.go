package voice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckSafeWord(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{"plain", "memo list reminders", "list reminders", true},
		{"case insensitive", "Memo, remind me to Call Mom at 6 pm", "remind me to Call Mom at 6 pm", true},
		{"surrounding space", "  memo   create x at 9am ", "create x at 9am", true},
		{"safe word only", "memo", "", true},
		{"missing", "remind me to call mom", "", false},
		{"prefix of longer word", "memorize this", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CheckSafeWord(tt.text, "memo")
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckSafeWordEmptyWordAcceptsAll(t *testing.T) {
	got, ok := CheckSafeWord(" list ", "")
	assert.True(t, ok)
	assert.Equal(t, "list", got)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text string
		want Command
	}{
		{"list reminders", Command{Kind: CommandList}},
		{"List", Command{Kind: CommandList}},
		{"remind me to buy milk at 6 pm", Command{Kind: CommandCreate, Task: "buy milk", When: "6 pm"}},
		{"Remind me to Call Mom at 18:00", Command{Kind: CommandCreate, Task: "Call Mom", When: "18:00"}},
		{"remind me to look at the stars at 9 pm", Command{Kind: CommandCreate, Task: "look at the stars", When: "9 pm"}},
		{"create meeting at 2025-01-01T09:00", Command{Kind: CommandCreate, Task: "meeting", When: "2025-01-01T09:00"}},
		{"REMIND ME TO stretch AT 7 am", Command{Kind: CommandCreate, Task: "stretch", When: "7 am"}},
		{"create İstanbul trip at 6 pm", Command{Kind: CommandCreate, Task: "İstanbul trip", When: "6 pm"}},
		{"remind me to İİİ at 6", Command{Kind: CommandCreate, Task: "İİİ", When: "6"}},
		{"remind me to buy milk", Command{Kind: CommandUnknown}},
		{"created a list at noon", Command{Kind: CommandUnknown}},
		{"create at 6 pm", Command{Kind: CommandUnknown}},
		{"what time is it", Command{Kind: CommandUnknown}},
		{"", Command{Kind: CommandUnknown}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCommand(tt.text))
		})
	}
}

func TestResolveTime(t *testing.T) {
	now := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		when string
		want string
	}{
		{"6 pm", "2025-03-10T18:00:00"},
		{"6:45PM", "2025-03-10T18:45:00"},
		{"9 a.m.", "2025-03-11T09:00:00"},
		{"12 am", "2025-03-11T00:00:00"},
		{"12 pm", "2025-03-11T12:00:00"},
		{"14:30", "2025-03-11T14:30:00"},
		{"23:05", "2025-03-10T23:05:00"},
		{"2025-01-01T09:00", "2025-01-01T09:00"},
		{"tomorrow", "tomorrow"},
		{"6", "6"},
		{"13 pm", "13 pm"},
		{"25:00", "25:00"},
	}

	for _, tt := range tests {
		t.Run(tt.when, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveTime(tt.when, now))
		})
	}
}
