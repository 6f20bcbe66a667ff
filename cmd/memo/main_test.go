package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	memohttp "github.com/notexe/memo/internal/http"
	"github.com/notexe/memo/internal/reminder"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	listJSON, listStatus, addAt, addRepeat, apiURL = false, "", "", "", ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "--no-color"))
	err := rootCmd.Execute()
	return out.String(), err
}

func startServer(t *testing.T) (string, *reminder.Engine) {
	t.Helper()
	engine := reminder.NewEngine(reminder.NewMemoryStore())
	server, err := memohttp.NewServer(engine, zap.NewNop(), nil)
	require.NoError(t, err)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts.URL, engine
}

func TestCheckCommand(t *testing.T) {
	out, err := execute(t, "check", "memo remind me to buy milk at 2030-01-01T18:00")
	require.NoError(t, err)
	assert.Contains(t, out, "command: create")
	assert.Contains(t, out, "task:    buy milk")
	assert.Contains(t, out, "2030-01-01T18:00 -> 2030-01-01T18:00")

	out, err = execute(t, "check", "hello there")
	require.NoError(t, err)
	assert.Contains(t, out, "ignored")
}

func TestAddListDeleteCommands(t *testing.T) {
	url, engine := startServer(t)

	out, err := execute(t, "add", "water plants", "--at", "2030-06-01T08:00", "--repeat", "weekly", "--api", url)
	require.NoError(t, err)
	assert.Contains(t, out, "Reminder #1 created for water plants")

	out, err = execute(t, "list", "--json", "--api", url)
	require.NoError(t, err)
	var listed []reminder.Reminder
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, reminder.RepeatWeekly, listed[0].Repeat)

	out, err = execute(t, "list", "--status", "due", "--api", url)
	require.NoError(t, err)
	assert.Contains(t, out, "No reminders.")

	_, err = execute(t, "delete", "1", "--api", url)
	require.NoError(t, err)
	all, err := engine.List(t.Context())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAddRejectsBadTime(t *testing.T) {
	url, _ := startServer(t)
	_, err := execute(t, "add", "x", "--at", "someday", "--api", url)
	assert.Error(t, err)
}

func TestHealthCommandFailsWhenDown(t *testing.T) {
	_, err := execute(t, "health", "--api", "http://127.0.0.1:1")
	assert.Error(t, err)
}
