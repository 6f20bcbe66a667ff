package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	serverName    = "reminder"
	serverVersion = "1.0.0"
)

// Server is the MCP server for reminder management.
type Server struct {
	mcpServer *server.MCPServer
	engine    *Engine
}

// NewServer creates a new Reminder MCP server backed by the given engine.
func NewServer(engine *Engine) *Server {
	s := &Server{
		engine: engine,
	}

	s.mcpServer = server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
	)

	s.registerTools()
	return s
}

// MCPServer returns the underlying MCP server for serving.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	// add_reminder
	s.mcpServer.AddTool(
		mcp.NewTool("add_reminder",
			mcp.WithDescription("Schedule a new reminder for a task at a given time"),
			mcp.WithString("task", mcp.Required(), mcp.Description("What to be reminded about")),
			mcp.WithString("time_iso", mcp.Required(), mcp.Description("Trigger time in ISO-8601 format (e.g. 2025-01-15T09:00:00)")),
			mcp.WithString("repeat", mcp.Description("Optional recurrence tag: daily, weekly, weekdays")),
		),
		s.handleAddReminder,
	)

	// list_reminders
	s.mcpServer.AddTool(
		mcp.NewTool("list_reminders",
			mcp.WithDescription("List reminders, optionally filtered by status"),
			mcp.WithString("status", mcp.Description("Filter by status: scheduled, due, completed, cancelled, or empty for all")),
		),
		s.handleListReminders,
	)

	// get_due_reminders
	s.mcpServer.AddTool(
		mcp.NewTool("get_due_reminders",
			mcp.WithDescription("Get reminders the scheduler has marked due"),
		),
		s.handleGetDueReminders,
	)

	// update_reminder
	s.mcpServer.AddTool(
		mcp.NewTool("update_reminder",
			mcp.WithDescription("Update a reminder's task, time, repeat or status"),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Reminder ID")),
			mcp.WithString("task", mcp.Description("New task")),
			mcp.WithString("time_iso", mcp.Description("New trigger time in ISO-8601 format")),
			mcp.WithString("repeat", mcp.Description("New recurrence tag, or none")),
			mcp.WithString("status", mcp.Description("New status: completed or cancelled")),
		),
		s.handleUpdateReminder,
	)

	// delete_reminder
	s.mcpServer.AddTool(
		mcp.NewTool("delete_reminder",
			mcp.WithDescription("Delete a reminder permanently; the deletion is kept in its history"),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Reminder ID")),
		),
		s.handleDeleteReminder,
	)

	// reminder_history
	s.mcpServer.AddTool(
		mcp.NewTool("reminder_history",
			mcp.WithDescription("Show the lifecycle events recorded for a reminder"),
			mcp.WithNumber("id", mcp.Required(), mcp.Description("Reminder ID")),
		),
		s.handleReminderHistory,
	)
}

func (s *Server) handleAddReminder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in := CreateInput{
		Task:    req.GetString("task", ""),
		TimeISO: req.GetString("time_iso", ""),
	}
	if v := req.GetString("repeat", ""); v != "" {
		in.Repeat = &v
	}

	added, err := s.engine.Create(ctx, in)
	if err != nil {
		return toolError("failed to add reminder", err), nil
	}

	return jsonResult(added), nil
}

func (s *Server) handleListReminders(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := Status(req.GetString("status", ""))
	if status != "" && !status.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown status %q", status)), nil
	}

	reminders, err := s.engine.List(ctx)
	if err != nil {
		return toolError("failed to list reminders", err), nil
	}

	filtered := filterStatus(reminders, status)
	if len(filtered) == 0 {
		return mcp.NewToolResultText("No reminders found."), nil
	}

	return jsonResult(filtered), nil
}

func (s *Server) handleGetDueReminders(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reminders, err := s.engine.List(ctx)
	if err != nil {
		return toolError("failed to get due reminders", err), nil
	}

	due := filterStatus(reminders, StatusDue)
	if len(due) == 0 {
		return mcp.NewToolResultText("No due reminders."), nil
	}

	return jsonResult(due), nil
}

func (s *Server) handleUpdateReminder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := requireID(req)
	if bad != nil {
		return bad, nil
	}

	var in UpdateInput
	if v := req.GetString("task", ""); v != "" {
		in.Task = &v
	}
	if v := req.GetString("time_iso", ""); v != "" {
		in.TimeISO = &v
	}
	if v := req.GetString("repeat", ""); v != "" {
		in.Repeat = &v
	}
	if v := req.GetString("status", ""); v != "" {
		st := Status(v)
		in.Status = &st
	}

	updated, err := s.engine.Update(ctx, id, in)
	if err != nil {
		return toolError("failed to update reminder", err), nil
	}

	return jsonResult(updated), nil
}

func (s *Server) handleDeleteReminder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := requireID(req)
	if bad != nil {
		return bad, nil
	}

	n, err := s.engine.Delete(ctx, id)
	if err != nil {
		return toolError("failed to delete reminder", err), nil
	}
	if n == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("Reminder %d did not exist; deletion recorded.", id)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Reminder %d deleted.", id)), nil
}

func (s *Server) handleReminderHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := requireID(req)
	if bad != nil {
		return bad, nil
	}

	events, err := s.engine.History(ctx, id)
	if err != nil {
		return toolError("failed to load history", err), nil
	}
	if len(events) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No events for reminder %d.", id)), nil
	}

	return jsonResult(events), nil
}

func requireID(req mcp.CallToolRequest) (int64, *mcp.CallToolResult) {
	idFloat := req.GetFloat("id", -1)
	if idFloat < 0 {
		return 0, mcp.NewToolResultError("id is required and must be a positive number")
	}
	return int64(idFloat), nil
}

func filterStatus(reminders []Reminder, status Status) []Reminder {
	if status == "" {
		return reminders
	}
	out := []Reminder{}
	for _, r := range reminders {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}

// toolError hides storage details from tool callers.
func toolError(prefix string, err error) *mcp.CallToolResult {
	if errors.Is(err, ErrStorageUnavailable) {
		return mcp.NewToolResultError(prefix + ": storage unavailable")
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
}

func jsonResult(v any) *mcp.CallToolResult {
	output, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(output))
}
