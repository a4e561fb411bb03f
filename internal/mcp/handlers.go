package mcp

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"

	bridge "github.com/nerrad567/indi-bridge/internal/bridges/indi"
	"github.com/nerrad567/indi-bridge/internal/device"
	"github.com/nerrad567/indi-bridge/internal/indi"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// PropertySummary is one property in the list_devices output.
type PropertySummary struct {
	Name     string             `json:"name"`
	Kind     indi.Kind          `json:"kind"`
	Label    string             `json:"label,omitempty"`
	Group    string             `json:"group,omitempty"`
	State    indi.PropertyState `json:"state"`
	Perm     indi.Perm          `json:"perm,omitempty"`
	Elements int                `json:"elements"`
}

// DeviceSummary is one device in the list_devices output.
type DeviceSummary struct {
	Name       string            `json:"name"`
	Properties []PropertySummary `json:"properties"`
}

// ListDevicesOutput is returned by list_devices.
type ListDevicesOutput struct {
	Devices []DeviceSummary `json:"devices"`
	Count   int             `json:"count"`
}

// SetPropertyOutput is returned by set_property.
type SetPropertyOutput struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message"`
}

// GetHistoryOutput is returned by get_history.
type GetHistoryOutput struct {
	Device   string                `json:"device"`
	Property string                `json:"property"`
	Entries  []device.HistoryEntry `json:"entries"`
	Count    int                   `json:"count"`
}

func (s *Server) handleListDevices(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	devices := s.registry.ListDevices()

	out := ListDevicesOutput{Devices: make([]DeviceSummary, 0, len(devices)), Count: len(devices)}
	for _, d := range devices {
		summary := DeviceSummary{Name: d.Name, Properties: make([]PropertySummary, 0, len(d.Properties))}
		for _, p := range d.Properties {
			summary.Properties = append(summary.Properties, PropertySummary{
				Name:     p.Name,
				Kind:     p.Kind,
				Label:    p.Label,
				Group:    p.Group,
				State:    p.State,
				Perm:     p.Perm,
				Elements: len(p.Elements),
			})
		}
		sortProperties(summary.Properties)
		out.Devices = append(out.Devices, summary)
	}

	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleGetProperty(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceName, propName, err := propertyArgs(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	p, err := s.registry.GetProperty(deviceName, propName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	// Blob payloads are too large for a tool result; size and format remain.
	for i := range p.Elements {
		p.Elements[i].BLOB = nil
	}

	return mcp.NewToolResultText(formatJSON(p)), nil
}

func (s *Server) handleSetProperty(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.setter == nil {
		return mcp.NewToolResultError("property writes are unavailable"), nil
	}
	deviceName, propName, err := propertyArgs(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	values, ok := request.GetArguments()["values"].(map[string]any)
	if !ok || len(values) == 0 {
		return mcp.NewToolResultError(`parameter "values" must be a non-empty object`), nil
	}

	p, err := s.registry.GetProperty(deviceName, propName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.setter.SetProperty(ctx, deviceName, propName, p.Kind, values); err != nil {
		s.logger.Warn("MCP property write failed", "device", deviceName, "property", propName, "error", err)
		switch {
		case bridge.IsCommandError(err):
			return mcp.NewToolResultError(fmt.Sprintf("invalid request: %s", err)), nil
		case errors.Is(err, bridge.ErrNotConnected):
			return mcp.NewToolResultError("INDI server is not connected"), nil
		default:
			return mcp.NewToolResultError(fmt.Sprintf("failed to send request: %s", err)), nil
		}
	}

	out := SetPropertyOutput{
		Accepted: true,
		Message:  fmt.Sprintf("new %s values sent for %s.%s", p.Kind, deviceName, propName),
	}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func (s *Server) handleGetHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.history == nil {
		return mcp.NewToolResultError("history is disabled"), nil
	}
	deviceName, propName, err := propertyArgs(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	limit := request.GetInt("limit", defaultHistoryLimit)
	if limit < 1 || limit > maxHistoryLimit {
		return mcp.NewToolResultError(fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit)), nil
	}

	entries, err := s.history.GetHistory(ctx, deviceName, propName, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read history: %s", err)), nil
	}
	if entries == nil {
		entries = []device.HistoryEntry{}
	}

	out := GetHistoryOutput{Device: deviceName, Property: propName, Entries: entries, Count: len(entries)}
	return mcp.NewToolResultText(formatJSON(out)), nil
}

func sortProperties(props []PropertySummary) {
	slices.SortFunc(props, func(a, b PropertySummary) int {
		return cmp.Compare(a.Name, b.Name)
	})
}

func propertyArgs(request mcp.CallToolRequest) (deviceName, propName string, err error) {
	if deviceName, err = requiredString(request, "device"); err != nil {
		return "", "", err
	}
	if propName, err = requiredString(request, "property"); err != nil {
		return "", "", err
	}
	return deviceName, propName, nil
}

func requiredString(request mcp.CallToolRequest, key string) (string, error) {
	v, ok := request.GetArguments()[key]
	if !ok || v == nil {
		return "", fmt.Errorf("required parameter %q is missing", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("parameter %q must be a non-empty string", key)
	}
	return s, nil
}

func formatJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal response: %s"}`, err)
	}
	return string(b)
}
