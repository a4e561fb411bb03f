package mcp

import "github.com/mark3labs/mcp-go/mcp"

// Tool names.
const (
	ToolListDevices = "list_devices"
	ToolGetProperty = "get_property"
	ToolSetProperty = "set_property"
	ToolGetHistory  = "get_history"
)

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(ToolListDevices,
			mcp.WithDescription("List INDI devices and a summary of their properties (kind, state, permission)"),
		),
		s.handleListDevices,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(ToolGetProperty,
			mcp.WithDescription("Get the current value of one INDI property, including element values and limits"),
			mcp.WithString("device",
				mcp.Required(),
				mcp.Description("Device name, e.g. \"CCD Simulator\""),
			),
			mcp.WithString("property",
				mcp.Required(),
				mcp.Description("Property name, e.g. \"CCD_TEMPERATURE\""),
			),
		),
		s.handleGetProperty,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(ToolSetProperty,
			mcp.WithDescription("Send new element values for a writable INDI property. Numbers accept sexagesimal strings, switches accept \"On\"/\"Off\" or booleans."),
			mcp.WithString("device",
				mcp.Required(),
				mcp.Description("Device name"),
			),
			mcp.WithString("property",
				mcp.Required(),
				mcp.Description("Property name"),
			),
			mcp.WithObject("values",
				mcp.Required(),
				mcp.Description("Element name to new value, e.g. {\"CCD_TEMPERATURE_VALUE\": -10}"),
			),
		),
		s.handleSetProperty,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(ToolGetHistory,
			mcp.WithDescription("Get recorded values of one INDI property, newest first"),
			mcp.WithString("device",
				mcp.Required(),
				mcp.Description("Device name"),
			),
			mcp.WithString("property",
				mcp.Required(),
				mcp.Description("Property name"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum entries to return (default 50, max 200)"),
			),
		),
		s.handleGetHistory,
	)
}
