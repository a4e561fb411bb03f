package mcp

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/nerrad567/indi-bridge/internal/device"
	"github.com/nerrad567/indi-bridge/internal/indi"
	"github.com/nerrad567/indi-bridge/internal/infrastructure/logging"
)

// serverName is reported to MCP clients during initialisation.
const serverName = "indi-bridge"

// PropertySetter sends property changes to the INDI server.
type PropertySetter interface {
	SetProperty(ctx context.Context, device, property string, kind indi.Kind, values map[string]any) error
}

// HistoryReader returns recorded element values, newest first.
type HistoryReader interface {
	GetHistory(ctx context.Context, device, property string, limit int) ([]device.HistoryEntry, error)
}

// Deps holds the dependencies of the MCP server. Setter and History are
// optional; the matching tools report an error without them.
type Deps struct {
	Registry *device.Registry
	Setter   PropertySetter
	History  HistoryReader
	Logger   *logging.Logger
	Version  string
}

// Server exposes the device registry as MCP tools.
type Server struct {
	mcpServer *server.MCPServer
	registry  *device.Registry
	setter    PropertySetter
	history   HistoryReader
	logger    *logging.Logger
}

// New creates the MCP server and registers its tools.
func New(deps Deps) (*Server, error) {
	if deps.Registry == nil {
		return nil, errors.New("device registry is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		registry: deps.Registry,
		setter:   deps.Setter,
		history:  deps.History,
		logger:   logger,
	}
	s.mcpServer = server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools()
	return s, nil
}

// ServeStdio serves MCP over the process's stdin and stdout until ctx is
// cancelled. Logs must not be written to stdout while it runs.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve serves MCP over in and out until ctx is cancelled or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("MCP server started", "transport", "stdio")
	defer s.logger.Info("MCP server stopped")

	err := server.NewStdioServer(s.mcpServer).Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
