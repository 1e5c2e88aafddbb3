// Package mcpserver exposes monch to agents over the Model Context
// Protocol. Agents can check a command before running it and run it with
// captured output.
package mcpserver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/marcelocantos/monch/internal/audit"
	"github.com/marcelocantos/monch/internal/check"
	"github.com/marcelocantos/monch/internal/cli"
	"github.com/marcelocantos/monch/internal/diag"
	"github.com/marcelocantos/monch/internal/engine"
	"github.com/marcelocantos/monch/internal/registry"
)

// Handler serves the monch tools. Each run starts from Dir; a cd inside
// one call does not carry over to the next.
type Handler struct {
	Checker  *check.Checker
	Registry *registry.Registry
	Audit    *audit.Logger
	Dir      string
	Pipefail bool
	Logger   *slog.Logger
}

// New builds an MCP server with the check, run and types tools.
func New(h *Handler, version string) *server.MCPServer {
	s := server.NewMCPServer("monch", version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("check",
		mcp.WithDescription("Parse and type-check monch source without running it. "+
			"Returns the execution plan, or diagnostics pointing at the offending text."),
		mcp.WithString("source", mcp.Required(), mcp.Description("a pipeline, or a script when script is true")),
		mcp.WithBoolean("script", mcp.Description("treat source as newline-separated commands")),
	), h.Check)

	s.AddTool(mcp.NewTool("run",
		mcp.WithDescription("Check and run monch source. Output is captured; stdin is empty."),
		mcp.WithString("source", mcp.Required(), mcp.Description("a pipeline, or a script when script is true")),
		mcp.WithBoolean("script", mcp.Description("treat source as newline-separated commands")),
	), h.Run)

	s.AddTool(mcp.NewTool("types",
		mcp.WithDescription("List the stream signatures of registered programs."),
	), h.Types)

	return s
}

// Serve runs the server on stdin/stdout until ctx is done or the client
// disconnects.
func Serve(ctx context.Context, s *server.MCPServer, stdin io.Reader, stdout io.Writer) error {
	return server.NewStdioServer(s).Listen(ctx, stdin, stdout)
}

// Check handles the check tool.
func (h *Handler) Check(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	script := req.GetBool("script", false)

	var out, errOut bytes.Buffer
	sh := h.shell(io.Discard, &errOut)
	if code := sh.Check(&out, src, script); code != 0 {
		return mcp.NewToolResultError(errOut.String()), nil
	}
	return mcp.NewToolResultText(out.String()), nil
}

// Run handles the run tool.
func (h *Handler) Run(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	script := req.GetBool("script", false)

	var stdout, stderr bytes.Buffer
	sh := h.shell(&stdout, &stderr)
	var code int
	if script {
		code = sh.RunScript(ctx, src)
	} else {
		code = sh.RunCommand(ctx, src)
	}
	h.logger().Debug("mcp run", "source", src, "exit", code)

	text := formatRun(code, stdout.String(), stderr.String())
	if code != 0 {
		return mcp.NewToolResultError(text), nil
	}
	return mcp.NewToolResultText(text), nil
}

// Types handles the types tool.
func (h *Handler) Types(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.Registry == nil {
		return mcp.NewToolResultText(""), nil
	}
	var out bytes.Buffer
	cli.RunTypes(h.Registry, &out, "")
	return mcp.NewToolResultText(out.String()), nil
}

func (h *Handler) shell(stdout, stderr io.Writer) *cli.Shell {
	eng := &engine.Engine{
		Stdin:         strings.NewReader(""),
		Stdout:        stdout,
		Stderr:        stderr,
		Dir:           h.Dir,
		Pipefail:      h.Pipefail,
		RenderObjects: true,
		Logger:        h.logger(),
	}
	sh := cli.NewShell(h.Checker, eng, h.Audit, stderr)
	sh.Diag = diag.Renderer{Prog: "monch"}
	return sh
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func formatRun(code int, stdout, stderr string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "exit status: %d\n", code)
	if stdout != "" {
		fmt.Fprintf(&b, "--- stdout ---\n%s", stdout)
		if !strings.HasSuffix(stdout, "\n") {
			b.WriteByte('\n')
		}
	}
	if stderr != "" {
		fmt.Fprintf(&b, "--- stderr ---\n%s", stderr)
		if !strings.HasSuffix(stderr, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
