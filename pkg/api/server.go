// Package api exposes dumping and inspecting as MCP tools.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"gitlab.com/tozd/go/errors"

	"github.com/monsterxx03/godump/pkg/minidump"
	"github.com/monsterxx03/godump/pkg/report"
)

// DumpFunc is minidump.Dump; tests replace it.
type DumpFunc func(ctx context.Context, pid int, crash *minidump.CrashContext, opts minidump.Options, sink io.Writer) (*minidump.Result, error)

type cachedSummary struct {
	mod     time.Time
	size    int64
	summary *report.Summary
}

type Server struct {
	port    int
	outDir  string
	version string
	opts    minidump.Options
	log     log.FieldLogger
	dump    DumpFunc

	summaries map[string]cachedSummary // path -> decoded document
	mu        sync.RWMutex
}

// NewServer serves on stdio when port is 0 and over SSE otherwise. Dumps
// share opts, so their module identities are cached across requests.
func NewServer(port int, outDir, version string, opts minidump.Options, logger log.FieldLogger) *Server {
	return &Server{
		port:      port,
		outDir:    outDir,
		version:   version,
		opts:      opts,
		log:       logger,
		dump:      minidump.Dump,
		summaries: make(map[string]cachedSummary),
	}
}

func (s *Server) getSummary(path string) (*report.Summary, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	s.mu.RLock()
	if c, ok := s.summaries[path]; ok && c.mod.Equal(fi.ModTime()) && c.size == fi.Size() {
		s.mu.RUnlock()
		return c.summary, nil
	}
	s.mu.RUnlock()

	f, err := report.Load(path)
	if err != nil {
		return nil, errors.Errorf("failed to load %s: %w", path, err)
	}
	summary := report.Summarize(f)

	s.mu.Lock()
	s.summaries[path] = cachedSummary{mod: fi.ModTime(), size: fi.Size(), summary: summary}
	s.mu.Unlock()

	return summary, nil
}

// MCP builds the tool server.
func (s *Server) MCP() *server.MCPServer {
	srv := server.NewMCPServer("godump", s.version, server.WithToolCapabilities(false))
	srv.AddTool(mcp.NewTool("write_minidump",
		mcp.WithDescription("Suspend a running process and write a minidump of it"),
		mcp.WithNumber("pid", mcp.Required(), mcp.Description("Target process id")),
		mcp.WithString("out", mcp.Description("Output file or directory, defaults to the server's directory")),
		mcp.WithBoolean("compress", mcp.Description("zstd compress the document")),
		mcp.WithNumber("signal", mcp.Description("Signal number to record as the exception")),
		mcp.WithString("fault_addr", mcp.Description("Faulting address, decimal or 0x hex")),
		mcp.WithNumber("tid", mcp.Description("Thread the signal was delivered to, defaults to pid")),
	), s.handleWrite)
	srv.AddTool(mcp.NewTool("inspect_minidump",
		mcp.WithDescription("Decode a minidump into threads, modules, memory and process info"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of a .dmp or .dmp.zst file")),
	), s.handleInspect)
	return srv
}

func (s *Server) Start() error {
	srv := s.MCP()
	if s.port == 0 {
		return server.ServeStdio(srv)
	}
	addr := fmt.Sprintf(":%d", s.port)
	s.log.WithField("addr", addr).Info("serving mcp over sse")
	return server.NewSSEServer(srv).Start(addr)
}

type writeResult struct {
	Path      string   `json:"path"`
	Size      int      `json:"size"`
	Streams   int      `json:"streams"`
	Suspended int      `json:"suspended,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

func crashFromArgs(args map[string]any, pid int) (*minidump.CrashContext, error) {
	sig, ok := args["signal"]
	if !ok {
		return nil, nil
	}
	signal, err := cast.ToUint32E(sig)
	if err != nil {
		return nil, fmt.Errorf("invalid signal: %w", err)
	}
	crash := &minidump.CrashContext{Signal: signal, Tid: pid}
	if v, ok := args["fault_addr"]; ok {
		if crash.Address, err = cast.ToUint64E(v); err != nil {
			return nil, fmt.Errorf("invalid fault_addr: %w", err)
		}
	}
	if v, ok := args["tid"]; ok {
		if crash.Tid, err = cast.ToIntE(v); err != nil {
			return nil, fmt.Errorf("invalid tid: %w", err)
		}
	}
	return crash, nil
}

func (s *Server) handleWrite(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	pid, err := cast.ToIntE(args["pid"])
	if err != nil || pid <= 0 {
		return mcp.NewToolResultError(fmt.Sprintf("pid parameter is required: %v", args["pid"])), nil
	}
	compress := cast.ToBool(args["compress"])
	out := cast.ToString(args["out"])
	if out == "" {
		out = s.outDir
	}
	crash, err := crashFromArgs(args, pid)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	path := report.OutputPath(out, compress)
	logger := s.log.WithFields(log.Fields{"pid": pid, "path": path})
	w, err := report.Create(path, compress)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create output: %v", err)), nil
	}
	res, err := s.dump(ctx, pid, crash, s.opts, w)
	if cerr := w.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		logger.WithError(err).Warn("dump failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to dump process %d: %v", pid, err)), nil
	}

	wr := writeResult{Path: path, Size: len(res.Bytes), Streams: len(res.Directory)}
	if res.Suspend != nil {
		wr.Suspended = res.Suspend.Suspended
	}
	for _, warn := range res.Warnings {
		wr.Warnings = append(wr.Warnings, warn.String())
	}
	logger.WithField("warnings", len(wr.Warnings)).Info("dump written")
	return jsonResult(wr)
}

func (s *Server) handleInspect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := cast.ToString(request.GetArguments()["path"])
	if path == "" {
		return mcp.NewToolResultError("path parameter is required"), nil
	}
	summary, err := s.getSummary(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(summary)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
