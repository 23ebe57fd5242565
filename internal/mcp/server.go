// Package mcp provides an MCP (Model Context Protocol) server exposing the
// projection-matrix utilities and the simulator.
package mcp

import (
	"context"
	"log/slog"
	"os"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/clonesim/internal/constants"
	"github.com/nvandessel/clonesim/internal/ratelimit"
	"github.com/nvandessel/clonesim/internal/sim"
	"github.com/nvandessel/clonesim/internal/store"
)

// Server wraps the MCP SDK server.
type Server struct {
	server        *sdk.Server
	store         store.RunStore
	toolLimiters  ratelimit.ToolLimiters
	auditLogger   *AuditLogger
	logger        *slog.Logger
	events        sim.EventSink
	maxReplicates int
	threads       int
	archiveDir    string
}

// Config holds server configuration. Zero values fall back to defaults.
type Config struct {
	Name    string
	Version string

	// Store receives runs saved by clonesim_simulate and backs
	// clonesim_runs. Nil selects an in-memory store.
	Store store.RunStore

	// MaxReplicates caps n_reps of clonesim_simulate.
	MaxReplicates int

	// RatePerSecond and Burst bound clonesim_simulate.
	RatePerSecond float64
	Burst         int

	// Threads is the worker count for simulations; 0 means all CPUs.
	Threads int

	// AuditDir holds audit.jsonl. Empty disables auditing.
	AuditDir string

	// ArchiveDir confines clonesim_export. Empty disables the tool.
	ArchiveDir string

	Logger *slog.Logger
	Events sim.EventSink
}

// NewServer creates an MCP server with every clonesim tool registered.
func NewServer(cfg *Config) *Server {
	if cfg.Name == "" {
		cfg.Name = "clonesim"
	}
	if cfg.MaxReplicates <= 0 {
		cfg.MaxReplicates = constants.DefaultMCPMaxReplicates
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = constants.DefaultMCPRatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = constants.DefaultMCPBurst
	}
	if cfg.Store == nil {
		cfg.Store = store.NewInMemoryRunStore()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:        mcpServer,
		store:         cfg.Store,
		toolLimiters:  ratelimit.NewToolLimiters(cfg.RatePerSecond, cfg.Burst),
		logger:        logger,
		events:        cfg.Events,
		maxReplicates: cfg.MaxReplicates,
		threads:       cfg.Threads,
		archiveDir:    cfg.ArchiveDir,
	}
	if cfg.AuditDir != "" {
		s.auditLogger = NewAuditLogger(cfg.AuditDir)
	}

	s.registerTools()
	return s
}

// Run serves over stdio until the client disconnects, the context is
// cancelled or the process receives an interrupt.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			s.logger.Info("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Close releases the store and the audit log.
func (s *Server) Close() error {
	auditErr := s.auditLogger.Close()
	if err := s.store.Close(); err != nil {
		return err
	}
	return auditErr
}
