package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/blospray-dev/blospray/internal/config"
	blerrors "github.com/blospray-dev/blospray/internal/errors"
	"github.com/blospray-dev/blospray/pkg/archive"
	"github.com/blospray-dev/blospray/pkg/binding"
	"github.com/blospray-dev/blospray/pkg/device"
	"github.com/blospray-dev/blospray/pkg/plugin"
	"github.com/blospray-dev/blospray/pkg/protocol"
	"github.com/blospray-dev/blospray/pkg/scene"
	"github.com/blospray-dev/blospray/pkg/transport"
)

// Options configures a Server.
type Options struct {
	// Config supplies the listen addresses, scratch directory, poll
	// interval and toggles. Nil means config.New().
	Config *config.Config

	// Device renders frames. Required.
	Device device.Device

	// Plugins is the plugin host. Required.
	Plugins *plugin.Host

	// Archive receives completed final frames. Optional.
	Archive archive.Store

	// Registry collects the server metrics. Nil creates a private registry.
	Registry *prometheus.Registry

	Logger *slog.Logger

	// Fatal is called on renderer errors when the abort toggle is set.
	// Nil logs the error and exits the process with status 1.
	Fatal func(error)
}

// Server accepts client connections and runs one session at a time
// against a scene that outlives individual connections.
type Server struct {
	cfg     *config.Config
	dev     device.Device
	plugins *plugin.Host
	store   archive.Store
	logger  *slog.Logger
	fatal   func(error)

	registry *prometheus.Registry
	metrics  *metrics
	tracer   trace.Tracer

	// sceneMu serializes access to the mirror and binder between the
	// session goroutine and state readers such as the admin server.
	sceneMu sync.Mutex
	mirror  *scene.Mirror
	binder  *binding.Binder

	mu     sync.Mutex
	active *session
	output *outputConn
	conns  sync.WaitGroup

	peakMemory atomic.Uint64
	status     atomic.Pointer[RenderStatus]

	quit     chan struct{}
	quitOnce sync.Once
}

// New creates the scene mirror and renderer binding on opts.Device.
func New(opts Options) (*Server, error) {
	if opts.Device == nil || opts.Plugins == nil {
		return nil, errors.New("server: device and plugin host are required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	s := &Server{
		cfg:      cfg,
		dev:      opts.Device,
		plugins:  opts.Plugins,
		store:    opts.Archive,
		logger:   logger.With("component", "server"),
		fatal:    opts.Fatal,
		registry: reg,
		metrics:  newMetrics(reg),
		tracer:   newTracer(),
		quit:     make(chan struct{}),
	}
	if s.fatal == nil {
		s.fatal = func(err error) {
			s.logger.Error("aborting on renderer error", "error", err)
			os.Exit(1)
		}
	}

	s.mirror = scene.New(opts.Plugins, logger)
	binder, err := binding.New(opts.Device, s.mirror, opts.Plugins, binding.Options{
		TransferFunctionEntries: cfg.TransferFunctionEntries,
		Logger:                  logger,
	})
	if err != nil {
		return nil, err
	}
	s.binder = binder
	s.dev.SetErrorHandler(s.rendererError)
	return s, nil
}

// Registry returns the registry holding the server metrics.
func (s *Server) Registry() *prometheus.Registry { return s.registry }

// Done is closed once a client sent QUIT.
func (s *Server) Done() <-chan struct{} { return s.quit }

func (s *Server) requestQuit() {
	s.quitOnce.Do(func() { close(s.quit) })
}

// rendererError handles errors reported by the device outside a frame
// result, and frame failures other than cancellation.
func (s *Server) rendererError(err error) {
	s.metrics.rendererErrors.Inc()
	s.logger.Error("renderer error", "error", err)
	if s.cfg.Toggles.AbortOnRendererError {
		s.fatal(blerrors.FromError(err, "B703"))
	}
}

// Serve accepts TCP connections on ln until ctx is canceled or a client
// sends QUIT. It waits for open connections to finish before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.quit:
			cancel()
		}
		ln.Close()
	}()

	s.logger.Info("render server listening", "addr", ln.Addr().String())
	for {
		nc, err := ln.Accept()
		if err != nil {
			stopped := ctx.Err() != nil
			cancel()
			s.conns.Wait()
			if stopped {
				return nil
			}
			return err
		}
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.HandleConn(ctx, transport.NewStreamConn(nc))
		}()
	}
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// HandleConn runs one client connection to completion. The first message
// decides the role of the connection: HELLO starts a session,
// REQUEST_RENDER_OUTPUT attaches a render-output socket to the active
// session, anything else is rejected.
func (s *Server) HandleConn(ctx context.Context, conn transport.Conn) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	logger := s.logger.With("remote", conn.RemoteAddr())

	var first protocol.ClientMessage
	if err := conn.ReceiveMessage(&first); err != nil {
		logger.Debug("connection closed before first message", "error", err)
		conn.Close()
		return
	}

	switch first.Type {
	case protocol.MsgHello:
		s.serveSession(ctx, conn, &first, logger)
	case protocol.MsgRequestRenderOutput:
		s.serveOutput(ctx, conn, logger)
	default:
		err := blerrors.New("B104").WithDetailf("got %s", first.Type)
		logger.Warn("rejecting connection", "error", err)
		conn.SendMessage(&protocol.HelloResult{Success: false, Message: err.Error()})
		conn.Close()
	}
}

func (s *Server) serveSession(ctx context.Context, conn transport.Conn, hello *protocol.ClientMessage, logger *slog.Logger) {
	defer conn.Close()

	if hello.UintValue != protocol.Version {
		err := blerrors.New("B101").WithDetailf("server speaks version %d, client sent %d", protocol.Version, hello.UintValue)
		logger.Warn("handshake failed", "error", err)
		conn.SendMessage(&protocol.HelloResult{Success: false, Message: err.Error()})
		return
	}

	ss := newSession(s, conn, logger)
	s.mu.Lock()
	busy := s.active != nil
	if !busy {
		s.active = ss
	}
	s.mu.Unlock()
	if busy {
		err := blerrors.New("B105").WithDetail("another client session is active")
		logger.Warn("handshake failed", "error", err)
		conn.SendMessage(&protocol.HelloResult{Success: false, Message: err.Error()})
		return
	}

	defer func() {
		s.mu.Lock()
		s.active = nil
		s.detachOutputLocked()
		s.mu.Unlock()
		s.status.Store(nil)
		s.metrics.activeSessions.Dec()
	}()
	s.metrics.sessionsTotal.Inc()
	s.metrics.activeSessions.Inc()

	if err := conn.SendMessage(&protocol.HelloResult{Success: true, Message: "blospray"}); err != nil {
		logger.Warn("handshake reply failed", "error", err)
		return
	}
	ss.logger.Info("session started")

	err := ss.run(ctx)
	switch {
	case err == nil:
		ss.logger.Info("session ended")
	case blerrors.Is(err, blerrors.KindTransport) || ctx.Err() != nil:
		ss.logger.Info("session closed", "reason", err)
	default:
		ss.logger.Warn("session aborted", "error", err)
	}
}

// outputConn is an attached render-output socket. done is closed when it
// is detached.
type outputConn struct {
	conn transport.Conn
	done chan struct{}
}

func (s *Server) serveOutput(ctx context.Context, conn transport.Conn, logger *slog.Logger) {
	out := &outputConn{conn: conn, done: make(chan struct{})}

	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		logger.Warn("rejecting render output connection", "error",
			blerrors.New("B103").WithDetail("REQUEST_RENDER_OUTPUT without an active session"))
		conn.Close()
		return
	}
	if s.output != nil {
		logger.Info("replacing render output connection")
	}
	s.detachOutputLocked()
	s.output = out
	s.mu.Unlock()
	s.metrics.renderOutputConn.Set(1)
	logger.Info("render output attached")

	select {
	case <-out.done:
	case <-ctx.Done():
		s.detachOutput(out)
	}
}

// renderOutput returns the attached render-output connection, if any.
func (s *Server) renderOutput() *outputConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output
}

// detachOutput closes out if it is still the attached output socket.
func (s *Server) detachOutput(out *outputConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.output == out {
		s.detachOutputLocked()
	}
}

func (s *Server) detachOutputLocked() {
	if s.output == nil {
		return
	}
	s.output.conn.Close()
	close(s.output.done)
	s.output = nil
	s.metrics.renderOutputConn.Set(0)
}

// Close releases the renderer binding and the scene. Call it after Serve
// has returned.
func (s *Server) Close() {
	s.sceneMu.Lock()
	defer s.sceneMu.Unlock()
	s.mirror.Clear(protocol.ClearAll)
	s.binder.Close()
}
