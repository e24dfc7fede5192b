package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	blerrors "github.com/blospray-dev/blospray/internal/errors"
	"github.com/blospray-dev/blospray/pkg/device"
	"github.com/blospray-dev/blospray/pkg/protocol"
	"github.com/blospray-dev/blospray/pkg/transport"
)

// idleWait bounds a readability poll while no frame is in flight.
const idleWait = 50 * time.Millisecond

// renderMode is the state of the render loop.
type renderMode int

const (
	modeIdle renderMode = iota
	modeFinal
	modeInteractive
)

func (m renderMode) String() string {
	switch m {
	case modeFinal:
		return "final"
	case modeInteractive:
		return "interactive"
	default:
		return "idle"
	}
}

// session is the controller of one primary connection. All of its fields
// are owned by the goroutine running run.
type session struct {
	srv    *Server
	conn   transport.Conn
	id     string
	logger *slog.Logger

	mode       renderMode
	sample     int
	factor     int
	samples    int
	updateRate int

	fut        device.Future
	fb         device.FrameBuffer
	frameStart time.Time
	frameSpan  trace.Span

	// finals counts completed final renders, numbering archive keys.
	finals int
}

func newSession(s *Server, conn transport.Conn, logger *slog.Logger) *session {
	id := newSessionID()
	return &session{
		srv:    s,
		conn:   conn,
		id:     id,
		logger: logger.With("session_id", id),
		factor: 1,
	}
}

func newSessionID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return time.Now().UTC().Format("20060102T150405.000000000")
	}
	return hex.EncodeToString(b)
}

// run is the cooperative render loop. It alternates between completing
// finished frames and reading one command at a time, and returns nil after
// BYE or QUIT.
func (ss *session) run(ctx context.Context) error {
	defer func() {
		ss.drain(false)
		ss.publish()
	}()
	ss.publish()

	for {
		if ss.fut != nil && ss.fut.IsReady() {
			if err := ss.frameFinished(ctx); err != nil {
				return err
			}
			continue
		}

		wait := idleWait
		if ss.fut != nil {
			wait = ss.srv.cfg.PollInterval
		}
		ok, err := ss.conn.Readable(wait)
		if err != nil {
			return err
		}
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}

		var msg protocol.ClientMessage
		if err := ss.conn.ReceiveMessage(&msg); err != nil {
			return err
		}
		done, err := ss.dispatch(ctx, &msg)
		if err != nil || done {
			return err
		}
	}
}

// dispatch drains the render for mutating commands and runs the handler.
// Errors it returns close the connection.
func (ss *session) dispatch(ctx context.Context, msg *protocol.ClientMessage) (bool, error) {
	if ss.srv.cfg.Toggles.DumpClientMessages {
		ss.logger.Info("client message",
			"type", msg.Type,
			"uint_value", msg.UintValue,
			"uint_value2", msg.UintValue2,
			"uint_value3", msg.UintValue3,
			"string_value", msg.StringValue,
			"string_value2", msg.StringValue2,
		)
	}
	if !msg.Type.Valid() {
		err := blerrors.New("B102").WithDetailf("unknown message type %d", uint32(msg.Type))
		ss.reject(ctx, msg, err)
		return false, err
	}
	ss.srv.metrics.commandsTotal.WithLabelValues(msg.Type.String()).Inc()

	if msg.Type.Mutating() && ss.fut != nil {
		ss.logger.Debug("draining render before command", "type", msg.Type)
		if err := ss.drain(true); err != nil {
			return false, err
		}
	}

	ctx, span := ss.startCommandSpan(ctx, msg)
	done, err := ss.handle(ctx, msg)
	if blerrors.Is(err, blerrors.KindProtocol) {
		ss.failProtocol(ctx, msg, err)
	}
	endSpan(span, err)
	ss.publish()
	return done, err
}

// reject reports a command that failed without affecting the connection.
func (ss *session) reject(ctx context.Context, msg *protocol.ClientMessage, err error) {
	kind := blerrors.KindOf(err)
	if kind == "" {
		kind = "internal"
	}
	ss.srv.metrics.commandErrors.WithLabelValues(msg.Type.String(), string(kind)).Inc()
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	ss.logger.Warn("command rejected", "type", msg.Type, "kind", kind, "error", err)
}

// failProtocol answers a command whose framing could not be read with its
// failed result, when the command has one. The connection is closed after.
func (ss *session) failProtocol(ctx context.Context, msg *protocol.ClientMessage, err error) {
	ss.reject(ctx, msg, err)
	var res protocol.Message
	switch msg.Type {
	case protocol.MsgUpdatePluginInstance:
		res = &protocol.GenerateFunctionResult{Success: false, Message: err.Error()}
	case protocol.MsgQueryBound:
		res = &protocol.QueryBoundResult{Success: false, Message: err.Error()}
	default:
		return
	}
	if sendErr := ss.conn.SendMessage(res); sendErr != nil {
		ss.logger.Debug("failed result not delivered", "type", msg.Type, "error", sendErr)
	}
}

// drain cancels the in-flight frame, waits for it and releases it. The
// full-resolution framebuffer and the one of the current reduction factor
// are recreated before their next frame. With notify the client receives the CANCELED result.
func (ss *session) drain(notify bool) error {
	if ss.fut == nil {
		return nil
	}
	fut := ss.fut
	fut.Cancel()
	fut.Wait()
	err := fut.Err()
	fut.Release()
	ss.fut, ss.fb = nil, nil
	if err == nil || errors.Is(err, device.ErrCanceled) {
		endSpan(ss.frameSpan, nil)
	} else {
		endSpan(ss.frameSpan, err)
	}
	ss.frameSpan = nil

	ss.srv.sceneMu.Lock()
	ss.srv.binder.MarkFramebufferForRecreation(1, ss.factor)
	ss.srv.sceneMu.Unlock()

	ss.srv.metrics.cancelsTotal.Inc()
	mode := ss.mode
	ss.mode = modeIdle
	ss.logger.Info("render canceled", "mode", mode, "sample", ss.sample, "reduction_factor", ss.factor)
	if !notify {
		return nil
	}
	return ss.sendResult(mode, ss.result(protocol.RenderCanceled), nil)
}

// RenderStatus is the render loop state exposed in state dumps.
type RenderStatus struct {
	SessionID       string `json:"session_id,omitempty"`
	Mode            string `json:"render_mode"`
	Sample          int    `json:"current_sample"`
	Samples         int    `json:"samples_requested"`
	ReductionFactor int    `json:"reduction_factor"`
	UpdateRate      int    `json:"update_rate"`
}

// publish makes the render status visible to other goroutines.
func (ss *session) publish() {
	st := &RenderStatus{
		SessionID:       ss.id,
		Mode:            ss.mode.String(),
		Sample:          ss.sample,
		Samples:         ss.samples,
		ReductionFactor: ss.factor,
		UpdateRate:      ss.updateRate,
	}
	ss.srv.status.Store(st)
}
