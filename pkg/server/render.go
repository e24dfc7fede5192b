package server

import (
	"bytes"
	"context"
	"fmt"
	"math/bits"
	"os"
	"path/filepath"
	"runtime"
	"time"

	blerrors "github.com/blospray-dev/blospray/internal/errors"
	"github.com/blospray-dev/blospray/pkg/archive"
	"github.com/blospray-dev/blospray/pkg/binding"
	"github.com/blospray-dev/blospray/pkg/exr"
	"github.com/blospray-dev/blospray/pkg/protocol"
	"github.com/blospray-dev/blospray/pkg/transport"
)

// floorPowerOfTwo returns the largest power of two not above v, or 1.
func floorPowerOfTwo(v uint32) int {
	if v <= 1 {
		return 1
	}
	return 1 << (bits.Len32(v) - 1)
}

// startRender begins a final or interactive render. Samples below one are
// treated as one.
func (ss *session) startRender(ctx context.Context, msg *protocol.ClientMessage) error {
	switch msg.StringValue {
	case protocol.RenderModeFinal:
		ss.mode = modeFinal
		ss.factor = 1
		ss.updateRate = max(int(msg.UintValue2), 1)
	case protocol.RenderModeInteractive:
		ss.mode = modeInteractive
		ss.factor = floorPowerOfTwo(msg.UintValue2)
		ss.updateRate = 1
	default:
		ss.reject(ctx, msg, blerrors.New("B102").WithDetailf("unknown render mode %q", msg.StringValue))
		return nil
	}
	ss.samples = max(int(msg.UintValue), 1)
	ss.sample = 1

	if ss.srv.cfg.Toggles.DumpServerState {
		if state, err := ss.srv.StateJSON(); err == nil {
			ss.logger.Info("server state before render", "state", string(state))
		}
	}
	ss.logger.Info("render started", "mode", ss.mode, "samples", ss.samples,
		"reduction_factor", ss.factor, "update_rate", ss.updateRate)
	return ss.startFrame(ctx, true)
}

// startFrame issues one asynchronous sample at the current reduction
// factor. reset discards what the framebuffer accumulated so far. A frame
// that cannot be started ends the render with CANCELED.
func (ss *session) startFrame(ctx context.Context, reset bool) error {
	err := ss.withScene(func(b *binding.Binder) error {
		fb, err := b.Framebuffer(ss.factor)
		if err != nil {
			return err
		}
		if reset {
			fb.ResetAccumulation()
		}
		fut, fb, err := b.RenderFrame(ss.factor)
		if err != nil {
			return err
		}
		ss.fut, ss.fb = fut, fb
		return nil
	})
	if err != nil {
		if blerrors.Is(err, blerrors.KindRenderer) {
			ss.srv.rendererError(err)
		}
		ss.logger.Warn("render could not start", "sample", ss.sample, "reduction_factor", ss.factor, "error", err)
		return ss.stop(protocol.RenderCanceled)
	}
	ss.frameStart = time.Now()
	ss.frameSpan = ss.startFrameSpan(ctx)
	ss.publish()
	return nil
}

// stop ends the render and sends a terminal result.
func (ss *session) stop(t protocol.RenderResultType) error {
	mode := ss.mode
	ss.mode = modeIdle
	ss.publish()
	return ss.sendResult(mode, ss.result(t), nil)
}

// frameFinished publishes a completed frame and issues the next one.
func (ss *session) frameFinished(ctx context.Context) error {
	fut, fb := ss.fut, ss.fb
	ss.fut, ss.fb = nil, nil
	err := fut.Err()
	fut.Release()
	endSpan(ss.frameSpan, err)
	ss.frameSpan = nil

	if err != nil {
		ss.srv.rendererError(blerrors.New("B703").
			WithDetailf("sample %d at reduction %d", ss.sample, ss.factor).Wrap(err))
		ss.withScene(func(b *binding.Binder) error {
			b.MarkFramebufferForRecreation(ss.factor)
			return nil
		})
		return ss.stop(protocol.RenderCanceled)
	}

	mode := ss.mode.String()
	ss.srv.metrics.framesTotal.WithLabelValues(mode).Inc()
	ss.srv.metrics.frameDuration.WithLabelValues(mode).Observe(time.Since(ss.frameStart).Seconds())

	res := ss.result(protocol.RenderFrame)
	res.Width, res.Height = uint32(fb.Width()), uint32(fb.Height())
	res.Variance = fb.Variance()

	var payload []byte
	switch {
	case ss.mode == modeInteractive:
		payload = protocol.Float32Bytes(fb.Pixels())
	case ss.sample%ss.updateRate == 0 || ss.sample == ss.samples:
		name, data, err := ss.writeFinalFrame(fb.Width(), fb.Height(), fb.Pixels())
		if err != nil {
			ss.logger.Error("writing framebuffer file failed", "sample", ss.sample, "error", err)
			break
		}
		res.FileName, payload = name, data
	}
	res.FileSize = uint64(len(payload))

	if err := ss.sendResult(ss.mode, res, payload); err != nil {
		return err
	}
	ss.logger.Debug("frame sent", "sample", ss.sample, "reduction_factor", ss.factor,
		"width", res.Width, "height", res.Height, "variance", res.Variance, "bytes", len(payload))

	last := ss.factor == 1 && ss.sample >= ss.samples
	if last && ss.mode == modeFinal && payload != nil {
		ss.archiveFinal(ctx, payload)
	}
	return ss.advance(ctx)
}

// advance moves to the next sample or the next finer reduction factor, or
// finishes the render with DONE.
func (ss *session) advance(ctx context.Context) error {
	switch {
	case ss.factor > 1:
		ss.factor /= 2
		ss.sample = 1
		return ss.startFrame(ctx, true)
	case ss.sample < ss.samples:
		ss.sample++
		return ss.startFrame(ctx, false)
	}
	ss.logger.Info("render done", "mode", ss.mode, "samples", ss.samples)
	return ss.stop(protocol.RenderDone)
}

// result fills the common fields of a RenderResult.
func (ss *session) result(t protocol.RenderResultType) *protocol.RenderResult {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	peak := ss.srv.notePeakMemory(ms.HeapAlloc)
	return &protocol.RenderResult{
		Type:            t,
		Sample:          uint32(ss.sample),
		ReductionFactor: uint32(ss.factor),
		MemoryUsage:     ms.HeapAlloc,
		PeakMemoryUsage: peak,
	}
}

// notePeakMemory records usage and returns the highest value seen.
func (s *Server) notePeakMemory(usage uint64) uint64 {
	for {
		peak := s.peakMemory.Load()
		if usage <= peak {
			return peak
		}
		if s.peakMemory.CompareAndSwap(peak, usage) {
			return usage
		}
	}
}

// sendResult writes res and its payload. Results of interactive renders
// go to the render-output connection when one is attached; if it fails it
// is detached and the primary connection is used instead.
func (ss *session) sendResult(mode renderMode, res *protocol.RenderResult, payload []byte) error {
	if mode == modeInteractive {
		if out := ss.srv.renderOutput(); out != nil {
			err := sendWithPayload(out.conn, res, payload)
			if err == nil {
				ss.srv.metrics.framePayload.Add(float64(len(payload)))
				return nil
			}
			ss.logger.Warn("render output connection failed", "error", err)
			ss.srv.detachOutput(out)
		}
	}
	if err := sendWithPayload(ss.conn, res, payload); err != nil {
		return err
	}
	ss.srv.metrics.framePayload.Add(float64(len(payload)))
	return nil
}

func sendWithPayload(conn transport.Conn, res *protocol.RenderResult, payload []byte) error {
	if err := conn.SendMessage(res); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	return conn.SendBytes(payload)
}

// writeFinalFrame writes the framebuffer as an EXR file in the scratch
// directory and returns its base name and contents. The file is removed
// afterwards unless the keep toggle is set.
func (ss *session) writeFinalFrame(width, height int, pix []float32) (string, []byte, error) {
	cfg := ss.srv.cfg
	name := fmt.Sprintf("blospray-final-%04d.exr", ss.sample)
	path := filepath.Join(cfg.ScratchDir, name)

	compression := exr.None
	if cfg.Toggles.CompressFramebuffer {
		compression = exr.ZIP
	}
	if _, err := exr.WriteFile(path, exr.Image{Width: width, Height: height, Pix: pix}, compression); err != nil {
		os.Remove(path)
		return "", nil, err
	}
	data, err := os.ReadFile(path)
	if !cfg.Toggles.KeepFramebufferFiles {
		os.Remove(path)
	}
	if err != nil {
		return "", nil, err
	}
	return name, data, nil
}

// archiveFinal stores the last frame of a final render. Failures are
// logged only.
func (ss *session) archiveFinal(ctx context.Context, data []byte) {
	if ss.srv.store == nil {
		return
	}
	ss.finals++
	key := archive.FinalKey(ss.id, ss.finals)
	loc, err := ss.srv.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		ss.srv.metrics.archivedFrames.WithLabelValues("error").Inc()
		ss.logger.Error("archiving final frame failed", "key", key, "error", err)
		return
	}
	ss.srv.metrics.archivedFrames.WithLabelValues("ok").Inc()
	ss.logger.Info("final frame archived", "location", loc)
}
