package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-restir/common"
	"github.com/Carmen-Shannon/oxy-restir/engine/hotreload"
	"github.com/Carmen-Shannon/oxy-restir/engine/logger"
	"github.com/Carmen-Shannon/oxy-restir/engine/orchestrator"
	"github.com/Carmen-Shannon/oxy-restir/engine/profiler"
	"github.com/Carmen-Shannon/oxy-restir/engine/renderer"
	"github.com/Carmen-Shannon/oxy-restir/engine/scene"
	"github.com/Carmen-Shannon/oxy-restir/engine/settings"
	"github.com/Carmen-Shannon/oxy-restir/engine/shaders"
	"github.com/Carmen-Shannon/oxy-restir/engine/window"
)

// engine implements the Engine interface.
// Coordinates the window thread and the render loop.
type engine struct {
	wg sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	errMu sync.Mutex
	err   error

	window    window.Window
	backend   renderer.Backend
	presenter renderer.Presenter
	vsync     bool

	store        settings.Store
	scene        scene.Scene
	orchestrator orchestrator.Orchestrator
	orchOptions  []orchestrator.OrchestratorBuilderOption

	settingsPath string
	watcher      hotreload.Watcher

	stats         *profiler.FrameStats
	statsInterval time.Duration

	renderCallback   func(frame uint64)
	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
	frameCount       uint64        // frames to render before quitting; 0 = until the window closes
}

// Engine hosts the frame loop: it owns the backend, the orchestrator and the optional window,
// turns window and file events into orchestrator requests, and presents every frame.
type Engine interface {
	// Window returns the underlying window, nil when headless.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Orchestrator returns the frame orchestrator.
	//
	// Returns:
	//   - orchestrator.Orchestrator: the orchestrator
	Orchestrator() orchestrator.Orchestrator

	// Store returns the live settings.
	//
	// Returns:
	//   - settings.Store: the settings store
	Store() settings.Store

	// SetRenderCallback registers the function called after each completed frame.
	//
	// Parameters:
	//   - callback: function receiving the number of completed frames
	SetRenderCallback(callback func(frame uint64))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Run renders until the window closes, the frame count is reached, ctx is cancelled or a
	// frame fails, then tears everything down. With a window it must be called from the thread
	// that created the window.
	//
	// Parameters:
	//   - ctx: stops the loop when cancelled
	//
	// Returns:
	//   - error: the fatal frame error, e.g. a wrapped renderer.ErrDeviceLost; nil on a clean exit
	Run(ctx context.Context) error

	// Quit signals the render loop to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates the backend, the shader factory and the orchestrator for sc. Without a
// window the engine runs headless on a RecordingBackend unless WithBackend supplies one.
//
// Parameters:
//   - store: the live settings
//   - sc: the scene to render
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
//   - error: a backend, shader or orchestrator creation error
func NewEngine(store settings.Store, sc scene.Scene, options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		quitChannel:   make(chan struct{}),
		store:         store,
		scene:         sc,
		statsInterval: time.Second,
	}
	for _, opt := range options {
		opt(e)
	}

	snap := store.Snapshot()
	logger.SetLevel(snap.Debug.LogLevel)

	if e.backend == nil {
		b, err := e.newBackend()
		if err != nil {
			return nil, err
		}
		e.backend = b
	}
	if p, ok := e.backend.(renderer.Presenter); ok && e.window != nil {
		e.presenter = p
	}

	factory, err := shaders.NewFactory(snap.ShaderDir)
	if err != nil {
		e.backend.Close()
		return nil, err
	}
	o, err := orchestrator.NewOrchestrator(e.backend, store, sc, factory, e.orchOptions...)
	if err != nil {
		e.backend.Close()
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	e.orchestrator = o
	e.stats = profiler.NewFrameStats(e.statsInterval, o.Ledger())

	if e.window != nil {
		e.bindWindow()
	}
	if err := e.watch(snap.ShaderDir); err != nil {
		logger.Warn("hot reload disabled: %v", err)
	}

	logger.Info("engine ready: %s, scene %q, %s", e.backend.Name(), sc.Name(), snap.OutputExtent())
	return e, nil
}

func (e *engine) newBackend() (renderer.Backend, error) {
	if e.window == nil {
		return renderer.NewBackend(renderer.BackendTypeRecording)
	}
	mode := renderer.PresentModeUncapped
	if e.vsync {
		mode = renderer.PresentModeVSync
	}
	return renderer.NewBackend(renderer.BackendTypeWGPU,
		renderer.WithSurface(e.window.SurfaceDescriptor(), e.window.Width(), e.window.Height()),
		renderer.WithPresentMode(mode),
	)
}

// bindWindow routes window events to orchestrator requests and matches the output resolution to
// the framebuffer.
func (e *engine) bindWindow() {
	resize := func(width, height int) {
		// minimized
		if width <= 0 || height <= 0 {
			return
		}
		e.orchestrator.RequestResize(uint32(width), uint32(height))
	}
	e.window.SetResizeCallback(resize)
	e.window.SetKeyDownCallback(e.handleKey)
	e.window.SetUpdateCallback(func() {
		select {
		case <-e.quitChannel:
			// the surface must outlive the last present
			e.wg.Wait()
			_ = e.window.Close()
		default:
		}
	})

	out := e.store.Snapshot().OutputExtent()
	if uint32(e.window.Width()) != out.Width || uint32(e.window.Height()) != out.Height {
		resize(e.window.Width(), e.window.Height())
	}
}

// handleKey applies the sample hotkeys. Settings toggles go through the store and take effect
// with the next snapshot.
func (e *engine) handleKey(keyCode uint32) {
	switch keyCode {
	case common.KeyF5:
		e.orchestrator.RequestShaderReload()
	case common.KeyI:
		e.orchestrator.RequestImportanceSamplingReset()
	case common.KeyD:
		e.store.Update(func(s *settings.Settings) {
			if s.Denoiser == settings.DenoiserOff {
				s.Denoiser = settings.DenoiserReLAX
			} else {
				s.Denoiser = settings.DenoiserOff
			}
		})
	case common.KeyF:
		e.store.Update(func(s *settings.Settings) {
			mode := settings.ResamplingFused
			if s.Lighting.DirectResampling == settings.ResamplingFused {
				mode = settings.ResamplingTemporalAndSpatial
			}
			s.Lighting.DirectResampling = mode
			s.Lighting.GIResampling = mode
		})
	case common.KeyP:
		logger.Info("\n%s", e.orchestrator.Report())
	}
}

// watch starts the file watcher for the settings file and the shader directory, if either is set.
func (e *engine) watch(shaderDir string) error {
	if e.settingsPath == "" && shaderDir == "" {
		return nil
	}
	w, err := hotreload.NewWatcher()
	if err != nil {
		return err
	}
	e.watcher = w

	if e.settingsPath != "" {
		reload := hotreload.ReloadSettings(e.settingsPath, e.store)
		if err := w.WatchFile(e.settingsPath, func() { _ = reload() }); err != nil {
			return err
		}
	}
	if shaderDir != "" {
		if err := w.WatchShaders(shaderDir, e.orchestrator.RequestShaderReload); err != nil {
			return err
		}
	}
	return nil
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Orchestrator() orchestrator.Orchestrator {
	return e.orchestrator
}

func (e *engine) Store() settings.Store {
	return e.store
}

func (e *engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			e.signalQuit()
		case <-e.quitChannel:
		}
	}()

	if e.window == nil {
		e.handleRender(ctx)
	} else {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.handleRender(ctx)
		}()
		e.window.ProcessMessages()
		e.signalQuit()
		e.wg.Wait()
	}

	e.release()
	return e.Err()
}

// Quit signals the render loop to stop.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// Err returns the error that stopped the render loop, if any.
func (e *engine) Err() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.err
}

// signalQuit closes the quit channel to signal all goroutines to exit.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

// fail records the first fatal error and stops the loop.
func (e *engine) fail(err error) {
	e.errMu.Lock()
	if e.err == nil {
		e.err = err
	}
	e.errMu.Unlock()
	if errors.Is(err, renderer.ErrDeviceLost) {
		logger.Error("device lost, shutting down: %v", err)
	} else {
		logger.Error("render loop stopped: %v", err)
	}
	e.signalQuit()
}

// handleRender runs the uncapped (or frame-limited) render loop: one RenderFrame, one present
// and one stats tick per iteration. Recovers from panics and reports them as the loop error.
func (e *engine) handleRender(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.fail(fmt.Errorf("render loop panic: %v", r))
		}
	}()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}
		if e.frameCount > 0 && e.orchestrator.Frame() >= e.frameCount {
			e.signalQuit()
			return
		}

		start := time.Now()
		if err := e.orchestrator.RenderFrame(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			e.fail(err)
			return
		}
		if e.presenter != nil {
			if err := e.presenter.Present(e.orchestrator.Output()); err != nil {
				if errors.Is(err, renderer.ErrDeviceLost) {
					e.fail(err)
					return
				}
				logger.Warn("present: %v", err)
			}
		}

		e.stats.Tick()
		if e.renderCallback != nil {
			e.renderCallback(e.orchestrator.Frame())
		}

		if e.renderFrameLimit > 0 {
			if remaining := e.renderFrameLimit - time.Since(start); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

// release tears down in reverse creation order.
func (e *engine) release() {
	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			logger.Warn("file watcher close: %v", err)
		}
	}
	if e.Err() == nil && e.store.Snapshot().Profiler.Enabled {
		logger.Info("final profile after %d frames:\n%s", e.orchestrator.Frame(), e.orchestrator.Report())
	}
	e.orchestrator.Release()
	e.backend.Close()
	if e.window != nil {
		_ = e.window.Close()
	}
}

// SetRenderCallback registers the function called after each completed frame.
func (e *engine) SetRenderCallback(callback func(frame uint64)) {
	e.renderCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}
