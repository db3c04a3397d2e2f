package renderer

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ML200/RoyalTracer-DX/scene"
	"github.com/ML200/RoyalTracer-DX/tracer"
	"github.com/ML200/RoyalTracer-DX/types"
	"github.com/go-gl/gl/v2.1/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
)

const (
	// Height in pixels for stacked series widgets
	stackedSeriesHeight uint32 = 20
)

const (
	leftMouseButton = iota
	rightMouseButton
	middleMouseButton
	numMouseButtons
)

// An interactive opengl-based renderer.
type interactiveGLRenderer struct {
	tracer  *tracer.Tracer
	camera  *scene.Camera
	options Options

	frameW, frameH uint32

	// opengl handles
	window    *glfw.Window
	fbTexture uint32
	texFbo    uint32

	// state
	lastCursorPos types.Vec2
	mousePressed  [numMouseButtons]bool
	renderTime    time.Duration

	// mutex for synchronizing updates
	sync.Mutex

	// Display options
	showUI       bool
	timingSeries *stackedSeries
}

// Create a new interactive opengl renderer for a loaded tracer. Must be
// called from the main OS thread.
func NewInteractive(tr *tracer.Tracer, camera *scene.Camera, opts Options) (Renderer, error) {
	trOpts := tr.Options()
	r := &interactiveGLRenderer{
		tracer:  tr,
		camera:  camera,
		options: opts,
		frameW:  trOpts.FrameW,
		frameH:  trOpts.FrameH,
	}

	err := r.initGL()
	if err != nil {
		r.teardownGL()
		return nil, err
	}

	r.initUI()
	return r, nil
}

// Close the window and release the attached tracer.
func (r *interactiveGLRenderer) Close() {
	r.teardownGL()
	r.tracer.Close()
}

func (r *interactiveGLRenderer) teardownGL() {
	if r.window != nil {
		r.window.SetShouldClose(true)
		r.window.Destroy()
		r.window = nil
	}
	glfw.Terminate()
}

func (r *interactiveGLRenderer) initGL() error {
	var err error
	if err = glfw.Init(); err != nil {
		return fmt.Errorf("failed to initialize glfw: %s", err.Error())
	}

	title := r.options.Title
	if title == "" {
		title = "royaltracer"
	}

	glfw.WindowHint(glfw.Resizable, glfw.False)
	glfw.WindowHint(glfw.ContextVersionMajor, 2)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	r.window, err = glfw.CreateWindow(int(r.frameW), int(r.frameH), title, nil, nil)
	if err != nil {
		return fmt.Errorf("could not create opengl window: %s", err.Error())
	}
	r.window.MakeContextCurrent()

	if err = gl.Init(); err != nil {
		return fmt.Errorf("could not init opengl: %s", err.Error())
	}

	// Setup texture for image data
	gl.GenTextures(1, &r.fbTexture)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, r.fbTexture)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(r.frameW), int32(r.frameH), 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)

	// Attach texture to FBO
	gl.GenFramebuffers(1, &r.texFbo)
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, r.texFbo)
	gl.FramebufferTexture2D(gl.READ_FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, r.fbTexture, 0)
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)

	// Bind event callbacks
	r.window.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
	r.window.SetKeyCallback(r.onKeyEvent)
	r.window.SetMouseButtonCallback(r.onMouseEvent)
	r.window.SetCursorPosCallback(r.onCursorPosEvent)
	r.window.SetScrollCallback(r.onScrollEvent)

	return nil
}

func (r *interactiveGLRenderer) Render() error {
	start := time.Now()
	defer func() { r.renderTime = time.Since(start) }()

	for !r.window.ShouldClose() {
		glfw.PollEvents()

		r.Lock()
		err := r.tracer.Frame(r.camera.ViewMat)
		if err == nil {
			err = r.present()
		}
		r.Unlock()
		if err != nil {
			return err
		}

		// Display frame timings
		if r.showUI {
			r.renderUI()
		}

		r.window.SwapBuffers()
	}
	return nil
}

// Upload the presented image and blit it to the window framebuffer.
func (r *interactiveGLRenderer) present() error {
	img, err := r.tracer.Snapshot()
	if err != nil {
		return err
	}

	gl.BindTexture(gl.TEXTURE_2D, r.fbTexture)
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(r.frameW), int32(r.frameH), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(img.Pix))

	// Image rows start at the top; flip while blitting.
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, r.texFbo)
	gl.BlitFramebuffer(0, 0, int32(r.frameW), int32(r.frameH), 0, int32(r.frameH), int32(r.frameW), 0, gl.COLOR_BUFFER_BIT, gl.LINEAR)
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)
	return nil
}

func (r *interactiveGLRenderer) Stats() FrameStats {
	return frameStats(r.tracer, r.renderTime)
}

func (r *interactiveGLRenderer) initUI() {
	// Setup ortho projection for UI bits
	gl.Disable(gl.DEPTH_TEST)
	gl.MatrixMode(gl.PROJECTION)
	gl.LoadIdentity()
	gl.Ortho(0, float64(r.frameW), float64(r.frameH), 0, -1, 1)
	gl.Viewport(0, 0, int32(r.frameW), int32(r.frameH))
	gl.MatrixMode(gl.MODELVIEW)
	gl.LoadIdentity()

	r.timingSeries = makeStackedSeries(len(reportedStates), int(r.frameW))
}

func (r *interactiveGLRenderer) renderUI() {
	timings := r.tracer.Stats().LastFrame.Timings
	for seriesIndex, state := range reportedStates {
		r.timingSeries.Append(seriesIndex, float32(timings.State(state).Microseconds()))
	}
	r.timingSeries.Render(r.frameH-stackedSeriesHeight, stackedSeriesHeight)
}

func (r *interactiveGLRenderer) onKeyEvent(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if action != glfw.Release {
		return
	}

	r.Lock()
	defer r.Unlock()

	switch key {
	case glfw.KeyEscape:
		r.window.SetShouldClose(true)
	case glfw.KeyC:
		r.tracer.CycleLayer()
	case glfw.KeySpace:
		r.tracer.ToggleRaster()
	case glfw.KeyTab:
		r.showUI = !r.showUI
		if r.showUI {
			r.timingSeries.Clear()
		} else {
			logger.Noticef("frame statistics\n%s", frameStats(r.tracer, 0).Table())
		}
	}
}

func (r *interactiveGLRenderer) onMouseEvent(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mod glfw.ModifierKey) {
	var buttonIndex int
	switch button {
	case glfw.MouseButtonLeft:
		buttonIndex = leftMouseButton
	case glfw.MouseButtonRight:
		buttonIndex = rightMouseButton
	case glfw.MouseButtonMiddle:
		buttonIndex = middleMouseButton
	default:
		return
	}

	r.mousePressed = [numMouseButtons]bool{}
	if action == glfw.Press {
		xPos, yPos := w.GetCursorPos()
		r.lastCursorPos[0], r.lastCursorPos[1] = float32(xPos), float32(yPos)
		r.mousePressed[buttonIndex] = true
	}
}

func (r *interactiveGLRenderer) onCursorPosEvent(w *glfw.Window, xPos, yPos float64) {
	newPos := types.Vec2{float32(xPos), float32(yPos)}
	dx, dy := newPos[0]-r.lastCursorPos[0], newPos[1]-r.lastCursorPos[1]
	r.lastCursorPos = newPos

	r.Lock()
	defer r.Unlock()

	switch {
	case r.mousePressed[leftMouseButton]:
		r.camera.Orbit(dx, dy)
	case r.mousePressed[rightMouseButton]:
		r.camera.Dolly(-dy)
	case r.mousePressed[middleMouseButton]:
		r.camera.Pan(dx, dy)
	}
}

func (r *interactiveGLRenderer) onScrollEvent(w *glfw.Window, xOff, yOff float64) {
	r.Lock()
	r.camera.Dolly(float32(yOff) * 10)
	r.Unlock()
}

type stackedSeries struct {
	series [][]float32
	colors []types.Vec3
}

func makeStackedSeries(numSeries, histCount int) *stackedSeries {
	s := &stackedSeries{
		series: make([][]float32, numSeries),
		colors: make([]types.Vec3, numSeries),
	}

	for sIndex := 0; sIndex < numSeries; sIndex++ {
		s.series[sIndex] = make([]float32, histCount)
		s.colors[sIndex] = types.Vec3{rand.Float32(), rand.Float32(), 1.0}
	}

	return s
}

// Clear series
func (s *stackedSeries) Clear() {
	histCount := len(s.series[0])
	for sIndex := 0; sIndex < len(s.series); sIndex++ {
		s.series[sIndex] = make([]float32, histCount)
	}
}

// Shift series values and append new value at the end.
func (s *stackedSeries) Append(seriesIndex int, val float32) {
	s.series[seriesIndex] = append(s.series[seriesIndex][1:], val)
}

func (s *stackedSeries) Render(rY, rHeight uint32) {
	gl.Begin(gl.LINES)
	for x := 0; x < len(s.series[0]); x++ {
		var sum float32 = 0
		var scale float32 = 1.0
		for seriesIndex := 0; seriesIndex < len(s.series); seriesIndex++ {
			sum += s.series[seriesIndex][x]
		}
		if sum > 0.0 {
			scale = float32(rHeight) / sum
		}

		var y float32 = float32(rY)
		gl.LineWidth(1.0)
		for seriesIndex := 0; seriesIndex < len(s.series); seriesIndex++ {
			sH := s.series[seriesIndex][x] * scale
			gl.Color3fv(&s.colors[seriesIndex][0])
			gl.Vertex2f(float32(x), y)
			gl.Vertex2f(float32(x), y+sH)
			y += sH
		}

	}
	gl.End()
}
