package tracer

import (
	"math"
	"time"
	"unsafe"

	"github.com/ML200/RoyalTracer-DX/tracer/device"
	"github.com/ML200/RoyalTracer-DX/types"
)

// CameraData is the per-frame camera constant buffer layout.
type CameraData struct {
	View     types.Mat4
	Proj     types.Mat4
	ViewInv  types.Mat4
	ProjInv  types.Mat4
	PrevView types.Mat4
	PrevProj types.Mat4

	// Seconds since the stream was created.
	Time float32
}

// CameraStream uploads the camera matrices once per frame and keeps the
// previous frame matrices for temporal reprojection.
type CameraStream struct {
	buffer device.Buffer
	proj   types.Mat4

	data   CameraData
	primed bool

	clock func() time.Time
	start time.Time
}

// Allocate a camera stream using the projection parameters in opts.
func NewCameraStream(dev device.Device, opts Options) (*CameraStream, error) {
	size := device.AlignUp(uint64(unsafe.Sizeof(CameraData{})), device.ConstantBufferAlignment)
	buf, err := dev.NewBuffer("cameraParams", int(size), device.UploadHeap, device.StateGenericRead)
	if err != nil {
		return nil, err
	}

	return &CameraStream{
		buffer: buf,
		proj:   types.Perspective4(opts.FovYRadians(), opts.Aspect(), opts.Near, opts.Far),
		clock:  time.Now,
		start:  time.Now(),
	}, nil
}

// Update the stream with a new view matrix. The matrices uploaded by the
// previous call become the previous frame matrices; on the first call they
// match the current ones.
func (s *CameraStream) Update(view types.Mat4) error {
	prevView, prevProj := view, s.proj
	if s.primed {
		prevView, prevProj = s.data.View, s.data.Proj
	}

	elapsed := float32(s.clock().Sub(s.start).Seconds())
	if s.primed && elapsed <= s.data.Time {
		elapsed = math.Nextafter32(s.data.Time, float32(math.Inf(1)))
	}

	s.data = CameraData{
		View:     view,
		Proj:     s.proj,
		ViewInv:  view.Inv(),
		ProjInv:  s.proj.Inv(),
		PrevView: prevView,
		PrevProj: prevProj,
		Time:     elapsed,
	}
	s.primed = true

	return device.WriteSlice(s.buffer, []CameraData{s.data}, 0)
}

// Get the data uploaded by the last update.
func (s *CameraStream) Data() CameraData {
	return s.data
}

func (s *CameraStream) Projection() types.Mat4 {
	return s.proj
}

func (s *CameraStream) Buffer() device.Buffer {
	return s.buffer
}

func (s *CameraStream) Release() {
	if s.buffer != nil {
		s.buffer.Release()
		s.buffer = nil
	}
}
