package systems

import (
	"encoding/binary"
	"math"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/nova/engine/core"
	"github.com/spaghettifunk/nova/engine/renderer/metadata"
)

const (
	TriangleVertexShader   = "shaders/triangle.vert.spv"
	TriangleFragmentShader = "shaders/triangle.frag.spv"
)

type triangleVertex struct {
	Position mgl32.Vec2
	Color    mgl32.Vec3
}

const triangleVertexStride = 5 * 4

var triangleVertices = []triangleVertex{
	{Position: mgl32.Vec2{-0.5, -0.25}, Color: mgl32.Vec3{1, 0, 0}},
	{Position: mgl32.Vec2{0, 0.5}, Color: mgl32.Vec3{0, 1, 0}},
	{Position: mgl32.Vec2{0.25, -0.1}, Color: mgl32.Vec3{0, 0, 1}},
}

var triangleVertexInput = metadata.VertexInput{
	Stride: triangleVertexStride,
	Attributes: []metadata.VertexAttribute{
		{Location: 0, Format: metadata.VertexFormatR32G32Sfloat, Offset: 0},
		{Location: 1, Format: metadata.VertexFormatR32G32B32Sfloat, Offset: 8},
	},
}

// TriangleDrawSystem draws a single coloured triangle. Its pipeline is rebuilt
// before the next draw whenever one of its shaders changes.
type TriangleDrawSystem struct {
	queue      metadata.Queue
	device     metadata.Device
	subpass    metadata.Subpass
	allocators metadata.Allocators
	shaders    ShaderSource

	vertexBuffer metadata.Buffer
	pipeline     metadata.GraphicsPipeline

	reload  atomic.Bool
	unwatch []func()
}

func NewTriangleDrawSystemFactory(shaders ShaderSource) metadata.DrawSystemFactory {
	return func(queue metadata.Queue, subpass metadata.Subpass, allocators metadata.Allocators) (metadata.DrawSystem, error) {
		return NewTriangleDrawSystem(queue, subpass, allocators, shaders)
	}
}

func NewTriangleDrawSystem(queue metadata.Queue, subpass metadata.Subpass, allocators metadata.Allocators, shaders ShaderSource) (*TriangleDrawSystem, error) {
	t := &TriangleDrawSystem{
		queue:      queue,
		device:     queue.Device(),
		subpass:    subpass,
		allocators: allocators,
		shaders:    shaders,
	}

	data := encodeVertices(triangleVertices)
	buffer, err := allocators.Memory.CreateBuffer(metadata.BufferCreateInfo{
		Size:        uint64(len(data)),
		Usage:       metadata.BufferUsageVertexBuffer,
		HostVisible: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create triangle vertex buffer")
	}
	if err := buffer.Write(0, data); err != nil {
		buffer.Destroy()
		return nil, errors.Wrap(err, "failed to upload triangle vertices")
	}
	t.vertexBuffer = buffer

	if t.pipeline, err = t.buildPipeline(); err != nil {
		buffer.Destroy()
		return nil, err
	}

	for _, name := range []string{TriangleVertexShader, TriangleFragmentShader} {
		t.unwatch = append(t.unwatch, shaders.Watch(name, func() { t.reload.Store(true) }))
	}
	return t, nil
}

func (t *TriangleDrawSystem) buildPipeline() (metadata.GraphicsPipeline, error) {
	vs, err := t.loadModule(metadata.ShaderStageVertex, TriangleVertexShader)
	if err != nil {
		return nil, err
	}
	defer vs.Destroy()
	fs, err := t.loadModule(metadata.ShaderStageFragment, TriangleFragmentShader)
	if err != nil {
		return nil, err
	}
	defer fs.Destroy()

	pipeline, err := t.device.CreateGraphicsPipeline(metadata.GraphicsPipelineCreateInfo{
		Subpass:        t.subpass,
		VertexShader:   vs,
		FragmentShader: fs,
		VertexInput:    triangleVertexInput,
		Topology:       metadata.PrimitiveTopologyTriangleList,
		CullMode:       metadata.FaceCullModeNone,
		DepthTest:      t.subpass.HasDepth(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create triangle pipeline")
	}
	return pipeline, nil
}

func (t *TriangleDrawSystem) loadModule(stage metadata.ShaderStage, name string) (metadata.ShaderModule, error) {
	code, err := t.shaders.LoadShader(name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s shader", stage)
	}
	module, err := t.device.CreateShaderModule(stage, code)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s shader module from %s", stage, name)
	}
	return module, nil
}

func (t *TriangleDrawSystem) reloadPipeline() {
	pipeline, err := t.buildPipeline()
	if err != nil {
		// keep drawing with the previous pipeline until the shaders are fixed
		core.LogError("triangle shader reload failed: %+v", err)
		return
	}
	// in-flight frames may still reference the old pipeline
	if err := t.device.WaitIdle(); err != nil {
		core.LogWarn("wait idle before pipeline swap failed: %s", err)
	}
	t.pipeline.Destroy()
	t.pipeline = pipeline
	core.LogInfo("triangle pipeline reloaded")
}

func (t *TriangleDrawSystem) Draw(viewport metadata.Extent2D) (metadata.CommandBuffer, error) {
	if t.reload.Swap(false) {
		t.reloadPipeline()
	}

	builder, err := t.allocators.CommandBuffers.AllocateSecondary(t.queue.FamilyIndex(), metadata.CommandBufferUsageOneTimeSubmit, t.subpass)
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate triangle command buffer")
	}
	builder.SetViewport(metadata.FullViewport(viewport))
	builder.SetScissor(metadata.Rect2D{Extent: viewport})
	builder.BindPipeline(t.pipeline)
	builder.BindVertexBuffers(0, t.vertexBuffer)
	builder.Draw(uint32(len(triangleVertices)), 1, 0, 0)
	return builder.Build()
}

func (t *TriangleDrawSystem) Destroy() {
	for _, cancel := range t.unwatch {
		cancel()
	}
	t.unwatch = nil
	t.pipeline.Destroy()
	t.vertexBuffer.Destroy()
}

func encodeVertices(vertices []triangleVertex) []byte {
	out := make([]byte, 0, len(vertices)*triangleVertexStride)
	for _, v := range vertices {
		for _, f := range []float32{v.Position[0], v.Position[1], v.Color[0], v.Color[1], v.Color[2]} {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
		}
	}
	return out
}
