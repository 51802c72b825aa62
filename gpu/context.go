// Package gpu implements the optional GPU-accelerated compositor backend.
// One Context is created at process start and shared by every channel; each
// channel owns its own Compositor (textures, buffers, filter pipelines)
// built against that shared Context.
package gpu

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/wgpu"
)

//go:embed shaders/blend.wgsl
var blendShaderSource string

// ErrUnavailable is returned by NewContext when no compatible GPU adapter
// could be found. Callers should fall back to the CPU compositor rather
// than treat this as fatal.
var ErrUnavailable = errors.New("gpu: no compatible adapter")

// Context holds the device, queue, and the compute pipelines shared by every
// channel's Compositor: clear, blend, and the bind group layouts needed to
// compile per-channel filter pipelines.
type Context struct {
	log   *slog.Logger
	adapterName string

	device wgpu.Device
	queue  wgpu.Queue

	clearPipeline wgpu.ComputePipeline
	clearLayout   wgpu.BindGroupLayout

	blendPipeline wgpu.ComputePipeline
	blendLayout   wgpu.BindGroupLayout

	filterLayout         wgpu.BindGroupLayout
	filterPipelineLayout wgpu.PipelineLayout
}

// NewContext requests a high-performance adapter and device, then compiles
// the clear and blend compute pipelines. It returns ErrUnavailable (wrapped)
// if no adapter or device could be obtained, so the caller can demote to
// the CPU compositor without treating GPU absence as a startup failure.
func NewContext(log *slog.Logger) (*Context, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "gpu")

	instance := wgpu.NewInstance(wgpu.InstanceDescriptor{})
	defer instance.Release()

	adapter, err := instance.RequestAdapter(wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		log.Warn("no GPU adapter found, compositor will fall back to CPU", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer adapter.Release()
	log = log.With("adapter", adapter.Info().Name)

	device, queue, err := adapter.RequestDevice(wgpu.DeviceDescriptor{Label: "mixer"})
	if err != nil {
		log.Warn("GPU device creation failed, compositor will fall back to CPU", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	shader, err := device.CreateShaderModule(wgpu.ShaderModuleDescriptor{
		Label:  "blend.wgsl",
		Source: blendShaderSource,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: compile blend shader: %w", err)
	}
	defer shader.Release()

	clearLayout, clearPipeline, err := buildClearPipeline(device, shader)
	if err != nil {
		return nil, err
	}
	blendLayout, blendPipeline, err := buildBlendPipeline(device, shader)
	if err != nil {
		return nil, err
	}
	filterLayout, filterPipelineLayout, err := buildFilterLayout(device)
	if err != nil {
		return nil, err
	}

	log.Info("GPU compositor initialized")
	return &Context{
		log:                  log,
		adapterName:          adapter.Info().Name,
		device:               device,
		queue:                queue,
		clearPipeline:        clearPipeline,
		clearLayout:          clearLayout,
		blendPipeline:        blendPipeline,
		blendLayout:          blendLayout,
		filterLayout:         filterLayout,
		filterPipelineLayout: filterPipelineLayout,
	}, nil
}

func buildClearPipeline(device wgpu.Device, shader wgpu.ShaderModule) (wgpu.BindGroupLayout, wgpu.ComputePipeline, error) {
	layout, err := device.CreateBindGroupLayout(wgpu.BindGroupLayoutDescriptor{
		Label: "clear_bgl",
		Entries: []wgpu.BindGroupLayoutEntry{
			storageTextureEntry(0),
			uniformBufferEntry(1),
		},
	})
	if err != nil {
		return wgpu.BindGroupLayout{}, wgpu.ComputePipeline{}, fmt.Errorf("gpu: clear bind group layout: %w", err)
	}

	pipelineLayout, err := device.CreatePipelineLayout(wgpu.PipelineLayoutDescriptor{
		Label:            "clear_pl",
		BindGroupLayouts: []wgpu.BindGroupLayout{layout},
	})
	if err != nil {
		return wgpu.BindGroupLayout{}, wgpu.ComputePipeline{}, fmt.Errorf("gpu: clear pipeline layout: %w", err)
	}

	pipeline, err := device.CreateComputePipeline(wgpu.ComputePipelineDescriptor{
		Label:      "clear",
		Layout:     pipelineLayout,
		Module:     shader,
		EntryPoint: "clear",
	})
	if err != nil {
		return wgpu.BindGroupLayout{}, wgpu.ComputePipeline{}, fmt.Errorf("gpu: clear pipeline: %w", err)
	}
	return layout, pipeline, nil
}

func buildBlendPipeline(device wgpu.Device, shader wgpu.ShaderModule) (wgpu.BindGroupLayout, wgpu.ComputePipeline, error) {
	layout, err := device.CreateBindGroupLayout(wgpu.BindGroupLayoutDescriptor{
		Label: "blend_bgl",
		Entries: []wgpu.BindGroupLayoutEntry{
			sampledTextureEntry(0),
			sampledTextureEntry(1),
			storageTextureEntry(2),
			uniformBufferEntry(3),
		},
	})
	if err != nil {
		return wgpu.BindGroupLayout{}, wgpu.ComputePipeline{}, fmt.Errorf("gpu: blend bind group layout: %w", err)
	}

	pipelineLayout, err := device.CreatePipelineLayout(wgpu.PipelineLayoutDescriptor{
		Label:            "blend_pl",
		BindGroupLayouts: []wgpu.BindGroupLayout{layout},
	})
	if err != nil {
		return wgpu.BindGroupLayout{}, wgpu.ComputePipeline{}, fmt.Errorf("gpu: blend pipeline layout: %w", err)
	}

	pipeline, err := device.CreateComputePipeline(wgpu.ComputePipelineDescriptor{
		Label:      "blend",
		Layout:     pipelineLayout,
		Module:     shader,
		EntryPoint: "blend",
	})
	if err != nil {
		return wgpu.BindGroupLayout{}, wgpu.ComputePipeline{}, fmt.Errorf("gpu: blend pipeline: %w", err)
	}
	return layout, pipeline, nil
}

// buildFilterLayout builds the bind group layout shared by every compiled
// filter pipeline: an input texture, an output storage texture, and a
// uniform buffer carrying time/w/h/param_count/params[16].
func buildFilterLayout(device wgpu.Device) (wgpu.BindGroupLayout, wgpu.PipelineLayout, error) {
	layout, err := device.CreateBindGroupLayout(wgpu.BindGroupLayoutDescriptor{
		Label: "filter_bgl",
		Entries: []wgpu.BindGroupLayoutEntry{
			sampledTextureEntry(0),
			storageTextureEntry(1),
			uniformBufferEntry(2),
		},
	})
	if err != nil {
		return wgpu.BindGroupLayout{}, wgpu.PipelineLayout{}, fmt.Errorf("gpu: filter bind group layout: %w", err)
	}

	pipelineLayout, err := device.CreatePipelineLayout(wgpu.PipelineLayoutDescriptor{
		Label:            "filter_pl",
		BindGroupLayouts: []wgpu.BindGroupLayout{layout},
	})
	if err != nil {
		return wgpu.BindGroupLayout{}, wgpu.PipelineLayout{}, fmt.Errorf("gpu: filter pipeline layout: %w", err)
	}
	return layout, pipelineLayout, nil
}

func storageTextureEntry(binding uint32) wgpu.BindGroupLayoutEntry {
	return wgpu.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: wgpu.ShaderStageCompute,
		StorageTexture: &wgpu.StorageTextureBindingLayout{
			Access: wgpu.StorageTextureAccessWriteOnly,
			Format: wgpu.TextureFormatRGBA8Unorm,
		},
	}
}

func sampledTextureEntry(binding uint32) wgpu.BindGroupLayoutEntry {
	return wgpu.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: wgpu.ShaderStageCompute,
		Texture:    &wgpu.TextureBindingLayout{SampleType: wgpu.TextureSampleTypeUnfilterableFloat},
	}
}

func uniformBufferEntry(binding uint32) wgpu.BindGroupLayoutEntry {
	return wgpu.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: wgpu.ShaderStageCompute,
		Buffer:     &wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform},
	}
}

// CompileFilterPipeline compiles a user-supplied compute shader against the
// shared filter bind group layout. The shader must export a `main` entry
// point matching the filter contract's binding layout.
func (c *Context) CompileFilterPipeline(label, wgslSource string) (wgpu.ComputePipeline, error) {
	module, err := c.device.CreateShaderModule(wgpu.ShaderModuleDescriptor{
		Label:  label,
		Source: wgslSource,
	})
	if err != nil {
		return wgpu.ComputePipeline{}, fmt.Errorf("gpu: compile filter shader %s: %w", label, err)
	}
	defer module.Release()

	pipeline, err := c.device.CreateComputePipeline(wgpu.ComputePipelineDescriptor{
		Label:      label,
		Layout:     c.filterPipelineLayout,
		Module:     module,
		EntryPoint: "main",
	})
	if err != nil {
		return wgpu.ComputePipeline{}, fmt.Errorf("gpu: create filter pipeline %s: %w", label, err)
	}
	return pipeline, nil
}

// AdapterName reports the name of the selected GPU adapter, for status
// reporting.
func (c *Context) AdapterName() string {
	return c.adapterName
}

// Close releases the device and its compiled pipelines. The context must
// not be used afterward, and no channel Compositor built against it may
// outlive this call.
func (c *Context) Close() {
	c.blendPipeline.Release()
	c.blendLayout.Release()
	c.clearPipeline.Release()
	c.clearLayout.Release()
	c.filterLayout.Release()
	c.filterPipelineLayout.Release()
	c.queue.Release()
	c.device.Release()
}
