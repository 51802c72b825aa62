package gpu

import (
	"sort"

	"github.com/gogpu/wgpu"

	"github.com/zsiec/mixer/media"
)

const workgroupSize = 16

// Layer pairs a composited layer with its optional per-layer filter chain,
// run on its texture before the layer is blended into the accumulator.
type Layer struct {
	media.Layer
	Filters []*Filter
}

// blendParams mirrors the WGSL Params struct byte-for-byte (16-byte
// aligned): opacity, width, height, and a padding word.
type blendParams struct {
	opacity float32
	width   uint32
	height  uint32
	_pad    uint32
}

type cachedTexture struct {
	texture       wgpu.Texture
	view          wgpu.TextureView
	width, height int
}

// Compositor is a per-channel GPU compositor: ping-pong accumulation
// textures, a lazy per-layer-index texture cache, a filter ping-pong pair
// (allocated lazily, only if a filter chain is ever used), and a staging
// buffer for GPU→CPU readback. Not shared across channels.
type Compositor struct {
	ctx *Context

	width, height int
	paddedRow     int

	ping, pong         wgpu.Texture
	pingView, pongView wgpu.TextureView

	filterA, filterB         wgpu.Texture
	filterAView, filterBView wgpu.TextureView
	filtersAllocated         bool

	staging wgpu.Buffer

	layerCache []*cachedTexture
}

const canvasTextureUsage = wgpu.TextureUsageTextureBinding | wgpu.TextureUsageStorageBinding |
	wgpu.TextureUsageCopySrc | wgpu.TextureUsageCopyDst

// alignUp256 rounds n up to the next multiple of 256, matching the
// row-pitch alignment GPU copy-to-buffer operations require.
func alignUp256(n int) int {
	return (n + 255) &^ 255
}

// NewCompositor allocates the ping-pong accumulator textures and staging
// buffer for a channel of the given output size. Filter ping-pong textures
// are allocated lazily on first use.
func NewCompositor(ctx *Context, width, height int) (*Compositor, error) {
	ping, pingView, err := newCanvasTexture(ctx.device, width, height, "ping")
	if err != nil {
		return nil, err
	}
	pong, pongView, err := newCanvasTexture(ctx.device, width, height, "pong")
	if err != nil {
		return nil, err
	}

	paddedRow := alignUp256(width * 4)
	staging, err := ctx.device.CreateBuffer(wgpu.BufferDescriptor{
		Label: "staging",
		Size:  uint64(paddedRow * height),
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
	})
	if err != nil {
		return nil, err
	}

	return &Compositor{
		ctx:       ctx,
		width:     width,
		height:    height,
		paddedRow: paddedRow,
		ping:      ping,
		pingView:  pingView,
		pong:      pong,
		pongView:  pongView,
		staging:   staging,
	}, nil
}

func newCanvasTexture(device wgpu.Device, width, height int, label string) (wgpu.Texture, wgpu.TextureView, error) {
	tex, err := device.CreateTexture(wgpu.TextureDescriptor{
		Label:  label,
		Width:  uint32(width),
		Height: uint32(height),
		Format: wgpu.TextureFormatRGBA8Unorm,
		Usage:  canvasTextureUsage,
	})
	if err != nil {
		return wgpu.Texture{}, wgpu.TextureView{}, err
	}
	return tex, tex.CreateView(), nil
}

func dispatchSize(n int) uint32 {
	return uint32((n + workgroupSize - 1) / workgroupSize)
}

// Composite runs the full per-frame GPU algorithm: upload layer textures,
// run per-layer filter chains, clear, ping-pong blend every visible layer,
// run the channel-level filter chain on the result, then read back into
// canvas. It returns false on any failure, signalling the caller to fall
// back to the CPU compositor for this tick; canvas is left unmodified in
// that case.
func (c *Compositor) Composite(canvas *media.Frame, layers []Layer, channelFilters []*Filter) bool {
	if canvas.Width != c.width || canvas.Height != c.height {
		c.ctx.log.Warn("gpu composite: canvas size mismatch", "canvas", canvas.Width, "compositor", c.width)
		return false
	}

	sorted := make([]Layer, len(layers))
	copy(sorted, layers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ZIndex < sorted[j].ZIndex })

	for i := range sorted {
		if sorted[i].Opacity <= 0 {
			continue
		}
		if err := c.uploadLayer(i, sorted[i].Frame); err != nil {
			c.ctx.log.Warn("gpu composite: upload layer failed", "error", err)
			return false
		}
		if len(sorted[i].Filters) > 0 {
			if err := c.runFilterChain(c.layerCache[i].view, sorted[i].Filters); err != nil {
				c.ctx.log.Warn("gpu composite: layer filter chain failed", "error", err)
				return false
			}
		}
	}

	dispatchX, dispatchY := dispatchSize(c.width), dispatchSize(c.height)

	encoder, err := c.ctx.device.CreateCommandEncoder(wgpu.CommandEncoderDescriptor{})
	if err != nil {
		c.ctx.log.Warn("gpu composite: create encoder failed", "error", err)
		return false
	}

	if err := c.encodeClear(encoder, dispatchX, dispatchY); err != nil {
		c.ctx.log.Warn("gpu composite: clear failed", "error", err)
		return false
	}

	finalView, err := c.encodeBlendChain(encoder, sorted, dispatchX, dispatchY)
	if err != nil {
		c.ctx.log.Warn("gpu composite: blend failed", "error", err)
		return false
	}

	if len(channelFilters) > 0 {
		// The channel filter chain reads and writes through filter_a/filter_b;
		// the accumulator is copied in, filtered, then copied back so the
		// readback step below always reads from ping/pong. The clear and
		// blend passes are submitted first so the chain sees this frame's
		// composite.
		cmd, err := encoder.Finish()
		if err != nil {
			c.ctx.log.Warn("gpu composite: encoder finish failed", "error", err)
			return false
		}
		c.ctx.queue.Submit(cmd)
		if err := c.runFilterChainOnAccumulator(encoder, finalView, channelFilters); err != nil {
			c.ctx.log.Warn("gpu composite: channel filter chain failed", "error", err)
			return false
		}
		encoder, err = c.ctx.device.CreateCommandEncoder(wgpu.CommandEncoderDescriptor{})
		if err != nil {
			c.ctx.log.Warn("gpu composite: create encoder failed", "error", err)
			return false
		}
	}

	encoder.CopyTextureToBuffer(wgpu.TexelCopyTextureInfo{Texture: finalView.Texture()}, wgpu.TexelCopyBufferInfo{
		Buffer: c.staging,
		Layout: wgpu.TexelCopyBufferLayout{BytesPerRow: uint32(c.paddedRow), RowsPerImage: uint32(c.height)},
	}, wgpu.Extent3D{Width: uint32(c.width), Height: uint32(c.height), DepthOrArrayLayers: 1})

	cmd, err := encoder.Finish()
	if err != nil {
		c.ctx.log.Warn("gpu composite: encoder finish failed", "error", err)
		return false
	}
	c.ctx.queue.Submit(cmd)

	if err := c.ctx.device.Poll(wgpu.PollTypeWaitIndefinitely); err != nil {
		c.ctx.log.Warn("gpu composite: device poll failed", "error", err)
		return false
	}

	return c.readback(canvas)
}

func (c *Compositor) encodeClear(encoder wgpu.CommandEncoder, dispatchX, dispatchY uint32) error {
	params := blendParams{width: uint32(c.width), height: uint32(c.height)}
	buf, err := c.ctx.device.CreateBufferInit(wgpu.BufferInitDescriptor{
		Contents: encodeBlendParams(params),
		Usage:    wgpu.BufferUsageUniform,
	})
	if err != nil {
		return err
	}

	bg, err := c.ctx.device.CreateBindGroup(wgpu.BindGroupDescriptor{
		Layout: c.ctx.clearLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: c.pingView},
			{Binding: 1, Buffer: buf},
		},
	})
	if err != nil {
		return err
	}

	pass := encoder.BeginComputePass()
	pass.SetPipeline(c.ctx.clearPipeline)
	pass.SetBindGroup(0, bg)
	pass.DispatchWorkgroups(dispatchX, dispatchY, 1)
	pass.End()
	return nil
}

// encodeBlendChain blends every visible layer into the ping-pong pair,
// toggling source/destination each time, and returns the view of whichever
// texture ended up holding the final accumulated result.
func (c *Compositor) encodeBlendChain(encoder wgpu.CommandEncoder, layers []Layer, dispatchX, dispatchY uint32) (wgpu.TextureView, error) {
	pingIsSrc := true

	for i := range layers {
		if layers[i].Opacity <= 0 {
			continue
		}

		params := blendParams{opacity: float32(layers[i].Opacity), width: uint32(c.width), height: uint32(c.height)}
		buf, err := c.ctx.device.CreateBufferInit(wgpu.BufferInitDescriptor{
			Contents: encodeBlendParams(params),
			Usage:    wgpu.BufferUsageUniform,
		})
		if err != nil {
			return wgpu.TextureView{}, err
		}

		srcView, dstView := c.pingView, c.pongView
		if !pingIsSrc {
			srcView, dstView = c.pongView, c.pingView
		}

		bg, err := c.ctx.device.CreateBindGroup(wgpu.BindGroupDescriptor{
			Layout: c.ctx.blendLayout,
			Entries: []wgpu.BindGroupEntry{
				{Binding: 0, TextureView: srcView},
				{Binding: 1, TextureView: c.layerCache[i].view},
				{Binding: 2, TextureView: dstView},
				{Binding: 3, Buffer: buf},
			},
		})
		if err != nil {
			return wgpu.TextureView{}, err
		}

		pass := encoder.BeginComputePass()
		pass.SetPipeline(c.ctx.blendPipeline)
		pass.SetBindGroup(0, bg)
		pass.DispatchWorkgroups(dispatchX, dispatchY, 1)
		pass.End()

		pingIsSrc = !pingIsSrc
	}

	if pingIsSrc {
		return c.pingView, nil
	}
	return c.pongView, nil
}

func encodeBlendParams(p blendParams) []byte {
	buf := make([]byte, 16)
	putFloat32(buf[0:4], p.opacity)
	putUint32(buf[4:8], p.width)
	putUint32(buf[8:12], p.height)
	return buf
}

func (c *Compositor) readback(canvas *media.Frame) bool {
	data, err := c.ctx.queue.ReadMappedBuffer(c.staging)
	if err != nil {
		c.ctx.log.Warn("gpu composite: readback failed, falling back to CPU", "error", err)
		return false
	}
	defer c.staging.Unmap()

	rowBytes := c.width * 4
	if c.paddedRow == rowBytes {
		copy(canvas.Pix, data[:len(canvas.Pix)])
		return true
	}
	for y := 0; y < c.height; y++ {
		srcOff := y * c.paddedRow
		dstOff := y * rowBytes
		copy(canvas.Pix[dstOff:dstOff+rowBytes], data[srcOff:srcOff+rowBytes])
	}
	return true
}

// uploadLayer resizes (on CPU, nearest-neighbor) if needed and writes the
// layer's pixels into its cached canvas-sized texture, recreating the
// texture if the canvas size has changed since it was last used.
func (c *Compositor) uploadLayer(index int, frame *media.Frame) error {
	for len(c.layerCache) <= index {
		c.layerCache = append(c.layerCache, nil)
	}

	cached := c.layerCache[index]
	if cached == nil || cached.width != c.width || cached.height != c.height {
		tex, err := c.ctx.device.CreateTexture(wgpu.TextureDescriptor{
			Label:  "layer",
			Width:  uint32(c.width),
			Height: uint32(c.height),
			Format: wgpu.TextureFormatRGBA8Unorm,
			Usage:  canvasTextureUsage,
		})
		if err != nil {
			return err
		}
		cached = &cachedTexture{texture: tex, view: tex.CreateView(), width: c.width, height: c.height}
		c.layerCache[index] = cached
	}

	upload := frame
	if frame.Width != c.width || frame.Height != c.height {
		upload = media.Resize(frame, c.width, c.height)
	}

	c.ctx.queue.WriteTexture(wgpu.TexelCopyTextureInfo{Texture: cached.texture}, upload.Pix,
		wgpu.TexelCopyBufferLayout{BytesPerRow: uint32(c.width * 4), RowsPerImage: uint32(c.height)},
		wgpu.Extent3D{Width: uint32(c.width), Height: uint32(c.height), DepthOrArrayLayers: 1})
	return nil
}

// ensureFilterTextures lazily allocates filter_a/filter_b the first time a
// filter chain (layer or channel level) is actually used.
func (c *Compositor) ensureFilterTextures() error {
	if c.filtersAllocated {
		return nil
	}
	a, aView, err := newCanvasTexture(c.ctx.device, c.width, c.height, "filter_a")
	if err != nil {
		return err
	}
	b, bView, err := newCanvasTexture(c.ctx.device, c.width, c.height, "filter_b")
	if err != nil {
		return err
	}
	c.filterA, c.filterAView = a, aView
	c.filterB, c.filterBView = b, bView
	c.filtersAllocated = true
	return nil
}

// runFilterChain copies srcView into filter_a, runs each filter alternating
// a→b/b→a, then copies the final result back into srcView.
func (c *Compositor) runFilterChain(srcView wgpu.TextureView, filters []*Filter) error {
	if err := c.ensureFilterTextures(); err != nil {
		return err
	}

	copyEncoder, err := c.ctx.device.CreateCommandEncoder(wgpu.CommandEncoderDescriptor{})
	if err != nil {
		return err
	}
	copyEncoder.CopyTextureToTexture(srcView.Texture(), c.filterA, extentOf(c.width, c.height))
	cmd, err := copyEncoder.Finish()
	if err != nil {
		return err
	}
	c.ctx.queue.Submit(cmd)

	aIsSrc := true
	dispatchX, dispatchY := dispatchSize(c.width), dispatchSize(c.height)

	for _, f := range filters {
		srcV, dstV := c.filterAView, c.filterBView
		if !aIsSrc {
			srcV, dstV = c.filterBView, c.filterAView
		}
		if err := c.dispatchFilter(f, srcV, dstV, dispatchX, dispatchY); err != nil {
			return err
		}
		aIsSrc = !aIsSrc
	}

	finalView := c.filterAView
	if !aIsSrc {
		finalView = c.filterBView
	}

	backEncoder, err := c.ctx.device.CreateCommandEncoder(wgpu.CommandEncoderDescriptor{})
	if err != nil {
		return err
	}
	backEncoder.CopyTextureToTexture(finalView.Texture(), srcView.Texture(), extentOf(c.width, c.height))
	cmd, err = backEncoder.Finish()
	if err != nil {
		return err
	}
	c.ctx.queue.Submit(cmd)
	return nil
}

// runFilterChainOnAccumulator applies the channel-level filter chain to
// whichever ping/pong texture currently holds the accumulated composite.
func (c *Compositor) runFilterChainOnAccumulator(_ wgpu.CommandEncoder, accumulator wgpu.TextureView, filters []*Filter) error {
	return c.runFilterChain(accumulator, filters)
}

func (c *Compositor) dispatchFilter(f *Filter, src, dst wgpu.TextureView, dispatchX, dispatchY uint32) error {
	buf, err := c.ctx.device.CreateBufferInit(wgpu.BufferInitDescriptor{
		Contents: encodeFilterUniform(f, c.width, c.height),
		Usage:    wgpu.BufferUsageUniform,
	})
	if err != nil {
		return err
	}

	bg, err := c.ctx.device.CreateBindGroup(wgpu.BindGroupDescriptor{
		Layout: c.ctx.filterLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: src},
			{Binding: 1, TextureView: dst},
			{Binding: 2, Buffer: buf},
		},
	})
	if err != nil {
		return err
	}

	encoder, err := c.ctx.device.CreateCommandEncoder(wgpu.CommandEncoderDescriptor{})
	if err != nil {
		return err
	}
	pass := encoder.BeginComputePass()
	pass.SetPipeline(f.pipeline)
	pass.SetBindGroup(0, bg)
	pass.DispatchWorkgroups(dispatchX, dispatchY, 1)
	pass.End()

	cmd, err := encoder.Finish()
	if err != nil {
		return err
	}
	c.ctx.queue.Submit(cmd)
	return nil
}

// encodeFilterUniform packs { time:f32, width:f32, height:f32,
// param_count:f32, params:f32[16] } into the byte layout the filter shader
// contract requires — every scalar field is a float, including width,
// height, and param_count. time is always 0: filters are stateless with
// respect to wall-clock time in this implementation, reserved for future
// per-frame animation use.
func encodeFilterUniform(f *Filter, width, height int) []byte {
	packed := packedParams(f.params)
	buf := make([]byte, 16+MaxFilterParams*4)
	putFloat32(buf[0:4], 0)
	putFloat32(buf[4:8], float32(width))
	putFloat32(buf[8:12], float32(height))
	putFloat32(buf[12:16], float32(len(f.params)))
	for i, v := range packed {
		putFloat32(buf[16+i*4:20+i*4], v)
	}
	return buf
}

func extentOf(width, height int) wgpu.Extent3D {
	return wgpu.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1}
}

// Close releases every texture, buffer, and cache entry owned by this
// compositor. It does not touch the shared Context.
func (c *Compositor) Close() {
	c.ping.Release()
	c.pingView.Release()
	c.pong.Release()
	c.pongView.Release()
	if c.filtersAllocated {
		c.filterA.Release()
		c.filterAView.Release()
		c.filterB.Release()
		c.filterBView.Release()
	}
	c.staging.Release()
	for _, cached := range c.layerCache {
		if cached != nil {
			cached.texture.Release()
			cached.view.Release()
		}
	}
}
