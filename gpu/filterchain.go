package gpu

import (
	"fmt"
	"sort"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu"
)

// MaxFilterParams is the number of float parameters packed into every
// filter's uniform buffer, matching the filter bind group's fixed layout.
const MaxFilterParams = 16

// Filter is one compiled compute shader stage in a channel or layer's
// filter chain, along with its named parameters.
type Filter struct {
	pipeline wgpu.ComputePipeline
	params   map[string]float32
}

// CompileFilter validates wgslSource with naga (catching malformed shaders
// when the channel starts rather than at first dispatch) and compiles it
// against the shared filter pipeline layout.
func CompileFilter(ctx *Context, label, wgslSource string, params map[string]float32) (*Filter, error) {
	module, err := naga.ParseWGSL(wgslSource)
	if err != nil {
		return nil, fmt.Errorf("gpu: filter %s: invalid WGSL: %w", label, err)
	}
	if !module.HasEntryPoint("main") {
		return nil, fmt.Errorf("gpu: filter %s: missing required \"main\" entry point", label)
	}
	if len(params) > MaxFilterParams {
		return nil, fmt.Errorf("gpu: filter %s: %d params exceeds max of %d", label, len(params), MaxFilterParams)
	}

	pipeline, err := ctx.CompileFilterPipeline(label, wgslSource)
	if err != nil {
		return nil, err
	}
	return &Filter{pipeline: pipeline, params: params}, nil
}

// packedParams lexicographically orders named parameters into the fixed
// params[16] slots the filter uniform layout expects, so the shader's
// binding order is deterministic regardless of the config's map iteration
// order.
func packedParams(params map[string]float32) [MaxFilterParams]float32 {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var packed [MaxFilterParams]float32
	for i, name := range names {
		if i >= MaxFilterParams {
			break
		}
		packed[i] = params[name]
	}
	return packed
}

// Close releases the compiled pipeline.
func (f *Filter) Close() {
	f.pipeline.Release()
}
