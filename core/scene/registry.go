package scene

import (
	"fmt"

	"vizdirector/core/levels"
)

// MinAlpha is the opacity under which a layer is not drawn at all.
const MinAlpha = 0.001

// RenderInput is everything a scene needs to draw one frame.
type RenderInput struct {
	Scene  Index
	Name   string
	Levels levels.Levels
	Time   float64 // seconds since the director started
	Width  int
	Height int
	DT     float64
	Alpha  float64 // applied by the host around the draw call
}

// Renderer draws one scene. Implementations are supplied by the host.
type Renderer interface {
	Render(in RenderInput)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(in RenderInput)

// Render calls f(in).
func (f RendererFunc) Render(in RenderInput) { f(in) }

type entry struct {
	name     string
	renderer Renderer
}

// Registry maps scene indices to renderers and display names. It is filled at
// startup and read-only afterwards.
type Registry struct {
	entries []entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a scene and returns its index.
func (r *Registry) Register(name string, renderer Renderer) Index {
	r.entries = append(r.entries, entry{name: name, renderer: renderer})
	return Index(len(r.entries) - 1)
}

// RegisterCatalog registers every name of a catalog with renderers built by
// factory.
func (r *Registry) RegisterCatalog(names []string, factory func(i Index, name string) Renderer) {
	for _, name := range names {
		idx := Index(len(r.entries))
		r.Register(name, factory(idx, name))
	}
}

// Count is the number of registered scenes.
func (r *Registry) Count() int {
	return len(r.entries)
}

// Name returns the display name of scene i.
func (r *Registry) Name(i Index) string {
	if int(i) < 0 || int(i) >= len(r.entries) {
		return fmt.Sprintf("Scene %d", int(i)+1)
	}
	return r.entries[i].name
}

// Names lists all display names in index order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}

// Render draws scene in.Scene unless its alpha is negligible. It reports
// whether the renderer was called.
func (r *Registry) Render(in RenderInput) bool {
	if in.Alpha <= MinAlpha {
		return false
	}
	if int(in.Scene) < 0 || int(in.Scene) >= len(r.entries) {
		return false
	}
	e := r.entries[in.Scene]
	if e.renderer == nil {
		return false
	}
	in.Name = e.name
	e.renderer.Render(in)
	return true
}

// RenderLayers draws the controller layers bottom first and returns the ones
// that were actually drawn.
func (r *Registry) RenderLayers(layers [2]Layer, base RenderInput) []Layer {
	var drawn []Layer
	for _, l := range layers {
		in := base
		in.Scene = l.Scene
		in.Alpha = l.Weight
		if r.Render(in) {
			drawn = append(drawn, l)
		}
	}
	return drawn
}
