package registry

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type position struct{ X, Y, Z float64 }
type velocity struct{ X, Y, Z float64 }
type tag struct{}

func TestRegistry_CreateAndEmplace(t *testing.T) {
	r := New()

	e := r.Create()
	require.True(t, r.Valid(e))
	require.NotEqual(t, Null, e)

	Emplace(r, e, position{X: 1})
	require.True(t, Has[position](r, e))

	p := Get[position](r, e)
	assert.Equal(t, 1.0, p.X)

	// Pointers are stable: mutation through the pointer persists
	p.Y = 2
	assert.Equal(t, 2.0, Get[position](r, e).Y)
}

func TestRegistry_TryGetMissing(t *testing.T) {
	r := New()
	e := r.Create()

	assert.Nil(t, TryGet[position](r, e))
	assert.False(t, Has[position](r, e))
}

func TestRegistry_GetMissingPanics(t *testing.T) {
	r := New()
	e := r.Create()

	assert.Panics(t, func() { Get[position](r, e) })
}

func TestRegistry_DuplicateEmplacePanics(t *testing.T) {
	r := New()
	e := r.Create()

	Emplace(r, e, position{})
	assert.Panics(t, func() { Emplace(r, e, position{}) })
}

func TestRegistry_Replace(t *testing.T) {
	r := New()
	e := r.Create()

	Emplace(r, e, position{X: 1})
	Replace(r, e, position{X: 5})
	assert.Equal(t, 5.0, Get[position](r, e).X)
}

func TestRegistry_Remove(t *testing.T) {
	r := New()
	e := r.Create()

	Emplace(r, e, position{})
	require.True(t, Remove[position](r, e))
	assert.False(t, Has[position](r, e))
	assert.False(t, Remove[position](r, e))
}

func TestRegistry_DestroyRemovesComponents(t *testing.T) {
	r := New()
	e := r.Create()
	Emplace(r, e, position{})
	Emplace(r, e, velocity{})

	r.Destroy(e)
	assert.False(t, r.Valid(e))
	assert.Equal(t, 0, Count[position](r))
	assert.Equal(t, 0, Count[velocity](r))
}

func TestRegistry_DestroyUnknownPanics(t *testing.T) {
	r := New()
	assert.Panics(t, func() { r.Destroy(Entity(99)) })
}

func TestRegistry_ViewOrderIsStable(t *testing.T) {
	r := New()

	var created []Entity
	for i := 0; i < 10; i++ {
		e := r.Create()
		Emplace(r, e, position{X: float64(i)})
		created = append(created, e)
	}

	var first, second []Entity
	View(r, func(e Entity, p *position) { first = append(first, e) })
	View(r, func(e Entity, p *position) { second = append(second, e) })

	assert.Equal(t, created, first)
	assert.Equal(t, first, second)
}

func TestRegistry_View2Intersection(t *testing.T) {
	r := New()

	both := r.Create()
	Emplace(r, both, position{})
	Emplace(r, both, velocity{})

	posOnly := r.Create()
	Emplace(r, posOnly, position{})

	var visited []Entity
	View2(r, func(e Entity, p *position, v *velocity) { visited = append(visited, e) })

	assert.Equal(t, []Entity{both}, visited)
}

func TestRegistry_Hooks(t *testing.T) {
	r := New()

	var constructed, destroyed []Entity
	OnConstruct[tag](r, func(reg *Registry, e Entity) { constructed = append(constructed, e) })
	OnDestroy[tag](r, func(reg *Registry, e Entity) { destroyed = append(destroyed, e) })

	e := r.Create()
	Emplace(r, e, tag{})
	require.Equal(t, []Entity{e}, constructed)

	Remove[tag](r, e)
	require.Equal(t, []Entity{e}, destroyed)

	// Destroy also fires hooks for remaining components
	e2 := r.Create()
	Emplace(r, e2, tag{})
	r.Destroy(e2)
	assert.Equal(t, []Entity{e, e2}, destroyed)
}

func TestRegistry_HookSeesComponent(t *testing.T) {
	r := New()

	OnConstruct[position](r, func(reg *Registry, e Entity) {
		assert.NotNil(t, TryGet[position](reg, e))
	})
	OnDestroy[position](r, func(reg *Registry, e Entity) {
		// The component is still present during the destroy hook
		assert.NotNil(t, TryGet[position](reg, e))
	})

	e := r.Create()
	Emplace(r, e, position{X: 7})
	Remove[position](r, e)
}

func TestRegistry_Clear(t *testing.T) {
	r := New()
	for i := 0; i < 5; i++ {
		Emplace(r, r.Create(), tag{})
	}

	require.Equal(t, 5, Count[tag](r))
	Clear[tag](r)
	assert.Equal(t, 0, Count[tag](r))
}

func TestRegistry_VisitComponents(t *testing.T) {
	r := New()
	e := r.Create()
	Emplace(r, e, position{X: 1})
	Emplace(r, e, velocity{Y: 2})

	count := 0
	r.VisitComponents(e, func(_ reflect.Type, v any) {
		count++
	})
	assert.Equal(t, 2, count)
}
