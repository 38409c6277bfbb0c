package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBusFire(t *testing.T) {
	bus := NewEventBus()
	var order []string

	first, second := "first", "second"
	assert.True(t, bus.Register(EVENT_CODE_RESIZED, first, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		order = append(order, listener.(string))
		assert.Equal(t, uint32(640), data.Data.U32[0])
		return false
	}))
	assert.True(t, bus.Register(EVENT_CODE_RESIZED, second, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		order = append(order, listener.(string))
		return true
	}))
	assert.False(t, bus.Register(EVENT_CODE_RESIZED, first, nil), "duplicate listener")

	var ctx EventContext
	ctx.Data.U32[0] = 640
	assert.True(t, bus.Fire(EVENT_CODE_RESIZED, nil, ctx))
	assert.Equal(t, []string{"first", "second"}, order)

	assert.False(t, bus.Fire(EVENT_CODE_KEY_PRESSED, nil, EventContext{}), "no listeners")
}

func TestEventBusHandledStopsPropagation(t *testing.T) {
	bus := NewEventBus()
	calls := 0
	handled := func(SystemEventCode, interface{}, interface{}, EventContext) bool { calls++; return true }
	bus.Register(EVENT_CODE_APPLICATION_QUIT, 1, handled)
	bus.Register(EVENT_CODE_APPLICATION_QUIT, 2, handled)

	assert.True(t, bus.Fire(EVENT_CODE_APPLICATION_QUIT, nil, EventContext{}))
	assert.Equal(t, 1, calls)
}

func TestEventBusUnregister(t *testing.T) {
	bus := NewEventBus()
	calls := 0
	bus.Register(EVENT_CODE_ASSET_CHANGED, "l", func(SystemEventCode, interface{}, interface{}, EventContext) bool { calls++; return false })

	assert.True(t, bus.Unregister(EVENT_CODE_ASSET_CHANGED, "l"))
	assert.False(t, bus.Unregister(EVENT_CODE_ASSET_CHANGED, "l"))
	bus.Fire(EVENT_CODE_ASSET_CHANGED, nil, EventContext{})
	assert.Zero(t, calls)

	bus.Register(EVENT_CODE_ASSET_CHANGED, "l", func(SystemEventCode, interface{}, interface{}, EventContext) bool { calls++; return false })
	bus.Shutdown()
	bus.Fire(EVENT_CODE_ASSET_CHANGED, nil, EventContext{})
	assert.Zero(t, calls)
}
