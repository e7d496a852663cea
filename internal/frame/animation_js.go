//go:build js

package frame

import "github.com/gopherjs/gopherjs/js"

// AnimationFrames schedules callbacks with the browser's
// requestAnimationFrame.
type AnimationFrames struct {
	next Handle
	ids  map[Handle]int
}

// NewAnimationFrames creates a browser-backed Scheduler.
func NewAnimationFrames() *AnimationFrames {
	return &AnimationFrames{ids: make(map[Handle]int)}
}

func (a *AnimationFrames) Schedule(cb func()) Handle {
	a.next++
	h := a.next
	id := js.Global.Call("requestAnimationFrame", func(float64) {
		delete(a.ids, h)
		cb()
	}).Int()
	a.ids[h] = id
	return h
}

func (a *AnimationFrames) Cancel(h Handle) {
	id, ok := a.ids[h]
	if !ok {
		return
	}
	delete(a.ids, h)
	js.Global.Call("cancelAnimationFrame", id)
}
