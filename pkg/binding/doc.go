// Package binding translates the scene mirror and the client's settings
// into device objects: renderers, camera, world, materials, transfer
// functions, per-object instances and the framebuffer pyramid.
//
// A Binder is used from the session goroutine only. Device handles created
// while building an object are released by the binder as soon as their
// parent holds them, so each scene object owns exactly the instance and
// light references stored on it.
package binding
