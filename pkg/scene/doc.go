// Package scene mirrors the client's scene: named data (host meshes and
// plugin instances) and named objects placing that data in the world.
//
// The Mirror owns the device handles of both. Data owns the handles its
// mesh or plugin produced; objects own the instance and light handles built
// for them and hold references to their data's handles through those. The
// kind recorded per data name is authoritative: installing data under a name
// always destroys what was there first.
//
// The Mirror does not create device objects itself. Callers build handles
// (see package binding) and hand them over with PutData and PutObject.
package scene
