// Package plugin hosts the data generators that add geometry, volumes and
// whole sub-scenes to a session.
//
// A plugin is addressed by (kind, name). Its module exposes an Initialize
// function that fills in a Definition: the parameter schema, whether the
// output depends on the renderer type, and the Generate entry point plus
// optional ClearData, Load and Unload hooks.
//
// Modules are found through Loaders. The Registry holds plugins linked into
// the binary; SharedObjectLoader opens Go plugins named
//
//	<dir>/<kind>_<name>.so
//
// which export
//
//	func Initialize(def *plugin.Definition) error
//
// The Host loads each (kind, name) once, validates parameters against the
// schema, calls Generate and decides whether an existing Instance can be
// reused for a new update.
package plugin
