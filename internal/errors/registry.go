package errors

import "sort"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Kind    Kind
	Message string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// Protocol (B1xx)
	"B101": {Kind: KindProtocol, Message: "Protocol version mismatch"},
	"B102": {Kind: KindProtocol, Message: "Malformed message"},
	"B103": {Kind: KindProtocol, Message: "Unexpected message"},
	"B104": {Kind: KindProtocol, Message: "HELLO required before other messages"},
	"B105": {Kind: KindProtocol, Message: "Server busy"},

	// Transport (B2xx)
	"B201": {Kind: KindTransport, Message: "Connection closed by peer"},
	"B202": {Kind: KindTransport, Message: "Socket read failed"},
	"B203": {Kind: KindTransport, Message: "Socket write failed"},

	// Parameter (B3xx)
	"B301": {Kind: KindParameter, Message: "Missing required plugin parameter"},
	"B302": {Kind: KindParameter, Message: "Plugin parameter has wrong type"},
	"B303": {Kind: KindParameter, Message: "Plugin parameter has wrong length"},
	"B304": {Kind: KindParameter, Message: "Plugin parameters are not a JSON object"},

	// Plugin (B4xx)
	"B401": {Kind: KindPlugin, Message: "Plugin module not found"},
	"B402": {Kind: KindPlugin, Message: "Plugin initialize symbol missing"},
	"B403": {Kind: KindPlugin, Message: "Plugin initialization failed"},
	"B404": {Kind: KindPlugin, Message: "Plugin generate failed"},
	"B405": {Kind: KindPlugin, Message: "Plugin produced wrong payload"},
	"B406": {Kind: KindPlugin, Message: "Unknown plugin kind"},

	// Binding (B5xx)
	"B501": {Kind: KindBinding, Message: "Object links to missing scene data"},
	"B502": {Kind: KindBinding, Message: "Object links to incompatible scene data"},
	"B503": {Kind: KindBinding, Message: "Unknown object type"},

	// Invariant (B6xx)
	"B601": {Kind: KindInvariant, Message: "Mesh has no vertices or triangles"},
	"B602": {Kind: KindInvariant, Message: "Mesh array sizes disagree"},
	"B603": {Kind: KindInvariant, Message: "Triangle index out of range"},
	"B604": {Kind: KindInvariant, Message: "Invalid transfer function"},
	"B605": {Kind: KindInvariant, Message: "Invalid framebuffer size"},
	"B606": {Kind: KindInvariant, Message: "Invalid render request"},
	"B607": {Kind: KindInvariant, Message: "Unknown renderer type"},
	"B608": {Kind: KindInvariant, Message: "Unknown material type"},

	// Renderer (B7xx)
	"B701": {Kind: KindRenderer, Message: "Renderer object creation failed"},
	"B702": {Kind: KindRenderer, Message: "Renderer commit failed"},
	"B703": {Kind: KindRenderer, Message: "Frame rendering failed"},

	// Config (B8xx)
	"B801": {Kind: KindConfig, Message: "Failed to read configuration"},
	"B802": {Kind: KindConfig, Message: "Invalid configuration value"},
}

// GetAllCodes returns all registered error codes in sorted order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
