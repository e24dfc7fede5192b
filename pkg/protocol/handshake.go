package protocol

// Version is the protocol version the server speaks. A HELLO carrying any
// other value is rejected.
const Version uint32 = 2

// HelloResult is the reply to HELLO.
type HelloResult struct {
	Success bool
	Message string
}

// EncodeTo implements Message.
func (m *HelloResult) EncodeTo(e *Encoder) {
	e.WriteBool(m.Success)
	e.WriteString(m.Message)
}

// DecodeFrom implements Message.
func (m *HelloResult) DecodeFrom(d *Decoder) error {
	r := reader{d: d}
	m.Success = r.boolean()
	m.Message = r.str()
	return r.err
}
