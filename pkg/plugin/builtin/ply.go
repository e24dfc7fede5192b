package builtin

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/blospray-dev/blospray/pkg/device"
	"github.com/blospray-dev/blospray/pkg/plugin"
)

// initPLY sets up a geometry plugin that loads a triangle mesh from a PLY
// file.
func initPLY(def *plugin.Definition) error {
	def.Parameters = []plugin.Parameter{
		{Name: "file", Type: plugin.ParamString, Length: 1, Description: "PLY file to load"},
	}
	def.Generate = generatePLY
	return nil
}

func generatePLY(s *plugin.State) error {
	path := s.String("file", "")
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	mesh, err := readPLY(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	params := map[string]any{
		"vertex.position": mesh.positions,
		"index":           mesh.indices,
	}
	if mesh.normals != nil {
		params["vertex.normal"] = mesh.normals
	}
	if mesh.colors != nil {
		params["vertex.color"] = mesh.colors
	}
	geom, err := newCommitted(s.Device, device.KindGeometry, "mesh", params)
	if err != nil {
		return err
	}
	s.Geometry = geom
	s.Bound = boxBound(mesh.bounds)
	return nil
}

type plyProperty struct {
	name      string
	typ       string
	list      bool
	countType string
}

type plyElement struct {
	name  string
	count int
	props []plyProperty
}

type plyMesh struct {
	positions []mgl32.Vec3
	normals   []mgl32.Vec3
	colors    []mgl32.Vec4
	indices   []uint32
	bounds    [2]mgl32.Vec3
}

// readPLY parses ascii and binary little endian PLY files. Polygons are
// triangulated as fans.
func readPLY(r *bufio.Reader) (*plyMesh, error) {
	format, elements, err := readPLYHeader(r)
	if err != nil {
		return nil, err
	}
	var next func(typ string) (float64, error)
	switch format {
	case "ascii":
		next = asciiValues(r)
	case "binary_little_endian":
		next = func(typ string) (float64, error) { return readBinaryValue(r, typ) }
	default:
		return nil, fmt.Errorf("unsupported PLY format %q", format)
	}

	m := &plyMesh{}
	for _, el := range elements {
		switch el.name {
		case "vertex":
			if err := m.readVertices(el, next); err != nil {
				return nil, err
			}
		case "face":
			if err := m.readFaces(el, next); err != nil {
				return nil, err
			}
		default:
			for i := 0; i < el.count; i++ {
				for _, p := range el.props {
					if _, err := readProperty(p, next); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	if len(m.positions) == 0 || len(m.indices) == 0 {
		return nil, fmt.Errorf("PLY file has no triangles")
	}
	for _, i := range m.indices {
		if int(i) >= len(m.positions) {
			return nil, fmt.Errorf("face index %d out of range", i)
		}
	}
	return m, nil
}

func readPLYHeader(r *bufio.Reader) (string, []plyElement, error) {
	line, err := r.ReadString('\n')
	if err != nil || strings.TrimSpace(line) != "ply" {
		return "", nil, fmt.Errorf("not a PLY file")
	}
	var format string
	var elements []plyElement
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", nil, fmt.Errorf("reading PLY header: %w", err)
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		switch parts[0] {
		case "end_header":
			return format, elements, nil
		case "format":
			if len(parts) < 2 {
				return "", nil, fmt.Errorf("bad format line %q", line)
			}
			format = parts[1]
		case "element":
			if len(parts) < 3 {
				return "", nil, fmt.Errorf("bad element line %q", line)
			}
			n, err := strconv.Atoi(parts[2])
			if err != nil || n < 0 {
				return "", nil, fmt.Errorf("bad element count %q", parts[2])
			}
			elements = append(elements, plyElement{name: parts[1], count: n})
		case "property":
			if len(elements) == 0 {
				return "", nil, fmt.Errorf("property before element")
			}
			el := &elements[len(elements)-1]
			switch {
			case len(parts) >= 5 && parts[1] == "list":
				el.props = append(el.props, plyProperty{name: parts[4], typ: parts[3], list: true, countType: parts[2]})
			case len(parts) >= 3:
				el.props = append(el.props, plyProperty{name: parts[2], typ: parts[1]})
			default:
				return "", nil, fmt.Errorf("bad property line %q", line)
			}
		}
	}
}

func readProperty(p plyProperty, next func(string) (float64, error)) ([]float64, error) {
	if !p.list {
		v, err := next(p.typ)
		return []float64{v}, err
	}
	n, err := next(p.countType)
	if err != nil {
		return nil, err
	}
	out := make([]float64, int(n))
	for i := range out {
		if out[i], err = next(p.typ); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *plyMesh) readVertices(el plyElement, next func(string) (float64, error)) error {
	idx := map[string]int{}
	for i, p := range el.props {
		idx[p.name] = i
	}
	_, hasNormals := idx["nx"]
	_, hasColors := idx["red"]
	colorScale := 1.0
	if hasColors && el.props[idx["red"]].typ != "float" && el.props[idx["red"]].typ != "float32" {
		colorScale = 1.0 / 255
	}

	m.positions = make([]mgl32.Vec3, el.count)
	if hasNormals {
		m.normals = make([]mgl32.Vec3, el.count)
	}
	if hasColors {
		m.colors = make([]mgl32.Vec4, el.count)
	}
	inf := float32(math.Inf(1))
	m.bounds = [2]mgl32.Vec3{{inf, inf, inf}, {-inf, -inf, -inf}}

	values := make([]float64, len(el.props))
	get := func(name string) float32 {
		if i, ok := idx[name]; ok {
			return float32(values[i])
		}
		return 0
	}
	for v := 0; v < el.count; v++ {
		for i, p := range el.props {
			vals, err := readProperty(p, next)
			if err != nil {
				return fmt.Errorf("vertex %d: %w", v, err)
			}
			if len(vals) > 0 {
				values[i] = vals[0]
			}
		}
		pos := mgl32.Vec3{get("x"), get("y"), get("z")}
		m.positions[v] = pos
		for a := 0; a < 3; a++ {
			m.bounds[0][a] = min(m.bounds[0][a], pos[a])
			m.bounds[1][a] = max(m.bounds[1][a], pos[a])
		}
		if hasNormals {
			m.normals[v] = mgl32.Vec3{get("nx"), get("ny"), get("nz")}
		}
		if hasColors {
			alpha := float32(1)
			if _, ok := idx["alpha"]; ok {
				alpha = get("alpha") * float32(colorScale)
			}
			m.colors[v] = mgl32.Vec4{
				get("red") * float32(colorScale),
				get("green") * float32(colorScale),
				get("blue") * float32(colorScale),
				alpha,
			}
		}
	}
	return nil
}

func (m *plyMesh) readFaces(el plyElement, next func(string) (float64, error)) error {
	for f := 0; f < el.count; f++ {
		for _, p := range el.props {
			vals, err := readProperty(p, next)
			if err != nil {
				return fmt.Errorf("face %d: %w", f, err)
			}
			if !p.list || (p.name != "vertex_indices" && p.name != "vertex_index") {
				continue
			}
			for i := 1; i+1 < len(vals); i++ {
				m.indices = append(m.indices, uint32(vals[0]), uint32(vals[i]), uint32(vals[i+1]))
			}
		}
	}
	return nil
}

func asciiValues(r *bufio.Reader) func(string) (float64, error) {
	var fields []string
	return func(string) (float64, error) {
		for len(fields) == 0 {
			line, err := r.ReadString('\n')
			if err != nil && (err != io.EOF || line == "") {
				if err == io.EOF {
					return 0, io.ErrUnexpectedEOF
				}
				return 0, err
			}
			fields = strings.Fields(line)
		}
		v, err := strconv.ParseFloat(fields[0], 64)
		fields = fields[1:]
		return v, err
	}
}

var plyTypeSize = map[string]int{
	"char": 1, "int8": 1, "uchar": 1, "uint8": 1,
	"short": 2, "int16": 2, "ushort": 2, "uint16": 2,
	"int": 4, "int32": 4, "uint": 4, "uint32": 4, "float": 4, "float32": 4,
	"double": 8, "float64": 8,
}

func readBinaryValue(r io.Reader, typ string) (float64, error) {
	var buf [8]byte
	le := binary.LittleEndian
	size := plyTypeSize[typ]
	if size == 0 {
		return 0, fmt.Errorf("unknown PLY type %q", typ)
	}
	if _, err := io.ReadFull(r, buf[:size]); err != nil {
		return 0, err
	}
	switch typ {
	case "char", "int8":
		return float64(int8(buf[0])), nil
	case "uchar", "uint8":
		return float64(buf[0]), nil
	case "short", "int16":
		return float64(int16(le.Uint16(buf[:]))), nil
	case "ushort", "uint16":
		return float64(le.Uint16(buf[:])), nil
	case "int", "int32":
		return float64(int32(le.Uint32(buf[:]))), nil
	case "uint", "uint32":
		return float64(le.Uint32(buf[:])), nil
	case "float", "float32":
		return float64(math.Float32frombits(le.Uint32(buf[:]))), nil
	}
	return math.Float64frombits(le.Uint64(buf[:])), nil
}
