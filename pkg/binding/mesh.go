package binding

import (
	"github.com/go-gl/mathgl/mgl32"

	blerrors "github.com/blospray-dev/blospray/internal/errors"
	"github.com/blospray-dev/blospray/pkg/device"
	"github.com/blospray-dev/blospray/pkg/protocol"
	"github.com/blospray-dev/blospray/pkg/scene"
)

// MeshBuffers are the raw arrays following a MeshData header.
type MeshBuffers struct {
	Vertices  []float32
	Normals   []float32
	Colors    []float32
	Triangles []uint32
}

// BuildMesh validates a host mesh and creates its geometry.
func (b *Binder) BuildMesh(md *protocol.MeshData, buf MeshBuffers) (device.Object, error) {
	nv, nt := int(md.NumVertices), int(md.NumTriangles)
	if nv == 0 || nt == 0 {
		return nil, blerrors.New("B601").WithDetailf("%d vertices, %d triangles", nv, nt)
	}
	switch {
	case len(buf.Vertices) != 3*nv:
		return nil, blerrors.New("B602").WithDetailf("%d vertex values for %d vertices", len(buf.Vertices), nv)
	case md.HasNormals() && len(buf.Normals) != 3*nv:
		return nil, blerrors.New("B602").WithDetailf("%d normal values for %d vertices", len(buf.Normals), nv)
	case md.HasVertexColors() && len(buf.Colors) != 4*nv:
		return nil, blerrors.New("B602").WithDetailf("%d color values for %d vertices", len(buf.Colors), nv)
	case len(buf.Triangles) != 3*nt:
		return nil, blerrors.New("B602").WithDetailf("%d indices for %d triangles", len(buf.Triangles), nt)
	}
	for i, idx := range buf.Triangles {
		if int(idx) >= nv {
			return nil, blerrors.New("B603").WithDetailf("index %d at %d, mesh has %d vertices", idx, i, nv)
		}
	}

	params := map[string]any{
		"vertex.position": vec3s(buf.Vertices),
		"index":           buf.Triangles,
	}
	if md.HasNormals() {
		params["vertex.normal"] = vec3s(buf.Normals)
	}
	if md.HasVertexColors() {
		colors := make([]mgl32.Vec4, nv)
		for i := range colors {
			colors[i] = mgl32.Vec4{buf.Colors[4*i], buf.Colors[4*i+1], buf.Colors[4*i+2], buf.Colors[4*i+3]}
		}
		params["vertex.color"] = colors
	}
	return b.newCommitted(device.KindGeometry, "mesh", params)
}

func vec3s(v []float32) []mgl32.Vec3 {
	out := make([]mgl32.Vec3, len(v)/3)
	for i := range out {
		out[i] = mgl32.Vec3{v[3*i], v[3*i+1], v[3*i+2]}
	}
	return out
}

// UpdateMesh installs a host mesh under name and rebuilds the objects that
// link to it.
func (b *Binder) UpdateMesh(name string, md *protocol.MeshData, buf MeshBuffers) error {
	geom, err := b.BuildMesh(md, buf)
	if err != nil {
		return err
	}
	linked := b.mirror.PutData(&scene.Data{
		Name:         name,
		Kind:         scene.DataHostMesh,
		Mesh:         geom,
		NumVertices:  int(md.NumVertices),
		NumTriangles: int(md.NumTriangles),
	})
	return b.rebuild(linked)
}
