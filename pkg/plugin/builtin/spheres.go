package builtin

import (
	"fmt"
	"math/rand/v2"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/blospray-dev/blospray/pkg/device"
	"github.com/blospray-dev/blospray/pkg/plugin"
)

const maxSpheres = 1 << 20

// initSpheres sets up a geometry plugin that fills the [-1,1] cube with
// spheres, on a regular lattice or at seeded random positions.
func initSpheres(def *plugin.Definition) error {
	def.Parameters = []plugin.Parameter{
		{Name: "count", Type: plugin.ParamInt, Length: 1, Description: "number of spheres"},
		{Name: "radius", Type: plugin.ParamFloat, Length: 1, Description: "sphere radius"},
		{Name: "seed", Type: plugin.ParamInt, Length: 1, Flags: plugin.FlagOptional, Description: "random placement seed"},
	}
	def.Generate = generateSpheres
	return nil
}

func generateSpheres(s *plugin.State) error {
	count := s.Int("count", 0)
	radius := s.Float("radius", 0.05)
	if count < 1 || count > maxSpheres {
		return fmt.Errorf("count %d out of range [1,%d]", count, maxSpheres)
	}
	if radius <= 0 {
		return fmt.Errorf("radius %g must be positive", radius)
	}

	centers := make([]mgl32.Vec3, count)
	colors := make([]mgl32.Vec4, count)
	if _, seeded := s.Param("seed"); seeded {
		rng := rand.New(rand.NewPCG(uint64(s.Int("seed", 0)), 0))
		for i := range centers {
			centers[i] = mgl32.Vec3{2*rng.Float32() - 1, 2*rng.Float32() - 1, 2*rng.Float32() - 1}
			colors[i] = mgl32.Vec4{rng.Float32(), rng.Float32(), rng.Float32(), 1}
		}
	} else {
		n := int(math32.Ceil(math32.Cbrt(float32(count))))
		for i := range centers {
			x, y, z := i%n, (i/n)%n, i/(n*n)
			c := mgl32.Vec3{lattice(x, n), lattice(y, n), lattice(z, n)}
			centers[i] = c
			colors[i] = mgl32.Vec4{(c[0] + 1) / 2, (c[1] + 1) / 2, (c[2] + 1) / 2, 1}
		}
	}

	geom, err := newCommitted(s.Device, device.KindGeometry, "sphere", map[string]any{
		"sphere.position": centers,
		"radius":          radius,
		"color":           colors,
	})
	if err != nil {
		return err
	}
	s.Geometry = geom
	r := mgl32.Vec3{radius, radius, radius}
	s.Bound = boxBound([2]mgl32.Vec3{mgl32.Vec3{-1, -1, -1}.Sub(r), mgl32.Vec3{1, 1, 1}.Add(r)})
	return nil
}

func lattice(i, n int) float32 {
	if n == 1 {
		return 0
	}
	return 2*float32(i)/float32(n-1) - 1
}
