package builtin

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/blospray-dev/blospray/pkg/plugin"
)

// initProcedural sets up a volume plugin sampling the Marschner-Lobb test
// signal on a regular grid spanning [-1,1]^3.
func initProcedural(def *plugin.Definition) error {
	def.Parameters = []plugin.Parameter{
		{Name: "dimensions", Type: plugin.ParamInt, Length: 3, Description: "grid resolution"},
		{Name: "fm", Type: plugin.ParamFloat, Length: 1, Flags: plugin.FlagOptional, Description: "modulation frequency"},
		{Name: "alpha", Type: plugin.ParamFloat, Length: 1, Flags: plugin.FlagOptional, Description: "modulation amplitude"},
	}
	def.Generate = generateProcedural
	return nil
}

func marschnerLobb(x, y, z, fm, alpha float64) float64 {
	r := math.Sqrt(x*x + y*y)
	rho := math.Cos(2 * math.Pi * fm * math.Cos(math.Pi*r/2))
	return (1 - math.Sin(math.Pi*z/2) + alpha*(1+rho)) / (2 * (1 + alpha))
}

func generateProcedural(s *plugin.State) error {
	dims, err := dimensions(s)
	if err != nil {
		return err
	}
	fm := float64(s.Float("fm", 6))
	alpha := float64(s.Float("alpha", 0.25))

	values := make([]float32, dims[0]*dims[1]*dims[2])
	coord := func(i, n int) float64 { return 2*float64(i)/float64(n-1) - 1 }
	for z := 0; z < dims[2]; z++ {
		for y := 0; y < dims[1]; y++ {
			for x := 0; x < dims[0]; x++ {
				v := marschnerLobb(coord(x, dims[0]), coord(y, dims[1]), coord(z, dims[2]), fm, alpha)
				values[x+dims[0]*(y+dims[1]*z)] = float32(v)
			}
		}
	}

	origin := mgl32.Vec3{-1, -1, -1}
	spacing := mgl32.Vec3{
		2 / float32(dims[0]-1),
		2 / float32(dims[1]-1),
		2 / float32(dims[2]-1),
	}
	vol, dataRange, err := newGrid(s.Device, dims, values, origin, spacing)
	if err != nil {
		return err
	}
	s.Volume, s.DataRange = vol, dataRange
	s.Bound = boxBound(gridBounds(dims, origin, spacing))
	return nil
}

// initRaw sets up a volume plugin reading a raw little endian float32 grid
// with x varying fastest.
func initRaw(def *plugin.Definition) error {
	def.Parameters = []plugin.Parameter{
		{Name: "file", Type: plugin.ParamString, Length: 1, Description: "raw float32 volume file"},
		{Name: "dimensions", Type: plugin.ParamInt, Length: 3, Description: "grid resolution"},
		{Name: "spacing", Type: plugin.ParamFloat, Length: 3, Flags: plugin.FlagOptional, Description: "voxel size"},
	}
	def.Generate = generateRaw
	return nil
}

func generateRaw(s *plugin.State) error {
	dims, err := dimensions(s)
	if err != nil {
		return err
	}
	spacing := mgl32.Vec3{1, 1, 1}
	if sp := s.Floats("spacing"); len(sp) == 3 {
		spacing = mgl32.Vec3{sp[0], sp[1], sp[2]}
	}

	path := s.String("file", "")
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	n := dims[0] * dims[1] * dims[2]
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() != int64(n)*4 {
		return fmt.Errorf("%s holds %d bytes, dimensions %v need %d", path, info.Size(), dims, n*4)
	}
	values := make([]float32, n)
	if err := binary.Read(bufio.NewReader(f), binary.LittleEndian, values); err != nil && err != io.EOF {
		return fmt.Errorf("%s: %w", path, err)
	}

	// Center the grid on the origin.
	half := gridBounds(dims, mgl32.Vec3{}, spacing)[1].Mul(0.5)
	origin := half.Mul(-1)
	vol, dataRange, err := newGrid(s.Device, dims, values, origin, spacing)
	if err != nil {
		return err
	}
	s.Volume, s.DataRange = vol, dataRange
	s.Bound = boxBound(gridBounds(dims, origin, spacing))
	return nil
}
