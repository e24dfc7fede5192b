package exr

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// decode reads back the subset of the format Encode produces.
func decode(t *testing.T, data []byte) (Image, Compression) {
	t.Helper()
	le := binary.LittleEndian
	if le.Uint32(data) != magic || le.Uint32(data[4:]) != version {
		t.Fatalf("bad magic/version % x", data[:8])
	}
	pos := 8
	cstr := func() string {
		end := bytes.IndexByte(data[pos:], 0)
		s := string(data[pos : pos+end])
		pos += end + 1
		return s
	}

	var comp Compression
	var w, h int
	for {
		name := cstr()
		if name == "" {
			break
		}
		cstr()
		size := int(le.Uint32(data[pos:]))
		pos += 4
		value := data[pos : pos+size]
		pos += size
		switch name {
		case "compression":
			comp = Compression(value[0])
		case "dataWindow":
			w = int(int32(le.Uint32(value[8:]))) + 1
			h = int(int32(le.Uint32(value[12:]))) + 1
		}
	}

	lines := comp.LinesPerBlock()
	nchunks := (h + lines - 1) / lines
	img := Image{Width: w, Height: h, Pix: make([]float32, w*h*4)}
	for i := 0; i < nchunks; i++ {
		off := int(le.Uint64(data[pos+8*i:]))
		y0 := int(le.Uint32(data[off:]))
		size := int(le.Uint32(data[off+4:]))
		block := data[off+8 : off+8+size]
		y1 := min(y0+lines, h)
		rawSize := (y1 - y0) * w * 16
		if size < rawSize {
			block = unzip(t, block, rawSize)
		}
		p := 0
		for y := y0; y < y1; y++ {
			row := h - 1 - y
			for _, ch := range channels {
				for x := 0; x < w; x++ {
					img.Pix[row*w*4+4*x+ch.offset] = math.Float32frombits(le.Uint32(block[p:]))
					p += 4
				}
			}
		}
	}
	return img, comp
}

func unzip(t *testing.T, block []byte, n int) []byte {
	t.Helper()
	zr, err := zlib.NewReader(bytes.NewReader(block))
	if err != nil {
		t.Fatalf("zlib: %v", err)
	}
	tmp, err := io.ReadAll(zr)
	if err != nil || len(tmp) != n {
		t.Fatalf("inflate: %v (%d bytes, want %d)", err, len(tmp), n)
	}
	for i := 1; i < n; i++ {
		tmp[i] = byte(int(tmp[i-1]) + int(tmp[i]) - 128)
	}
	out := make([]byte, n)
	half := (n + 1) / 2
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			out[i] = tmp[i/2]
		} else {
			out[i] = tmp[half+i/2]
		}
	}
	return out
}

func gradient(w, h int) Image {
	img := Image{Width: w, Height: h, Pix: make([]float32, w*h*4)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := 4 * (y*w + x)
			img.Pix[i] = float32(x) / float32(w)
			img.Pix[i+1] = float32(y) / float32(h)
			img.Pix[i+2] = 0.25
			img.Pix[i+3] = 1
		}
	}
	return img
}

func TestEncodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		w, h int
		comp Compression
	}{
		{"none", 7, 5, None},
		{"zip", 40, 37, ZIP},
		{"zip single row", 3, 1, ZIP},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := gradient(tt.w, tt.h)
			var buf bytes.Buffer
			if err := Encode(&buf, img, tt.comp); err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			got, comp := decode(t, buf.Bytes())
			if comp != tt.comp {
				t.Errorf("compression = %d, want %d", comp, tt.comp)
			}
			if got.Width != tt.w || got.Height != tt.h {
				t.Fatalf("size = %dx%d, want %dx%d", got.Width, got.Height, tt.w, tt.h)
			}
			for i := range img.Pix {
				if got.Pix[i] != img.Pix[i] {
					t.Fatalf("Pix[%d] = %v, want %v", i, got.Pix[i], img.Pix[i])
				}
			}
		})
	}
}

func TestZIPIsSmallerForSmoothImages(t *testing.T) {
	img := gradient(64, 64)
	var raw, zipped bytes.Buffer
	if err := Encode(&raw, img, None); err != nil {
		t.Fatal(err)
	}
	if err := Encode(&zipped, img, ZIP); err != nil {
		t.Fatal(err)
	}
	if zipped.Len() >= raw.Len() {
		t.Errorf("zip size %d, uncompressed %d", zipped.Len(), raw.Len())
	}
}

func TestTopRowFirst(t *testing.T) {
	img := Image{Width: 1, Height: 2, Pix: []float32{
		1, 0, 0, 1, // bottom
		0, 1, 0, 1, // top
	}}
	var buf bytes.Buffer
	if err := Encode(&buf, img, None); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	// First chunk holds file row 0; channels A, B, G, R follow its 8 byte
	// chunk header.
	first := int(binary.LittleEndian.Uint64(data[len(data)-2*(8+16)-16:]))
	g := math.Float32frombits(binary.LittleEndian.Uint32(data[first+8+8:]))
	if g != 1 {
		t.Errorf("first scanline G = %v, want 1 (top row)", g)
	}
}

func TestEncodeErrors(t *testing.T) {
	if err := Encode(io.Discard, Image{Width: 2, Height: 2, Pix: make([]float32, 3)}, None); !errors.Is(err, ErrBadSize) {
		t.Errorf("Encode() error = %v, want ErrBadSize", err)
	}
	if err := Encode(io.Discard, gradient(1, 1), Compression(9)); !errors.Is(err, ErrBadCompression) {
		t.Errorf("Encode() error = %v, want ErrBadCompression", err)
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.exr")
	size, err := WriteFile(path, gradient(8, 8), ZIP)
	if err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != size {
		t.Errorf("size = %d, want %d", size, info.Size())
	}
}
