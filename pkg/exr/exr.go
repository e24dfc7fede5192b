// Package exr writes single part scanline OpenEXR images with FLOAT RGBA
// channels, uncompressed or ZIP compressed.
package exr

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// Compression selects the scanline block codec.
type Compression uint8

const (
	None Compression = 0
	ZIP  Compression = 3
)

const (
	magic      = 20000630
	version    = 2
	pixelFloat = 2
)

// LinesPerBlock returns the scanlines stored in one chunk.
func (c Compression) LinesPerBlock() int {
	if c == ZIP {
		return 16
	}
	return 1
}

var (
	ErrBadSize        = errors.New("exr: pixel buffer does not match image size")
	ErrBadCompression = errors.New("exr: unsupported compression")
)

// Image is an RGBA float image. Pix holds Width*Height*4 values row by row
// starting at the bottom row, which is how framebuffers are laid out.
type Image struct {
	Width  int
	Height int
	Pix    []float32
}

// channel order in the file is alphabetical.
var channels = []struct {
	name   string
	offset int
}{
	{"A", 3}, {"B", 2}, {"G", 1}, {"R", 0},
}

// Encode writes img to w.
func Encode(w io.Writer, img Image, c Compression) error {
	if img.Width < 1 || img.Height < 1 || len(img.Pix) != img.Width*img.Height*4 {
		return fmt.Errorf("%w: %dx%d with %d values", ErrBadSize, img.Width, img.Height, len(img.Pix))
	}
	if c != None && c != ZIP {
		return fmt.Errorf("%w: %d", ErrBadCompression, c)
	}

	var hdr bytes.Buffer
	le := binary.LittleEndian
	put32 := func(b *bytes.Buffer, v int32) { _ = binary.Write(b, le, v) }

	put32(&hdr, magic)
	put32(&hdr, version)

	var chlist bytes.Buffer
	for _, ch := range channels {
		chlist.WriteString(ch.name)
		chlist.WriteByte(0)
		put32(&chlist, pixelFloat)
		chlist.Write([]byte{0, 0, 0, 0})
		put32(&chlist, 1)
		put32(&chlist, 1)
	}
	chlist.WriteByte(0)

	var box bytes.Buffer
	for _, v := range []int32{0, 0, int32(img.Width - 1), int32(img.Height - 1)} {
		put32(&box, v)
	}
	var one bytes.Buffer
	_ = binary.Write(&one, le, float32(1))

	attr := func(name, typ string, value []byte) {
		hdr.WriteString(name)
		hdr.WriteByte(0)
		hdr.WriteString(typ)
		hdr.WriteByte(0)
		put32(&hdr, int32(len(value)))
		hdr.Write(value)
	}
	attr("channels", "chlist", chlist.Bytes())
	attr("compression", "compression", []byte{byte(c)})
	attr("dataWindow", "box2i", box.Bytes())
	attr("displayWindow", "box2i", box.Bytes())
	attr("lineOrder", "lineOrder", []byte{0})
	attr("pixelAspectRatio", "float", one.Bytes())
	attr("screenWindowCenter", "v2f", make([]byte, 8))
	attr("screenWindowWidth", "float", one.Bytes())
	hdr.WriteByte(0)

	lines := c.LinesPerBlock()
	nchunks := (img.Height + lines - 1) / lines
	chunks := make([][]byte, nchunks)
	for i := range chunks {
		y0 := i * lines
		y1 := min(y0+lines, img.Height)
		raw := scanlines(img, y0, y1)
		data := raw
		if c == ZIP {
			z, err := compressZIP(raw)
			if err != nil {
				return err
			}
			if len(z) < len(raw) {
				data = z
			}
		}
		chunk := make([]byte, 8+len(data))
		le.PutUint32(chunk[0:], uint32(y0))
		le.PutUint32(chunk[4:], uint32(len(data)))
		copy(chunk[8:], data)
		chunks[i] = chunk
	}

	offset := uint64(hdr.Len() + 8*nchunks)
	for _, chunk := range chunks {
		_ = binary.Write(&hdr, le, offset)
		offset += uint64(len(chunk))
	}
	if _, err := w.Write(hdr.Bytes()); err != nil {
		return err
	}
	for _, chunk := range chunks {
		if _, err := w.Write(chunk); err != nil {
			return err
		}
	}
	return nil
}

// scanlines serializes file rows [y0,y1). File row 0 is the top of the
// image, the last row of img.Pix.
func scanlines(img Image, y0, y1 int) []byte {
	out := make([]byte, 0, (y1-y0)*img.Width*16)
	for y := y0; y < y1; y++ {
		row := img.Height - 1 - y
		base := row * img.Width * 4
		for _, ch := range channels {
			for x := 0; x < img.Width; x++ {
				out = binary.LittleEndian.AppendUint32(out, math.Float32bits(img.Pix[base+4*x+ch.offset]))
			}
		}
	}
	return out
}

// compressZIP applies the byte interleave and delta predictor used by the
// ZIP codec, then deflates with a zlib wrapper.
func compressZIP(raw []byte) ([]byte, error) {
	n := len(raw)
	tmp := make([]byte, n)
	half := (n + 1) / 2
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			tmp[i/2] = raw[i]
		} else {
			tmp[half+i/2] = raw[i]
		}
	}
	if n > 0 {
		prev := int(tmp[0])
		for i := 1; i < n; i++ {
			cur := int(tmp[i])
			tmp[i] = byte(cur - prev + 128 + 256)
			prev = cur
		}
	}

	var out bytes.Buffer
	zw := zlib.NewWriter(&out)
	if _, err := zw.Write(tmp); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// WriteFile encodes img into path and returns the file size.
func WriteFile(path string, img Image, c Compression) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	bw := bufio.NewWriter(f)
	if err := Encode(bw, img, c); err != nil {
		f.Close()
		return 0, err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, err
	}
	return info.Size(), f.Close()
}
