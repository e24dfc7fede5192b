package protocol

import (
	"errors"
	"io"
	"math"
	"testing"
)

func TestEncoderDecoder(t *testing.T) {
	e := NewEncoder()

	e.WriteByte(0x42)
	e.WriteUvarint(12345)
	e.WriteString("hello world")
	e.WriteBool(true)
	e.WriteBool(false)
	e.WriteUint32(0x12345678)
	e.WriteUint64(0x123456789ABCDEF0)
	e.WriteInt32(-12345678)
	e.WriteFloat32(3.14159)
	e.WriteVec3([3]float32{1, 2, 3})
	e.WriteFloat32s([]float32{0.5, -0.5})

	d := NewDecoder(e.Bytes())

	b, err := d.ReadByte()
	if err != nil || b != 0x42 {
		t.Errorf("ReadByte() = %x, %v; want 0x42, nil", b, err)
	}

	uv, err := d.ReadUvarint()
	if err != nil || uv != 12345 {
		t.Errorf("ReadUvarint() = %d, %v; want 12345, nil", uv, err)
	}

	s, err := d.ReadString()
	if err != nil || s != "hello world" {
		t.Errorf("ReadString() = %q, %v; want \"hello world\", nil", s, err)
	}

	bt, err := d.ReadBool()
	if err != nil || !bt {
		t.Errorf("ReadBool() = %v, %v; want true, nil", bt, err)
	}
	bf, err := d.ReadBool()
	if err != nil || bf {
		t.Errorf("ReadBool() = %v, %v; want false, nil", bf, err)
	}

	u32, err := d.ReadUint32()
	if err != nil || u32 != 0x12345678 {
		t.Errorf("ReadUint32() = %x, %v; want 0x12345678, nil", u32, err)
	}

	u64, err := d.ReadUint64()
	if err != nil || u64 != 0x123456789ABCDEF0 {
		t.Errorf("ReadUint64() = %x, %v; want 0x123456789ABCDEF0, nil", u64, err)
	}

	i32, err := d.ReadInt32()
	if err != nil || i32 != -12345678 {
		t.Errorf("ReadInt32() = %d, %v; want -12345678, nil", i32, err)
	}

	f32, err := d.ReadFloat32()
	if err != nil || math.Abs(float64(f32)-3.14159) > 1e-5 {
		t.Errorf("ReadFloat32() = %f, %v; want 3.14159, nil", f32, err)
	}

	v3, err := d.ReadVec3()
	if err != nil || v3 != [3]float32{1, 2, 3} {
		t.Errorf("ReadVec3() = %v, %v; want [1 2 3], nil", v3, err)
	}

	fs, err := d.ReadFloat32s()
	if err != nil || len(fs) != 2 || fs[0] != 0.5 || fs[1] != -0.5 {
		t.Errorf("ReadFloat32s() = %v, %v; want [0.5 -0.5], nil", fs, err)
	}

	if !d.EOF() {
		t.Errorf("Decoder not at EOF, %d bytes remaining", d.Remaining())
	}
}

func TestLittleEndian(t *testing.T) {
	e := NewEncoder()
	e.WriteUint32(0x01020304)

	got := e.Bytes()
	want := []byte{0x04, 0x03, 0x02, 0x01}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("WriteUint32 bytes = %x, want %x", got, want)
		}
	}
}

func TestDecoderErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		read func(*Decoder) error
		want error
	}{
		{
			name: "uint32_short",
			data: []byte{0x01, 0x02},
			read: func(d *Decoder) error { _, err := d.ReadUint32(); return err },
			want: io.ErrUnexpectedEOF,
		},
		{
			name: "string_short",
			data: []byte{0x05, 'a', 'b'},
			read: func(d *Decoder) error { _, err := d.ReadString(); return err },
			want: io.ErrUnexpectedEOF,
		},
		{
			name: "float_array_short",
			data: []byte{0x03, 0, 0, 0, 0},
			read: func(d *Decoder) error { _, err := d.ReadFloat32s(); return err },
			want: io.ErrUnexpectedEOF,
		},
		{
			name: "varint_overflow",
			data: []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
			read: func(d *Decoder) error { _, err := d.ReadUvarint(); return err },
			want: ErrVarintOverflow,
		},
		{
			name: "collection_too_large",
			data: []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x0F},
			read: func(d *Decoder) error { _, err := d.ReadCollectionCount(1); return err },
			want: ErrCollectionTooLarge,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.read(NewDecoder(tc.data))
			if !errors.Is(err, tc.want) {
				t.Errorf("error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRawBuffers(t *testing.T) {
	floats := []float32{-1, 0, 1.5}
	gotF, err := BytesFloat32(Float32Bytes(floats))
	if err != nil {
		t.Fatalf("BytesFloat32() error = %v", err)
	}
	for i := range floats {
		if gotF[i] != floats[i] {
			t.Errorf("float[%d] = %v, want %v", i, gotF[i], floats[i])
		}
	}

	ints := []uint32{0, 1, 0xFFFFFFFF}
	gotI, err := BytesUint32(Uint32Bytes(ints))
	if err != nil {
		t.Fatalf("BytesUint32() error = %v", err)
	}
	for i := range ints {
		if gotI[i] != ints[i] {
			t.Errorf("uint[%d] = %v, want %v", i, gotI[i], ints[i])
		}
	}

	if _, err := BytesFloat32([]byte{1, 2, 3}); err == nil {
		t.Error("BytesFloat32(3 bytes) should fail")
	}
}
