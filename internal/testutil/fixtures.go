package testutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

// PNG 返回一张 4x4 的 PNG，padTo 大于实际长度时在末尾补零。
func PNG(t testing.TB, padTo int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, sample()); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return pad(buf.Bytes(), padTo)
}

// JPEG 返回一张 4x4 的 JPEG，padTo 大于实际长度时在末尾补零。
func JPEG(t testing.TB, padTo int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, sample(), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return pad(buf.Bytes(), padTo)
}

// WAV 返回带 RIFF/WAVE 头、samples 字节 8-bit 单声道 PCM 的音频。
func WAV(samples int) []byte {
	buf := make([]byte, 44+samples)
	copy(buf[0:], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:], uint32(36+samples))
	copy(buf[8:], "WAVE")
	copy(buf[12:], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:], 16)
	binary.LittleEndian.PutUint16(buf[20:], 1)
	binary.LittleEndian.PutUint16(buf[22:], 1)
	binary.LittleEndian.PutUint32(buf[24:], 8000)
	binary.LittleEndian.PutUint32(buf[28:], 8000)
	binary.LittleEndian.PutUint16(buf[32:], 1)
	binary.LittleEndian.PutUint16(buf[34:], 8)
	copy(buf[36:], "data")
	binary.LittleEndian.PutUint32(buf[40:], uint32(samples))
	for i := 44; i < len(buf); i++ {
		buf[i] = 0x80
	}
	return buf
}

// PDF 返回只有一页空白页的最小 PDF。
func PDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 200] /Resources << >> >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func sample() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 200, A: 255})
		}
	}
	return img
}

func pad(data []byte, size int) []byte {
	if size <= len(data) {
		return data
	}
	out := make([]byte, size)
	copy(out, data)
	return out
}
