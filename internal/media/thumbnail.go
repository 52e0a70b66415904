package media

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"path"
	"strings"

	"github.com/gen2brain/go-fitz"
)

const (
	// ThumbnailDir 缩略图在存储中的子路径。
	ThumbnailDir = "thumbnails"

	thumbnailZoom = 2
	pdfBaseDPI    = 72
)

// Thumbnailer 把文档首页渲染为 JPEG。
type Thumbnailer interface {
	Render(r io.Reader) ([]byte, error)
}

// PDFThumbnailer 使用 MuPDF 渲染 PDF 首页。
type PDFThumbnailer struct {
	Quality int
}

func NewPDFThumbnailer() *PDFThumbnailer {
	return &PDFThumbnailer{Quality: jpeg.DefaultQuality}
}

func (t *PDFThumbnailer) Render(r io.Reader) ([]byte, error) {
	doc, err := fitz.NewFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() < 1 {
		return nil, errors.New("pdf has no pages")
	}

	img, err := doc.ImageDPI(0, float64(pdfBaseDPI*thumbnailZoom))
	if err != nil {
		return nil, fmt.Errorf("render first page: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: t.Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// ThumbnailKey 返回存储文件对应的缩略图键，例如 "<id>_doc.pdf" -> "thumbnails/<id>_doc.jpg"。
func ThumbnailKey(storedName string) string {
	name := storedName
	if IsPDF(name) {
		name = name[:len(name)-len(".pdf")]
	}
	return path.Join(ThumbnailDir, strings.TrimSpace(name)+".jpg")
}
