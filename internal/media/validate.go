package media

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"beehive/internal/apperror"
)

const mb = 1024 * 1024

var allowedExtensions = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {}, "gif": {}, "webp": {}, "heif": {}, "pdf": {}, "avif": {},
}

var allowedMimeTypes = map[string]struct{}{
	"image/jpeg":      {},
	"image/png":       {},
	"image/gif":       {},
	"image/webp":      {},
	"image/heif":      {},
	"image/avif":      {},
	"application/pdf": {},
}

// sizeLimits 按 MIME 分档的大小上限。
var sizeLimits = map[string]int64{
	"image/jpeg":      10 * mb,
	"image/png":       10 * mb,
	"image/webp":      10 * mb,
	"image/avif":      10 * mb,
	"image/gif":       8 * mb,
	"image/heif":      15 * mb,
	"image/heic":      15 * mb,
	"application/pdf": 25 * mb,
}

var allowedExtensionList = func() string {
	list := make([]string, 0, len(allowedExtensions))
	for ext := range allowedExtensions {
		list = append(list, ext)
	}
	sort.Strings(list)
	return strings.Join(list, ", ")
}()

// FileMeta 描述一个待校验的上传文件。Name 必须已经过 sanitize.Filename。
type FileMeta struct {
	Name   string
	Reader io.ReadSeeker
}

// Validator 依次校验扩展名、嗅探类型与大小，遇到第一个失败即返回。
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate 返回文件的真实字节数。
func (v *Validator) Validate(file FileMeta, sniffed string) (int64, error) {
	if err := v.CheckExtension(file.Name); err != nil {
		return 0, err
	}
	if err := v.CheckType(sniffed); err != nil {
		return 0, err
	}
	return v.CheckSize(file, sniffed)
}

func (v *Validator) CheckExtension(name string) error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if _, ok := allowedExtensions[ext]; !ok {
		return apperror.Validation("File type not allowed. Allowed types: " + allowedExtensionList)
	}
	return nil
}

func (v *Validator) CheckType(sniffed string) error {
	if _, ok := allowedMimeTypes[sniffed]; !ok {
		return apperror.Validation(fmt.Sprintf("File content validation failed. Detected type %q is not allowed.", sniffed))
	}
	return nil
}

func (v *Validator) CheckSize(file FileMeta, sniffed string) (int64, error) {
	limit, ok := sizeLimits[sniffed]
	if !ok {
		return 0, apperror.Validation("Unsupported MIME type: " + sniffed)
	}

	size, err := measure(file.Reader)
	if err != nil {
		return 0, apperror.Wrap(apperror.KindInternal, err, "measure upload")
	}
	if size > limit {
		return 0, apperror.TooLarge(fmt.Sprintf("File '%s' exceeds max size limit (%dMB)", file.Name, limit/mb))
	}
	return size, nil
}

// IsPDF 根据存储文件名判断是否需要生成缩略图。
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}
