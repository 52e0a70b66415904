package api

import (
	"io/fs"
	"net/http"

	"beehive/internal/media"
)

// NewStaticHandler 公开读取已上传的图片与 PDF。
// 目录不列出，音频只能经鉴权后的 /audio/{filename} 读取，二者都返回 404。
func NewStaticHandler(root http.FileSystem) http.Handler {
	return http.FileServer(uploadFS{root: root})
}

type uploadFS struct {
	root http.FileSystem
}

func (u uploadFS) Open(name string) (http.File, error) {
	if media.IsAudioKey(name) {
		return nil, fs.ErrNotExist
	}
	f, err := u.root.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}
