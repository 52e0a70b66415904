package media

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

// SniffBytes 是内容嗅探读取的最大前缀长度。
const SniffBytes = 2048

// ErrSniffUnavailable 表示进程启动时没有可用的嗅探后端。
var ErrSniffUnavailable = errors.New("media: mime detection unavailable")

// Detector 根据文件头字节判断 MIME 类型。
type Detector interface {
	Detect(header []byte) string
}

// MimetypeDetector 基于 gabriel-vasile/mimetype 的魔数检测。
type MimetypeDetector struct{}

func NewMimetypeDetector() MimetypeDetector {
	mimetype.SetLimit(SniffBytes)
	return MimetypeDetector{}
}

func (MimetypeDetector) Detect(header []byte) string {
	return mimetype.Detect(header).String()
}

// Sniffer 只读取有界前缀判断真实类型，读取后恢复流位置以便后续完整落盘。
type Sniffer struct {
	detector Detector
}

// NewSniffer 创建嗅探器。detector 为 nil 时视为后端不可用并记录启动告警。
func NewSniffer(detector Detector, log zerolog.Logger) *Sniffer {
	if detector == nil {
		log.Warn().Msg("MIME detection unavailable: no content sniffing backend configured; uploads will be rejected and audio falls back to declared types")
	}
	return &Sniffer{detector: detector}
}

// Available 报告嗅探后端是否可用。
func (s *Sniffer) Available() bool {
	return s != nil && s.detector != nil
}

// Sniff 返回不带参数的小写 MIME 类型。
func (s *Sniffer) Sniff(r io.ReadSeeker) (string, error) {
	if !s.Available() {
		return "", ErrSniffUnavailable
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind before sniff: %w", err)
	}

	header := make([]byte, SniffBytes)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("read header: %w", err)
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind after sniff: %w", err)
	}

	return BaseType(s.detector.Detect(header[:n])), nil
}

// BaseType 去除参数部分并转小写，例如 "text/plain; charset=utf-8" -> "text/plain"。
func BaseType(value string) string {
	clean := strings.TrimSpace(value)
	if clean == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(clean); err == nil {
		return strings.ToLower(mediaType)
	}
	if i := strings.IndexByte(clean, ';'); i >= 0 {
		clean = clean[:i]
	}
	return strings.ToLower(strings.TrimSpace(clean))
}

// measure 通过 Seek 到末尾得到真实长度，不信任客户端声明的大小。
func measure(r io.Seeker) (int64, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("measure file: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewind file: %w", err)
	}
	return size, nil
}
