package media

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"regexp"
	"strings"

	"beehive/internal/apperror"
	"beehive/internal/sanitize"

	"github.com/google/uuid"
)

// MaxAudioBytes 音频上限。
const MaxAudioBytes int64 = 6 * mb

const (
	audioBasenameMax     = 80
	defaultAudioBasename = "audio"
	defaultAudioExt      = ".wav"
)

// 部分浏览器把纯音频容器标成 video/*，libmagic 类后端也会报 application/ogg。
var allowedAudioTypes = map[string]struct{}{
	"audio/wav":       {},
	"audio/x-wav":     {},
	"audio/webm":      {},
	"audio/ogg":       {},
	"audio/opus":      {},
	"video/webm":      {},
	"video/ogg":       {},
	"application/ogg": {},
}

var audioExtensions = map[string]string{
	"audio/webm":      ".webm",
	"video/webm":      ".webm",
	"audio/ogg":       ".ogg",
	"video/ogg":       ".ogg",
	"application/ogg": ".ogg",
	"audio/opus":      ".opus",
	"audio/x-wav":     ".wav",
	"audio/wav":       ".wav",
}

// audioDataURLRe 匹配 data:<mime>[;k=v]*;base64,<payload>。
// MediaRecorder 产出的 "audio/webm;codecs=opus" 带参数段，因此允许 mime 后跟 ;k=v。
var audioDataURLRe = regexp.MustCompile(`^data:(?P<mime>[-\w.+/]+)(?:;[-\w.+]+=[-\w.+]+)*;base64,(?P<data>[A-Za-z0-9+/=\r\n]+)$`)

// Audio 是通过校验的音频载荷。
type Audio struct {
	MimeType string
	Size     int64

	data   []byte
	reader io.ReadSeeker
}

// Open 返回从头开始的音频内容。
func (a *Audio) Open() (io.Reader, error) {
	if a.reader != nil {
		if _, err := a.reader.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewind audio: %w", err)
		}
		return a.reader, nil
	}
	return bytes.NewReader(a.data), nil
}

// AudioIntake 处理 base64 data URL 与 multipart 文件两种音频输入。
type AudioIntake struct {
	sniffer  *Sniffer
	maxBytes int64
}

func NewAudioIntake(sniffer *Sniffer) *AudioIntake {
	return &AudioIntake{sniffer: sniffer, maxBytes: MaxAudioBytes}
}

// FromDataURL 解析 data:<mime>;base64,<payload>。在解码前按 len*3/4 估算大小，
// 超限即拒绝，避免为超大载荷付出解码成本。
func (a *AudioIntake) FromDataURL(raw string) (*Audio, error) {
	match := audioDataURLRe.FindStringSubmatch(strings.TrimSpace(raw))
	if match == nil {
		return nil, apperror.Validation("Invalid audio data URL format")
	}

	mimeType := strings.ToLower(match[audioDataURLRe.SubexpIndex("mime")])
	if _, ok := allowedAudioTypes[mimeType]; !ok {
		return nil, apperror.Validation("Unsupported audio MIME type")
	}

	payload := strings.TrimSpace(match[audioDataURLRe.SubexpIndex("data")])
	if err := a.checkSize(int64(len(payload)) * 3 / 4); err != nil {
		return nil, err
	}

	// 标准库解码会静默跳过 CR/LF，这里按严格模式拒绝。
	if strings.ContainsAny(payload, "\r\n") {
		return nil, apperror.Validation("Audio data is not valid base64")
	}
	data, err := base64.StdEncoding.Strict().DecodeString(payload)
	if err != nil {
		return nil, apperror.Validation("Audio data is not valid base64")
	}

	if err := a.checkSize(int64(len(data))); err != nil {
		return nil, err
	}

	if isWAV(mimeType) && !hasRIFFWaveHeader(data) {
		return nil, apperror.Validation("Audio content validation failed")
	}

	return &Audio{MimeType: mimeType, Size: int64(len(data)), data: data}, nil
}

// FromFile 校验 multipart 音频文件。嗅探不可用时才退回客户端声明的类型。
func (a *AudioIntake) FromFile(file multipart.File, header *multipart.FileHeader) (*Audio, error) {
	if file == nil || header == nil || header.Filename == "" {
		return nil, apperror.Validation("No audio file provided")
	}
	if sanitize.Filename(header.Filename) == "" {
		return nil, apperror.Validation("Invalid audio filename")
	}

	var detected string
	if a.sniffer.Available() {
		sniffed, err := a.sniffer.Sniff(file)
		if err != nil {
			return nil, apperror.Wrap(apperror.KindInternal, err, "sniff audio")
		}
		detected = sniffed
	} else {
		detected = BaseType(header.Header.Get("Content-Type"))
	}

	if _, ok := allowedAudioTypes[detected]; !ok {
		return nil, apperror.Validation("Audio file type not allowed")
	}

	size, err := measure(file)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "measure audio")
	}
	if err := a.checkSize(size); err != nil {
		return nil, err
	}

	return &Audio{MimeType: detected, Size: size, reader: file}, nil
}

// Filename 生成 <安全标题前 80 字符>_<唯一标记><扩展名>。
func (a *AudioIntake) Filename(title, mimeType string) string {
	base := sanitize.Truncate(sanitize.Filename(title), audioBasenameMax)
	if base == "" {
		base = defaultAudioBasename
	}
	ext, ok := audioExtensions[mimeType]
	if !ok {
		ext = defaultAudioExt
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return base + "_" + token + ext
}

// IsAudioKey 判断存储键是否为音频副本（按生成时使用的扩展名）。
func IsAudioKey(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, known := range audioExtensions {
		if ext == known {
			return true
		}
	}
	return false
}

func (a *AudioIntake) checkSize(size int64) error {
	if size > a.maxBytes {
		return apperror.TooLarge(fmt.Sprintf("Audio exceeds max size limit (%dMB)", a.maxBytes/mb))
	}
	return nil
}

func isWAV(mimeType string) bool {
	return mimeType == "audio/wav" || mimeType == "audio/x-wav"
}

// hasRIFFWaveHeader 只做结构性检查，不解析完整格式。
func hasRIFFWaveHeader(data []byte) bool {
	return len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
}
