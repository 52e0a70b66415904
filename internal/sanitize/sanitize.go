package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var (
	strictPolicy  = bluemonday.StrictPolicy()
	unsafeNameRe  = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
	pathSeparator = strings.NewReplacer("/", " ", "\\", " ")
)

// Text 去除全部 HTML 标签与属性，并裁剪首尾空白。
func Text(value string) string {
	if value == "" {
		return ""
	}
	return strings.TrimSpace(strictPolicy.Sanitize(value))
}

// Filename 把客户端文件名收敛为仅含 ASCII 字母数字与 "_.-" 的安全名称，
// 路径分隔符会被折叠，结果可能为空。先做 NFKD 分解，"café" 保留为 "cafe"。
func Filename(name string) string {
	var b strings.Builder
	for _, r := range norm.NFKD.String(name) {
		if r < 0x80 {
			b.WriteRune(r)
		}
	}

	cleaned := pathSeparator.Replace(b.String())
	cleaned = strings.Join(strings.Fields(cleaned), "_")
	cleaned = unsafeNameRe.ReplaceAllString(cleaned, "")
	return strings.Trim(cleaned, "._")
}

// Truncate 截断到不超过 max 字节，切点落在字符边界上，结果始终是合法 UTF-8。
func Truncate(value string, max int) string {
	if max <= 0 || len(value) <= max {
		return value
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
