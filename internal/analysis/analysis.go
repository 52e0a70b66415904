package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var (
	// ErrBlocked 表示模型因安全策略拒绝输出。
	ErrBlocked = errors.New("analysis: content blocked by safety filters")
	// ErrNoJSON 表示回复中找不到 JSON 对象。
	ErrNoJSON = errors.New("analysis: no JSON object found in response")
	// ErrMissingKeys 表示 JSON 缺少 title/description/sentiment。
	ErrMissingKeys = errors.New("analysis: response JSON missing required keys")
	// ErrMalformed 表示 JSON 修复后仍无法解析。
	ErrMalformed = errors.New("analysis: failed to parse response JSON")
)

// Media 待分析的内容。音频目前只作为上下文提示，不做转写。
type Media struct {
	Image     []byte
	ImageType string
	HasAudio  bool
}

// Suggestion 是模型给出的标题、描述与情感建议。
type Suggestion struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Sentiment   string `json:"sentiment"`
}

// Analyzer 为上传内容生成元数据建议。
type Analyzer interface {
	Analyze(ctx context.Context, media Media) (*Suggestion, error)
}

// PDFSuggestion 是 PDF 不送模型时的固定回复。
var PDFSuggestion = Suggestion{
	Title:       "PDF Document Uploaded",
	Description: "Please provide a description for this PDF file.",
	Sentiment:   "neutral",
}

const instructions = `Based on the media provided, generate ONLY a single, valid JSON object with the following keys:
1. "title": A short, descriptive title (max 10 words).
2. "description": A concise summary (2-3 sentences).
3. "sentiment": Classify the overall mood as strictly one of 'positive', 'neutral', or 'negative'.
Do not include any other text, explanations, or markdown formatting like ` + "```json."

const audioHint = "Also consider the attached voice note; no transcript is available."

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// ParseSuggestion 从模型原始回复中提取第一个到最后一个花括号之间的 JSON，
// 必要时用 jsonrepair 修复，再校验必需字段。
func ParseSuggestion(raw string) (*Suggestion, error) {
	block := jsonObjectRe.FindString(raw)
	if block == "" {
		return nil, ErrNoJSON
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(block), &fields); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(block)
		if repairErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, repairErr)
		}
		if err := json.Unmarshal([]byte(repaired), &fields); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	out := &Suggestion{}
	for key, dst := range map[string]*string{
		"title":       &out.Title,
		"description": &out.Description,
		"sentiment":   &out.Sentiment,
	} {
		v, ok := fields[key]
		if !ok {
			return nil, ErrMissingKeys
		}
		s, _ := v.(string)
		*dst = strings.TrimSpace(s)
	}
	return out, nil
}
