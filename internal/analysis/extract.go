// Package analysis は履歴書分析と求人マッチングのAIプロキシを提供する。
package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/hitoshi/jobtrail/internal/model"
)

// ResumeAnalysisSchema は履歴書分析結果のJSONスキーマ。
const ResumeAnalysisSchema = `{
  "type": "object",
  "required": ["summary", "skills", "experienceYears"],
  "properties": {
    "summary": {"type": "string"},
    "skills": {"type": "array", "items": {"type": "string"}},
    "experienceYears": {"type": "number", "minimum": 0}
  }
}`

// MatchAnalysisSchema はマッチング分析結果のJSONスキーマ。
const MatchAnalysisSchema = `{
  "type": "object",
  "required": ["matchScore", "summary", "suggestions"],
  "properties": {
    "matchScore": {"type": "integer", "minimum": 0, "maximum": 100},
    "summary": {"type": "string"},
    "suggestions": {
      "type": "array",
      "items": {"type": "string"},
      "minItems": 3,
      "maxItems": 3
    }
  }
}`

// ExtractJSON は生成テキストから最初の"{"と最後の"}"の間を取り出し、
// スキーマで検証してからoutにデコードする。
func ExtractJSON(upstream, text, schema string, out any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return model.NewMalformedUpstreamError(upstream, "JSONオブジェクトが含まれていません")
	}
	raw := text[start : end+1]

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewStringLoader(raw),
	)
	if err != nil {
		return model.NewMalformedUpstreamError(upstream, "JSONとして解析できません")
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return model.NewMalformedUpstreamError(upstream, strings.Join(errs, "; "))
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return model.NewMalformedUpstreamError(upstream, fmt.Sprintf("デコードに失敗しました: %v", err))
	}
	return nil
}
