package generator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/salonpress/internal/models"
)

// ErrNotConfigured is returned when the selected provider has no API key
var ErrNotConfigured = errors.New("content generator is not configured")

const systemInstruction = `あなたは美容サロンのブログライターです。
ユーザーからのリクエストに基づいて、魅力的で読みやすいブログ記事を作成してください。

記事の要件：
- タイトルは%d文字以内で、興味を引くものにする
- 本文は800-1200文字程度
- 読みやすい段落構成（段落の間は空行）
- 専門用語は適度に説明を加える
- ポジティブで親しみやすいトーン
%s
出力形式：
必ず以下のJSON配列で%d件の案を返してください：
[
  {"title": "記事タイトル", "content": "記事本文（改行を含む）"}
]
`

// SystemInstruction builds the instruction for imageCount images and n drafts
func SystemInstruction(imageCount, variations, titleLimit int) string {
	images := ""
	if imageCount > 0 {
		tokens := make([]string, imageCount)
		for k := range tokens {
			tokens[k] = fmt.Sprintf("{{image_%d}}", k+1)
		}
		images = fmt.Sprintf("- 本文には画像の位置として %s をこの順番で1回ずつ、段落の間に入れる\n",
			strings.Join(tokens, "、"))
	}
	return fmt.Sprintf(systemInstruction, titleLimit, images, variations)
}

// ParseVariations reads the model output. A JSON array, an object with a
// "variations" array, or a single object are accepted, with or without code fences.
func ParseVariations(text string) ([]models.GeneratedVariation, error) {
	text = stripFences(strings.TrimSpace(text))
	if text == "" {
		return nil, errors.New("empty response")
	}

	var list []models.GeneratedVariation
	if err := json.Unmarshal([]byte(text), &list); err == nil {
		return nonEmpty(list)
	}

	var wrapped struct {
		Variations []models.GeneratedVariation `json:"variations"`
	}
	if err := json.Unmarshal([]byte(text), &wrapped); err == nil && len(wrapped.Variations) > 0 {
		return nonEmpty(wrapped.Variations)
	}

	var single models.GeneratedVariation
	if err := json.Unmarshal([]byte(text), &single); err == nil && single.Content != "" {
		return []models.GeneratedVariation{single}, nil
	}

	// Prose around the JSON
	if start, end := strings.Index(text, "["), strings.LastIndex(text, "]"); start >= 0 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), &list); err == nil {
			return nonEmpty(list)
		}
	}
	return nil, fmt.Errorf("response is not a JSON list of drafts")
}

func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}

func nonEmpty(list []models.GeneratedVariation) ([]models.GeneratedVariation, error) {
	out := list[:0]
	for _, v := range list {
		if strings.TrimSpace(v.Content) != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("response holds no drafts")
	}
	return out, nil
}
