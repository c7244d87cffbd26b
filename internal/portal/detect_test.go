package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectSuccess(t *testing.T) {
	c := mustCatalogue(t)

	tests := []struct {
		name    string
		obs     Observation
		success bool
		message string
	}{
		{
			name: "complete page with phrase and back control",
			obs: Observation{
				URL:            "https://salonboard.com/CLP/bt/blog/blog/complete",
				Text:           "ブログの登録が完了しました",
				HasBackControl: true,
			},
			success: true,
			message: MessagePublished,
		},
		{
			name: "still on confirm page",
			obs: Observation{
				URL: "https://salonboard.com/CLP/bt/blog/blog/confirm",
			},
			success: false,
			message: MessageUnclear,
		},
		{
			name: "complete page with back control only",
			obs: Observation{
				URL:            "https://salonboard.com/CLP/bt/blog/blog/complete?storeId=H1",
				HasBackControl: true,
			},
			success: true,
			message: MessagePublished,
		},
		{
			name: "phrase split across inline tags",
			obs: Observation{
				URL:  "https://salonboard.com/clp/bt/blog/blog/complete",
				HTML: "<div><p>ブログの<span>登録</span>が\n  完了しました</p></div>",
			},
			success: true,
			message: MessagePublished,
		},
		{
			name: "phrase without completion url is unclear",
			obs: Observation{
				URL:            "https://salonboard.com/CLP/bt/blog/blog/",
				Text:           "投稿しました",
				HasBackControl: true,
			},
			success: false,
			message: MessageUnclear,
		},
		{
			name: "completion url with no evidence is unclear",
			obs: Observation{
				URL:  "https://salonboard.com/CLP/bt/blog/blog/complete",
				Text: "エラーが発生しました",
			},
			success: false,
			message: MessageUnclear,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := c.DetectSuccess(tt.obs)
			assert.Equal(t, tt.success, d.Success)
			assert.Equal(t, tt.message, d.Message)
		})
	}
}

func TestDetectSuccess_ReportsEvidence(t *testing.T) {
	c := mustCatalogue(t)

	d := c.DetectSuccess(Observation{
		URL:  "https://salonboard.com/CLP/bt/blog/blog/confirm",
		Text: "内容を確認してください",
	})
	assert.True(t, d.OnConfirm)
	assert.False(t, d.OnComplete)
	assert.False(t, d.PhraseMatched)

	d = c.DetectSuccess(Observation{
		URL:  "https://salonboard.com/CLP/bt/blog/blog/complete",
		Text: "ブログ 登録が 完了しました。",
	})
	assert.True(t, d.Success)
	assert.True(t, d.PhraseMatched)
}
