package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/salonpress/internal/models"
)

func TestSplitSegments(t *testing.T) {
	segments := SplitSegments("前文{{image_1}}中文{{image_2}}")

	assert.Equal(t, []models.ContentSegment{
		models.TextSegment("前文"),
		models.ImageSegment(1),
		models.TextSegment("中文"),
		models.ImageSegment(2),
	}, segments)

	assert.Empty(t, SplitSegments(""))
	assert.Equal(t, []models.ContentSegment{models.TextSegment("本文のみ")}, SplitSegments("本文のみ"))
	assert.Equal(t, []models.ContentSegment{models.ImageSegment(1), models.ImageSegment(2)},
		SplitSegments("{{image_1}}{{image_2}}"))
}

func TestStripPlaceholders(t *testing.T) {
	assert.Equal(t, "ab\nc", StripPlaceholders("{{image_1}}a{{image_3}}b\nc{{image_2}}"))
	assert.Equal(t, 3, CountPlaceholders("{{image_1}}a{{image_3}}b\nc{{image_2}}"))
}

func TestNormalizePlaceholders(t *testing.T) {
	tests := []struct {
		name string
		body string
		n    int
		want string
	}{
		{
			name: "complete and ordered is unchanged",
			body: "前文\n\n{{image_1}}\n\n中文\n\n{{image_2}}",
			n:    2,
			want: "前文\n\n{{image_1}}\n\n中文\n\n{{image_2}}",
		},
		{
			name: "missing image goes to the end when every break touches a token",
			body: "導入\n\n{{image_2}}\n\n本文\n\n{{image_1}}\n\nまとめ",
			n:    3,
			want: "導入\n\n{{image_1}}\n\n本文\n\n{{image_2}}\n\nまとめ\n{{image_3}}",
		},
		{
			name: "gaps spread across paragraph breaks",
			body: "{{image_1}}第一段落\n\n第二段落\n\n第三段落\n\n第四段落",
			n:    3,
			want: "{{image_1}}第一段落\n{{image_2}}\n\n第二段落\n\n第三段落\n{{image_3}}\n\n第四段落",
		},
		{
			name: "gaps use breaks before the only token",
			body: "本文A\n\n本文B\n\n本文C{{image_1}}",
			n:    3,
			want: "本文A\n{{image_1}}\n\n本文B\n{{image_2}}\n\n本文C{{image_3}}",
		},
		{
			name: "more gaps than breaks share them in order",
			body: "一\n\n二",
			n:    3,
			want: "一\n{{image_1}}\n{{image_2}}\n{{image_3}}\n\n二",
		},
		{
			name: "no tokens uses paragraph breaks",
			body: "A\n\nB\n\nC",
			n:    1,
			want: "A\n\nB\n{{image_1}}\n\nC",
		},
		{
			name: "no breaks appends at end",
			body: "本文",
			n:    2,
			want: "本文\n{{image_1}}\n{{image_2}}",
		},
		{
			name: "out of range and duplicate tokens dropped",
			body: "{{image_1}}a{{image_1}}b{{image_9}}c",
			n:    1,
			want: "{{image_1}}abc",
		},
		{
			name: "out of order tokens renumbered by position",
			body: "{{image_2}}x{{image_1}}",
			n:    2,
			want: "{{image_1}}x{{image_2}}",
		},
		{
			name: "no images strips tokens",
			body: "a{{image_1}}b",
			n:    0,
			want: "ab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePlaceholders(tt.body, tt.n))
		})
	}
}

func TestNormalizePlaceholders_Completeness(t *testing.T) {
	bodies := []string{
		"",
		"本文だけ",
		"一\n二\n三",
		"{{image_3}}{{image_3}}{{image_3}}",
		"{{image_0}}前\n\n{{image_7}}後",
		"段落1\n\n段落2\n\n\n\n段落3\n{{image_2}}",
		"{{image_4}}\n\n{{image_2}}\n\n{{image_1}}\n\n{{image_3}}",
	}

	for _, body := range bodies {
		for n := 1; n <= 5; n++ {
			got := NormalizePlaceholders(body, n)
			want := make([]int, n)
			for i := range want {
				want[i] = i + 1
			}
			assert.Equal(t, want, PlaceholderIndices(got), "body=%q n=%d got=%q", body, n, got)
			assert.Equal(t, StripPlaceholders(body), stripLineBreaks(StripPlaceholders(got), body),
				"text must survive repair: body=%q n=%d", body, n)
		}
	}
}

// stripLineBreaks removes the line breaks repair added, leaving the original text to compare
func stripLineBreaks(repaired, original string) string {
	stripped := StripPlaceholders(original)
	if len(repaired) == len(stripped) {
		return repaired
	}
	// Inserted tokens each bring one leading newline
	out := []rune{}
	orig := []rune(stripped)
	j := 0
	for _, r := range repaired {
		if j < len(orig) && r == orig[j] {
			out = append(out, r)
			j++
			continue
		}
		if r != '\n' {
			out = append(out, r)
		}
	}
	return string(out)
}
