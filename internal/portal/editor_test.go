package portal

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDOMEditorAppendEscapesMarkup(t *testing.T) {
	page := newFakePage()
	var scripts []string
	page.evalFn = func(script string) bool {
		scripts = append(scripts, script)
		return true
	}
	editor := newDOMEditor(page, mustCatalogue(t))

	require.NoError(t, editor.AppendText(context.Background(), "<b>太字</b>\r\n次の行"))
	require.Len(t, scripts, 1)
	// The markup travels as a JSON string literal, so &, < and > are \u-escaped
	assert.Contains(t, scripts[0], jsString(`&lt;b&gt;太字&lt;/b&gt;<br>次の行`))
	assert.Contains(t, scripts[0], `\u0026lt;b\u0026gt;太字`)
	assert.NotContains(t, scripts[0], "<b>")
	assert.Contains(t, scripts[0], "function primaryEditor()")
	assert.Contains(t, scripts[0], "#blog .editWrap div.nicEdit-main")
}

func TestDOMEditorRejectedCallIsAnError(t *testing.T) {
	page := newFakePage()
	page.evalFn = func(string) bool { return false }
	editor := newDOMEditor(page, mustCatalogue(t))

	err := editor.InsertAnchor(context.Background(), "nicedit-image-anchor-1-abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
	assert.False(t, editor.Present(context.Background()))
}

func TestEditorLocatorUsesLastCandidateAsGeneric(t *testing.T) {
	script := editorLocatorScript(Candidates{"#a .main", "#b .main", "div.main"})
	assert.Contains(t, script, `["#a .main","#b .main"]`)
	assert.Equal(t, 1, strings.Count(script, `"div.main"`))
}

func TestDOMEditorSyncUsesInstanceAndMirror(t *testing.T) {
	page := newFakePage()
	var script string
	page.evalFn = func(s string) bool {
		script = s
		return true
	}
	editor := newDOMEditor(page, mustCatalogue(t))

	ok, err := editor.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, script, `nicEditors.findEditor("blogContents")`)
	assert.Contains(t, script, `"textarea#blogContents"`)
}
