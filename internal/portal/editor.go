package portal

import (
	"context"
	"fmt"
	"html"
	"strings"
)

// Editor is the rich-text editor embedded in the blog form
type Editor interface {
	Present(ctx context.Context) bool
	Clear(ctx context.Context) error
	// MarkExisting tags images already present so new uploads can be told apart
	MarkExisting(ctx context.Context) error
	AppendText(ctx context.Context, text string) error
	InsertAnchor(ctx context.Context, id string) error
	CaretToEnd(ctx context.Context) bool
	ImageCount(ctx context.Context) (int, error)
	HasUnbound(ctx context.Context) (bool, error)
	// BindToAnchor moves the newest unbound image to the anchor and removes the anchor
	BindToAnchor(ctx context.Context, id string) (bool, error)
	// Sync copies editor content into the hidden form field
	Sync(ctx context.Context) (bool, error)
}

// domEditor drives the editor through page scripts
type domEditor struct {
	page   Page
	helper string
	// instance is the editor registry key; mirror is the textarea the form submits
	instance string
	mirror   string
}

func newDOMEditor(page Page, catalogue *Catalogue) *domEditor {
	return &domEditor{
		page:     page,
		helper:   editorLocatorScript(catalogue.Form.Editor),
		instance: catalogue.Form.EditorInstance,
		mirror:   catalogue.Form.MirrorField,
	}
}

func editorLocatorScript(selectors Candidates) string {
	preferred := selectors
	generic := "div.nicEdit-main[contenteditable='true']"
	if n := len(selectors); n > 1 {
		preferred = selectors[:n-1]
		generic = selectors[n-1]
	}
	return fmt.Sprintf(`function primaryEditor() {
		var preferred = %s;
		for (var i = 0; i < preferred.length; i++) {
			var el = document.querySelector(preferred[i]);
			if (el) { return el; }
		}
		var editors = Array.prototype.slice.call(document.querySelectorAll(%s));
		if (editors.length === 1) { return editors[0]; }
		var inForm = editors.find(function(el) { return el.closest('#blog'); });
		return inForm || editors[0] || null;
	}`, jsStringArray(preferred), jsString(generic))
}

// script wraps body in an IIFE with the editor locator in scope
func (e *domEditor) script(body string) string {
	return fmt.Sprintf(`(function(){
		%s
		try {
			%s
		} catch (err) {
			return false;
		}
	})()`, e.helper, body)
}

func (e *domEditor) boolCall(ctx context.Context, body string) (bool, error) {
	var ok bool
	if err := e.page.Eval(ctx, e.script(body), &ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (e *domEditor) mustCall(ctx context.Context, op, body string) error {
	ok, err := e.boolCall(ctx, body)
	if err != nil {
		return fmt.Errorf("editor %s: %w", op, err)
	}
	if !ok {
		return fmt.Errorf("editor %s: rejected", op)
	}
	return nil
}

// sourceExpr reads the editor content through its instance when one is registered
func (e *domEditor) sourceExpr() string {
	return fmt.Sprintf(`var inst = (typeof nicEditors !== 'undefined') ? nicEditors.findEditor(%s) : null;
		var src = '';
		if (inst) { src = inst.getContent() || ''; } else { var ed = primaryEditor(); src = ed ? ed.innerHTML : ''; }`,
		jsString(e.instance))
}

func (e *domEditor) Present(ctx context.Context) bool {
	ok, err := e.boolCall(ctx, `return !!primaryEditor();`)
	return err == nil && ok
}

func (e *domEditor) Clear(ctx context.Context) error {
	return e.mustCall(ctx, "clear", `var ed = primaryEditor();
		if (!ed) { return false; }
		ed.innerHTML = '';
		return true;`)
}

func (e *domEditor) MarkExisting(ctx context.Context) error {
	return e.mustCall(ctx, "mark", `var ed = primaryEditor();
		if (!ed) { return false; }
		ed.querySelectorAll('img').forEach(function(img) {
			if (!img.hasAttribute('data-image-bound')) { img.setAttribute('data-image-bound', 'existing'); }
		});
		return true;`)
}

// AppendText escapes text, turns line breaks into <br> and verifies the editor grew
func (e *domEditor) AppendText(ctx context.Context, text string) error {
	text = strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(text)
	markup := strings.ReplaceAll(html.EscapeString(text), "\n", "<br>")
	return e.mustCall(ctx, "append", fmt.Sprintf(`var ed = primaryEditor();
		if (!ed) { return false; }
		var before = ed.childNodes.length;
		var tmp = document.createElement('div');
		tmp.innerHTML = %s;
		while (tmp.firstChild) { ed.appendChild(tmp.firstChild); }
		return ed.childNodes.length > before;`, jsString(markup)))
}

func (e *domEditor) InsertAnchor(ctx context.Context, id string) error {
	return e.mustCall(ctx, "anchor", fmt.Sprintf(`var ed = primaryEditor();
		if (!ed) { return false; }
		var a = document.createElement('span');
		a.setAttribute('data-image-anchor', %s);
		a.style.display = 'inline-block';
		a.style.width = '0px';
		a.style.height = '0px';
		a.style.lineHeight = '0';
		ed.appendChild(a);
		return true;`, jsString(id)))
}

func (e *domEditor) CaretToEnd(ctx context.Context) bool {
	ok, err := e.boolCall(ctx, `var ed = primaryEditor();
		if (!ed) { return false; }
		var range = document.createRange();
		range.selectNodeContents(ed);
		range.collapse(false);
		var sel = window.getSelection();
		sel.removeAllRanges();
		sel.addRange(range);
		ed.focus();
		return true;`)
	return err == nil && ok
}

func (e *domEditor) ImageCount(ctx context.Context) (int, error) {
	var n int
	script := fmt.Sprintf(`(function(){
		%s
		try {
			%s
			var m = src ? src.match(/<img\b/gi) : null;
			return m ? m.length : 0;
		} catch (err) {
			return 0;
		}
	})()`, e.helper, e.sourceExpr())
	if err := e.page.Eval(ctx, script, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (e *domEditor) HasUnbound(ctx context.Context) (bool, error) {
	return e.boolCall(ctx, `var ed = primaryEditor();
		if (!ed) { return false; }
		return Array.prototype.some.call(ed.querySelectorAll('img'), function(img) {
			return !img.hasAttribute('data-image-bound');
		});`)
}

func (e *domEditor) BindToAnchor(ctx context.Context, id string) (bool, error) {
	return e.boolCall(ctx, fmt.Sprintf(`var ed = primaryEditor();
		if (!ed) { return false; }
		var id = %s;
		var anchor = ed.querySelector('[data-image-anchor="' + id + '"]');
		if (!anchor) { return false; }
		var imgs = Array.prototype.slice.call(ed.querySelectorAll('img'));
		var target = imgs.find(function(img) { return !img.hasAttribute('data-image-bound'); });
		if (!target) { return false; }
		anchor.parentNode.insertBefore(target, anchor);
		target.setAttribute('data-image-bound', id);
		anchor.remove();
		return true;`, jsString(id)))
}

func (e *domEditor) Sync(ctx context.Context) (bool, error) {
	return e.boolCall(ctx, fmt.Sprintf(`var inst = (typeof nicEditors !== 'undefined') ? nicEditors.findEditor(%s) : null;
		if (inst) { inst.saveContent(); return true; }
		var ta = document.querySelector(%s);
		var ed = primaryEditor();
		if (ta && ed) { ta.value = ed.innerHTML; return true; }
		return false;`, jsString(e.instance), jsString(e.mirror)))
}
