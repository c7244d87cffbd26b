package portal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

// fakePage is an in-memory portal: selectors map to element counts and
// clicks run scripted transitions.
type fakePage struct {
	url      string
	elements map[string]int
	texts    map[string]string
	attrs    map[string]string // "<selector>#<index>#<name>"
	body     string
	html     string

	onNavigate  func(url string)
	navigateErr error
	onClick     map[string]func()
	onFiles     func(files []string)
	evalFn      func(script string) bool

	filled   map[string]string
	selected map[string]string
	clicks   []string
	files    []string
	slept    time.Duration
	styles   int
}

func newFakePage() *fakePage {
	return &fakePage{
		elements: map[string]int{},
		texts:    map[string]string{},
		attrs:    map[string]string{},
		onClick:  map[string]func(){},
		filled:   map[string]string{},
		selected: map[string]string{},
	}
}

func (p *fakePage) show(selectors ...string) {
	for _, s := range selectors {
		p.elements[s] = 1
	}
}

func (p *fakePage) hide(selectors ...string) {
	for _, s := range selectors {
		delete(p.elements, s)
	}
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	if p.navigateErr != nil {
		return p.navigateErr
	}
	p.url = url
	if p.onNavigate != nil {
		p.onNavigate(url)
	}
	return ctx.Err()
}

func (p *fakePage) URL(ctx context.Context) (string, error) {
	return p.url, ctx.Err()
}

func (p *fakePage) Count(ctx context.Context, selector string) (int, error) {
	return p.elements[selector], ctx.Err()
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	if p.elements[selector] == 0 {
		return fmt.Errorf("click %s: %w", selector, context.DeadlineExceeded)
	}
	p.clicks = append(p.clicks, selector)
	if fn := p.onClick[selector]; fn != nil {
		fn()
	}
	return nil
}

func (p *fakePage) Fill(ctx context.Context, selector, value string) error {
	if p.elements[selector] == 0 {
		return fmt.Errorf("fill %s: element missing", selector)
	}
	p.filled[selector] = value
	return nil
}

func (p *fakePage) SelectValue(ctx context.Context, selector, value string) error {
	p.selected[selector] = value
	return nil
}

func (p *fakePage) SetFiles(ctx context.Context, selector string, files []string) error {
	p.files = append(p.files, files...)
	if p.onFiles != nil {
		p.onFiles(files)
	}
	return nil
}

func (p *fakePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if p.elements[selector] > 0 {
		return nil
	}
	return fmt.Errorf("wait visible %s: %w", selector, context.DeadlineExceeded)
}

func (p *fakePage) WaitHidden(ctx context.Context, selector string, timeout time.Duration) error {
	if p.elements[selector] == 0 {
		return nil
	}
	return fmt.Errorf("wait hidden %s: %w", selector, context.DeadlineExceeded)
}

func (p *fakePage) WaitReady(ctx context.Context, timeout time.Duration) error {
	return ctx.Err()
}

func (p *fakePage) WaitURL(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) error {
	if pattern.MatchString(p.url) {
		return nil
	}
	return fmt.Errorf("url %s: %w", p.url, context.DeadlineExceeded)
}

func (p *fakePage) Eval(ctx context.Context, script string, out interface{}) error {
	if b, ok := out.(*bool); ok && p.evalFn != nil {
		*b = p.evalFn(script)
	}
	return ctx.Err()
}

func (p *fakePage) Text(ctx context.Context, selector string) (string, error) {
	return p.texts[selector], nil
}

func (p *fakePage) Attr(ctx context.Context, selector string, index int, name string) (string, error) {
	return p.attrs[fmt.Sprintf("%s#%d#%s", selector, index, name)], nil
}

func (p *fakePage) BodyText(ctx context.Context) (string, error) {
	return p.body, nil
}

func (p *fakePage) HTML(ctx context.Context) (string, error) {
	return p.html, nil
}

func (p *fakePage) Screenshot(ctx context.Context, path string) error {
	return os.WriteFile(path, []byte("png"), 0644)
}

func (p *fakePage) AddStyle(ctx context.Context, css string) error {
	p.styles++
	return nil
}

func (p *fakePage) Sleep(ctx context.Context, d time.Duration) error {
	p.slept += d
	return ctx.Err()
}

type fakeNode struct {
	kind  string // text, anchor, img
	value string
	bound string
}

// fakeEditor mirrors the editor DOM as a flat node list
type fakeEditor struct {
	present    bool
	nodes      []fakeNode
	failAppend bool
	dropUpload bool
	synced     bool
}

func (e *fakeEditor) Present(ctx context.Context) bool { return e.present }

func (e *fakeEditor) Clear(ctx context.Context) error {
	e.nodes = nil
	return nil
}

func (e *fakeEditor) MarkExisting(ctx context.Context) error {
	for i := range e.nodes {
		if e.nodes[i].kind == "img" && e.nodes[i].bound == "" {
			e.nodes[i].bound = "existing"
		}
	}
	return nil
}

func (e *fakeEditor) AppendText(ctx context.Context, text string) error {
	if e.failAppend {
		return fmt.Errorf("editor append: rejected")
	}
	e.nodes = append(e.nodes, fakeNode{kind: "text", value: text})
	return nil
}

func (e *fakeEditor) InsertAnchor(ctx context.Context, id string) error {
	e.nodes = append(e.nodes, fakeNode{kind: "anchor", value: id})
	return nil
}

func (e *fakeEditor) CaretToEnd(ctx context.Context) bool { return e.present }

func (e *fakeEditor) ImageCount(ctx context.Context) (int, error) {
	n := 0
	for _, node := range e.nodes {
		if node.kind == "img" {
			n++
		}
	}
	return n, nil
}

func (e *fakeEditor) HasUnbound(ctx context.Context) (bool, error) {
	for _, node := range e.nodes {
		if node.kind == "img" && node.bound == "" {
			return true, nil
		}
	}
	return false, nil
}

func (e *fakeEditor) BindToAnchor(ctx context.Context, id string) (bool, error) {
	img, anchor := -1, -1
	for i, node := range e.nodes {
		if node.kind == "img" && node.bound == "" && img < 0 {
			img = i
		}
		if node.kind == "anchor" && node.value == id {
			anchor = i
		}
	}
	if img < 0 || anchor < 0 {
		return false, nil
	}
	moved := e.nodes[img]
	moved.bound = id
	var out []fakeNode
	for i, node := range e.nodes {
		switch i {
		case img:
			continue
		case anchor:
			out = append(out, moved)
		default:
			out = append(out, node)
		}
	}
	e.nodes = out
	return true, nil
}

func (e *fakeEditor) Sync(ctx context.Context) (bool, error) {
	e.synced = true
	return e.present, nil
}

// upload lands an image at the caret, i.e. the end of the editor
func (e *fakeEditor) upload(file string) {
	if e.dropUpload {
		return
	}
	e.nodes = append(e.nodes, fakeNode{kind: "img", value: file})
}

func (e *fakeEditor) imageOrder() []string {
	var out []string
	for _, node := range e.nodes {
		if node.kind == "img" {
			out = append(out, filepath.Base(node.value))
		}
	}
	return out
}

// layout renders the editor as T(text) / I(file) / A markers for order assertions
func (e *fakeEditor) layout() string {
	var parts []string
	for _, node := range e.nodes {
		switch node.kind {
		case "text":
			parts = append(parts, "T("+strings.TrimSpace(node.value)+")")
		case "img":
			parts = append(parts, "I("+filepath.Base(node.value)+")")
		default:
			parts = append(parts, "A")
		}
	}
	return strings.Join(parts, " ")
}

const (
	testLoginURL = "https://salonboard.example/login/"
	hopManage    = "#globalNavi > ul.common-CLPcommon__globalNavi > li:nth-child(2) > a"
	hopBlogMenu  = "#cmsForm > div > div > ul > li:nth-child(9) > a"
	hopNewPost   = "#newPosts"
)

// portalSim wires a fake page and editor into the happy-path portal flow
type portalSim struct {
	page   *fakePage
	editor *fakeEditor
	client *Client
	shots  string
}

func newPortalSim(t *testing.T) *portalSim {
	t.Helper()
	page := newFakePage()
	editor := &fakeEditor{present: true}
	shots := t.TempDir()

	page.onNavigate = func(url string) {
		if url == testLoginURL {
			page.show("input[name='userId']", "#jsiPwInput", "#idPasswordInputForm > div > div > a")
		}
	}
	page.onClick["#idPasswordInputForm > div > div > a"] = func() {
		page.hide("input[name='userId']", "#jsiPwInput", "#idPasswordInputForm > div > div > a")
		page.url = "https://salonboard.example/CNC/top/"
		page.show("#globalNavi", hopManage)
	}
	page.onClick[hopManage] = func() {
		page.url = "https://salonboard.example/CNB/reflect/reflectTop/"
		page.show(hopBlogMenu)
	}
	page.onClick[hopBlogMenu] = func() {
		page.url = "https://salonboard.example/CLP/bt/blog/blogList/"
		page.show(hopNewPost)
	}
	page.onClick[hopNewPost] = func() {
		page.url = "https://salonboard.example/CLP/bt/blog/blog/"
		page.show("input#blogTitle", "select#stylistId", "select#blogCategoryCd", "a#upload", "a#confirm", "textarea#blogContents")
	}
	page.onClick["a#upload"] = func() {
		page.show("div.imageUploaderModal", "input#sendFile")
	}
	page.onFiles = func(files []string) {
		page.show("img.imageUploaderModalThumbnail", "input.imageUploaderModalSubmitButton.isActive")
	}
	page.onClick["input.imageUploaderModalSubmitButton.isActive"] = func() {
		page.hide("div.imageUploaderModal", "input#sendFile", "img.imageUploaderModalThumbnail", "input.imageUploaderModalSubmitButton.isActive")
		editor.upload(page.files[len(page.files)-1])
	}
	page.onClick["a#confirm"] = func() {
		page.url = "https://salonboard.example/CLP/bt/blog/blog/confirm/"
		page.show("a#reflect")
	}
	page.onClick["a#reflect"] = func() {
		page.url = "https://salonboard.example/CLP/bt/blog/blog/complete/"
		page.body = "ブログの登録が完了しました。"
		page.show("a#back")
	}

	opts := DefaultClientOptions()
	opts.LoginURL = testLoginURL
	logger := arbor.NewLogger()
	client := NewClient(page, mustCatalogue(t), opts, NewScreenshotter(shots, logger), logger)
	client.editor = editor
	client.jitter = func() time.Duration { return 0 }

	return &portalSim{page: page, editor: editor, client: client, shots: shots}
}

// imageFiles creates n readable image files
func imageFiles(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	files := make([]string, n)
	for i := range files {
		files[i] = filepath.Join(dir, fmt.Sprintf("img%d.jpg", i+1))
		require.NoError(t, os.WriteFile(files[i], []byte("jpeg"), 0644))
	}
	return files
}
