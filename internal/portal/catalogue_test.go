package portal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCatalogue(t *testing.T) *Catalogue {
	t.Helper()
	c, err := LoadCatalogue("")
	require.NoError(t, err)
	return c
}

func TestLoadCatalogue_Embedded(t *testing.T) {
	c := mustCatalogue(t)

	assert.Equal(t, "input[name='userId']", c.Login.UserID[0])
	assert.Equal(t, Candidates{"a#reflect"}, c.Actions.Commit)
	require.Len(t, c.Navigation, 3)
	assert.Equal(t, "new_post", c.Navigation[2].Name)
	assert.True(t, c.Navigation[1].urlRe.MatchString("https://salonboard.com/CLP/bt/blog/blogList/?x=1"))
	assert.True(t, c.finalURLRe.MatchString("https://salonboard.com/CLP/bt/top/"))
	assert.Contains(t, c.Success.Phrases, "ブログの登録が完了しました")
}

func TestLoadCatalogue_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	data, err := os.ReadFile("selectors.yaml")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	c, err := LoadCatalogue(path)
	require.NoError(t, err)
	assert.NotEmpty(t, c.Form.Editor)

	_, err = LoadCatalogue(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseCatalogue_RejectsIncomplete(t *testing.T) {
	_, err := ParseCatalogue([]byte("login:\n  user_id: []\n"))
	assert.Error(t, err)

	_, err = ParseCatalogue([]byte(": not yaml"))
	assert.Error(t, err)
}

func TestSalonSelectors(t *testing.T) {
	c := mustCatalogue(t)
	assert.Equal(t, "a[id='H000123']", c.SalonByID("H000123"))
	assert.Equal(t, "a[href*='H000123']", c.SalonByHref("H000123"))
	assert.Equal(t, `a[id='x\'y']`, c.SalonByID("x'y"))
}
