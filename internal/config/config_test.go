package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifest = `
[build]
name = "demo"
headless = true
env = ["HOME", "LANG"]
workers = 4

[webview]
root = "/app.html"

[ssc]
argv = ["--debug", "--test"]
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(manifest))
	require.NoError(t, err)

	assert.Equal(t, "demo", c.Get("build.name"))
	assert.Equal(t, "true", c.Get("build.headless"))
	assert.Equal(t, "4", c.Get("build.workers"))
	assert.Equal(t, "/app.html", c.Get("webview.root"))
	assert.Equal(t, []string{"HOME", "LANG"}, c.List("build.env"))
	assert.Equal(t, "HOME LANG", c.Get("build.env"))
	assert.Equal(t, []string{"--debug", "--test"}, c.List("ssc.argv"))
	assert.Equal(t, "", c.Get("missing"))
	assert.Empty(t, c.List("missing"))

	assert.Equal(t, []string{
		"build.env", "build.headless", "build.name", "build.workers", "ssc.argv", "webview.root",
	}, c.Keys())
}

func TestParseError(t *testing.T) {
	_, err := Parse([]byte("[build\nname="))
	assert.Error(t, err)
}

func TestListIsCopied(t *testing.T) {
	c, err := Parse([]byte(manifest))
	require.NoError(t, err)

	l := c.List("build.env")
	l[0] = "PATH"
	assert.Equal(t, "HOME", c.List("build.env")[0])
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webbridge.toml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", c.Get("build.name"))

	_, err = Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestFromMap(t *testing.T) {
	src := map[string]string{"build.env": "A  B", "webview.root": "/x.html"}
	c := FromMap(src)
	src["webview.root"] = "changed"

	assert.Equal(t, []string{"A", "B"}, c.List("build.env"))
	assert.Equal(t, "/x.html", c.Get("webview.root"))
}

func TestNilConfig(t *testing.T) {
	var c *Config
	assert.Equal(t, "", c.Get("a"))
	assert.Nil(t, c.List("a"))
	assert.Nil(t, c.Keys())
}

func TestEnv(t *testing.T) {
	t.Setenv("WEBBRIDGE_TEST_VAR", "value")
	assert.True(t, OSEnv{}.Has("WEBBRIDGE_TEST_VAR"))
	assert.Equal(t, "value", OSEnv{}.Get("WEBBRIDGE_TEST_VAR"))

	env := MapEnv{"A": ""}
	assert.True(t, env.Has("A"))
	assert.False(t, env.Has("B"))
}
