package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadJSONWithMapPaths(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "cdn.json", `{
		// shared adapter settings
		"default-config": {
			"aws": {"region": "eu-west-1"},
			"bucket": "test-bucket",
			"url": "test.test.de",
		},
		"root-dir": "webroot",
		"paths": {
			"webroot/img": {"target-dir": "webroot/img"},
			"webroot/css/sub": {"target-dir": "webroot/css/sub", "url": ["test1.test.de", "test2.test.de"], "adapter": "MinIO"},
			"webroot/js": null
		}
	}`)

	p, err := Load(file)
	require.NoError(t, err)

	base := filepath.ToSlash(dir)
	assert.Equal(t, base, p.BaseDir())
	assert.Equal(t, base+"/webroot", p.RootDirPath())
	require.NotNil(t, p.RootDirRelative())
	assert.Equal(t, "webroot", *p.RootDirRelative())

	targets := p.Targets()
	require.Len(t, targets, 3)
	assert.Equal(t, base+"/webroot/img", targets[0].Dir)
	assert.Equal(t, "S3", targets[0].Adapter)
	assert.Equal(t, "webroot/img", targets[0].Config["target-dir"])
	assert.Equal(t, "test.test.de", targets[0].Config["url"])
	assert.Equal(t, "test-bucket", targets[0].Config["bucket"])

	assert.Equal(t, base+"/webroot/css/sub", targets[1].Dir)
	assert.Equal(t, "MinIO", targets[1].Adapter)
	assert.Equal(t, []any{"test1.test.de", "test2.test.de"}, targets[1].Config["url"])

	assert.Equal(t, base+"/webroot/js", targets[2].Dir)
	assert.Equal(t, "test-bucket", targets[2].Config["bucket"])
}

func TestLoadYAMLWithListPaths(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "cdn.yaml", `
vendor-dir: lib
inventory-file: inventory.yaml
default-config:
  bucket: assets
  url: cdn.example.com
paths:
  - img
  - css
`)

	p, err := Load(file)
	require.NoError(t, err)

	base := filepath.ToSlash(dir)
	assert.Equal(t, base+"/lib", p.VendorDirPath())
	assert.Equal(t, base+"/lib/cdn", p.InventoryDirPath())
	assert.Equal(t, base+"/lib/cdn/inventory.yaml", p.InventoryPath())
	assert.Equal(t, base+"/lib/cdn.yaml", p.BootstrapPath())
	assert.Equal(t, base, p.RootDirPath())
	assert.Nil(t, p.RootDirRelative())

	targets := p.Targets()
	require.Len(t, targets, 2)
	assert.Equal(t, base+"/img", targets[0].Dir)
	assert.Equal(t, base+"/css", targets[1].Dir)
	assert.Equal(t, "assets", targets[1].Config["bucket"])
}

func TestLoadYAMLMapPathsKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "cdn.yml", `
paths:
  zeta: {bucket: z}
  alpha: {bucket: a}
  mid:
`)
	p, err := Load(file)
	require.NoError(t, err)

	var dirs []string
	for _, target := range p.Targets() {
		dirs = append(dirs, filepath.Base(target.Dir))
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, dirs)
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	p, err := Load(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)

	base := filepath.ToSlash(dir)
	assert.Equal(t, base+"/vendor", p.VendorDirPath())
	assert.Equal(t, base+"/vendor/cdn/cdn_inventory.json", p.InventoryPath())
	assert.Equal(t, BackendFile, p.Backend())
	assert.Empty(t, p.Targets())
}

func TestLoadInvalid(t *testing.T) {
	cases := []struct {
		name    string
		file    string
		content string
	}{
		{"bad json", "cdn.json", `{"paths": [`},
		{"paths scalar", "cdn.json", `{"paths": "img"}`},
		{"unknown backend", "cdn.json", `{"inventory-backend": "redis"}`},
		{"unknown inventory extension", "cdn.yaml", "inventory-file: inv.php\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeFile(t, t.TempDir(), tc.file, tc.content))
			require.Error(t, err)
		})
	}
}

func TestAbsoluteInventoryDir(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "cdn.json", `{"inventory-dir": "/var/lib/cdn", "inventory-backend": "postgres", "inventory-name": "shop"}`)

	p, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/cdn/cdn_inventory.json", p.InventoryPath())
	assert.Equal(t, BackendPostgres, p.Backend())
	assert.Equal(t, "shop", p.InventoryName)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("CDN_PROTOCOL", "https://")
	t.Setenv("CDN_BYPASS", "true")
	t.Setenv("CDN_INVENTORY", "/srv/inv.json")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("RESOLVER_ADDR", "")

	env := FromEnv()
	assert.Equal(t, "https", env.Protocol)
	assert.True(t, env.Bypass)
	assert.Equal(t, "/srv/inv.json", env.Inventory)
	assert.Equal(t, ":8080", env.ResolverAddr)
	assert.Empty(t, env.DatabaseURL)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, ".env", "CDNSYNC_TEST_DOTENV=from-file\n")
	t.Setenv("CDNSYNC_TEST_DOTENV", "")
	os.Unsetenv("CDNSYNC_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(file, filepath.Join(dir, "absent.env")))
	assert.Equal(t, "from-file", os.Getenv("CDNSYNC_TEST_DOTENV"))
}

func TestLoadBootstrap(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "vendor/cdn.yaml", `
generated_at: "2024-05-01T12:00:00Z"
inventory:
  backend: "file"
  path: "cdn/cdn_inventory.json"
  root: "webroot"
resolver:
  protocol: "https"
  bypass: false
`)

	b, err := LoadBootstrap(file)
	require.NoError(t, err)
	assert.Equal(t, filepath.ToSlash(dir)+"/vendor/cdn/cdn_inventory.json", b.Inventory.Path)
	assert.Equal(t, "https", b.Resolver.Protocol)
	assert.Equal(t, "webroot", b.Inventory.Root)
}

func TestOpenInventory(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "cdn.json", `{"inventory-file": "inv.yaml"}`)
	p, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "default", p.InventoryID())

	inv, err := p.OpenInventory(nil)
	require.NoError(t, err)
	require.NoError(t, inv.Put(t.Context(), "a.png", "a.png", "cdn/a.png"))
	_, err = os.Stat(filepath.Join(dir, "vendor", "cdn", "inv.yaml"))
	require.NoError(t, err)

	p.InventoryBackend = BackendPostgres
	_, err = p.OpenInventory(nil)
	require.Error(t, err)
}
