package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/weekend-code-project/weekendstack/internal/config"
)

// recordLogger 记录Warn日志，用于断言覆盖提示
type recordLogger struct {
	warns []string
}

func (l *recordLogger) Debug(msg string, fields ...zapcore.Field) {}
func (l *recordLogger) Info(msg string, fields ...zapcore.Field)  {}
func (l *recordLogger) Warn(msg string, fields ...zapcore.Field)  { l.warns = append(l.warns, msg) }
func (l *recordLogger) Error(msg string, fields ...zapcore.Field) {}
func (l *recordLogger) Fatal(msg string, fields ...zapcore.Field) {}
func (l *recordLogger) Sync() error                               { return nil }

type failingSource struct{}

func (failingSource) Name() string { return "broken" }
func (failingSource) Load(ctx context.Context) (map[string]Endpoint, error) {
	return nil, errors.New("boom")
}

func TestInlineSource(t *testing.T) {
	entries, err := InlineSource{"coder=7080", "pihole = 8081/admin", "traefik", "gitea="}.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, DirectPort(7080), entries["coder"])
	assert.Equal(t, DirectPortWithBasePath(8081, "/admin"), entries["pihole"])
	assert.Equal(t, Internal(), entries["traefik"])
	assert.Equal(t, Internal(), entries["gitea"])
}

func TestInlineSourceErrors(t *testing.T) {
	_, err := InlineSource{"coder=7080", "coder=7081"}.Load(context.Background())
	assert.Error(t, err, "重复的服务名应报错")

	_, err = InlineSource{"bad.name=80"}.Load(context.Background())
	assert.Error(t, err)

	_, err = InlineSource{"coder=http"}.Load(context.Background())
	assert.Error(t, err)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
services:
  Coder: 7080
  grafana: "3000/grafana"
  traefik:
`), 0o600))

	entries, err := FileSource(path).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.Equal(t, DirectPort(7080), entries["Coder"], "YAML文件中的服务名保留大小写")
	assert.Equal(t, DirectPortWithBasePath(3000, "/grafana"), entries["grafana"])
	assert.Equal(t, Internal(), entries["traefik"])
}

func TestFileSourceMissing(t *testing.T) {
	_, err := FileSource(filepath.Join(t.TempDir(), "missing.yaml")).Load(context.Background())
	assert.Error(t, err)
}

func TestParseYAMLEmptyAndInvalid(t *testing.T) {
	entries, err := ParseYAML([]byte("# nothing\n"))
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = ParseYAML([]byte("services:\n  a.b: 80\n"))
	assert.Error(t, err)

	_, err = ParseYAML([]byte("services:\n  a: notaport\n"))
	assert.Error(t, err)
}

func TestParseYAMLRejectsUnknownKeys(t *testing.T) {
	// 缺少 services 键的顶层映射不能被当作空服务表
	_, err := ParseYAML([]byte("coder: 7080\npihole: 8081/admin\n"))
	assert.Error(t, err)

	_, err = ParseYAML([]byte("services:\n  coder: 7080\nextra: true\n"))
	assert.Error(t, err)

	entries, err := ParseYAML([]byte(""))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadMergesInOrder(t *testing.T) {
	logger := &recordLogger{}
	r, err := Load(context.Background(), logger,
		InlineSource{"coder=7080", "gitea"},
		InlineSource{"coder=7090"},
	)
	require.NoError(t, err)

	ep, ok := r.Lookup("coder")
	require.True(t, ok)
	assert.Equal(t, 7090, ep.Port, "后加载的来源覆盖前面的定义")
	assert.Equal(t, 2, r.Len())
	assert.Len(t, logger.warns, 1)
}

func TestLoadStopsOnSourceError(t *testing.T) {
	r, err := Load(context.Background(), config.NewNopLogger(), InlineSource{"coder"}, failingSource{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Nil(t, r)
}

func TestSourcesFromConfig(t *testing.T) {
	cfg := &config.Config{Services: []string{"coder=7080"}}
	assert.Len(t, SourcesFromConfig(cfg, nil), 1)

	cfg.Registry.File = "/etc/link-router/services.yaml"
	etcd := NewEtcdSource(nil, "/link-router/services")
	sources := SourcesFromConfig(cfg, etcd)
	require.Len(t, sources, 3)
	assert.Equal(t, "config", sources[0].Name())
	assert.Equal(t, "file:/etc/link-router/services.yaml", sources[1].Name())
	assert.Equal(t, "etcd:/link-router/services/", sources[2].Name())
}
