package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/weekend-code-project/weekendstack/internal/config"
)

// Source 服务表来源
type Source interface {
	// Name 来源名称，用于日志
	Name() string
	// Load 读取该来源的全部服务
	Load(ctx context.Context) (map[string]Endpoint, error)
}

// InlineSource 配置中的 name[=port[/base]] 列表
type InlineSource []string

// Name 实现Source接口
func (s InlineSource) Name() string { return "config" }

// Load 实现Source接口
func (s InlineSource) Load(ctx context.Context) (map[string]Endpoint, error) {
	out := make(map[string]Endpoint, len(s))
	for _, item := range s {
		name, value, _ := strings.Cut(item, "=")
		name = strings.TrimSpace(name)
		if err := ValidateName(name); err != nil {
			return nil, err
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("服务重复定义: %s", name)
		}
		ep, err := ParseEndpoint(value)
		if err != nil {
			return nil, fmt.Errorf("服务 %s: %w", name, err)
		}
		out[name] = ep
	}
	return out, nil
}

// FileSource YAML服务表文件，顶层只允许 services 键：
//
//	services:
//	  coder: 7080
//	  pihole: "8081/admin"
//	  traefik:
type FileSource string

// Name 实现Source接口
func (s FileSource) Name() string { return "file:" + string(s) }

// Load 实现Source接口
func (s FileSource) Load(ctx context.Context) (map[string]Endpoint, error) {
	data, err := os.ReadFile(string(s))
	if err != nil {
		return nil, fmt.Errorf("读取服务表文件失败: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML 解析YAML格式的服务表，未知的顶层键视为错误
func ParseYAML(data []byte) (map[string]Endpoint, error) {
	var doc struct {
		Services map[string]Endpoint `yaml:"services"`
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("解析服务表失败: %w", err)
	}
	for name := range doc.Services {
		if err := ValidateName(name); err != nil {
			return nil, err
		}
	}
	if doc.Services == nil {
		return map[string]Endpoint{}, nil
	}
	return doc.Services, nil
}

// Load 按顺序合并各来源，后面的来源覆盖前面的同名服务
func Load(ctx context.Context, logger config.Logger, sources ...Source) (*Registry, error) {
	merged := make(map[string]Endpoint)
	origin := make(map[string]string)

	for _, src := range sources {
		entries, err := src.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("加载服务表来源 %s 失败: %w", src.Name(), err)
		}
		for name, ep := range entries {
			if prev, ok := origin[name]; ok {
				logger.Warn("服务定义被覆盖",
					zap.String("service", name),
					zap.String("previous", prev),
					zap.String("source", src.Name()))
			}
			merged[name] = ep
			origin[name] = src.Name()
		}
		logger.Debug("服务表来源已加载",
			zap.String("source", src.Name()),
			zap.Int("count", len(entries)))
	}

	return New(merged), nil
}

// SourcesFromConfig 根据配置组装来源，etcd来源由调用方传入
func SourcesFromConfig(cfg *config.Config, etcd Source) []Source {
	sources := []Source{InlineSource(cfg.Services)}
	if cfg.Registry.File != "" {
		sources = append(sources, FileSource(cfg.Registry.File))
	}
	if etcd != nil {
		sources = append(sources, etcd)
	}
	return sources
}
