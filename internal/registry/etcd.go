package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/weekend-code-project/weekendstack/internal/config"
)

// NewEtcdClient 按配置创建etcd客户端并测试连接
func NewEtcdClient(cfg *config.Config) (*clientv3.Client, error) {
	etcdCfg := cfg.Registry.Etcd

	dialTimeout, err := time.ParseDuration(etcdCfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("解析etcd超时时间失败: %w", err)
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   etcdCfg.Endpoints,
		DialTimeout: dialTimeout,
		Username:    etcdCfg.Username,
		Password:    etcdCfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("连接etcd失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if _, err := client.Status(ctx, etcdCfg.Endpoints[0]); err != nil {
		client.Close()
		return nil, fmt.Errorf("etcd连接测试失败: %w", err)
	}

	return client, nil
}

// EtcdSource 从etcd前缀下读取服务表，键为 <prefix><name>，值为端点描述
type EtcdSource struct {
	kv     clientv3.KV
	prefix string
}

// NewEtcdSource 创建etcd来源
func NewEtcdSource(kv clientv3.KV, prefix string) *EtcdSource {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &EtcdSource{kv: kv, prefix: prefix}
}

// Name 实现Source接口
func (s *EtcdSource) Name() string { return "etcd:" + s.prefix }

// Load 实现Source接口
func (s *EtcdSource) Load(ctx context.Context) (map[string]Endpoint, error) {
	resp, err := s.kv.Get(ctx, s.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("读取etcd服务表失败: %w", err)
	}

	out := make(map[string]Endpoint, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		name := strings.TrimPrefix(string(kv.Key), s.prefix)
		if err := ValidateName(name); err != nil {
			return nil, fmt.Errorf("etcd键 %s: %w", kv.Key, err)
		}
		ep, err := ParseEndpoint(string(kv.Value))
		if err != nil {
			return nil, fmt.Errorf("etcd键 %s: %w", kv.Key, err)
		}
		out[name] = ep
	}
	return out, nil
}
