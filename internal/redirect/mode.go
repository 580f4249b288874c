package redirect

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/weekend-code-project/weekendstack/internal/config"
)

// Zone 目标区域
type Zone int

const (
	// Lab 内网域名
	Lab Zone = iota
	// IPDirect 通过IP直连端口
	IPDirect
	// External 公网隧道域名
	External
)

// String 返回区域名称，用作日志字段和指标标签
func (z Zone) String() string {
	switch z {
	case Lab:
		return "lab"
	case IPDirect:
		return "ip"
	case External:
		return "external"
	default:
		return fmt.Sprintf("Zone(%d)", int(z))
	}
}

// TunnelState 提供隧道当前是否可用的判断
type TunnelState interface {
	Available(ctx context.Context) bool
}

// Selector 根据请求、隧道状态和静态配置选择区域
type Selector struct {
	labSuffix string
	forceMode string
	labOnly   map[string]struct{}
	tunnel    TunnelState
}

// NewSelector 创建区域选择器
func NewSelector(cfg config.RouterConfig, tunnel TunnelState) *Selector {
	labOnly := make(map[string]struct{}, len(cfg.LabOnlyServices))
	for _, name := range cfg.LabOnlyServices {
		labOnly[name] = struct{}{}
	}
	return &Selector{
		labSuffix: "." + cfg.LabDomain,
		forceMode: cfg.ForceMode,
		labOnly:   labOnly,
		tunnel:    tunnel,
	}
}

// Select 按优先级决定区域：全局强制模式、仅内网服务、/go-external/ 且隧道可用、按Host自动判断。
// 只有走到第三步时才会查询隧道状态。
func (s *Selector) Select(ctx context.Context, req *Request) Zone {
	switch s.forceMode {
	case config.ForceModeLocal:
		return Lab
	case config.ForceModeExternal:
		return External
	}

	if _, ok := s.labOnly[req.Service]; ok {
		return Lab
	}

	if req.ForceExternal && s.tunnel != nil && s.tunnel.Available(ctx) {
		return External
	}

	return s.detect(req.Host)
}

// detect 根据Host判断客户端所在位置
func (s *Selector) detect(host string) Zone {
	name := Hostname(host)
	if strings.HasSuffix(name, s.labSuffix) {
		return Lab
	}
	if net.ParseIP(name) != nil || strings.ContainsAny(name, "0123456789") {
		return IPDirect
	}
	return External
}

// Hostname 返回去掉端口并转为小写的主机名，IPv6字面量去掉方括号
func Hostname(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
}
