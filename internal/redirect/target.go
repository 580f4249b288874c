package redirect

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/weekend-code-project/weekendstack/internal/config"
	"github.com/weekend-code-project/weekendstack/internal/registry"
)

// Target 最终跳转地址
type Target struct {
	Scheme string
	Host   string
	Path   string
	Query  string
}

// String 拼接成Location头的值
func (t Target) String() string {
	s := t.Scheme + "://" + t.Host + t.Path
	if t.Query != "" {
		s += "?" + t.Query
	}
	return s
}

// Builder 根据区域和服务表构造跳转地址
type Builder struct {
	cfg      config.RouterConfig
	registry *registry.Registry
}

// NewBuilder 创建地址构造器
func NewBuilder(cfg config.RouterConfig, reg *registry.Registry) *Builder {
	return &Builder{cfg: cfg, registry: reg}
}

// Build 构造跳转地址，外网区域未配置公网域名时返回ErrMisconfiguredExternal
func (b *Builder) Build(zone Zone, req *Request) (Target, error) {
	switch zone {
	case Lab:
		return b.lab(req), nil
	case IPDirect:
		return b.ipDirect(req), nil
	case External:
		if b.cfg.BaseDomain == "" {
			return Target{}, NewMisconfiguredExternalError("选中外网区域但未配置公网域名")
		}
		return Target{
			Scheme: b.cfg.ExternalScheme,
			Host:   req.Service + "." + b.cfg.BaseDomain,
			Path:   tailPath(req.Tail),
			Query:  req.Query,
		}, nil
	default:
		return Target{}, fmt.Errorf("未知区域: %s", zone)
	}
}

// lab 内网域名跳转，协议沿用上游代理声明的协议
func (b *Builder) lab(req *Request) Target {
	return Target{
		Scheme: forwardedScheme(req.ForwardedProto),
		Host:   req.Service + "." + b.cfg.LabDomain,
		Path:   tailPath(req.Tail),
		Query:  req.Query,
	}
}

func (b *Builder) ipDirect(req *Request) Target {
	ep, ok := b.registry.Lookup(req.Service)
	if !ok {
		return b.lab(req)
	}

	switch ep.Kind {
	case registry.Port:
		return Target{
			Scheme: "http",
			Host:   b.directHost(req, ep.Port),
			Path:   tailPath(req.Tail),
			Query:  req.Query,
		}
	case registry.PortWithBasePath:
		path := strings.TrimRight(ep.BasePath, "/")
		if req.Tail != "" {
			path += "/" + req.Tail
		}
		if path == "" {
			path = "/"
		}
		return Target{
			Scheme: "http",
			Host:   b.directHost(req, ep.Port),
			Path:   path,
			Query:  req.Query,
		}
	case registry.NoDirectPort:
		return b.lab(req)
	default:
		return b.lab(req)
	}
}

// directHost 优先使用配置的主机IP，否则使用客户端访问时的主机
func (b *Builder) directHost(req *Request, port int) string {
	ip := b.cfg.HostIP
	if ip == "" {
		ip = Hostname(req.Host)
	}
	return net.JoinHostPort(ip, strconv.Itoa(port))
}

func tailPath(tail string) string {
	return "/" + tail
}

// forwardedScheme 取 X-Forwarded-Proto 的第一个值，仅 https 时返回 https
func forwardedScheme(header string) string {
	first, _, _ := strings.Cut(header, ",")
	if strings.EqualFold(strings.TrimSpace(first), "https") {
		return "https"
	}
	return "http"
}
