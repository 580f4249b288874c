package redirect

import (
	"context"
	"net/http"

	"github.com/weekend-code-project/weekendstack/internal/config"
	"github.com/weekend-code-project/weekendstack/internal/registry"
)

// Decision 一次跳转的完整决策
type Decision struct {
	Request *Request
	Zone    Zone
	Target  Target
}

// Router 串联解析、区域选择和地址构造
type Router struct {
	selector *Selector
	builder  *Builder
}

// NewRouter 创建跳转路由
func NewRouter(cfg config.RouterConfig, reg *registry.Registry, tunnel TunnelState) *Router {
	return &Router{
		selector: NewSelector(cfg, tunnel),
		builder:  NewBuilder(cfg, reg),
	}
}

// Resolve 处理一个HTTP请求，返回决策或*Error
func (r *Router) Resolve(ctx context.Context, httpReq *http.Request) (*Decision, error) {
	req, err := ParseHTTPRequest(httpReq)
	if err != nil {
		return nil, err
	}

	zone := r.selector.Select(ctx, req)
	target, err := r.builder.Build(zone, req)
	if err != nil {
		return &Decision{Request: req, Zone: zone}, err
	}

	return &Decision{Request: req, Zone: zone, Target: target}, nil
}
