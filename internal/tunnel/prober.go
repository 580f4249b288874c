package tunnel

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/weekend-code-project/weekendstack/internal/config"
)

// 探测结果标签
const (
	ResultAvailable    = "available"
	ResultUnavailable  = "unavailable"
	ResultUnconfigured = "unconfigured"
)

// Status 隧道可用性快照
type Status struct {
	Available  bool      `json:"available"`
	Configured bool      `json:"configured"`
	CheckedAt  time.Time `json:"checked_at"`
}

// Checker 对探测主机做一次可达性检查，返回nil表示可用
type Checker interface {
	Check(ctx context.Context, host string) error
}

// Prober 缓存隧道可用性，过期后由发现过期的请求同步探测一次。
// 并发请求可能同时发现过期并各自探测，写回时CheckedAt只增不减。
type Prober struct {
	host     string
	interval time.Duration
	timeout  time.Duration
	checker  Checker
	logger   config.Logger
	now      func() time.Time
	observe  func(result string)
	status   atomic.Pointer[Status]
}

// Option 定制Prober
type Option func(*Prober)

// WithClock 替换时钟，用于测试
func WithClock(now func() time.Time) Option {
	return func(p *Prober) { p.now = now }
}

// WithObserver 每次完成探测后回调结果标签
func WithObserver(observe func(result string)) Option {
	return func(p *Prober) { p.observe = observe }
}

// NewProber 创建探测器，host为空表示未配置公网域名
func NewProber(host string, interval, timeout time.Duration, checker Checker, logger config.Logger, opts ...Option) *Prober {
	p := &Prober{
		host:     host,
		interval: interval,
		timeout:  timeout,
		checker:  checker,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.status.Store(&Status{Configured: host != ""})
	return p
}

// NewProberFromConfig 按配置创建探测器
func NewProberFromConfig(cfg *config.Config, logger config.Logger, opts ...Option) *Prober {
	host := cfg.Tunnel.ProbeHost(cfg.Router.BaseDomain)
	return NewProber(host, cfg.Tunnel.Interval, cfg.Tunnel.Timeout, NewChecker(cfg), logger, opts...)
}

// Host 返回探测主机名
func (p *Prober) Host() string {
	return p.host
}

// CurrentStatus 返回缓存的状态，不触发探测
func (p *Prober) CurrentStatus() Status {
	return *p.status.Load()
}

// Available 返回隧道当前是否可用，缓存过期时先刷新
func (p *Prober) Available(ctx context.Context) bool {
	return p.RefreshIfStale(ctx).Available
}

// RefreshIfStale 缓存未过期时直接返回，否则同步探测并写回
func (p *Prober) RefreshIfStale(ctx context.Context) Status {
	cur := p.status.Load()
	if !cur.CheckedAt.IsZero() && p.now().Sub(cur.CheckedAt) < p.interval {
		return *cur
	}

	next := &Status{Configured: p.host != ""}
	result := ResultUnconfigured

	if p.host != "" {
		// 客户端断开不应让探测结果变为不可用
		probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		err := p.checker.Check(probeCtx, p.host)
		cancel()

		next.Available = err == nil
		if err != nil {
			result = ResultUnavailable
			p.logger.Warn("隧道探测失败", zap.String("host", p.host), zap.Error(err))
		} else {
			result = ResultAvailable
			p.logger.Debug("隧道探测成功", zap.String("host", p.host))
		}
	}
	next.CheckedAt = p.now()

	p.store(next)
	if p.observe != nil {
		p.observe(result)
	}
	return *next
}

// store 写回结果，较旧的结果不会覆盖较新的
func (p *Prober) store(next *Status) {
	for {
		cur := p.status.Load()
		if next.CheckedAt.Before(cur.CheckedAt) {
			return
		}
		if p.status.CompareAndSwap(cur, next) {
			return
		}
	}
}
