package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/miekg/dns"

	"github.com/weekend-code-project/weekendstack/internal/config"
)

// NewChecker 按配置的探测方式创建Checker
func NewChecker(cfg *config.Config) Checker {
	httpChecker := NewHTTPChecker(cfg.Router.ExternalScheme)
	dnsChecker := NewDNSChecker(cfg.Tunnel.Resolver)

	switch cfg.Tunnel.Method {
	case config.ProbeMethodDNS:
		return dnsChecker
	case config.ProbeMethodDNSHTTP:
		return ChainChecker{dnsChecker, httpChecker}
	default:
		return httpChecker
	}
}

// HTTPChecker 对探测主机发HEAD请求，状态码小于500视为可用
type HTTPChecker struct {
	client *http.Client
	scheme string
}

// NewHTTPChecker 创建HTTP检查器，不跟随跳转
func NewHTTPChecker(scheme string) *HTTPChecker {
	return &HTTPChecker{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		scheme: scheme,
	}
}

// Check 实现Checker接口
func (c *HTTPChecker) Check(ctx context.Context, host string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.scheme+"://"+host+"/", nil)
	if err != nil {
		return fmt.Errorf("构造探测请求失败: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("探测请求失败: %w", err)
	}
	resp.Body.Close()

	// 隧道断开时入口返回502/503/530等
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("探测返回状态码 %d", resp.StatusCode)
	}
	return nil
}

// DNSChecker 通过指定DNS服务器查询探测主机的A记录
type DNSChecker struct {
	client *dns.Client
	server string
}

// NewDNSChecker 创建DNS检查器
func NewDNSChecker(server string) *DNSChecker {
	return &DNSChecker{
		client: &dns.Client{Net: "udp"},
		server: server,
	}
}

// Check 实现Checker接口
func (c *DNSChecker) Check(ctx context.Context, host string) error {
	if c.server == "" {
		return errors.New("未配置DNS服务器")
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
	msg.RecursionDesired = true

	resp, _, err := c.client.ExchangeContext(ctx, msg, c.server)
	if err != nil {
		return fmt.Errorf("DNS查询失败: %w", err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return fmt.Errorf("DNS查询返回 %s", dns.RcodeToString[resp.Rcode])
	}
	if len(resp.Answer) == 0 {
		return fmt.Errorf("DNS查询无应答记录: %s", host)
	}
	return nil
}

// ChainChecker 依次执行，遇到第一个错误即返回
type ChainChecker []Checker

// Check 实现Checker接口
func (c ChainChecker) Check(ctx context.Context, host string) error {
	for _, checker := range c {
		if err := checker.Check(ctx, host); err != nil {
			return err
		}
	}
	return nil
}
