package tunnel

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weekend-code-project/weekendstack/internal/config"
)

func TestHTTPChecker(t *testing.T) {
	var status atomic.Int32
	var method atomic.Value
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method.Store(r.Method)
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	checker := NewHTTPChecker("http")
	ctx := context.Background()

	require.NoError(t, checker.Check(ctx, host))
	assert.Equal(t, http.MethodHead, method.Load())

	// 跳转和鉴权页面都说明入口可达
	status.Store(http.StatusFound)
	assert.NoError(t, checker.Check(ctx, host))
	status.Store(http.StatusUnauthorized)
	assert.NoError(t, checker.Check(ctx, host))

	status.Store(http.StatusBadGateway)
	assert.Error(t, checker.Check(ctx, host))
	status.Store(530)
	assert.Error(t, checker.Check(ctx, host))
}

func TestHTTPCheckerConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	assert.Error(t, NewHTTPChecker("http").Check(context.Background(), host))
}

func TestHTTPCheckerTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := NewHTTPChecker("http").Check(ctx, strings.TrimPrefix(srv.URL, "http://"))
	assert.Error(t, err)
}

// startDNSServer 启动只认识 go.example.com 的本地DNS服务
func startDNSServer(t *testing.T) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		q := r.Question[0]
		switch q.Name {
		case "go.example.com.":
			rr, _ := dns.NewRR("go.example.com. 60 IN A 203.0.113.10")
			m.Answer = append(m.Answer, rr)
		case "empty.example.com.":
		default:
			m.SetRcode(r, dns.RcodeNameError)
		}
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	server := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() {
		_ = server.ActivateAndServe()
	}()
	<-started
	t.Cleanup(func() { _ = server.Shutdown() })

	return pc.LocalAddr().String()
}

func TestDNSChecker(t *testing.T) {
	addr := startDNSServer(t)
	checker := NewDNSChecker(addr)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.NoError(t, checker.Check(ctx, "go.example.com"))

	err := checker.Check(ctx, "missing.example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NXDOMAIN")

	assert.Error(t, checker.Check(ctx, "empty.example.com"), "无应答记录视为不可用")
}

func TestDNSCheckerWithoutServer(t *testing.T) {
	assert.Error(t, NewDNSChecker("").Check(context.Background(), "go.example.com"))
}

func TestChainChecker(t *testing.T) {
	var order []string
	ok := func(name string) Checker {
		return checkerFunc(func(ctx context.Context, host string) error {
			order = append(order, name)
			return nil
		})
	}
	fail := checkerFunc(func(ctx context.Context, host string) error {
		order = append(order, "fail")
		return errors.New("down")
	})

	assert.NoError(t, ChainChecker{ok("a"), ok("b")}.Check(context.Background(), "h"))
	assert.Equal(t, []string{"a", "b"}, order)

	order = nil
	assert.Error(t, ChainChecker{fail, ok("c")}.Check(context.Background(), "h"))
	assert.Equal(t, []string{"fail"}, order, "第一个失败后不再继续")
}

func TestNewChecker(t *testing.T) {
	cfg := &config.Config{}
	cfg.Router.ExternalScheme = "https"
	cfg.Tunnel.Resolver = "1.1.1.1:53"

	cfg.Tunnel.Method = config.ProbeMethodHTTP
	assert.IsType(t, &HTTPChecker{}, NewChecker(cfg))

	cfg.Tunnel.Method = config.ProbeMethodDNS
	assert.IsType(t, &DNSChecker{}, NewChecker(cfg))

	cfg.Tunnel.Method = config.ProbeMethodDNSHTTP
	chain, ok := NewChecker(cfg).(ChainChecker)
	require.True(t, ok)
	assert.Len(t, chain, 2)
}
