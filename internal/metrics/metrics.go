package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/weekend-code-project/weekendstack/internal/tunnel"
)

const namespace = "link_router"

// Metrics 跳转服务的Prometheus指标，nil值的方法均为空操作
type Metrics struct {
	registry *prometheus.Registry

	redirectsTotal   *prometheus.CounterVec
	rejectionsTotal  *prometheus.CounterVec
	probesTotal      *prometheus.CounterVec
	tunnelAvailable  prometheus.Gauge
	registryServices prometheus.Gauge
}

// New 创建并注册全部指标
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		redirectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redirects_total",
			Help:      "Redirects issued, by selected zone.",
		}, []string{"zone"}),
		rejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Requests answered without a redirect, by status code.",
		}, []string{"code"}),
		probesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tunnel_probes_total",
			Help:      "Completed tunnel probes, by result.",
		}, []string{"result"}),
		tunnelAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tunnel_available",
			Help:      "1 if the last tunnel probe succeeded.",
		}),
		registryServices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registry_services",
			Help:      "Services in the registry.",
		}),
	}

	m.registry.MustRegister(
		m.redirectsTotal,
		m.rejectionsTotal,
		m.probesTotal,
		m.tunnelAvailable,
		m.registryServices,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRedirect 记录一次跳转
func (m *Metrics) ObserveRedirect(zone string) {
	if m == nil {
		return
	}
	m.redirectsTotal.WithLabelValues(zone).Inc()
}

// ObserveRejection 记录一次非跳转响应
func (m *Metrics) ObserveRejection(status int) {
	if m == nil {
		return
	}
	m.rejectionsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}

// ObserveProbe 记录一次隧道探测结果
func (m *Metrics) ObserveProbe(result string) {
	if m == nil {
		return
	}
	m.probesTotal.WithLabelValues(result).Inc()
	if result == tunnel.ResultAvailable {
		m.tunnelAvailable.Set(1)
	} else {
		m.tunnelAvailable.Set(0)
	}
}

// SetRegistrySize 设置服务表大小
func (m *Metrics) SetRegistrySize(n int) {
	if m == nil {
		return
	}
	m.registryServices.Set(float64(n))
}

// Handler 返回 /metrics 的HTTP处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
