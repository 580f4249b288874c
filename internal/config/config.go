package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 强制模式取值
const (
	ForceModeNone     = ""
	ForceModeLocal    = "local"
	ForceModeExternal = "external"
)

// 隧道探测方式
const (
	ProbeMethodHTTP    = "http"
	ProbeMethodDNS     = "dns"
	ProbeMethodDNSHTTP = "dns+http"
)

// Config 应用程序配置结构
type Config struct {
	// 跳转服务监听配置
	Server struct {
		ListenAddress string `mapstructure:"listen_address"`
		Port          int    `mapstructure:"port"`
	} `mapstructure:"server"`

	// 管理API配置，端口为0时不启动
	Management struct {
		ListenAddress string `mapstructure:"listen_address"`
		Port          int    `mapstructure:"port"`
	} `mapstructure:"management"`

	// 路由决策配置
	Router RouterConfig `mapstructure:"router"`

	// 隧道探测配置
	Tunnel TunnelConfig `mapstructure:"tunnel"`

	// 服务表来源
	Registry struct {
		File string `mapstructure:"file"`
		Etcd struct {
			Enabled     bool     `mapstructure:"enabled"`
			Endpoints   []string `mapstructure:"endpoints"`
			DialTimeout string   `mapstructure:"dial_timeout"`
			Username    string   `mapstructure:"username"`
			Password    string   `mapstructure:"password"`
			Prefix      string   `mapstructure:"prefix"`
		} `mapstructure:"etcd"`
	} `mapstructure:"registry"`

	// 内联服务表，格式 name[=port[/base]]
	Services []string `mapstructure:"services"`

	// 指标配置
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`

	// 日志配置
	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`
}

// RouterConfig 区域选择与目标构造使用的静态配置
type RouterConfig struct {
	LabDomain       string   `mapstructure:"lab_domain"`
	BaseDomain      string   `mapstructure:"base_domain"`
	LabScheme       string   `mapstructure:"lab_scheme"`
	ExternalScheme  string   `mapstructure:"external_scheme"`
	HostIP          string   `mapstructure:"host_ip"`
	ForceMode       string   `mapstructure:"force_mode"`
	LabOnlyServices []string `mapstructure:"lab_only_services"`
}

// TunnelConfig 隧道可用性探测配置
type TunnelConfig struct {
	ProbeSubdomain string        `mapstructure:"probe_subdomain"`
	Method         string        `mapstructure:"method"`
	Resolver       string        `mapstructure:"resolver"`
	Interval       time.Duration `mapstructure:"interval"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// ProbeHost 返回探测使用的完整主机名，未配置公网域名时返回空串
func (t TunnelConfig) ProbeHost(baseDomain string) string {
	if baseDomain == "" {
		return ""
	}
	if t.ProbeSubdomain == "" {
		return baseDomain
	}
	return t.ProbeSubdomain + "." + baseDomain
}

// LoadConfig 从文件和环境变量加载配置
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// 设置默认值
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.link-router")
		v.AddConfigPath("/etc/link-router")
	}
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		// 找不到默认配置文件时使用默认值；显式指定的文件必须存在
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件错误: %w", err)
		}
	}

	// 绑定环境变量
	v.SetEnvPrefix("LINK_ROUTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVariables(v); err != nil {
		return nil, fmt.Errorf("绑定环境变量错误: %w", err)
	}
	trimValues(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置错误: %w", err)
	}

	config.normalize()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// defaults 配置默认值，空白值同样回退到这里
var defaults = map[string]any{
	"server.listen_address": "0.0.0.0",
	"server.port":           8080,

	"management.listen_address": "127.0.0.1",
	"management.port":           9090,

	"router.lab_domain":        "lab",
	"router.base_domain":       "",
	"router.lab_scheme":        "http",
	"router.external_scheme":   "https",
	"router.host_ip":           "",
	"router.force_mode":        ForceModeNone,
	"router.lab_only_services": []string{},

	"tunnel.probe_subdomain": "go",
	"tunnel.method":          ProbeMethodHTTP,
	"tunnel.resolver":        "1.1.1.1:53",
	"tunnel.interval":        "30s",
	"tunnel.timeout":         "2s",

	"registry.file":              "",
	"registry.etcd.enabled":      false,
	"registry.etcd.endpoints":    []string{"localhost:2379"},
	"registry.etcd.dial_timeout": "5s",
	"registry.etcd.prefix":       "/link-router/services/",

	"services": []string{},

	"metrics.enabled": true,

	"log.level":       "info",
	"log.development": false,
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// trimValues 去除字符串配置两端空白，空白值回退到默认值
func trimValues(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		s, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		trimmed := strings.TrimSpace(s)
		switch {
		case trimmed == "":
			if def, ok := defaults[key]; ok {
				v.Set(key, def)
			}
		case trimmed != s:
			v.Set(key, trimmed)
		}
	}
}

// bindEnvVariables 绑定部署环境沿用的无前缀变量名
func bindEnvVariables(v *viper.Viper) error {
	bindings := map[string]string{
		"server.port":              "PORT",
		"router.lab_domain":        "LAB_DOMAIN",
		"router.base_domain":       "BASE_DOMAIN",
		"router.lab_scheme":        "LAB_SCHEME",
		"router.external_scheme":   "EXTERNAL_SCHEME",
		"router.host_ip":           "HOST_IP",
		"router.force_mode":        "FORCE_MODE",
		"router.lab_only_services": "LAB_ONLY_SERVICES",
	}
	for key, legacy := range bindings {
		prefixed := "LINK_ROUTER_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return err
		}
	}
	return nil
}

// normalize 去除空白并统一大小写
func (c *Config) normalize() {
	r := &c.Router
	r.LabDomain = strings.Trim(strings.ToLower(strings.TrimSpace(r.LabDomain)), ".")
	r.BaseDomain = strings.Trim(strings.ToLower(strings.TrimSpace(r.BaseDomain)), ".")
	r.LabScheme = strings.ToLower(strings.TrimSpace(r.LabScheme))
	r.ExternalScheme = strings.ToLower(strings.TrimSpace(r.ExternalScheme))
	r.HostIP = strings.TrimSpace(r.HostIP)
	r.ForceMode = strings.ToLower(strings.TrimSpace(r.ForceMode))
	r.LabOnlyServices = trimList(r.LabOnlyServices)

	c.Tunnel.ProbeSubdomain = strings.Trim(strings.TrimSpace(c.Tunnel.ProbeSubdomain), ".")
	c.Tunnel.Method = strings.ToLower(strings.TrimSpace(c.Tunnel.Method))
	c.Registry.File = strings.TrimSpace(c.Registry.File)
	c.Services = trimList(c.Services)
}

func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate 校验配置有效性
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("跳转服务端口配置无效: %d", c.Server.Port)
	}
	if c.Management.Port < 0 || c.Management.Port > 65535 {
		return fmt.Errorf("管理API端口配置无效: %d", c.Management.Port)
	}
	if c.Management.Port != 0 && c.Management.Port == c.Server.Port &&
		c.Management.ListenAddress == c.Server.ListenAddress {
		return fmt.Errorf("管理API与跳转服务不能使用同一地址: %d", c.Server.Port)
	}
	if c.Router.LabDomain == "" {
		return fmt.Errorf("内网域名后缀不能为空")
	}
	if !validScheme(c.Router.LabScheme) {
		return fmt.Errorf("内网协议配置无效: %q", c.Router.LabScheme)
	}
	if !validScheme(c.Router.ExternalScheme) {
		return fmt.Errorf("外网协议配置无效: %q", c.Router.ExternalScheme)
	}
	switch c.Router.ForceMode {
	case ForceModeNone, ForceModeLocal, ForceModeExternal:
	default:
		return fmt.Errorf("强制模式配置无效: %q", c.Router.ForceMode)
	}
	switch c.Tunnel.Method {
	case ProbeMethodHTTP, ProbeMethodDNS, ProbeMethodDNSHTTP:
	default:
		return fmt.Errorf("隧道探测方式配置无效: %q", c.Tunnel.Method)
	}
	if c.Tunnel.Interval <= 0 {
		return fmt.Errorf("隧道探测间隔必须大于0")
	}
	if c.Tunnel.Timeout <= 0 {
		return fmt.Errorf("隧道探测超时必须大于0")
	}
	if c.Registry.Etcd.Enabled && len(c.Registry.Etcd.Endpoints) == 0 {
		return fmt.Errorf("etcd端点不能为空")
	}
	return nil
}

func validScheme(s string) bool {
	return s == "http" || s == "https"
}

// GetDefaultConfigPath 返回默认配置文件路径
func GetDefaultConfigPath() string {
	paths := []string{
		"./config.yaml",
		"./configs/config.yaml",
		os.Getenv("HOME") + "/.link-router/config.yaml",
		"/etc/link-router/config.yaml",
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}
