package registry

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EndpointKind 标识服务的直连方式
type EndpointKind int

const (
	// NoDirectPort 没有可直连端口，回落到内网域名
	NoDirectPort EndpointKind = iota
	// Port 直连端口
	Port
	// PortWithBasePath 直连端口加固定路径前缀
	PortWithBasePath
)

// String 返回类型名称
func (k EndpointKind) String() string {
	switch k {
	case NoDirectPort:
		return "internal"
	case Port:
		return "port"
	case PortWithBasePath:
		return "port+path"
	default:
		return fmt.Sprintf("EndpointKind(%d)", int(k))
	}
}

// MarshalText 以名称形式输出
func (k EndpointKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Endpoint 服务的直连描述
type Endpoint struct {
	Kind     EndpointKind `json:"kind"`
	Port     int          `json:"port,omitempty"`
	BasePath string       `json:"base_path,omitempty"`
}

// Internal 返回无直连端口的描述
func Internal() Endpoint {
	return Endpoint{Kind: NoDirectPort}
}

// DirectPort 返回仅端口的描述
func DirectPort(port int) Endpoint {
	return Endpoint{Kind: Port, Port: port}
}

// DirectPortWithBasePath 返回端口加路径前缀的描述
func DirectPortWithBasePath(port int, basePath string) Endpoint {
	return Endpoint{Kind: PortWithBasePath, Port: port, BasePath: basePath}
}

// ParseEndpoint 解析 ""、"-"、"8080"、"8080/admin" 形式的描述
func ParseEndpoint(value string) (Endpoint, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "-" {
		return Internal(), nil
	}

	portPart, pathPart, hasPath := strings.Cut(value, "/")
	port, err := strconv.Atoi(portPart)
	if err != nil {
		return Endpoint{}, fmt.Errorf("端口无效 %q: %w", value, err)
	}
	if port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("端口越界 %q", value)
	}

	basePath := strings.Trim(pathPart, "/")
	if !hasPath || basePath == "" {
		return DirectPort(port), nil
	}
	return DirectPortWithBasePath(port, "/"+basePath), nil
}

// String 返回与ParseEndpoint互逆的文本形式
func (e Endpoint) String() string {
	switch e.Kind {
	case Port:
		return strconv.Itoa(e.Port)
	case PortWithBasePath:
		return strconv.Itoa(e.Port) + e.BasePath
	default:
		return ""
	}
}

// UnmarshalYAML 支持 null、整数和字符串三种写法
func (e *Endpoint) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("第%d行: 服务描述必须是标量", node.Line)
	}
	if node.Tag == "!!null" {
		*e = Internal()
		return nil
	}
	parsed, err := ParseEndpoint(node.Value)
	if err != nil {
		return fmt.Errorf("第%d行: %w", node.Line, err)
	}
	*e = parsed
	return nil
}
