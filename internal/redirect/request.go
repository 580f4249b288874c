package redirect

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/weekend-code-project/weekendstack/internal/registry"
)

// 识别的路径前缀
const (
	PrefixAuto     = "/go/"
	PrefixExternal = "/go-external/"
)

// HeaderForwardedProto 上游代理声明的协议头
const HeaderForwardedProto = "X-Forwarded-Proto"

// Request 解析后的跳转请求，构造后不再修改
type Request struct {
	RawPath        string
	Host           string
	ForwardedProto string
	Service        string
	// Tail 保持转义形式，不含开头的 '/'
	Tail          string
	Query         string
	ForceExternal bool
}

// ParseHTTPRequest 从HTTP请求中解析跳转请求，优先使用请求行中的原始路径
func ParseHTTPRequest(r *http.Request) (*Request, error) {
	rawPath := r.URL.RawPath
	if rawPath == "" {
		rawPath = r.URL.EscapedPath()
	}
	return ParseRequest(rawPath, r.URL.RawQuery, r.Host, r.Header.Get(HeaderForwardedProto))
}

// ParseRequest 按前缀拆分出服务名和尾部路径，查询串原样保留
func ParseRequest(rawPath, rawQuery, host, forwardedProto string) (*Request, error) {
	var rest string
	var forceExternal bool
	switch {
	case strings.HasPrefix(rawPath, PrefixAuto):
		rest = rawPath[len(PrefixAuto):]
	case strings.HasPrefix(rawPath, PrefixExternal):
		rest = rawPath[len(PrefixExternal):]
		forceExternal = true
	default:
		return nil, NewNotFoundError("路径不在识别的前缀下: " + rawPath)
	}

	token, tail, _ := strings.Cut(rest, "/")
	service, err := url.PathUnescape(token)
	if err != nil {
		return nil, NewBadRequestError("服务名转义无效: " + token)
	}
	if err := registry.ValidateName(service); err != nil {
		return nil, NewBadRequestError(err.Error())
	}

	return &Request{
		RawPath:        rawPath,
		Host:           host,
		ForwardedProto: forwardedProto,
		Service:        service,
		Tail:           tail,
		Query:          rawQuery,
		ForceExternal:  forceExternal,
	}, nil
}
