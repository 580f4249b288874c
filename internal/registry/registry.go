package registry

import (
	"fmt"
	"sort"
	"strings"
)

// Registry 服务名到直连描述的只读映射，启动后不再修改
type Registry struct {
	entries map[string]Endpoint
}

// Entry 用于列举的服务条目
type Entry struct {
	Name     string   `json:"name"`
	Endpoint Endpoint `json:"endpoint"`
}

// New 复制entries构造服务表
func New(entries map[string]Endpoint) *Registry {
	copied := make(map[string]Endpoint, len(entries))
	for name, ep := range entries {
		copied[name] = ep
	}
	return &Registry{entries: copied}
}

// Lookup 按名称查找服务，名称区分大小写
func (r *Registry) Lookup(name string) (Endpoint, bool) {
	if r == nil {
		return Endpoint{}, false
	}
	ep, ok := r.entries[name]
	return ep, ok
}

// Len 返回服务数量
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Entries 按名称排序返回全部条目
func (r *Registry) Entries() []Entry {
	if r == nil {
		return nil
	}
	out := make([]Entry, 0, len(r.entries))
	for name, ep := range r.entries {
		out = append(out, Entry{Name: name, Endpoint: ep})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ValidateName 服务名不能为空，也不能包含 '.'、':'、'/' 或空白
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("服务名不能为空")
	}
	if strings.ContainsAny(name, ".:/ \t") {
		return fmt.Errorf("服务名包含非法字符: %q", name)
	}
	return nil
}
