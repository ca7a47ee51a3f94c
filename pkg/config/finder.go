package config

import (
	"fmt"
	"sync"
)

// finder 维护 "输入 -> router 名" 的索引。
// 支持的输入: 名称, 别名, 用户名@地址:端口, 地址。
type finder struct {
	mu    sync.RWMutex
	index map[string]string
}

func newFinder() *finder {
	return &finder{index: make(map[string]string)}
}

// add 将 router 及其所有标识符加入索引, 已存在的键不覆盖
func (f *finder) add(name string, r Router, user string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index[name] = name
	port := r.Port
	if port == 0 {
		port = 22
	}
	f.setIfAbsent(r.Address, name)
	if user != "" {
		f.setIfAbsent(fmt.Sprintf("%s@%s:%d", user, r.Address, port), name)
		f.setIfAbsent(fmt.Sprintf("%s@%s", user, r.Address), name)
	}
	for _, alias := range r.Alias {
		if alias == "" {
			continue
		}
		f.setIfAbsent(alias, name)
	}
}

func (f *finder) setIfAbsent(key, name string) {
	if key == "" {
		return
	}
	if _, ok := f.index[key]; !ok {
		f.index[key] = name
	}
}

// remove 删除指向 name 的全部索引
func (f *finder) remove(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range f.index {
		if v == name {
			delete(f.index, k)
		}
	}
}

// find 匹配用户输入
func (f *finder) find(input string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	name, ok := f.index[input]
	return name, ok
}
