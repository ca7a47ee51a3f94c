package config

import "time"

// Configuration 对应 inventory yaml 文件的顶层结构
type Configuration struct {
	Credentials map[string]Credential `yaml:"credentials"`
	Routers     map[string]Router     `yaml:"routers"`
	Profiles    map[string]Profile    `yaml:"profiles,omitempty"`
}

// Credential 登录凭据, 可被多台路由器引用
type Credential struct {
	Username string `yaml:"username"`
	// Password 明文或 ENC: 前缀的密文
	Password string `yaml:"password,omitempty"`
}

// Router 一台设备的地址信息
type Router struct {
	Address    string   `yaml:"address"`
	Port       uint16   `yaml:"port,omitempty"`
	Credential string   `yaml:"credential"`
	Alias      []string `yaml:"alias,omitempty"`
	Tags       []string `yaml:"tags,omitempty"`
	// Jump 跳板机, 引用另一个 router 名
	Jump string `yaml:"jump,omitempty"`
}

// Step profile 中的一步, Settle 为写入后的等待时间
type Step struct {
	Command string        `yaml:"command"`
	Settle  time.Duration `yaml:"settle,omitempty"`
}

// Profile 一组命令模板, setup 先于 commands 发送
type Profile struct {
	Description string `yaml:"description,omitempty"`
	Setup       []Step `yaml:"setup,omitempty"`
	Commands    []Step `yaml:"commands"`
	// Settle 未单独设置 settle 的命令使用该值
	Settle     time.Duration `yaml:"settle,omitempty"`
	Quiescence time.Duration `yaml:"quiescence,omitempty"`
	// Interfaces 含 {interface} 的命令按接口逐一展开
	Interfaces []string `yaml:"interfaces,omitempty"`
}

// RouterInfo 对外展示的设备信息, 不含密码
type RouterInfo struct {
	Name     string   `json:"name" yaml:"name"`
	Address  string   `json:"address" yaml:"address"`
	Port     uint16   `json:"port" yaml:"port"`
	Username string   `json:"username" yaml:"username"`
	Alias    []string `json:"alias,omitempty" yaml:"alias,omitempty"`
	Tags     []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Jump     string   `json:"jump,omitempty" yaml:"jump,omitempty"`
}

// Empty 返回一个可直接写入的空配置
func Empty() *Configuration {
	return &Configuration{
		Credentials: map[string]Credential{},
		Routers:     map[string]Router{},
		Profiles:    map[string]Profile{},
	}
}

func (c *Configuration) normalize() {
	if c.Credentials == nil {
		c.Credentials = map[string]Credential{}
	}
	if c.Routers == nil {
		c.Routers = map[string]Router{}
	}
	if c.Profiles == nil {
		c.Profiles = map[string]Profile{}
	}
}
