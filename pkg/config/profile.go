package config

import (
	"strings"
	"time"

	"github.com/wentf9/routerctl/pkg/models"
)

const (
	// InterfacePlaceholder 命令模板中的接口占位符
	InterfacePlaceholder = "{interface}"

	// 关闭分页的每一步之后等待 0.5s, 业务命令之间等待 2s
	preambleSettle = 500 * time.Millisecond
	commandSettle  = 2 * time.Second
)

// PaginationPreamble 进入配置模式关闭 CLI 分页后退回, 否则长输出会停在 --More--
func PaginationPreamble() []Step {
	return []Step{
		{Command: "conf t", Settle: preambleSettle},
		{Command: "set cli pagination off", Settle: preambleSettle},
		{Command: "end", Settle: preambleSettle},
	}
}

func builtinProfiles() map[string]Profile {
	return map[string]Profile{
		"tejas-monitor": {
			Description: "OSPF neighbours and sorted BGP summary",
			Setup:       PaginationPreamble(),
			Commands: []Step{
				{Command: "show ip ospf neighbor"},
				{Command: "show ip bgp summary sorted"},
			},
			Settle:     commandSettle,
			Quiescence: 5 * time.Second,
		},
		"tejas-sfp": {
			Description: "100G optics readings per interface",
			Setup:       PaginationPreamble(),
			Commands: []Step{
				{Command: "show sfp 100g " + InterfacePlaceholder},
			},
			Settle:     commandSettle,
			Quiescence: 5 * time.Second,
			Interfaces: []string{"1/5/11", "1/4/5", "1/3/2"},
		},
		"system-info": {
			Description: "system information and interface brief",
			Commands: []Step{
				{Command: "show system info"},
				{Command: "show ip int br"},
			},
			Quiescence: 3 * time.Second,
		},
	}
}

// Script 展开为会话脚本: setup 在前, 含占位符的命令按接口逐一展开。
// interfaces 非空时覆盖 profile 自带的接口列表。
func (p Profile) Script(interfaces ...string) (models.CommandScript, error) {
	if len(p.Commands) == 0 {
		return nil, ErrEmptyProfile
	}
	if len(interfaces) == 0 {
		interfaces = p.Interfaces
	}
	script := make(models.CommandScript, 0, len(p.Setup)+len(p.Commands)*max(1, len(interfaces)))
	for _, s := range p.Setup {
		script = append(script, models.Step{Command: s.Command, Settle: s.Settle})
	}
	for _, c := range p.Commands {
		settle := c.Settle
		if settle == 0 {
			settle = p.Settle
		}
		if !strings.Contains(c.Command, InterfacePlaceholder) {
			script = append(script, models.Step{Command: c.Command, Settle: settle})
			continue
		}
		// 没有接口时跳过接口命令, 不发送带占位符的原文
		for _, iface := range interfaces {
			script = append(script, models.Step{
				Command: strings.ReplaceAll(c.Command, InterfacePlaceholder, iface),
				Settle:  settle,
			})
		}
	}
	return script, nil
}
