package utils

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/term"
)

const (
	ConfigDirName  = ".routerctl"
	ConfigFileName = "inventory.yaml"
	ConfigKeyName  = "inventory.key"
)

// ParseAddr 解析 [user@]host[:port] 格式的字符串, 支持 [ipv6]:port
func ParseAddr(input string) (user, host string, port uint16) {
	input = strings.TrimSpace(input)
	if i := strings.LastIndex(input, "@"); i != -1 {
		user = strings.TrimSpace(input[:i])
		input = input[i+1:]
	}
	host, port = ParseHost(input)
	return user, host, port
}

// ParseHost 解析 host:port 格式的字符串, 没有端口时 port 为 0
func ParseHost(input string) (string, uint16) {
	if strings.HasPrefix(input, "[") {
		if end := strings.Index(input, "]"); end != -1 {
			host := input[1:end]
			rest := input[end+1:]
			if strings.HasPrefix(rest, ":") {
				return host, ParsePort(rest[1:])
			}
			return host, 0
		}
	}
	// 多个冒号且没有方括号, 视为裸 IPv6 地址
	if strings.Count(input, ":") == 1 {
		i := strings.Index(input, ":")
		return input[:i], ParsePort(input[i+1:])
	}
	return input, 0
}

// ParsePort 解析端口字符串, 非法或为空时返回 0
func ParsePort(input string) uint16 {
	if input == "" {
		return 0
	}
	port64, err := strconv.ParseUint(input, 10, 16)
	if err != nil {
		return 0
	}
	return uint16(port64)
}

func GetCurrentUser() string {
	currentUser, err := user.Current()
	if err != nil {
		return ""
	}
	return currentUser.Username
}

// DefaultConfigPaths ~/.routerctl/inventory.yaml 和对应的密钥文件
func DefaultConfigPaths() (configPath, keyPath string) {
	home, err := os.UserHomeDir()
	if err != nil {
		return ConfigFileName, ConfigKeyName
	}
	dir := filepath.Join(home, ConfigDirName)
	return filepath.Join(dir, ConfigFileName), filepath.Join(dir, ConfigKeyName)
}

// IsTerminal 判断 f 是否连接到终端
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// ReadPasswordFromTerminal 从终端安全地读取密码, 提示信息输出到 stderr
func ReadPasswordFromTerminal(prompt string) (string, error) {
	if !IsTerminal(os.Stdin) {
		return "", fmt.Errorf("stdin is not a terminal, cannot prompt for password")
	}
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr) // ReadPassword 不会打印换行符
	if err != nil {
		return "", err
	}
	return string(password), nil
}
