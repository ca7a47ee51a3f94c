package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/wentf9/routerctl/cmd/utils"
	"github.com/wentf9/routerctl/pkg/session"
	"github.com/wentf9/routerctl/pkg/ssh"
	pkgutils "github.com/wentf9/routerctl/pkg/utils"
)

// EnvPrefix 环境变量前缀, 如 ROUTERCTL_INVENTORY
const EnvPrefix = "ROUTERCTL"

// settings 运行参数, 优先级: 命令行 > 环境变量 (含 .env) > 默认值
type settings struct {
	Inventory        string
	KeyFile          string
	ConnectTimeout   time.Duration
	Quiescence       time.Duration
	IdleGap          time.Duration
	ExecTimeout      time.Duration
	KeepAlive        time.Duration
	Concurrency      uint
	LegacyAlgorithms bool
	KnownHosts       string
	Listen           string
	Password         string
}

func bindPersistentFlags(cmd *cobra.Command) {
	configPath, keyPath := utils.DefaultConfigPaths()
	flags := cmd.PersistentFlags()
	flags.String("inventory", configPath, "inventory 文件路径")
	flags.String("key-file", keyPath, "加密 inventory 密码使用的密钥文件")
	flags.String("env-file", ".env", "启动时加载的 .env 文件, 不存在时忽略")
	flags.String("log-level", "error", "日志级别 debug|info|warn|error")
	flags.Bool("debug", false, "开启调试日志")
	flags.Duration("connect-timeout", session.DefaultConnectTimeout, "建立 SSH 连接的超时时间")
	flags.Duration("quiescence", session.DefaultQuiescence, "最后一条命令之后继续读取输出的时间")
	flags.Duration("idle-gap", 0, "连续这么久没有输出时提前结束等待, 0 表示总是等满 quiescence")
	flags.Duration("exec-timeout", 30*time.Second, "exec 命令的总超时时间 (含连接)")
	flags.Duration("keepalive", ssh.DefaultKeepAlive, "SSH 心跳间隔, 0 表示关闭")
	flags.Uint("concurrency", pkgutils.DefaultConcurrency, "批量执行时同时连接的设备数")
	flags.Bool("legacy-algorithms", false, "允许老旧设备使用的 CBC 加密和 SHA-1 密钥交换")
	flags.String("known-hosts", "", "known_hosts 文件路径, 为空时不校验主机密钥")
	flags.String("password", "", "不在 inventory 中的设备使用的 SSH 密码, 为空时在终端提示输入")

	flags.VisitAll(func(f *pflag.Flag) {
		_ = viper.BindPFlag(f.Name, f)
	})
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadEnvFile .env 中的变量不覆盖已存在的环境变量
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("加载环境变量文件 %s 失败: %w", path, err)
	}
	return nil
}

func loadSettings() settings {
	return settings{
		Inventory:        viper.GetString("inventory"),
		KeyFile:          viper.GetString("key-file"),
		ConnectTimeout:   viper.GetDuration("connect-timeout"),
		Quiescence:       viper.GetDuration("quiescence"),
		IdleGap:          viper.GetDuration("idle-gap"),
		ExecTimeout:      viper.GetDuration("exec-timeout"),
		KeepAlive:        viper.GetDuration("keepalive"),
		Concurrency:      viper.GetUint("concurrency"),
		LegacyAlgorithms: viper.GetBool("legacy-algorithms"),
		KnownHosts:       viper.GetString("known-hosts"),
		Listen:           viper.GetString("listen"),
		Password:         viper.GetString("password"),
	}
}
