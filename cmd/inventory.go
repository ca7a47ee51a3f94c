package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/wentf9/routerctl/cmd/utils"
	"github.com/wentf9/routerctl/pkg/config"
	"github.com/wentf9/routerctl/pkg/crypto"
	"github.com/wentf9/routerctl/pkg/models"
)

func NewCmdInventory() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "inventory",
		Aliases: []string{"inv", "routers"},
		Short:   "管理存储的路由器、凭据和命令组",
		Long:    `管理 inventory 中的路由器、登录凭据和命令组。支持列出、添加、删除以及加密密码。`,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	cmd.AddCommand(NewCmdInventoryList())
	cmd.AddCommand(NewCmdInventoryAdd())
	cmd.AddCommand(NewCmdInventoryDelete())
	cmd.AddCommand(NewCmdInventoryTags())
	cmd.AddCommand(NewCmdInventoryCredential())
	cmd.AddCommand(NewCmdInventoryProfiles())
	cmd.AddCommand(NewCmdInventorySeal())

	return cmd
}

func NewCmdInventoryList() *cobra.Command {
	var (
		tagFilter string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "列出所有存储的路由器",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			routers := a.provider.ListRouters()
			if tagFilter != "" {
				names := map[string]bool{}
				for _, n := range a.provider.ByTag(tagFilter) {
					names[n] = true
				}
				filtered := routers[:0]
				for _, r := range routers {
					if names[r.Name] {
						filtered = append(filtered, r)
					}
				}
				routers = filtered
			}

			if asJSON {
				return printJSON(cmd.OutOrStdout(), routers)
			}
			if len(routers) == 0 {
				if tagFilter != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "没有找到带有标签 %s 的路由器。\n", tagFilter)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "没有找到已存储的路由器。")
				}
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "名称\t别名\t地址\t用户\t跳板机\t标签")
			for _, r := range routers {
				fmt.Fprintf(w, "%s\t%s\t%s:%d\t%s\t%s\t%s\n",
					r.Name,
					strings.Join(r.Alias, ", "),
					r.Address, r.Port,
					r.Username,
					r.Jump,
					strings.Join(r.Tags, ", "),
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&tagFilter, "tag", "t", "", "按标签筛选路由器")
	cmd.Flags().BoolVar(&asJSON, "json", false, "以 JSON 输出")
	return cmd
}

func NewCmdInventoryTags() *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "列出所有标签及对应的路由器数量",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			tagMap := make(map[string]int)
			for _, r := range a.provider.ListRouters() {
				for _, tag := range r.Tags {
					tagMap[tag]++
				}
			}
			if len(tagMap) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "当前没有已定义的标签。")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "标签\t路由器数量")
			tags := make([]string, 0, len(tagMap))
			for t := range tagMap {
				tags = append(tags, t)
			}
			sort.Strings(tags)
			for _, t := range tags {
				fmt.Fprintf(w, "%s\t%d\n", t, tagMap[t])
			}
			return w.Flush()
		},
	}
}

func NewCmdInventoryAdd() *cobra.Command {
	var (
		address    string
		port       uint16
		user       string
		password   string
		credential string
		alias      []string
		tags       []string
		jump       string
	)

	cmd := &cobra.Command{
		Use:   "add <name> [user@]host[:port]",
		Short: "添加或覆盖一台路由器",
		Long: `添加一台路由器。可以引用已有凭据 (--credential), 也可以直接给出用户名和密码,
此时会创建与路由器同名的凭据。密钥文件存在时密码以 ENC: 密文保存。
用法示例:
routerctl inventory add r1 admin@10.0.0.1 --tag core --alias pe1
routerctl inventory add r2 10.0.0.2 --credential noc --jump r1`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if len(args) == 2 {
				u, h, p := utils.ParseAddr(args[1])
				if address == "" {
					address = h
				}
				if user == "" {
					user = u
				}
				if port == 0 {
					port = p
				}
			}
			if address == "" {
				return fmt.Errorf("必须指定路由器地址")
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			if jump != "" {
				if _, ok := a.provider.Router(jump); !ok {
					return fmt.Errorf("%w: 跳板机 %s", config.ErrRouterNotFound, jump)
				}
			}

			if credential == "" {
				credential = name
				if user == "" {
					user = utils.GetCurrentUser()
				}
				if password == "" {
					password, err = utils.ReadPasswordFromTerminal(fmt.Sprintf("%s@%s 的密码: ", user, address))
					if err != nil {
						return err
					}
				}
				if password, err = sealPassword(a, password); err != nil {
					return err
				}
				a.provider.AddCredential(credential, config.Credential{Username: user, Password: password})
			} else if _, ok := a.cfg.Credentials[credential]; !ok {
				return fmt.Errorf("%w: %s", config.ErrCredentialNotFound, credential)
			}

			a.provider.AddRouter(name, config.Router{
				Address:    address,
				Port:       port,
				Credential: credential,
				Alias:      alias,
				Tags:       tags,
				Jump:       jump,
			})
			if err := a.store.Save(a.cfg); err != nil {
				return fmt.Errorf("保存 inventory 失败: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "路由器 %s 已保存\n", name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&address, "address", "H", "", "路由器地址")
	cmd.Flags().Uint16VarP(&port, "port", "p", 0, "SSH 端口, 默认 22")
	cmd.Flags().StringVarP(&user, "user", "u", "", "SSH 用户名")
	cmd.Flags().StringVarP(&password, "password", "P", "", "SSH 密码, 为空时在终端提示输入")
	cmd.Flags().StringVarP(&credential, "credential", "c", "", "引用已有的凭据")
	cmd.Flags().StringSliceVarP(&alias, "alias", "a", nil, "别名, 多个用逗号分隔")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "标签, 多个用逗号分隔")
	cmd.Flags().StringVarP(&jump, "jump", "j", "", "跳板机, 引用另一台路由器的名称")
	cmd.MarkFlagsMutuallyExclusive("credential", "password")
	cmd.MarkFlagsMutuallyExclusive("credential", "user")
	return cmd
}

func NewCmdInventoryDelete() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name>...",
		Aliases: []string{"rm", "remove"},
		Short:   "删除路由器, 引用的凭据保留",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			for _, input := range args {
				name, ok := a.provider.Find(input)
				if !ok {
					return fmt.Errorf("%w: %s", config.ErrRouterNotFound, input)
				}
				a.provider.DeleteRouter(name)
				fmt.Fprintf(cmd.OutOrStdout(), "路由器 %s 已删除\n", name)
			}
			return a.store.Save(a.cfg)
		},
	}
}

func NewCmdInventoryCredential() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "credential",
		Aliases: []string{"cred"},
		Short:   "管理可被多台路由器共用的登录凭据",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "列出所有凭据",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			names := make([]string, 0, len(a.cfg.Credentials))
			for k := range a.cfg.Credentials {
				names = append(names, k)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "名称\t用户\t密码")
			for _, n := range names {
				c := a.cfg.Credentials[n]
				state := "明文"
				switch {
				case c.Password == "":
					state = "无"
				case crypto.IsEncrypted(c.Password):
					state = "已加密"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", n, c.Username, state)
			}
			return w.Flush()
		},
	})

	var user, password string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "添加或覆盖一个凭据",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			if user == "" {
				user = utils.GetCurrentUser()
			}
			if password == "" {
				password, err = utils.ReadPasswordFromTerminal(fmt.Sprintf("凭据 %s (%s) 的密码: ", args[0], user))
				if err != nil {
					return err
				}
			}
			if password, err = sealPassword(a, password); err != nil {
				return err
			}
			a.provider.AddCredential(args[0], config.Credential{Username: user, Password: password})
			if err := a.store.Save(a.cfg); err != nil {
				return fmt.Errorf("保存 inventory 失败: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "凭据 %s 已保存\n", args[0])
			return nil
		},
	}
	add.Flags().StringVarP(&user, "user", "u", "", "SSH 用户名")
	add.Flags().StringVarP(&password, "password", "P", "", "SSH 密码, 为空时在终端提示输入")
	cmd.AddCommand(add)

	return cmd
}

func NewCmdInventoryProfiles() *cobra.Command {
	var interfaces []string
	cmd := &cobra.Command{
		Use:   "profiles [name]",
		Short: "列出命令组, 指定名称时显示展开后的命令",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
				fmt.Fprintln(w, "名称\t说明")
				for _, name := range a.svc.Profiles() {
					p, _ := a.provider.Profile(name)
					fmt.Fprintf(w, "%s\t%s\n", name, p.Description)
				}
				return w.Flush()
			}

			script, quiescence, err := a.svc.ProfileScript(args[0], interfaces, 0)
			if err != nil {
				return err
			}
			printScript(out, script)
			fmt.Fprintf(out, "quiescence: %s\n", quiescence)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&interfaces, "interface", nil, "替换 {interface} 的接口")
	return cmd
}

func printScript(w io.Writer, script models.CommandScript) {
	for i, s := range script {
		fmt.Fprintf(w, "%2d. %s", i+1, s.Command)
		if s.Settle > 0 {
			fmt.Fprintf(w, "  (settle %s)", s.Settle)
		}
		fmt.Fprintln(w)
	}
}

func NewCmdInventorySeal() *cobra.Command {
	return &cobra.Command{
		Use:   "seal",
		Short: "把 inventory 中的明文密码加密保存",
		Long: `把所有明文密码加密为 ENC: 格式。密钥文件不存在时自动生成 (权限 0600),
之后读取 inventory 都需要该密钥。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			key, err := crypto.LoadOrGenerateKey(a.settings.KeyFile)
			if err != nil {
				return err
			}
			c, err := crypto.NewCrypter(key)
			if err != nil {
				return err
			}
			n, err := config.Seal(a.cfg, c)
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "没有需要加密的密码。")
				return nil
			}
			if err := a.store.Save(a.cfg); err != nil {
				return fmt.Errorf("保存 inventory 失败: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已加密 %d 个密码, 密钥文件: %s\n", n, a.settings.KeyFile)
			return nil
		},
	}
}

// sealPassword 密钥文件存在时返回密文, 否则原样返回
func sealPassword(a *app, password string) (string, error) {
	if password == "" || crypto.IsEncrypted(password) {
		return password, nil
	}
	c, err := loadCrypter(a.settings.KeyFile)
	if err != nil || c == nil {
		return password, err
	}
	return c.Encrypt(password)
}

func init() {
	rootCmd.AddCommand(NewCmdInventory())
}
