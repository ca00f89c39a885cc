package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"

	"settingshub/sdk/go/settingshub"
)

const defaultServer = "http://127.0.0.1:8080"

// newApp 构建命令行应用，输出写入 out 便于测试。
func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "settingsctl",
		Usage:     "读写 settingshub 中的分组配置",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Value:   defaultServer,
				EnvVars: []string{"SETTINGSHUB_URL"},
				Usage:   "settingsd 的 HTTP 地址",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 10 * time.Second,
				Usage: "单次请求超时",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "输出分组全部属性，或指定属性的值",
				ArgsUsage: "<group> [name]",
				Action:    getAction,
			},
			{
				Name:      "set",
				Usage:     "写入单个属性，值不是合法 JSON 时按字符串处理",
				ArgsUsage: "<group> <name> <value>",
				Action:    setAction,
			},
			{
				Name:      "save",
				Usage:     "以 JSON 对象批量更新属性，已锁定的属性会被跳过",
				ArgsUsage: "<group> <json-object>",
				Action:    saveAction,
			},
			{
				Name:      "delete",
				Usage:     "删除属性",
				ArgsUsage: "<group> <name>",
				Action:    deleteAction,
			},
			{
				Name:      "lock",
				Usage:     "锁定属性",
				ArgsUsage: "<group> <name>...",
				Action:    lockAction(true),
			},
			{
				Name:      "unlock",
				Usage:     "解除锁定",
				ArgsUsage: "<group> <name>...",
				Action:    lockAction(false),
			},
			{
				Name:      "locks",
				Usage:     "列出已锁定的属性",
				ArgsUsage: "<group>",
				Action:    locksAction,
			},
			watchCommand(),
		},
	}
}

func newClient(c *cli.Context) (*settingshub.Client, error) {
	return settingshub.NewClient(c.String("server"), &http.Client{Timeout: c.Duration("timeout")})
}

func requireArgs(c *cli.Context, min int) error {
	if c.NArg() < min {
		return cli.Exit(fmt.Sprintf("参数不足，用法: %s %s", c.Command.Name, c.Command.ArgsUsage), 2)
	}
	return nil
}

func getAction(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	client, err := newClient(c)
	if err != nil {
		return err
	}
	group := c.Args().Get(0)
	if c.NArg() == 1 {
		props, err := client.Group(c.Context, group)
		if err != nil {
			return err
		}
		return printJSON(c.App.Writer, props)
	}
	raw, err := client.Property(c.Context, group, c.Args().Get(1))
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, raw)
}

func setAction(c *cli.Context) error {
	if err := requireArgs(c, 3); err != nil {
		return err
	}
	client, err := newClient(c)
	if err != nil {
		return err
	}
	return client.SetProperty(c.Context, c.Args().Get(0), c.Args().Get(1), parseValue(c.Args().Get(2)))
}

func saveAction(c *cli.Context) error {
	if err := requireArgs(c, 2); err != nil {
		return err
	}
	var props settingshub.Properties
	if err := json.Unmarshal([]byte(c.Args().Get(1)), &props); err != nil {
		return cli.Exit(fmt.Sprintf("属性必须是 JSON 对象: %v", err), 2)
	}
	client, err := newClient(c)
	if err != nil {
		return err
	}
	result, err := client.Save(c.Context, c.Args().Get(0), props)
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, result)
}

func deleteAction(c *cli.Context) error {
	if err := requireArgs(c, 2); err != nil {
		return err
	}
	client, err := newClient(c)
	if err != nil {
		return err
	}
	return client.DeleteProperty(c.Context, c.Args().Get(0), c.Args().Get(1))
}

func lockAction(lock bool) cli.ActionFunc {
	return func(c *cli.Context) error {
		if err := requireArgs(c, 2); err != nil {
			return err
		}
		client, err := newClient(c)
		if err != nil {
			return err
		}
		group, names := c.Args().First(), c.Args().Tail()
		if lock {
			return client.Lock(c.Context, group, names...)
		}
		return client.Unlock(c.Context, group, names...)
	}
}

func locksAction(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	client, err := newClient(c)
	if err != nil {
		return err
	}
	names, err := client.Locked(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, names)
}

// parseValue 把合法 JSON 原样发送，其余输入视为字符串。
func parseValue(arg string) any {
	if json.Valid([]byte(arg)) {
		return json.RawMessage(arg)
	}
	return arg
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var errUnknownDriver = errors.New("未知的事件驱动")
