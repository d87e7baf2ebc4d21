package app

import (
	"fmt"
	"strings"
)

// Command はjobtrailの起動モード。
type Command string

const (
	// CommandServe はAPIサーバー。
	CommandServe Command = "serve"
	// CommandWorker はリマインダー送信とクリーンアップのバックグラウンドジョブ。
	CommandWorker Command = "worker"
	// CommandMigrate は埋め込みマイグレーションの適用。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は/healthへの疎通確認。distrolessイメージのHEALTHCHECK用。
	CommandHealthcheck Command = "healthcheck"
	// CommandHelp はサブコマンド一覧の表示。
	CommandHelp Command = "help"
)

// commands はサブコマンドと説明。Usageの表示順を兼ねる。
var commands = []struct {
	cmd  Command
	desc string
}{
	{CommandServe, "APIサーバーを起動する（デフォルト）"},
	{CommandWorker, "リマインダーとクリーンアップのジョブを起動する"},
	{CommandMigrate, "データベースマイグレーションを適用する"},
	{CommandHealthcheck, "起動中のAPIサーバーの/healthを確認する"},
	{CommandHelp, "このヘルプを表示する"},
}

// ParseCommand は先頭の引数からサブコマンドを決める。
// 引数なし、または未知の値の場合はCommandServeを返す。2番目以降の引数は無視する。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	name := strings.TrimLeft(args[0], "-")
	for _, c := range commands {
		if string(c.cmd) == name {
			return c.cmd
		}
	}
	if name == "h" {
		return CommandHelp
	}
	return CommandServe
}

// Usage はサブコマンド一覧を返す。
func Usage() string {
	var b strings.Builder
	b.WriteString("usage: jobtrail <command>\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(&b, "  %-12s %s\n", c.cmd, c.desc)
	}
	return b.String()
}
