package app

import "fmt"

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーを起動する。引数省略時の既定。
	CommandServe Command = "serve"
	// CommandWorker は決済期限切れ処理と確認コード削除を定期実行する。
	CommandWorker Command = "worker"
	// CommandCleanup はworkerのジョブを1回だけ実行して終了する。cronからの起動用。
	CommandCleanup Command = "cleanup"
	// CommandMigrate は未適用のマイグレーションを適用する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のAPIサーバーの/healthを確認する。
	// distrolessイメージのDocker HEALTHCHECK用。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandCleanup):     CommandCleanup,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// usage はサブコマンドの一覧。
const usage = "usage: bijou [serve|worker|cleanup|migrate|healthcheck]"

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数が空の場合はCommandServeを返す。
// 未知のサブコマンドは打ち間違いでAPIサーバーが起動しないようエラーにする。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return "", fmt.Errorf("unknown command %q; %s", args[0], usage)
	}
	return cmd, nil
}
