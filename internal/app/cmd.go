package app

import "strings"

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバー（HTTP + WebSocketシグナリング）を起動する。
	CommandServe Command = "serve"
	// CommandWorker は面接の失効ジョブを定期実行する。
	CommandWorker Command = "worker"
	// CommandExpire は面接の失効処理を1回だけ実行して終了する。外部スケジューラ向け。
	CommandExpire Command = "expire"
	// CommandMigrate は埋め込みマイグレーションを適用する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のサーバーの/healthを確認する。
	// distrolessイメージにはcurlがないため、Dockerヘルスチェックから使う。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandExpire):      CommandExpire,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。大文字小文字は区別しない。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := commands[strings.ToLower(strings.TrimSpace(args[0]))]; ok {
		return cmd
	}
	return CommandServe
}
