package app

// Command はtrent-sixの起動モードを表す。
// APIサーバーとスキャンワーカーは同一バイナリをサブコマンドで切り替えて
// 別プロセスとして動かす。
type Command string

const (
	// CommandServe はクラン統計APIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は名簿同期と履歴スキャンのワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
