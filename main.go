// trent-six はDestiny 2クランのアクティビティトラッカー。
//
// サブコマンド:
//
//	serve       APIサーバーを起動する（デフォルト）
//	worker      スキャンワーカーを起動する
//	migrate     データベースマイグレーションを実行する
//	healthcheck /health エンドポイントの死活確認を行う
package main

import (
	"fmt"
	"os"

	"github.com/henworth/trent-six/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "trent-six: %v\n", err)
		os.Exit(1)
	}
}
