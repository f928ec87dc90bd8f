// dakoku はブラウザ打刻キオスクのバックエンドサーバー。
//
// サブコマンド:
//
//	serve       APIサーバーを起動する（デフォルト）
//	worker      バックグラウンドジョブを起動する
//	migrate     データベースマイグレーションを実行する
//	healthcheck /health にリクエストを送る（Dockerヘルスチェック用）
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/hitoshi/dakoku/internal/app"
)

func main() {
	// .envファイルがあれば読み込む（本番では環境変数を直接渡す）
	_ = godotenv.Load()

	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("application exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
