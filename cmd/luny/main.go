// Command luny はLunyダッシュボードのバックエンドを起動する。
//
//	luny [serve]     HTTPサーバー
//	luny worker      監査ログのクリーンアップ
//	luny migrate     データベースマイグレーション
//	luny healthcheck コンテナ用ヘルスチェック
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/hitoshi/luny/internal/app"
	"github.com/joho/godotenv"
)

func main() {
	// ローカル開発用。.envが無ければ環境変数のみを使う
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "luny: %v\n", err)
		os.Exit(1)
	}
}
