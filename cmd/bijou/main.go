// Command bijou はジュエリーECバックエンドのAPIサーバー・ワーカー・マイグレーションを起動する。
//
// 使い方:
//
//	bijou [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/bijou/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "bijou: %v\n", err)
		os.Exit(1)
	}
}
