// edgegate はブラウザ拡張クライアントとOAuth IdP・オブジェクトストレージの
// 間に立つエッジゲートウェイのエントリポイント。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/edgegate/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "edgegate: %v\n", err)
		os.Exit(1)
	}
}
