// ユーザーサービスのエントリポイント。
// 認証済みセッショントークンの情報を返す骨格実装。
package main

import (
	"log"
	"os"

	"github.com/nao1215/authhub/internal/user"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8091"
	}

	server := user.NewServer(port)

	log.Printf("ユーザーサービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("ユーザーサービスの起動に失敗: %v", err)
	}
}
