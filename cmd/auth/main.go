// 認証サービスのエントリポイント。
// Naver OAuth2のコード交換・セッショントークン発行・
// トークンストアへの保存を担当する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/authhub/internal/auth"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8090"
	}

	server, err := auth.NewServer(port)
	if err != nil {
		log.Fatalf("認証サーバーの初期化に失敗: %v", err)
	}

	log.Printf("認証サービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("認証サービスの起動に失敗: %v", err)
	}
}
