// API Gatewayサービスのエントリポイント。
// 外部からアクセス可能な唯一のサービスであり、認証サービスと
// ユーザーサービスへのリクエストルーティングを担当する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/authhub/internal/gateway"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := gateway.NewServer(port)

	log.Printf("Gatewayサービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("Gatewayサービスの起動に失敗: %v", err)
	}
}
