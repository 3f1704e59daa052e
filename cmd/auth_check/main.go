package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"trellotobeads/api"
	"trellotobeads/config"
	"trellotobeads/utils"
)

func main() {
	// ヘルプフラグの定義
	help := flag.Bool("help", false, "ヘルプを表示する")

	// フラグのパース
	flag.Parse()

	// ヘルプフラグが指定された場合はヘルプを表示
	if *help {
		printHelp()
		return
	}

	utils.LogInfo("Trello認証確認ツール")

	// 設定の読み込み
	cfg, err := config.LoadConfig()
	if err != nil {
		utils.LogError("設定の読み込みに失敗しました: %v", err)
		os.Exit(1)
	}
	if err := cfg.ValidateCredentials(); err != nil {
		utils.LogError("%v", err)
		os.Exit(1)
	}

	// Trelloクライアントの初期化
	trelloClient := api.NewTrelloClient(cfg)

	// 認証チェック
	utils.LogInfo("Trello APIの認証を確認しています...")
	member, err := trelloClient.ValidateCredentials(context.Background())
	if err != nil {
		utils.LogError("Trello認証エラー: %v", err)
		utils.LogError("認証情報を確認してください。")
		os.Exit(1)
	}

	utils.LogInfo("Trello認証成功！ アカウント: %s (@%s)", member.FullName, member.Username)

	// ボードが指定されていればアクセスできるかも確認する
	if cfg.BoardID != "" {
		board, err := trelloClient.GetBoard(context.Background(), cfg.BoardID)
		if err != nil {
			utils.LogError("ボード %s にアクセスできません: %v", cfg.BoardID, err)
			os.Exit(1)
		}
		utils.LogInfo("ボードにアクセスできます: %s", board.Name)
	}
}

// ヘルプメッセージを表示する関数
func printHelp() {
	fmt.Printf(`
Trello認証確認ツール

使用方法:
  %s [オプション]

オプション:
  -help               このヘルプを表示する

環境変数:
  TRELLO_API_KEY      Trello APIキー (必須, https://trello.com/app-key で取得)
  TRELLO_TOKEN        Trello APIトークン (必須)
  TRELLO_BOARD_ID     確認対象のボードID (任意)

説明:
  このツールはTrello APIの認証情報が正しく設定されているかを確認します。
  ボードが指定されていればアクセス可能かも合わせて確認します。
`, os.Args[0])
}
