package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"

	"trellotobeads/api"
	"trellotobeads/config"
	"trellotobeads/utils"
)

func main() {
	// コマンドラインフラグの定義
	all := flag.Bool("all", false, "閉じたボードも含めてすべて表示する")
	closed := flag.Bool("closed", false, "閉じたボードのみ表示する")
	help := flag.Bool("help", false, "ヘルプを表示する")

	// フラグのパース
	flag.Parse()

	// ヘルプフラグが指定された場合はヘルプを表示
	if *help {
		printHelp()
		return
	}

	filter := "open"
	if *all {
		filter = "all"
	}
	if *closed {
		filter = "closed"
	}

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

	// ボード一覧の取得
	trelloClient := api.NewTrelloClient(cfg)
	boards, err := trelloClient.ListBoards(context.Background(), filter)
	if err != nil {
		utils.LogError("ボード一覧の取得に失敗しました: %v", err)
		os.Exit(1)
	}

	if len(boards) == 0 {
		fmt.Println("ボードが見つかりませんでした")
		return
	}

	closedMark := color.New(color.FgRed).Sprint("[closed]")
	fmt.Printf("ボード%d件:\n\n", len(boards))
	for _, board := range boards {
		mark := ""
		if board.Closed {
			mark = " " + closedMark
		}
		fmt.Printf("  %s%s\n", board.Name, mark)
		fmt.Printf("    ID:  %s\n", board.ID)
		fmt.Printf("    URL: %s\n", board.URL)
		if board.DateLastActivity != "" {
			fmt.Printf("    最終更新: %s\n", board.DateLastActivity)
		}
		fmt.Println()
	}
	fmt.Println("変換するには TRELLO_BOARD_ID に上記のIDを設定してください")
}

// ヘルプメッセージを表示する関数
func printHelp() {
	fmt.Printf(`
Trelloボード一覧ツール

使用方法:
  %s [オプション]

オプション:
  -all                閉じたボードも含めてすべて表示する
  -closed             閉じたボードのみ表示する
  -help               このヘルプを表示する

環境変数:
  TRELLO_API_KEY      Trello APIキー (必須, https://trello.com/app-key で取得)
  TRELLO_TOKEN        Trello APIトークン (必須)

説明:
  アクセス可能なTrelloボードの一覧を表示します。
  変換対象のボードIDを調べるときに使います。
`, os.Args[0])
}
