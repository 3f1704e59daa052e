package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trellotobeads/api"
	"trellotobeads/config"
	"trellotobeads/services"
	"trellotobeads/utils"
)

func main() {
	// コマンドラインフラグの定義
	output := flag.String("output", "", "スナップショットの保存先 (デフォルト: SNAPSHOT_PATHの値)")
	help := flag.Bool("help", false, "ヘルプを表示する")

	// フラグのパース
	flag.Parse()

	// ヘルプフラグが指定された場合はヘルプを表示
	if *help {
		printHelp()
		return
	}

	// 開始時間の記録
	startTime := time.Now()

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
	if err := cfg.ValidateBoard(); err != nil {
		utils.LogError("%v", err)
		os.Exit(1)
	}
	if *output != "" {
		cfg.SnapshotPath = *output
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ボード全体の取得
	utils.LogInfo("ボード %s を取得します...", cfg.BoardID)
	trelloClient := api.NewTrelloClient(cfg)
	snapshot, err := services.FetchSnapshot(ctx, trelloClient, cfg.BoardID)
	if err != nil {
		utils.LogError("ボードの取得に失敗しました: %v", err)
		os.Exit(1)
	}

	// スナップショットの保存
	store := services.NewSnapshotStore(cfg.SnapshotPath)
	if err := store.Save(snapshot); err != nil {
		utils.LogError("スナップショットの保存に失敗しました: %v", err)
		os.Exit(1)
	}

	utils.LogInfo("スナップショットを保存しました: %s", cfg.SnapshotPath)
	utils.LogInfo("ボード: %s / リスト%d件 / カード%d件 / コメント付きカード%d件",
		snapshot.Board.Name, len(snapshot.Lists), len(snapshot.Cards), len(snapshot.Comments))

	// 合計実行時間の表示
	elapsed := time.Since(startTime)
	utils.LogInfo("取得が完了しました。合計実行時間: %s", elapsed)
}

// ヘルプメッセージを表示する関数
func printHelp() {
	fmt.Printf(`
Trelloボード取得ツール

使用方法:
  %s [オプション]

オプション:
  -output=F           スナップショットの保存先ファイル
  -help               このヘルプを表示する

環境変数:
  TRELLO_API_KEY      Trello APIキー (必須, https://trello.com/app-key で取得)
  TRELLO_TOKEN        Trello APIトークン (必須)
  TRELLO_BOARD_ID     取得対象のボードID
  TRELLO_BOARD_URL    ボードURL (TRELLO_BOARD_IDの代わりに指定可能)
  SNAPSHOT_PATH       スナップショットファイルのパス (デフォルト: trello_snapshot.json)

説明:
  ボード・リスト・カード・コメントをまとめて取得し、スナップショット
  ファイルに保存します。保存したスナップショットがあれば、変換ツールは
  Trello APIへ再アクセスせずに実行できます。
`, os.Args[0])
}
