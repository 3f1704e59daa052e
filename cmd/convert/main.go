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
	dryRun := flag.Bool("dry-run", false, "bdコマンドを実行せずに変換内容を表示する")
	refetch := flag.Bool("refetch", false, "スナップショットがあってもTrello APIから再取得する")
	workers := flag.Int("workers", 0, "課題作成の並列数（0の場合は設定ファイルの値を使用）")
	statusMapping := flag.String("status-mapping", "", "リスト名 → ステータスの対応を上書きするJSON/YAMLファイル")
	logFile := flag.String("log-file", "", "ログの出力先ファイル")
	quiet := flag.Bool("quiet", false, "INFOログを抑制する")
	help := flag.Bool("help", false, "ヘルプを表示する")

	// フラグのパース
	flag.Parse()

	// ヘルプフラグが指定された場合はヘルプを表示
	if *help {
		printHelp()
		return
	}

	if *quiet {
		utils.SetQuiet(true)
	}
	if *logFile != "" {
		if err := utils.EnableFileLog(*logFile); err != nil {
			utils.LogError("ログファイルを開けませんでした: %v", err)
			os.Exit(1)
		}
	}

	// 開始時間の記録
	startTime := time.Now()

	// 設定の読み込み
	cfg, err := config.LoadConfig()
	if err != nil {
		utils.LogError("設定の読み込みに失敗しました: %v", err)
		os.Exit(1)
	}
	cfg.DryRun = *dryRun
	cfg.Refetch = *refetch
	cfg.StatusMapping = *statusMapping
	if *workers > 0 {
		cfg.MaxWorkers = *workers
	}

	if err := cfg.ValidateCredentials(); err != nil {
		utils.LogError("%v", err)
		os.Exit(1)
	}
	if err := cfg.ValidateBoard(); err != nil {
		utils.LogError("%v", err)
		os.Exit(1)
	}

	utils.LogInfo("Trello → beads 変換ツール (v1.0.0)")
	utils.LogInfo("設定読み込み完了 (Board: %s, Workers: %d)", cfg.BoardID, cfg.MaxWorkers)

	// 必要なサービスの初期化
	mapper, err := services.NewStatusMapperFromFile(cfg.StatusMapping)
	if err != nil {
		utils.LogError("ステータス対応ファイルの読み込みに失敗しました: %v", err)
		os.Exit(1)
	}
	trelloClient := api.NewTrelloClient(cfg)
	beadsClient := api.NewBeadsClient(cfg.BeadsDBPath, cfg.DryRun)
	snapshotStore := services.NewSnapshotStore(cfg.SnapshotPath)
	conversionService := services.NewConversionService(cfg, trelloClient, beadsClient, mapper, services.NewRecordBuilder(), snapshotStore)

	// Ctrl+Cで中断されたら作成済みの分を報告して止める
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 変換の実行
	if err := conversionService.RunConversion(ctx); err != nil {
		utils.LogError("変換処理に失敗しました: %v", err)
		os.Exit(1)
	}

	// 合計実行時間の表示
	elapsed := time.Since(startTime)
	utils.LogInfo("変換処理が完了しました。合計実行時間: %s", elapsed)
}

// ヘルプメッセージを表示する関数
func printHelp() {
	fmt.Printf(`
Trello → beads 変換ツール

使用方法:
  %s [オプション]

オプション:
  -dry-run            bdコマンドを実行せずに変換内容を表示する
  -refetch            スナップショットがあってもTrello APIから再取得する
  -workers=N          課題作成の並列数を指定する
  -status-mapping=F   リスト名 → ステータスの対応を上書きするJSON/YAMLファイル
  -log-file=F         ログの出力先ファイル
  -quiet              INFOログを抑制する
  -help               このヘルプを表示する

環境変数:
  TRELLO_API_KEY      Trello APIキー (必須, https://trello.com/app-key で取得)
  TRELLO_TOKEN        Trello APIトークン (必須)
  TRELLO_BOARD_ID     変換対象のボードID
  TRELLO_BOARD_URL    ボードURL (TRELLO_BOARD_IDの代わりに指定可能)
  BEADS_DB_PATH       beadsデータベースのパス (デフォルト: .beads/beads.db)
  SNAPSHOT_PATH       スナップショットファイルのパス (デフォルト: trello_snapshot.json)
  MAX_WORKERS         課題作成の並列数 (デフォルト: 1)
  TRELLO_RATE_LIMIT   Trello APIの秒間リクエスト数上限 (デフォルト: 10)
  TRELLO_BURST        レートリミッタのバースト数 (デフォルト: 10)
  TRELLO_API_TIMEOUT  APIリクエストのタイムアウト秒数 (デフォルト: 30)

例:
  # ボードを変換
  TRELLO_BOARD_URL=https://trello.com/b/Bm0nnz1R/my-board %s

  # 変換内容の確認のみ
  %s -dry-run

  # スナップショットを無視して再取得
  %s -refetch

  # 並列数4で実行
  %s -workers=4
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}
