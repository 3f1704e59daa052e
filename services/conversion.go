package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"trellotobeads/api"
	"trellotobeads/config"
	"trellotobeads/models"
	"trellotobeads/utils"
)

// BoardReader はTrello APIから変換に必要なデータを読み出します
type BoardReader interface {
	GetBoard(ctx context.Context, boardID string) (*models.TrelloBoard, error)
	GetLists(ctx context.Context, boardID string) ([]models.TrelloList, error)
	GetCards(ctx context.Context, boardID string) ([]models.TrelloCard, error)
	GetCardComments(ctx context.Context, cardID string) ([]models.TrelloComment, error)
	LimiterStatus() utils.RateLimiterStatus
}

// IssueWriter はbeads課題の作成と更新を行います
type IssueWriter interface {
	CheckAvailable(ctx context.Context) error
	CheckDatabase() error
	CreateIssue(ctx context.Context, draft *models.DraftIssue) (string, error)
	UpdateStatus(ctx context.Context, issueID, status string) error
	UpdateDescription(ctx context.Context, issueID, description string) error
	AddDependency(ctx context.Context, fromID, toID, depType string) error
}

// ConversionService はTrelloボードからbeadsへの変換全体を処理します
type ConversionService struct {
	config   *config.Config
	trello   BoardReader
	beads    IssueWriter
	mapper   *StatusMapper
	builder  *RecordBuilder
	snapshot *SnapshotStore
}

// NewConversionService は新しい変換サービスを作成します
func NewConversionService(cfg *config.Config, trello BoardReader, beads IssueWriter, mapper *StatusMapper, builder *RecordBuilder, snapshot *SnapshotStore) *ConversionService {
	return &ConversionService{
		config:   cfg,
		trello:   trello,
		beads:    beads,
		mapper:   mapper,
		builder:  builder,
		snapshot: snapshot,
	}
}

// ConversionReport は変換結果の集計です
type ConversionReport struct {
	BoardName       string
	ListCount       int
	CardCount       int
	SkippedCards    int
	CreatedCount    int
	Failures        []models.WriteFailure
	StatusCounts    map[string]int
	StatusUpdated   int
	StatusFailed    int
	ChecklistCards  int
	AttachmentCards int
	LabelCards      int
	CommentCards    int
	TotalComments   int
	ResolvedCount   int
	DepsCreated     int
	DepsFailed      int
	CyclesSkipped   int
	BrokenRefs      []string
	DryRun          bool
}

// resolutionStats は参照解決パスの集計です
type resolutionStats struct {
	resolved      int
	depsCreated   int
	depsFailed    int
	cyclesSkipped int
	brokenRefs    []string
}

// RunConversion は変換処理全体を実行します
// 読み取りはTrello API、書き込みはbd CLI経由でのみ行います
func (s *ConversionService) RunConversion(ctx context.Context) error {
	startTime := time.Now()
	defer utils.TrackTime(startTime, "変換処理全体")

	utils.LogInfo("Trello → beads 変換を開始します")

	// 事前チェック(ドライラン時はbdに触らない)
	if s.config.DryRun {
		utils.LogInfo("ドライランモード: bdコマンドは実行されません")
	} else {
		if err := s.beads.CheckAvailable(ctx); err != nil {
			return err
		}
		if err := s.beads.CheckDatabase(); err != nil {
			return err
		}
	}

	snapshot, err := s.fetchBoard(ctx)
	if err != nil {
		return err
	}

	utils.LogInfo("ボード: %s", snapshot.Board.Name)
	utils.LogInfo("リスト%d件 / カード%d件", len(snapshot.Lists), len(snapshot.Cards))

	// リスト → ステータスの対応表を先に見せる
	listNames := make(map[string]string, len(snapshot.Lists))
	utils.LogInfo("リスト → ステータスの対応:")
	for _, list := range snapshot.Lists {
		listNames[list.ID] = list.Name
		utils.LogInfo("  '%s' → %s", list.Name, s.mapper.Classify(list.Name))
	}

	drafts, skipped := s.buildDrafts(snapshot, listNames)

	utils.LogInfo("Pass 1: beads課題を作成します (%d件)", len(drafts))
	mapping, failures := s.createAll(ctx, drafts)

	// 参照マップはshortLinkとshortUrlの両方をキーにする
	refMap := make(models.ReferenceMap)
	for _, draft := range drafts {
		issueID, ok := mapping[draft.CardID]
		if !ok {
			continue
		}
		refMap[draft.ShortURL] = issueID
		refMap[draft.ShortLink] = issueID
	}

	stats := resolutionStats{}
	statusUpdated, statusFailed := 0, 0
	if !s.config.DryRun && len(mapping) > 0 {
		utils.LogInfo("Pass 2: カード間参照を解決します")
		stats = s.resolveReferences(ctx, snapshot, mapping, refMap)

		// ステータス変更は依存関係を張り終えてから行う
		statusUpdated, statusFailed = s.applyStatuses(ctx, drafts, mapping)
	}

	report := s.buildReport(snapshot, listNames, drafts, skipped, mapping, failures, stats, statusUpdated, statusFailed)
	s.printSummary(report)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("変換を中断しました (作成済み%d件): %w", len(mapping), err)
	}
	if !s.config.DryRun && len(failures) > 0 {
		return fmt.Errorf("%d件のカードで課題作成に失敗しました", len(failures))
	}
	return nil
}

// FetchSnapshot はTrello APIからボード全体を取得してスナップショットに組み立てます
func FetchSnapshot(ctx context.Context, reader BoardReader, boardID string) (*models.Snapshot, error) {
	board, err := reader.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	lists, err := reader.GetLists(ctx, boardID)
	if err != nil {
		return nil, err
	}
	cards, err := reader.GetCards(ctx, boardID)
	if err != nil {
		return nil, err
	}

	// コメントはバッジで件数が見えているカードだけ取りに行く
	utils.LogInfo("コメントを取得します...")
	comments := make(map[string][]models.TrelloComment)
	for i := range cards {
		card := &cards[i]
		if card.Badges.Comments <= 0 {
			continue
		}
		cardComments, err := reader.GetCardComments(ctx, card.ID)
		if err != nil {
			return nil, err
		}
		if len(cardComments) > 0 {
			comments[card.ID] = cardComments
			utils.LogInfo("  '%s': コメント%d件", card.Name, len(cardComments))
		}
	}

	limiterStatus := reader.LimiterStatus()
	utils.LogInfo("レートリミッタ利用率: %.0f%% (残りトークン %.1f)",
		limiterStatus.UtilizationPercent, limiterStatus.AvailableTokens)

	return &models.Snapshot{
		Board:    *board,
		Lists:    lists,
		Cards:    cards,
		Comments: comments,
	}, nil
}

// fetchBoard はスナップショットまたはTrello APIからボード全体を取得します
func (s *ConversionService) fetchBoard(ctx context.Context) (*models.Snapshot, error) {
	if !s.config.Refetch {
		if snapshot, ok := s.snapshot.Load(); ok {
			utils.LogInfo("スナップショットを読み込みました (%s): カード%d件", s.snapshot.Path(), len(snapshot.Cards))
			return snapshot, nil
		}
	}

	utils.LogInfo("Trello APIからボードを取得します...")
	snapshot, err := FetchSnapshot(ctx, s.trello, s.config.BoardID)
	if err != nil {
		return nil, err
	}

	if err := s.snapshot.Save(snapshot); err != nil {
		utils.LogWarn("スナップショット保存に失敗しました: %v", err)
	} else if s.snapshot.Path() != "" {
		utils.LogInfo("スナップショットを保存しました: %s", s.snapshot.Path())
	}
	return snapshot, nil
}

// buildDrafts はカードを(リストID, 位置)順に並べて下書きレコードへ変換します
func (s *ConversionService) buildDrafts(snapshot *models.Snapshot, listNames map[string]string) ([]*models.DraftIssue, int) {
	cards := make([]models.TrelloCard, len(snapshot.Cards))
	copy(cards, snapshot.Cards)
	sort.SliceStable(cards, func(i, j int) bool {
		if cards[i].ListID != cards[j].ListID {
			return cards[i].ListID < cards[j].ListID
		}
		return cards[i].Pos < cards[j].Pos
	})

	cardsByList := make(map[string][]models.TrelloCard)
	for _, card := range cards {
		cardsByList[card.ListID] = append(cardsByList[card.ListID], card)
	}

	var drafts []*models.DraftIssue
	skipped := 0
	for i := range cards {
		card := &cards[i]
		if strings.TrimSpace(card.Name) == "" {
			utils.LogWarn("タイトルのないカードをスキップします: %s", card.ID)
			skipped++
			continue
		}

		listName, ok := listNames[card.ListID]
		if !ok {
			listName = "Unknown"
		}
		status := s.mapper.Classify(listName)
		draft := s.builder.Build(card, listName, status, cardsByList[card.ListID], snapshot.Comments[card.ID])

		if s.config.DryRun {
			utils.LogInfo("[DRY-RUN] 作成予定: '%s' (status=%s, priority=%d, labels=%s)",
				draft.Title, draft.Status, draft.Priority, strings.Join(draft.Labels, ", "))
		}
		drafts = append(drafts, draft)
	}
	return drafts, skipped
}

// createAll は下書きレコードをbeads課題として作成します
// ワーカー数1では投入順を保った直列実行になります
func (s *ConversionService) createAll(ctx context.Context, drafts []*models.DraftIssue) (models.IssueMapping, []models.WriteFailure) {
	maxWorkers := s.config.MaxWorkers
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if maxWorkers == 1 {
		return s.createSerial(ctx, drafts)
	}
	return s.createParallel(ctx, drafts, maxWorkers)
}

func (s *ConversionService) createSerial(ctx context.Context, drafts []*models.DraftIssue) (models.IssueMapping, []models.WriteFailure) {
	mapping := make(models.IssueMapping)
	var failures []models.WriteFailure

	for i, draft := range drafts {
		if ctx.Err() != nil {
			break
		}

		issueID, err := s.createOne(ctx, draft)
		if err != nil {
			utils.LogError("カード %d/%d '%s' の作成に失敗: %v", i+1, len(drafts), draft.Title, err)
			failures = append(failures, models.WriteFailure{CardID: draft.CardID, Title: draft.Title, Err: err})
			continue
		}

		utils.LogInfo("カード %d/%d を作成しました: %s '%s' (list:%s)", i+1, len(drafts), issueID, draft.Title, draft.ListName)
		mapping[draft.CardID] = issueID
	}
	return mapping, failures
}

func (s *ConversionService) createParallel(ctx context.Context, drafts []*models.DraftIssue, maxWorkers int) (models.IssueMapping, []models.WriteFailure) {
	utils.LogInfo("並列モードで作成します: ワーカー数=%d", maxWorkers)

	// 結果を格納するマップ
	mapping := make(models.IssueMapping)
	var resultMutex sync.Mutex

	var failures []models.WriteFailure
	var failureMutex sync.Mutex

	// panic発生後は安全のため直列処理へ切り替える
	degraded := false
	var degradedMutex sync.Mutex

	// セマフォとしてのチャネル（並列数を制限）
	semaphore := make(chan struct{}, maxWorkers)
	var wg sync.WaitGroup

	dispatched := 0
	for i, draft := range drafts {
		if ctx.Err() != nil {
			break
		}
		degradedMutex.Lock()
		stop := degraded
		degradedMutex.Unlock()
		if stop {
			break
		}

		wg.Add(1)
		semaphore <- struct{}{}
		dispatched = i + 1

		go func(idx int, d *models.DraftIssue) {
			defer wg.Done()
			defer func() { <-semaphore }()
			defer func() {
				if r := recover(); r != nil {
					utils.LogError("カード %d の処理でpanicが発生しました: %v", idx+1, r)
					failureMutex.Lock()
					failures = append(failures, models.WriteFailure{CardID: d.CardID, Title: d.Title, Err: fmt.Errorf("panic: %v", r)})
					failureMutex.Unlock()
					degradedMutex.Lock()
					degraded = true
					degradedMutex.Unlock()
				}
			}()

			issueID, err := s.beads.CreateIssue(ctx, d)
			if err != nil {
				utils.LogError("カード %d/%d '%s' の作成に失敗: %v", idx+1, len(drafts), d.Title, err)
				failureMutex.Lock()
				failures = append(failures, models.WriteFailure{CardID: d.CardID, Title: d.Title, Err: err})
				failureMutex.Unlock()
				return
			}

			utils.LogInfo("カード %d/%d を作成しました: %s '%s' (list:%s)", idx+1, len(drafts), issueID, d.Title, d.ListName)
			resultMutex.Lock()
			mapping[d.CardID] = issueID
			resultMutex.Unlock()
		}(i, draft)
	}

	// すべてのgoroutineの完了を待つ
	wg.Wait()
	close(semaphore)

	// 投入できなかった残りは直列で処理する
	if dispatched < len(drafts) && ctx.Err() == nil {
		remaining := drafts[dispatched:]
		utils.LogWarn("未投入の%d件を直列モードで処理します", len(remaining))
		serialMapping, serialFailures := s.createSerial(ctx, remaining)
		for cardID, issueID := range serialMapping {
			mapping[cardID] = issueID
		}
		failures = append(failures, serialFailures...)
	}

	return mapping, failures
}

// createOne はpanicを通常の失敗として扱うためのラッパーです
func (s *ConversionService) createOne(ctx context.Context, draft *models.DraftIssue) (issueID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.beads.CreateIssue(ctx, draft)
}

// resolveReferences は本文・コメント・添付ファイル中のTrelloカードURLを
// beads課題参照に置き換え、related依存関係を作成します
func (s *ConversionService) resolveReferences(ctx context.Context, snapshot *models.Snapshot, mapping models.IssueMapping, refMap models.ReferenceMap) resolutionStats {
	resolver := NewReferenceResolver(refMap)
	stats := resolutionStats{}

	for i := range snapshot.Cards {
		if ctx.Err() != nil {
			break
		}
		card := &snapshot.Cards[i]
		beadsID, ok := mapping[card.ID]
		if !ok {
			continue
		}

		res := resolver.ResolveCard(beadsID, card, snapshot.Comments[card.ID])

		for _, brokenURL := range res.BrokenURLs {
			utils.LogWarn("リンク切れ参照 %s: %s (変換対象外のカード)", beadsID, brokenURL)
		}
		stats.brokenRefs = append(stats.brokenRefs, res.BrokenURLs...)

		if res.Changed {
			body := ComposeBody(res.Description, card.Checklists, card.Attachments, res.AttachmentRefs, res.Comments)
			if err := s.beads.UpdateDescription(ctx, beadsID, body); err != nil {
				utils.LogWarn("本文更新に失敗しました %s: %v", beadsID, err)
			}
			stats.resolved++
		}

		for _, targetID := range res.ReferencedIDs {
			if err := s.beads.AddDependency(ctx, beadsID, targetID, "related"); err != nil {
				if isCycleError(err) {
					utils.LogInfo("循環依存のためスキップします: %s → %s", beadsID, targetID)
					stats.cyclesSkipped++
					continue
				}
				utils.LogWarn("依存関係の作成に失敗しました %s → %s: %v", beadsID, targetID, err)
				stats.depsFailed++
				continue
			}
			stats.depsCreated++
		}
	}
	return stats
}

// applyStatuses はopen以外のステータスを作成済み課題へ反映します
func (s *ConversionService) applyStatuses(ctx context.Context, drafts []*models.DraftIssue, mapping models.IssueMapping) (updated, failed int) {
	for _, draft := range drafts {
		if ctx.Err() != nil {
			break
		}
		if draft.Status == "open" {
			continue
		}
		issueID, ok := mapping[draft.CardID]
		if !ok {
			continue
		}
		if err := s.beads.UpdateStatus(ctx, issueID, draft.Status); err != nil {
			utils.LogWarn("ステータス更新に失敗しました %s → %s: %v", issueID, draft.Status, err)
			failed++
			continue
		}
		updated++
	}
	return updated, failed
}

func (s *ConversionService) buildReport(snapshot *models.Snapshot, listNames map[string]string, drafts []*models.DraftIssue, skipped int, mapping models.IssueMapping, failures []models.WriteFailure, stats resolutionStats, statusUpdated, statusFailed int) *ConversionReport {
	report := &ConversionReport{
		BoardName:     snapshot.Board.Name,
		ListCount:     len(snapshot.Lists),
		CardCount:     len(snapshot.Cards),
		SkippedCards:  skipped,
		CreatedCount:  len(mapping),
		Failures:      failures,
		StatusCounts:  make(map[string]int),
		StatusUpdated: statusUpdated,
		StatusFailed:  statusFailed,
		ResolvedCount: stats.resolved,
		DepsCreated:   stats.depsCreated,
		DepsFailed:    stats.depsFailed,
		CyclesSkipped: stats.cyclesSkipped,
		BrokenRefs:    stats.brokenRefs,
		DryRun:        s.config.DryRun,
	}

	for i := range snapshot.Cards {
		card := &snapshot.Cards[i]
		if len(card.Checklists) > 0 {
			report.ChecklistCards++
		}
		if len(card.Attachments) > 0 {
			report.AttachmentCards++
		}
		if len(card.Labels) > 0 {
			report.LabelCards++
		}

		listName, ok := listNames[card.ListID]
		if !ok {
			listName = "Unknown"
		}
		report.StatusCounts[s.mapper.Classify(listName)]++
	}

	report.CommentCards = len(snapshot.Comments)
	for _, comments := range snapshot.Comments {
		report.TotalComments += len(comments)
	}
	return report
}

// printSummary は変換結果のサマリーを標準出力に表示します
func (s *ConversionService) printSummary(report *ConversionReport) {
	line := strings.Repeat("=", 60)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	fmt.Println()
	fmt.Println(line)
	fmt.Println("変換結果サマリー")
	fmt.Println(line)
	fmt.Printf("ボード: %s\n", report.BoardName)
	fmt.Printf("リスト: %d件\n", report.ListCount)
	fmt.Printf("カード: %d件\n", report.CardCount)
	if report.SkippedCards > 0 {
		fmt.Printf("スキップ(タイトルなし): %d件\n", report.SkippedCards)
	}

	if report.DryRun {
		fmt.Printf("\nドライラン完了。%d件の課題を作成する予定です\n", report.CreatedCount)
		fmt.Println(line)
		return
	}

	fmt.Printf("作成した課題: %d/%d件\n", report.CreatedCount, report.CardCount)

	fmt.Println("\n引き継いだ要素:")
	fmt.Printf("  チェックリスト: %d枚のカード\n", report.ChecklistCards)
	fmt.Printf("  添付ファイル: %d枚のカード\n", report.AttachmentCards)
	fmt.Printf("  ラベル: %d枚のカード\n", report.LabelCards)
	fmt.Printf("  コメント: %d枚のカード (計%d件)\n", report.CommentCards, report.TotalComments)

	fmt.Println("\nステータス内訳:")
	for _, status := range []string{"open", "in_progress", "blocked", "deferred", "closed"} {
		if count := report.StatusCounts[status]; count > 0 {
			fmt.Printf("  %s: %d\n", status, count)
		}
	}

	fmt.Printf("\n参照解決: %d件\n", report.ResolvedCount)
	fmt.Printf("依存関係: 作成%d件 / 失敗%d件 / 循環スキップ%d件\n",
		report.DepsCreated, report.DepsFailed, report.CyclesSkipped)
	if report.StatusUpdated > 0 || report.StatusFailed > 0 {
		fmt.Printf("ステータス更新: %d件 (失敗%d件)\n", report.StatusUpdated, report.StatusFailed)
	}
	if len(report.BrokenRefs) > 0 {
		fmt.Printf("リンク切れ参照: %d件\n", len(report.BrokenRefs))
		for _, brokenURL := range report.BrokenRefs {
			fmt.Printf("  - %s\n", brokenURL)
		}
	}

	if len(report.Failures) > 0 {
		red.Printf("\n✗ 作成に失敗したカード: %d件\n", len(report.Failures))
		for _, failure := range report.Failures {
			red.Printf("  - %s: %v\n", failure.Title, failure.Err)
		}
	} else {
		green.Println("\n✓ 変換が完了しました")
	}

	fmt.Println("\n課題の一覧表示: bd list")
	fmt.Println("リストで絞り込み: bd list --labels 'list:To Do'")
	fmt.Println("課題の詳細表示: bd show <issue-id>")
	fmt.Println(line)
}

// isCycleError は依存関係追加の失敗が循環検出によるものか判定します
func isCycleError(err error) bool {
	msg := strings.ToLower(err.Error())
	var beadsErr *api.BeadsError
	if errors.As(err, &beadsErr) {
		msg += strings.ToLower(beadsErr.Stdout + beadsErr.Stderr)
	}
	return strings.Contains(msg, "cycle") || strings.Contains(msg, "circular")
}
