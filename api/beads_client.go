package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"trellotobeads/models"
	"trellotobeads/utils"
)

const (
	// dryRunIssueID はドライラン時に発行する仮のIDです
	dryRunIssueID = "dryrun-mock"

	helpTimeout    = 5 * time.Second
	commandTimeout = 30 * time.Second

	maxTitleLength       = 500
	maxDescriptionLength = 50000
)

var (
	validIssueTypes = map[string]bool{
		"task": true, "bug": true, "feature": true, "epic": true, "chore": true,
	}
	validStatuses = map[string]bool{
		"open": true, "in_progress": true, "blocked": true, "deferred": true, "closed": true,
	}
	validDepTypes = map[string]bool{
		"blocks": true, "related": true, "parent-child": true, "discovered-from": true,
	}

	// issueIDPattern はbdが発行する課題IDの形式です(例: bd-42)
	issueIDPattern = regexp.MustCompile(`^[a-zA-Z0-9]+-[a-zA-Z0-9]+$`)

	// createdPatterns はbdのバージョン差を吸収するためのID抽出パターンです
	createdPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Created issue:\s+([a-zA-Z0-9]+-[a-zA-Z0-9]+)`),
		regexp.MustCompile(`(?i)Issue created:\s+([a-zA-Z0-9]+-[a-zA-Z0-9]+)`),
		regexp.MustCompile(`(?i)✓\s+Created\s+([a-zA-Z0-9]+-[a-zA-Z0-9]+)`),
	}
)

// BeadsClient はbd CLIのサブプロセス実行を担当します
type BeadsClient struct {
	dbPath string
	dryRun bool

	binary  string
	timeout time.Duration
}

// NewBeadsClient は新しいbeadsクライアントを作成します
// dryRunがtrueの場合、bdコマンドは一切実行されません
func NewBeadsClient(dbPath string, dryRun bool) *BeadsClient {
	return &BeadsClient{
		dbPath:  dbPath,
		dryRun:  dryRun,
		binary:  "bd",
		timeout: commandTimeout,
	}
}

// CheckAvailable はbd CLIが実行可能かどうかを確認します
func (b *BeadsClient) CheckAvailable(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, helpTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.binary, "--help")
	cmd.Env = b.subprocessEnv()
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("bd CLIが利用できません。beadsがインストールされているか確認してください: %w", err)
	}
	return nil
}

// CheckDatabase はbeadsデータベースファイルの存在を確認します
func (b *BeadsClient) CheckDatabase() error {
	if b.dbPath == "" {
		return nil
	}
	if _, err := os.Stat(b.dbPath); err != nil {
		return fmt.Errorf("beadsデータベースが見つかりません (%s)。先に bd init を実行してください: %w", b.dbPath, err)
	}
	return nil
}

// CreateIssue は下書きレコードからbeads課題を作成し、発行されたIDを返します
func (b *BeadsClient) CreateIssue(ctx context.Context, draft *models.DraftIssue) (string, error) {
	if err := validateDraft(draft); err != nil {
		return "", err
	}

	args := []string{
		"create",
		"--title", draft.Title,
		"--description", draft.Description,
		"--priority", strconv.Itoa(draft.Priority),
		"--type", draft.IssueType,
	}
	if len(draft.Labels) > 0 {
		args = append(args, "--labels", strings.Join(draft.Labels, ","))
	}
	if draft.ExternalRef != "" {
		args = append(args, "--external-ref", draft.ExternalRef)
	}

	if b.dryRun {
		b.logDryRun(args)
		return dryRunIssueID, nil
	}

	stdout, _, err := b.runCommand(ctx, args)
	if err != nil {
		return "", err
	}
	return parseIssueID(stdout)
}

// UpdateStatus は課題のステータスを変更します
func (b *BeadsClient) UpdateStatus(ctx context.Context, issueID, status string) error {
	if !validStatuses[status] {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("不正なステータスです: %s", status)}
	}

	args := []string{"update", issueID, "--status", status}
	if b.dryRun {
		b.logDryRun(args)
		return nil
	}
	_, _, err := b.runCommand(ctx, args)
	return err
}

// UpdateDescription は課題の本文を差し替えます
func (b *BeadsClient) UpdateDescription(ctx context.Context, issueID, description string) error {
	if len(description) > maxDescriptionLength {
		return &ValidationError{Field: "description", Message: fmt.Sprintf("本文が長すぎます (%d文字)", len(description))}
	}

	args := []string{"update", issueID, "--description", description}
	if b.dryRun {
		b.logDryRun(args)
		return nil
	}
	_, _, err := b.runCommand(ctx, args)
	return err
}

// AddDependency は課題間の依存関係を追加します
func (b *BeadsClient) AddDependency(ctx context.Context, fromID, toID, depType string) error {
	if !validDepTypes[depType] {
		return &ValidationError{Field: "depType", Message: fmt.Sprintf("不正な依存タイプです: %s", depType)}
	}

	args := []string{"dep", "add", fromID, toID, "--type", depType}
	if b.dryRun {
		b.logDryRun(args)
		return nil
	}
	_, _, err := b.runCommand(ctx, args)
	return err
}

// runCommand はbdコマンドを実行し、標準出力と標準エラー出力を返します
func (b *BeadsClient) runCommand(ctx context.Context, args []string) (string, string, error) {
	cmdArgs := b.fullArgs(args)

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.binary, cmdArgs...)
	cmd.Env = b.subprocessEnv()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return stdout.String(), stderr.String(), &BeadsError{
			Command:  fmt.Sprintf("%s %s", b.binary, strings.Join(cmdArgs, " ")),
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			ExitCode: exitCode,
		}
	}
	return stdout.String(), stderr.String(), nil
}

// fullArgs は--dbフラグを含む完全な引数列を組み立てます
func (b *BeadsClient) fullArgs(args []string) []string {
	full := make([]string, 0, len(args)+2)
	if b.dbPath != "" {
		full = append(full, "--db", b.dbPath)
	}
	return append(full, args...)
}

// subprocessEnv は親プロセスの環境変数にBEADS_DIRを加えたものを返します
func (b *BeadsClient) subprocessEnv() []string {
	env := os.Environ()
	if b.dbPath != "" {
		env = append(env, fmt.Sprintf("BEADS_DIR=%s", filepath.Dir(b.dbPath)))
	}
	return env
}

func (b *BeadsClient) logDryRun(args []string) {
	utils.LogInfo("[DRY-RUN] %s %s", b.binary, strings.Join(b.fullArgs(args), " "))
}

// parseIssueID はbdの出力から発行された課題IDを抽出します
func parseIssueID(output string) (string, error) {
	for _, pattern := range createdPatterns {
		match := pattern.FindStringSubmatch(output)
		if match == nil {
			continue
		}
		if issueIDPattern.MatchString(match[1]) {
			return match[1], nil
		}
	}
	return "", fmt.Errorf("bd出力から課題IDを抽出できませんでした: %s", truncateBody(output))
}

// validateDraft はbdに渡す前のレコード検証を行います
func validateDraft(draft *models.DraftIssue) error {
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return &ValidationError{Field: "title", Message: "タイトルが空です"}
	}
	if len(draft.Title) > maxTitleLength {
		return &ValidationError{Field: "title", Message: fmt.Sprintf("タイトルが長すぎます (%d文字)", len(draft.Title))}
	}
	if len(draft.Description) > maxDescriptionLength {
		return &ValidationError{Field: "description", Message: fmt.Sprintf("本文が長すぎます (%d文字)", len(draft.Description))}
	}
	if draft.Priority < 0 || draft.Priority > 4 {
		return &ValidationError{Field: "priority", Message: fmt.Sprintf("優先度は0〜4の範囲で指定してください: %d", draft.Priority)}
	}
	if !validIssueTypes[draft.IssueType] {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("不正な課題タイプです: %s", draft.IssueType)}
	}
	if !validStatuses[draft.Status] {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("不正なステータスです: %s", draft.Status)}
	}
	for _, label := range draft.Labels {
		if label == "" {
			return &ValidationError{Field: "labels", Message: "空のラベルは指定できません"}
		}
		if strings.Contains(label, ",") {
			return &ValidationError{Field: "labels", Message: fmt.Sprintf("ラベルにカンマは使えません: %s", label)}
		}
	}
	return nil
}
