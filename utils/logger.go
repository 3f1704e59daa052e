package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

var (
	// InfoLogger は情報レベルのログを出力します
	InfoLogger *log.Logger
	// WarnLogger は警告レベルのログを出力します
	WarnLogger *log.Logger
	// ErrorLogger はエラーレベルのログを出力します
	ErrorLogger *log.Logger

	logMu   sync.Mutex
	quiet   bool
	logFile *os.File
)

// init関数はパッケージがインポートされたときに自動的に実行されます
func init() {
	InfoLogger = log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime)
	WarnLogger = log.New(os.Stdout, "WARN: ", log.Ldate|log.Ltime)
	ErrorLogger = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime)
}

// SetQuiet は情報レベルのログ出力を抑制します（警告とエラーは出力されます）
func SetQuiet(q bool) {
	logMu.Lock()
	defer logMu.Unlock()
	quiet = q
}

// EnableFileLog はログをファイルにも複製出力します
func EnableFileLog(path string) error {
	logMu.Lock()
	defer logMu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("ログファイルオープンエラー: %w", err)
	}

	if logFile != nil {
		logFile.Close()
	}
	logFile = f

	InfoLogger.SetOutput(io.MultiWriter(os.Stdout, f))
	WarnLogger.SetOutput(io.MultiWriter(os.Stdout, f))
	ErrorLogger.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

// LogInfo は情報レベルのメッセージをログに記録します
func LogInfo(format string, v ...interface{}) {
	logMu.Lock()
	q := quiet
	logMu.Unlock()
	if q {
		return
	}
	InfoLogger.Printf(format, v...)
}

// LogWarn は警告レベルのメッセージをログに記録します
func LogWarn(format string, v ...interface{}) {
	WarnLogger.Printf(format, v...)
}

// LogError はエラーレベルのメッセージをログに記録します
func LogError(format string, v ...interface{}) {
	ErrorLogger.Printf(format, v...)
}

// TrackTime は関数の実行時間を計測して出力するユーティリティです
func TrackTime(start time.Time, name string) {
	elapsed := time.Since(start)
	LogInfo("%s 完了時間: %s", name, elapsed)
}
