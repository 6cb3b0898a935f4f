// -----------------------------------------------------------------------
// Crash Protection - fatal panic capture for the CLI process
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// CrashLogDir is where crash reports are written
var CrashLogDir = "./logs"

// InstallCrashHandler sets the crash directory and makes sure it exists.
// Pair with: defer common.RecoverWithCrashFile()
func InstallCrashHandler(logDir string) {
	if logDir != "" {
		CrashLogDir = logDir
	}
	if err := os.MkdirAll(CrashLogDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: failed to create log directory: %v\n", err)
	}
}

// WriteCrashFile writes a crash report and returns its path, or "" when the
// report could only be written to stderr.
func WriteCrashFile(panicVal interface{}, stackTrace string) string {
	now := time.Now()
	crashPath := filepath.Join(CrashLogDir, fmt.Sprintf("optout-crash-%s.log", now.Format("2006-01-02T15-04-05")))

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	var b strings.Builder
	fmt.Fprintf(&b, "=== OPTOUT CRASH REPORT ===\n")
	fmt.Fprintf(&b, "Time: %s\nVersion: %s\n\n", now.Format(time.RFC3339), GetFullVersion())
	fmt.Fprintf(&b, "=== PANIC ===\n%v\n\n", panicVal)
	fmt.Fprintf(&b, "=== STACK ===\n%s\n\n", stackTrace)
	fmt.Fprintf(&b, "=== GOROUTINES (%d) ===\n%s\n\n", runtime.NumGoroutine(), allGoroutineStacks())
	fmt.Fprintf(&b, "=== RUNTIME ===\nGOOS/GOARCH: %s/%s\nNumCPU: %d\nAlloc: %d MB\nSys: %d MB\nNumGC: %d\n",
		runtime.GOOS, runtime.GOARCH, runtime.NumCPU(), mem.Alloc/1024/1024, mem.Sys/1024/1024, mem.NumGC)
	b.WriteString("=== END ===\n")

	report := b.String()
	if err := os.WriteFile(crashPath, []byte(report), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: failed to write crash file: %v\n%s", err, report)
		return ""
	}

	fmt.Fprintf(os.Stderr, "\n!!! FATAL CRASH - report saved to %s !!!\nPanic: %v\n", crashPath, panicVal)
	return crashPath
}

func allGoroutineStacks() string {
	buf := make([]byte, 64*1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) || len(buf) >= 16*1024*1024 {
			return string(buf[:n])
		}
		buf = make([]byte, len(buf)*2)
	}
}

// GetStackTrace returns the current goroutine's stack trace
func GetStackTrace() string {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// RecoverWithCrashFile is deferred at the top of main
func RecoverWithCrashFile() {
	if r := recover(); r != nil {
		WriteCrashFile(r, GetStackTrace())
		os.Exit(1)
	}
}
