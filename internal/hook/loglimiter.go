package hook

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	ctxstack "github.com/cuemby/rtsync/internal/context"
)

const logFileKey = "log_file"

// LogLimiter ensures log_dir exists, keeps only the 9 newest <name>*
// log files, and rotates the "latest" symlink to a new per-attempt log
// file name. Ported from the source's directory-scan/rotate logic,
// adapted to the phase-argument hook signature the rest of the pipeline
// uses (the source's own loglimit_hook.rs draft predates that signature
// and was not followed literally).
type LogLimiter struct {
	BaseHook

	// currentLogFile is the rotated log path this hook staged in
	// PreExec. post_exec's ctxstack.Exit pops that value out of the
	// context before post_fail runs, so PostFail cannot rely on the
	// logFile argument (or the context) to still hold it; the hook
	// remembers it directly instead.
	currentLogFile string
}

func NewLogLimiter() *LogLimiter { return &LogLimiter{} }

func (h *LogLimiter) PreExec(providerName, logDir, logFile, workingDir string, ctx *ctxstack.Stack) error {
	ctx.Enter()

	if logFile == os.DevNull {
		h.currentLogFile = ""
		return nil
	}

	entries, err := os.ReadDir(logDir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(logDir, 0o755); mkErr != nil {
				return fmt.Errorf("loglimiter: create log_dir %s: %w", logDir, mkErr)
			}
			entries = nil
		} else {
			return fmt.Errorf("loglimiter: read log_dir %s: %w", logDir, err)
		}
	}

	type fileInfo struct {
		name    string
		modTime time.Time
	}
	var matched []fileInfo
	for _, e := range entries {
		if len(e.Name()) >= len(providerName) && e.Name()[:len(providerName)] == providerName {
			info, err := e.Info()
			if err != nil {
				continue
			}
			matched = append(matched, fileInfo{name: e.Name(), modTime: info.ModTime()})
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].modTime.After(matched[j].modTime) })
	if len(matched) > 9 {
		for _, f := range matched[9:] {
			_ = os.Remove(filepath.Join(logDir, f.name))
		}
	}

	logFileName := fmt.Sprintf("%s_%s.log", providerName, time.Now().Format("2006-01-02_15_04"))
	logFilePath := filepath.Join(logDir, logFileName)
	logLink := filepath.Join(logDir, "latest")

	if _, err := os.Lstat(logLink); err == nil {
		_ = os.Remove(logLink)
	}
	if err := os.Symlink(logFileName, logLink); err != nil {
		return fmt.Errorf("loglimiter: symlink latest: %w", err)
	}

	ctx.Set(logFileKey, logFilePath)
	h.currentLogFile = logFilePath
	return nil
}

func (h *LogLimiter) PostExec(ctx *ctxstack.Stack, providerName string) error {
	return ctx.Exit()
}

// PostFail renames the attempt's rotated log to its .fail path and
// repoints latest at it. The frame that held the log path was already
// popped by PostExec (which always runs before post_fail); ctx is only
// taken to match the Hook interface and is not touched here.
func (h *LogLimiter) PostFail(providerName, workingDir, upstream, logDir, logFile string, ctx *ctxstack.Stack) error {
	if h.currentLogFile == "" {
		return nil
	}
	failPath := h.currentLogFile + ".fail"
	if err := os.Rename(h.currentLogFile, failPath); err != nil {
		return fmt.Errorf("loglimiter: rename %s: %w", h.currentLogFile, err)
	}
	logLink := filepath.Join(logDir, "latest")
	_ = os.Remove(logLink)
	if err := os.Symlink(filepath.Base(failPath), logLink); err != nil {
		return fmt.Errorf("loglimiter: relink latest: %w", err)
	}
	return nil
}

var _ Hook = (*LogLimiter)(nil)
