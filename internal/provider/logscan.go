package provider

import (
	"bufio"
	"errors"
	"os"
	"os/exec"
	"regexp"
)

// exitCodeOf pulls the process exit code out of an error returned by
// runner.CmdJob.Wait. ok is false when err is not an *exec.ExitError —
// the child never ran to an exit status at all (a missing binary,
// permission denied, a runner.New/Start failure) — in which case the
// caller must surface err's own message rather than translate a
// fabricated code (spec §7).
func exitCodeOf(err error) (code int, ok bool) {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), true
	}
	return 0, false
}

// logFileMatches reports whether re matches any line of logPath.
// /dev/null opens and reads as empty, so it never matches; an empty
// path or any other open or read error is returned (unlike
// ExtractSizeFromRsyncLog, which treats an empty path as no size).
func logFileMatches(logPath string, re *regexp.Regexp) (bool, error) {
	f, err := os.Open(logPath)
	if err != nil {
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if re.MatchString(scanner.Text()) {
			return true, nil
		}
	}
	return false, scanner.Err()
}

// lastSubmatch returns the first capture group of re's last match in
// logPath.
func lastSubmatch(logPath string, re *regexp.Regexp) (string, error) {
	if logPath == os.DevNull || logPath == "" {
		return "", nil
	}
	f, err := os.Open(logPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var last string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if m := re.FindStringSubmatch(scanner.Text()); len(m) > 1 {
			last = m[1]
		}
	}
	return last, scanner.Err()
}
