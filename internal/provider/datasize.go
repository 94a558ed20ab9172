package provider

import (
	"bufio"
	"os"
	"regexp"
)

var totalFileSizeRe = regexp.MustCompile(`^Total file size: ([0-9.]+[KMGTP]?) bytes`)

// ExtractSizeFromRsyncLog scans logPath for the rsync stats line and
// returns the last match's size capture, or "" if none is found. It
// deliberately does not propagate the /dev/null case as an error: the
// source's equivalent (extract_size_from_rsync_log /
// find_all_submatches_in_file) leaves data_size empty rather than
// failing the attempt when the log is /dev/null, and that behavior is
// preserved here.
func ExtractSizeFromRsyncLog(logPath string) (string, error) {
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
		if m := totalFileSizeRe.FindStringSubmatch(scanner.Text()); m != nil {
			last = m[1]
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return last, nil
}
