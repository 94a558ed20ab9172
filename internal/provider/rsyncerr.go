package provider

import "fmt"

// rsyncExitMessages is the authoritative rsync exit-code dictionary,
// recovered in full from original_source's util.rs (spec.md's §4.2
// table is an illustrative subset of this one).
var rsyncExitMessages = map[int]string{
	0:  "Success",
	1:  "Syntax or usage error",
	2:  "Protocol incompatibility",
	3:  "Errors selecting input/output files, dirs",
	4:  "Requested action not supported",
	5:  "Error starting client-server protocol",
	6:  "Daemon unable to append to log-file",
	10: "Error in socket I/O",
	11: "Error in file I/O",
	12: "Error in rsync protocol data stream",
	13: "Errors with program diagnostics",
	14: "Error in IPC code",
	20: "Received SIGUSR1 or SIGINT",
	21: "Some error returned by waitpid()",
	22: "Error allocating core memory buffers",
	23: "Partial transfer due to error",
	24: "Partial transfer due to vanished source files",
	25: "The --max-delete limit stopped deletions",
	30: "Timeout in data send/receive",
	35: "Timeout waiting for daemon connection",
}

// TranslateRsyncExitCode maps a rsync exit status to a human-readable
// message, falling back to a generic "error status: N" for codes
// outside the dictionary, matching the source's generic-provider
// fallback for unknown codes.
func TranslateRsyncExitCode(code int) string {
	if msg, ok := rsyncExitMessages[code]; ok {
		return fmt.Sprintf("rsync error: %s", msg)
	}
	return fmt.Sprintf("error status: %d", code)
}

// TranslateGenericExitCode is the CommandProvider's fallback: it never
// consults the rsync dictionary.
func TranslateGenericExitCode(code int) string {
	return fmt.Sprintf("error status: %d", code)
}
