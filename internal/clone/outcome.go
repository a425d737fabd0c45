package clone

// Outcome is the terminal classification of a run. Exactly one per run,
// and every run produces exactly one operator report.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeVerifyFailed
	OutcomeRestoreFailed
	OutcomeTransferFailed
	OutcomeInsufficientSpace
	OutcomeNoArtifactFound
	OutcomeAlreadyRunning
	OutcomeConfigMissing
	OutcomeBackupFailed
)

// Severity drives the monitoring level of the operator report.
type Severity string

const (
	SeverityGood Severity = "GOOD"
	SeverityCrit Severity = "CRIT"
	SeverityInfo Severity = "INFO"
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "Success"
	case OutcomeVerifyFailed:
		return "VerifyFailed"
	case OutcomeRestoreFailed:
		return "RestoreFailed"
	case OutcomeTransferFailed:
		return "TransferFailed"
	case OutcomeInsufficientSpace:
		return "InsufficientSpace"
	case OutcomeNoArtifactFound:
		return "NoArtifactFound"
	case OutcomeAlreadyRunning:
		return "AlreadyRunning"
	case OutcomeConfigMissing:
		return "ConfigMissing"
	case OutcomeBackupFailed:
		return "BackupFailed"
	}
	return "Unknown"
}

// Severity maps each outcome to its monitoring level. A failed verify is
// CRIT even when the restore itself went through: verify gates overall
// health no matter how late it runs.
func (o Outcome) Severity() Severity {
	switch o {
	case OutcomeSuccess:
		return SeverityGood
	case OutcomeAlreadyRunning:
		return SeverityInfo
	default:
		return SeverityCrit
	}
}

// Message is the operator-facing summary line.
func (o Outcome) Message() string {
	switch o {
	case OutcomeSuccess:
		return "restore completed and verified"
	case OutcomeVerifyFailed:
		return "restore completed but the consistency check failed"
	case OutcomeRestoreFailed:
		return "restore from archive failed"
	case OutcomeTransferFailed:
		return "fetching the archive or configuration artifacts failed"
	case OutcomeInsufficientSpace:
		return "not enough free space for the restore"
	case OutcomeNoArtifactFound:
		return "no backup archive found for today"
	case OutcomeAlreadyRunning:
		return "another run is already in progress"
	case OutcomeConfigMissing:
		return "settings file missing or unreadable"
	case OutcomeBackupFailed:
		return "backup creation failed"
	}
	return "unknown outcome"
}

// Classify maps a completed transaction to its terminal outcome. Restore
// and verify are the two load-bearing steps; either failing forces CRIT.
// Pre-transaction gate failures never reach this function; their outcomes
// are constructed directly at the gate.
func Classify(run *TransactionRun) Outcome {
	if !run.RestoreSucceeded() {
		return OutcomeRestoreFailed
	}
	if !run.VerifySucceeded() {
		return OutcomeVerifyFailed
	}
	return OutcomeSuccess
}
