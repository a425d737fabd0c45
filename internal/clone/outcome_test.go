package clone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyDecisionTable(t *testing.T) {
	tests := []struct {
		name string
		run  TransactionRun
		want Outcome
	}{
		{
			name: "restore and verify clean",
			run:  TransactionRun{RestoreExitCode: 0, VerifyExitCode: 0},
			want: OutcomeSuccess,
		},
		{
			name: "restore exited non-zero",
			run:  TransactionRun{RestoreExitCode: 2, VerifyExitCode: 0},
			want: OutcomeRestoreFailed,
		},
		{
			name: "restore exit 0 but out-of-space marker in log",
			run:  TransactionRun{RestoreExitCode: 0, RestoreSpaceExhausted: true, VerifyExitCode: 0},
			want: OutcomeRestoreFailed,
		},
		{
			name: "restore clean, verify failed",
			run:  TransactionRun{RestoreExitCode: 0, VerifyExitCode: 1},
			want: OutcomeVerifyFailed,
		},
		{
			name: "both failed classifies as restore failure",
			run:  TransactionRun{RestoreExitCode: 1, VerifyExitCode: 1},
			want: OutcomeRestoreFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(&tt.run))
		})
	}
}

func TestVerifyFailureIsNeverSuccess(t *testing.T) {
	run := TransactionRun{RestoreExitCode: 0, VerifyExitCode: 3}
	out := Classify(&run)
	assert.NotEqual(t, OutcomeSuccess, out)
	assert.Equal(t, SeverityCrit, out.Severity())
}

func TestSeverities(t *testing.T) {
	assert.Equal(t, SeverityGood, OutcomeSuccess.Severity())
	assert.Equal(t, SeverityInfo, OutcomeAlreadyRunning.Severity())

	for _, o := range []Outcome{
		OutcomeVerifyFailed, OutcomeRestoreFailed, OutcomeTransferFailed,
		OutcomeInsufficientSpace, OutcomeNoArtifactFound, OutcomeConfigMissing,
		OutcomeBackupFailed,
	} {
		assert.Equal(t, SeverityCrit, o.Severity(), o.String())
	}
}

func TestOutcomeMessagesAreDistinct(t *testing.T) {
	seen := map[string]Outcome{}
	for o := OutcomeSuccess; o <= OutcomeBackupFailed; o++ {
		msg := o.Message()
		assert.NotEmpty(t, msg)
		prev, dup := seen[msg]
		assert.False(t, dup, "%s and %s share a message", prev, o)
		seen[msg] = o
	}
}
