package models

import "testing"

// TestStagePercent tests the progress mapping of creation stages.
func TestStagePercent(t *testing.T) {
	tests := []struct {
		stage Stage
		want  int
	}{
		{StagePending, 0},
		{StageDetectArch, 10},
		{StagePrepareDir, 20},
		{StageBootstrapRootfs, 30},
		{StageSetRootPassword, 60},
		{StageConfigureNetwork, 70},
		{StageInstallSSH, 80},
		{StageConfigureWireguard, 85},
		{StageWriteHostUnit, 90},
		{StageStart, 95},
		{StageCompleted, 100},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			if got := tt.stage.Percent(); got != tt.want {
				t.Errorf("Percent(%s) = %d, want %d", tt.stage, got, tt.want)
			}
		})
	}

	if got := Stage("no-such-stage").Percent(); got != 0 {
		t.Errorf("Percent of unknown stage = %d, want 0", got)
	}
}

// TestJobTerminal tests terminal state detection.
func TestJobTerminal(t *testing.T) {
	job := &CreationJob{ContainerID: "web1", Stage: StageBootstrapRootfs, TerminalStatus: TerminalNone}
	if job.Terminal() {
		t.Error("running job must not be terminal")
	}

	job.TerminalStatus = TerminalCompleted
	if !job.Terminal() {
		t.Error("completed job must be terminal")
	}

	job.TerminalStatus = TerminalFailed
	if !job.Terminal() {
		t.Error("failed job must be terminal")
	}
}
