package models

import "time"

// Stage identifies a step of the provisioning pipeline.
type Stage string

const (
	StagePending            Stage = "pending"
	StageDetectArch         Stage = "detect_arch"
	StagePrepareDir         Stage = "prepare_dir"
	StageBootstrapRootfs    Stage = "bootstrap_rootfs"
	StageSetRootPassword    Stage = "set_root_password"
	StageConfigureNetwork   Stage = "configure_network"
	StageInstallSSH         Stage = "install_ssh"
	StageConfigureWireguard Stage = "configure_wireguard"
	StageWriteHostUnit      Stage = "write_host_unit"
	StageStart              Stage = "start"
	StageCompleted          Stage = "completed"
)

// stagePercents holds the progress value published when a stage is entered.
var stagePercents = map[Stage]int{
	StagePending:            0,
	StageDetectArch:         10,
	StagePrepareDir:         20,
	StageBootstrapRootfs:    30,
	StageSetRootPassword:    60,
	StageConfigureNetwork:   70,
	StageInstallSSH:         80,
	StageConfigureWireguard: 85,
	StageWriteHostUnit:      90,
	StageStart:              95,
	StageCompleted:          100,
}

// Percent returns the progress value for entering the stage.
func (s Stage) Percent() int {
	return stagePercents[s]
}

// TerminalStatus is the final outcome of a creation job.
type TerminalStatus string

const (
	TerminalNone      TerminalStatus = "none"
	TerminalCompleted TerminalStatus = "completed"
	TerminalFailed    TerminalStatus = "failed"
)

// CreationJob tracks one background provisioning run. The container name is
// the primary key; no two live jobs may share it.
type CreationJob struct {
	ContainerID    string         `json:"container_id"`
	Stage          Stage          `json:"stage"`
	Percent        int            `json:"percent"`
	TerminalStatus TerminalStatus `json:"terminal_status"`
	Error          string         `json:"error,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
}

// Terminal reports whether the job has reached a final state.
func (j *CreationJob) Terminal() bool {
	return j.TerminalStatus != TerminalNone
}
