package domain

// CommandType names an inbound command. Unknown types are accepted and
// acknowledged without mutating state, mirroring the target server's
// permissive dispatch.
type CommandType string

const (
	CommandArm                CommandType = "arm"
	CommandDisarm             CommandType = "disarm"
	CommandTakeoff            CommandType = "takeoff"
	CommandLand               CommandType = "land"
	CommandRTL                CommandType = "rtl"
	CommandPrecisionLandStart CommandType = "precision_land_start"
	CommandPrecisionLandAbort CommandType = "precision_land_abort"
	CommandMissionUpload      CommandType = "mission_upload"
	CommandMissionStart       CommandType = "mission_start"
	CommandMissionCancel      CommandType = "mission_cancel"
)

// CommandMessage is the inbound command payload.
type CommandMessage struct {
	ID         string                 `json:"id"`
	Type       CommandType            `json:"type"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Timestamp  *float64               `json:"timestamp,omitempty"`
}

// CommandResponse is emitted exactly once per inbound command, correlated
// by the command id.
type CommandResponse struct {
	CommandID string      `json:"commandId"`
	Command   CommandType `json:"command"`
	Status    string      `json:"status"`
	Result    string      `json:"result"`
	Timestamp float64     `json:"timestamp"`
}

// PrecisionLandStage is one stage of the precision landing sub-machine.
type PrecisionLandStage string

const (
	StageApproach PrecisionLandStage = "APPROACH"
	StageDescent  PrecisionLandStage = "DESCENT"
	StageFinal    PrecisionLandStage = "FINAL"
	StageLanded   PrecisionLandStage = "LANDED"
	StageAborted  PrecisionLandStage = "ABORTED"
)

// PrecisionLandStages returns the ordered landing sequence. An abort may
// interrupt between stages but never mid-stage.
func PrecisionLandStages() []PrecisionLandStage {
	return []PrecisionLandStage{StageApproach, StageDescent, StageFinal, StageLanded}
}
