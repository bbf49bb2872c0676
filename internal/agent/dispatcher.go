package agent

import (
	"encoding/json"
	"fmt"
	"time"

	"skyfleet/internal/core/domain"
)

const defaultTakeoffAltitude = 50.0

// landingRun tracks an in-flight precision landing. Abort is a signal
// checked between stages, never mid-stage.
type landingRun struct {
	abort chan struct{}
	done  chan struct{}
	dwell time.Duration
}

// handleCommand applies one inbound command to the vehicle and answers
// with exactly one command_response. Unknown commands are acknowledged
// as executed without touching state.
func (a *Agent) handleCommand(payload json.RawMessage) {
	var cmd domain.CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		a.logger.Warnw("malformed command payload", "error", err)
		return
	}

	a.logger.Infow("command received", "command", cmd.Type, "command_id", cmd.ID)

	status, result := a.applyCommand(cmd)
	a.respond(cmd, status, result)

	if a.metrics != nil {
		a.metrics.RecordCommand(string(cmd.Type))
	}
	if a.cfg.EnableLatencyMeasurement && cmd.Timestamp != nil {
		seq := a.recorder.NextSequence(domain.CategoryCommand)
		a.recorder.Record(domain.CategoryCommand, *cmd.Timestamp,
			domain.TimestampMillis(time.Now()), 0, seq)
	}
}

func (a *Agent) applyCommand(cmd domain.CommandMessage) (status, result string) {
	switch cmd.Type {
	case domain.CommandArm:
		a.mutateVehicle(func(st *domain.AgentState) {
			st.Armed = true
			st.FlightMode = "GUIDED"
		})
		return "executed", "armed"

	case domain.CommandDisarm:
		a.mutateVehicle(func(st *domain.AgentState) {
			st.Armed = false
			st.FlightMode = "STABILIZE"
		})
		return "executed", "disarmed"

	case domain.CommandTakeoff:
		altitude := paramFloat(cmd.Parameters, "altitude", defaultTakeoffAltitude)
		a.mutateVehicle(func(st *domain.AgentState) {
			st.FlightMode = "GUIDED"
			st.AltitudeRelative = altitude
			st.AltitudeMSL = altitude + 500
		})
		return "executed", fmt.Sprintf("takeoff to %.0fm", altitude)

	case domain.CommandLand:
		a.mutateVehicle(func(st *domain.AgentState) {
			st.FlightMode = "LAND"
		})
		return "executed", "landing"

	case domain.CommandRTL:
		a.mutateVehicle(func(st *domain.AgentState) {
			st.FlightMode = "RTL"
		})
		return "executed", "returning to launch"

	case domain.CommandMissionStart:
		a.mutateVehicle(func(st *domain.AgentState) {
			st.FlightMode = "AUTO"
		})
		return "executed", "mission started"

	case domain.CommandMissionCancel:
		a.mutateVehicle(func(st *domain.AgentState) {
			st.FlightMode = "LOITER"
		})
		return "executed", "mission cancelled"

	case domain.CommandMissionUpload:
		// Acknowledged without simulation; the mission plan is opaque here.
		return "executed", "mission uploaded"

	case domain.CommandPrecisionLandStart:
		if a.startLanding(cmd.Parameters) {
			return "executed", "precision landing started"
		}
		return "failed", "precision landing already in progress"

	case domain.CommandPrecisionLandAbort:
		if a.abortLanding() {
			return "executed", "precision landing aborted"
		}
		return "failed", "no precision landing in progress"

	default:
		// Permissive dispatch: unknown commands ack without mutation.
		return "executed", "success"
	}
}

func (a *Agent) mutateVehicle(fn func(*domain.AgentState)) {
	a.mu.Lock()
	fn(&a.vehicle)
	a.mu.Unlock()
}

func (a *Agent) respond(cmd domain.CommandMessage, status, result string) {
	resp := domain.CommandResponse{
		CommandID: cmd.ID,
		Command:   cmd.Type,
		Status:    status,
		Result:    result,
		Timestamp: domain.TimestampMillis(time.Now()),
	}
	if err := a.emit(domain.EventCommandResponse, resp); err != nil {
		a.logger.Debugw("command response send failed", "command_id", cmd.ID, "error", err)
	}
}

func paramFloat(params map[string]interface{}, key string, fallback float64) float64 {
	if params == nil {
		return fallback
	}
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}

// startLanding kicks off the landing goroutine. Returns false if one is
// already running.
func (a *Agent) startLanding(params map[string]interface{}) bool {
	dwell := time.Duration(paramFloat(params, "stage_duration", 2) * float64(time.Second))

	a.mu.Lock()
	if a.landing != nil {
		a.mu.Unlock()
		return false
	}
	run := &landingRun{
		abort: make(chan struct{}),
		done:  make(chan struct{}),
		dwell: dwell,
	}
	a.landing = run
	a.mu.Unlock()

	go a.runLanding(run)
	return true
}

// abortLanding signals the running landing to stop at the next stage
// boundary. Returns false when nothing is landing.
func (a *Agent) abortLanding() bool {
	a.mu.Lock()
	run := a.landing
	a.mu.Unlock()
	if run == nil {
		return false
	}

	select {
	case <-run.abort:
	default:
		close(run.abort)
	}
	return true
}

// stopLanding aborts any landing in progress and waits for the goroutine
// to finish. Used during session teardown.
func (a *Agent) stopLanding() {
	a.mu.Lock()
	run := a.landing
	a.mu.Unlock()
	if run == nil {
		return
	}

	select {
	case <-run.abort:
	default:
		close(run.abort)
	}
	<-run.done
}

// runLanding walks the fixed stage sequence. Each stage emits a progress
// event, dwells, then checks for an abort. Altitude drops to 70% per
// descending stage.
func (a *Agent) runLanding(run *landingRun) {
	defer func() {
		a.mu.Lock()
		a.landing = nil
		a.mu.Unlock()
		close(run.done)
	}()

	a.mu.Lock()
	altitude := a.vehicle.AltitudeRelative
	a.mu.Unlock()

	for _, stage := range domain.PrecisionLandStages() {
		if stage == domain.StageDescent || stage == domain.StageFinal {
			altitude *= 0.7
			a.mutateVehicle(func(st *domain.AgentState) {
				st.AltitudeRelative = altitude
				st.AltitudeMSL = altitude + 500
			})
		}

		a.emitLandingStage(stage, altitude)

		if stage == domain.StageLanded {
			break
		}

		time.Sleep(run.dwell)

		select {
		case <-run.abort:
			a.mutateVehicle(func(st *domain.AgentState) {
				st.FlightMode = "LOITER"
			})
			a.emitLandingStage(domain.StageAborted, altitude)
			a.logger.Infow("precision landing aborted", "altitude", altitude)
			return
		default:
		}
	}

	a.mutateVehicle(func(st *domain.AgentState) {
		st.FlightMode = "LAND"
	})
	a.logger.Infow("precision landing complete")
}

func (a *Agent) emitLandingStage(stage domain.PrecisionLandStage, altitude float64) {
	a.mu.Lock()
	battery := a.vehicle.Percentage
	a.mu.Unlock()

	payload := domain.PrecisionLandPayload{
		Output:           fmt.Sprintf("precision landing stage %s at %.1fm", stage, altitude),
		Stage:            string(stage),
		Altitude:         altitude,
		TargetDetected:   true,
		TargetConfidence: 0.95,
		LateralError:     0.2,
		VerticalError:    0.1,
		BatteryLevel:     battery,
		WindSpeed:        2.5,
	}
	if err := a.emit(domain.EventPrecisionLand, payload); err != nil {
		a.logger.Debugw("landing stage send failed", "stage", stage, "error", err)
	}
}
