package supporttools

import (
	"context"
	"errors"
	"fmt"

	"github.com/harun/supportdesk/pkg/toolexecutor"
)

const CapabilityTroubleshoot = "troubleshoot"

var errMissingRepairDetails = errors.New("Missing part identification or service address.")

// RobotStatus is the telemetry snapshot of a robot.
type RobotStatus struct {
	SerialNumber    string            `json:"serial_number"`
	Model           string            `json:"model"`
	Owner           string            `json:"owner"`
	BatteryLevel    int               `json:"battery_level"`
	FirmwareVersion string            `json:"firmware_version"`
	LastErrorCode   string            `json:"last_error_code"`
	ComponentHealth map[string]string `json:"component_health"`
	ErrorHistory    []string          `json:"error_history"`
}

var serialParam = toolexecutor.ToolParameter{
	Name:        "serial_number",
	Types:       []string{"string", "integer"},
	Description: "Robot serial number",
	Required:    true,
}

func troubleshootTools() []toolexecutor.ToolDefinition {
	return []toolexecutor.ToolDefinition{
		{
			Name:        "get_robot_status",
			Description: "Retrieve sensor data, battery health and error logs of a robot",
			Capability:  CapabilityTroubleshoot,
			Parameters:  []toolexecutor.ToolParameter{serialParam},
			Handler:     getRobotStatus,
		},
		{
			Name:        "run_remote_diag",
			Description: "Run a remote self-test of motors, brushes and suction",
			Capability:  CapabilityTroubleshoot,
			Parameters:  []toolexecutor.ToolParameter{serialParam},
			Handler:     runRemoteDiag,
		},
		{
			Name:        "reset_firmware",
			Description: "Factory reset the robot and install the latest stable firmware; deletes maps and schedules",
			Capability:  CapabilityTroubleshoot,
			Parameters:  []toolexecutor.ToolParameter{serialParam},
			Handler:     resetFirmware,
		},
		{
			Name:        "schedule_repair",
			Description: "Log a hardware failure and dispatch a technician",
			Capability:  CapabilityTroubleshoot,
			Parameters: []toolexecutor.ToolParameter{
				serialParam,
				{Name: "part_needed", Type: "string", Description: "Part to replace, taken from get_robot_status"},
				{Name: "address", Type: "string", Description: "Service address"},
			},
			Handler: scheduleRepair,
		},
	}
}

func getRobotStatus(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return RobotStatus{
		SerialNumber:    stringParam(params, "serial_number"),
		Model:           "SmartClean Pro-X",
		Owner:           "John Doe",
		BatteryLevel:    15,
		FirmwareVersion: "v2.1.0",
		LastErrorCode:   "E102",
		ComponentHealth: map[string]string{
			"Lidar Sensor":     "OK",
			"Left Wheel Motor": "STALLED",
			"Suction Fan":      "OK",
			"Main Brush":       "OK",
		},
		ErrorHistory: []string{"E102: Wheel Motor Obstruction", "E004: Battery Low"},
	}, nil
}

func runRemoteDiag(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return fmt.Sprintf("Remote diagnostics for %s completed. Result: Detected high resistance in Left Wheel Motor. Suction and Lidar tests passed.",
		stringParam(params, "serial_number")), nil
}

func resetFirmware(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return fmt.Sprintf("Factory reset initiated for %s. Custom maps and schedules have been cleared. Robot is now on firmware v2.1.1.",
		stringParam(params, "serial_number")), nil
}

func scheduleRepair(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	part := stringParam(params, "part_needed")
	address := stringParam(params, "address")
	if part == "" || address == "" {
		return nil, errMissingRepairDetails
	}
	return fmt.Sprintf("Repair ticket created for %s. A technician will arrive at %s with a replacement %s within 48 hours.",
		stringParam(params, "serial_number"), address, part), nil
}
