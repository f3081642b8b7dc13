// Package glove ingests telemetry from a five finger sensor glove, calibrates
// it against a rest pose and maps the angles onto a hand pose.
//
// # Installation
//
//	go install github.com/gwillem/glove/cmd/glove@latest
//
// # Usage
//
// First, run setup to pick the glove port and a sensitivity profile:
//
//	glove setup
//
// Then stream, holding the hand at rest and pressing 'c' to calibrate:
//
//	glove stream
//
// A recorded session can be run through the same pipeline:
//
//	glove replay session.txt
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/glove: CLI with setup, stream, replay and probe commands
//   - pkg/glove: Packet parsing, quaternions, profiles and configuration
//   - pkg/ingest: Serial transport and the background reader loop
//   - pkg/pose: Calibration, pose mapping and range of motion
//   - pkg/sink: Capture files, WebSocket, MQTT and servo hand outputs
//   - pkg/teleop: Controller that ties ingest, pose and sinks together
package glove
