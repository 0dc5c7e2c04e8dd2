// Package hightorque controls HighTorque CAN bus rotary actuators.
//
// It speaks the actuator's native CAN protocol over SocketCAN or an SLCAN
// serial adapter: scanning a bus for motors, enabling and disabling them,
// and streaming velocity or position setpoints at a fixed rate.
//
// # Installation
//
//	go install github.com/tianrking/HighTorque-Control/cmd/hightorque@latest
//
// # Usage
//
// Write a configuration file and find your motors:
//
//	hightorque init
//	hightorque scan
//
// Then drive one:
//
//	hightorque velocity --id 1
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/hightorque: CLI with scan, ping, monitor, velocity, angle commands
//   - pkg/can: CAN frame and bus transports (SocketCAN, SLCAN, loopback)
//   - pkg/protocol: actuator frame encoding and reply decoding
//   - pkg/motor: bus scanning, reliability checks, and enable sessions
//   - pkg/control: periodic setpoint loop and velocity patterns
//   - pkg/config: YAML configuration
package hightorque
