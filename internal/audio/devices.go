// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"io"

	"tonecast/internal/config"

	"github.com/gordonklaus/portaudio"
)

// Device describes an audio device for listing.
type Device struct {
	ID                 int
	Name               string
	MaxInputChannels   int
	MaxOutputChannels  int
	DefaultSampleRate  float64
	LowInputLatencyMs  float64
	HighInputLatencyMs float64
}

// Kind returns "Input", "Output" or "Input/Output".
func (d Device) Kind() string {
	switch {
	case d.MaxInputChannels > 0 && d.MaxOutputChannels > 0:
		return "Input/Output"
	case d.MaxInputChannels > 0:
		return "Input"
	case d.MaxOutputChannels > 0:
		return "Output"
	default:
		return "Unknown"
	}
}

// Seams over PortAudio so device selection can be tested without hardware.
var (
	paDevicesFunc      = portaudio.Devices
	paDefaultInputFunc = portaudio.DefaultInputDevice
)

// Initialize sets up the PortAudio subsystem.
// This must be called before any audio operations and paired with a Terminate() call.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate cleanly shuts down the PortAudio subsystem.
func Terminate() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// InputDevice retrieves the input device for deviceID. config.MinDeviceID
// selects the system default input device.
func InputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	if deviceID == config.MinDeviceID {
		device, err := paDefaultInputFunc()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := paDevicesFunc()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	if deviceID < 0 || deviceID >= len(devices) {
		return nil, fmt.Errorf("invalid device ID: %d", deviceID)
	}
	if devices[deviceID].MaxInputChannels == 0 {
		return nil, fmt.Errorf("device %d (%s) has no input channels", deviceID, devices[deviceID].Name)
	}
	return devices[deviceID], nil
}

// HostDevices returns all devices known to PortAudio.
func HostDevices() ([]Device, error) {
	infos, err := paDevicesFunc()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	devices := make([]Device, len(infos))
	for i, info := range infos {
		devices[i] = Device{
			ID:                 i,
			Name:               info.Name,
			MaxInputChannels:   info.MaxInputChannels,
			MaxOutputChannels:  info.MaxOutputChannels,
			DefaultSampleRate:  info.DefaultSampleRate,
			LowInputLatencyMs:  info.DefaultLowInputLatency.Seconds() * 1000,
			HighInputLatencyMs: info.DefaultHighInputLatency.Seconds() * 1000,
		}
	}
	return devices, nil
}

// ListDevices writes a human readable device table to w.
func ListDevices(w io.Writer) error {
	devices, err := HostDevices()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\nAvailable Audio Devices\n\n")
	for _, d := range devices {
		fmt.Fprintf(w, "[%d] %s (%s)\n", d.ID, d.Name, d.Kind())
		fmt.Fprintf(w, "    Input channels: %d, Output channels: %d\n", d.MaxInputChannels, d.MaxOutputChannels)
		fmt.Fprintf(w, "    Default sample rate: %.0f Hz\n", d.DefaultSampleRate)
		fmt.Fprintf(w, "    Latency: Low=%.2fms, High=%.2fms\n\n", d.LowInputLatencyMs, d.HighInputLatencyMs)
	}
	return nil
}
