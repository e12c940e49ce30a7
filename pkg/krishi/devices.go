package krishi

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// AudioDevice describes one host audio device.
type AudioDevice struct {
	ID                int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	IsDefault         bool
	IsInput           bool
	IsOutput          bool
	HostAPI           string
}

// DeviceManager enumerates and validates host audio devices. Rural
// deployments see a wide spread of hardware, so the CLI surfaces this
// before a session is opened.
type DeviceManager struct {
	mu      sync.RWMutex
	devices []AudioDevice
	logger  *Logger
}

func NewDeviceManager() *DeviceManager {
	return &DeviceManager{
		devices: make([]AudioDevice, 0),
		logger:  GetGlobalLogger().WithComponent("devices"),
	}
}

// Initialize brings up PortAudio and takes a device inventory.
func (dm *DeviceManager) Initialize() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if err := portaudio.Initialize(); err != nil {
		dm.logger.WithError(err).Error("Failed to initialize PortAudio")
		return err
	}

	if err := dm.refreshDevices(); err != nil {
		dm.logger.WithError(err).Error("Failed to refresh device list")
		return err
	}

	dm.logger.WithField("device_count", len(dm.devices)).Info("Audio devices enumerated")
	return nil
}

// Cleanup releases PortAudio.
func (dm *DeviceManager) Cleanup() {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if err := portaudio.Terminate(); err != nil {
		dm.logger.WithError(err).Error("Failed to terminate PortAudio")
	}
}

func (dm *DeviceManager) refreshDevices() error {
	dm.devices = make([]AudioDevice, 0)

	defaultInput, err := portaudio.DefaultInputDevice()
	if err != nil {
		dm.logger.WithError(err).Warn("No default input device")
	}
	defaultOutput, err := portaudio.DefaultOutputDevice()
	if err != nil {
		dm.logger.WithError(err).Warn("No default output device")
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return err
	}

	for i, dev := range devices {
		hostAPIName := "Unknown"
		if dev.HostApi != nil {
			hostAPIName = dev.HostApi.Name
		}

		device := AudioDevice{
			ID:                i,
			Name:              dev.Name,
			MaxInputChannels:  dev.MaxInputChannels,
			MaxOutputChannels: dev.MaxOutputChannels,
			DefaultSampleRate: dev.DefaultSampleRate,
			IsInput:           dev.MaxInputChannels > 0,
			IsOutput:          dev.MaxOutputChannels > 0,
			HostAPI:           hostAPIName,
		}
		if defaultInput != nil && dev == defaultInput {
			device.IsDefault = true
		}
		if defaultOutput != nil && dev == defaultOutput {
			device.IsDefault = true
		}

		dm.devices = append(dm.devices, device)
	}

	return nil
}

// Devices returns all enumerated devices.
func (dm *DeviceManager) Devices() []AudioDevice {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	devices := make([]AudioDevice, len(dm.devices))
	copy(devices, dm.devices)
	return devices
}

// InputDevices returns devices that can capture.
func (dm *DeviceManager) InputDevices() []AudioDevice {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	inputs := make([]AudioDevice, 0)
	for _, device := range dm.devices {
		if device.IsInput {
			inputs = append(inputs, device)
		}
	}
	return inputs
}

// OutputDevices returns devices that can play.
func (dm *DeviceManager) OutputDevices() []AudioDevice {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	outputs := make([]AudioDevice, 0)
	for _, device := range dm.devices {
		if device.IsOutput {
			outputs = append(outputs, device)
		}
	}
	return outputs
}

// DeviceByID returns a device by its inventory ID.
func (dm *DeviceManager) DeviceByID(id int) (*AudioDevice, error) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	for _, device := range dm.devices {
		if device.ID == id {
			return &device, nil
		}
	}
	return nil, fmt.Errorf("device with ID %d not found", id)
}

// ValidateDevice checks a device against capture or playback
// requirements.
func (dm *DeviceManager) ValidateDevice(deviceID int, isInput bool, channels int, sampleRate float64) error {
	device, err := dm.DeviceByID(deviceID)
	if err != nil {
		return err
	}

	if isInput {
		if !device.IsInput {
			return fmt.Errorf("device '%s' is not an input device", device.Name)
		}
		if device.MaxInputChannels < channels {
			return fmt.Errorf("device '%s' supports max %d input channels, requested %d",
				device.Name, device.MaxInputChannels, channels)
		}
	} else {
		if !device.IsOutput {
			return fmt.Errorf("device '%s' is not an output device", device.Name)
		}
		if device.MaxOutputChannels < channels {
			return fmt.Errorf("device '%s' supports max %d output channels, requested %d",
				device.Name, device.MaxOutputChannels, channels)
		}
	}

	if sampleRate > 0 && device.DefaultSampleRate > 0 {
		ratio := sampleRate / device.DefaultSampleRate
		if ratio < 0.5 || ratio > 2.0 {
			dm.logger.WithFields(map[string]interface{}{
				"device_name":           device.Name,
				"device_sample_rate":    device.DefaultSampleRate,
				"requested_sample_rate": sampleRate,
			}).Warn("Sample rate significantly different from device default")
		}
	}

	return nil
}

// DeviceInfo returns formatted device information for display.
func (dm *DeviceManager) DeviceInfo(deviceID int) (string, error) {
	device, err := dm.DeviceByID(deviceID)
	if err != nil {
		return "", err
	}

	info := fmt.Sprintf("Device: %s\n", device.Name)
	info += fmt.Sprintf("  ID: %d\n", device.ID)
	info += fmt.Sprintf("  Host API: %s\n", device.HostAPI)
	info += fmt.Sprintf("  Input Channels: %d\n", device.MaxInputChannels)
	info += fmt.Sprintf("  Output Channels: %d\n", device.MaxOutputChannels)
	info += fmt.Sprintf("  Default Sample Rate: %.1f Hz\n", device.DefaultSampleRate)
	info += fmt.Sprintf("  Is Default: %v\n", device.IsDefault)
	return info, nil
}

// Helper functions for one-shot access

func ListAudioDevices() ([]AudioDevice, error) {
	dm := NewDeviceManager()
	if err := dm.Initialize(); err != nil {
		return nil, err
	}
	defer dm.Cleanup()
	return dm.Devices(), nil
}

func ValidateAudioDevice(deviceID int, isInput bool, channels int, sampleRate float64) error {
	dm := NewDeviceManager()
	if err := dm.Initialize(); err != nil {
		return err
	}
	defer dm.Cleanup()
	return dm.ValidateDevice(deviceID, isInput, channels, sampleRate)
}
