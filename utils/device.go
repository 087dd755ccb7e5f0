// Package utils holds OCCA device helpers shared by the validation path
// and tests: device creation matched to the target backend and a build
// check for emitted kernel source.
package utils

import (
	"fmt"

	"github.com/notargets/gocca"

	"github.com/WWIIWWIIWW/pyJac-v2/ir"
)

// DeviceFor creates an OCCA device suited to the target language, falling
// back to Serial when no parallel backend is available.
func DeviceFor(lang ir.Lang) (*gocca.OCCADevice, error) {
	var backends []string
	switch lang {
	case ir.LangOpenCL:
		backends = []string{
			`{"mode": "OpenCL", "platform_id": 0, "device_id": 0}`,
			`{"mode": "Serial"}`,
		}
	default:
		backends = []string{
			`{"mode": "OpenMP"}`,
			`{"mode": "Serial"}`,
		}
	}
	for _, props := range backends {
		if device, err := gocca.NewDevice(props); err == nil {
			return device, nil
		}
	}
	return nil, fmt.Errorf("no OCCA backend available for %s", lang)
}

// CreateTestDevice creates a device for testing, preferring parallel
// backends and panicking only if not even Serial is available.
func CreateTestDevice() *gocca.OCCADevice {
	backends := []string{
		`{"mode": "OpenMP"}`,
		`{"mode": "CUDA", "device_id": 0}`,
		`{"mode": "Serial"}`,
	}
	for _, props := range backends {
		if device, err := gocca.NewDevice(props); err == nil {
			return device
		}
	}
	panic("failed to create any device")
}

// CheckBuild compiles emitted kernel source on the device and reports
// whether it builds; the compiled kernel is discarded.
func CheckBuild(device *gocca.OCCADevice, source, kernelName string) error {
	var kernel *gocca.OCCAKernel
	var err error
	if device.Mode() == "OpenMP" {
		// OCCA's OpenMP mode misses the default -O3 flag
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = device.BuildKernelFromString(source, kernelName, props)
	} else {
		kernel, err = device.BuildKernelFromString(source, kernelName, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to build kernel %s: %w", kernelName, err)
	}
	kernel.Free()
	return nil
}
