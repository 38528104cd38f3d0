//go:build linux

package fpsensor

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Minimal slice of the GPIO v2 line uAPI needed to drive a single
// output pin — the sensor's power-enable line. Deliberately
// self-contained rather than imported from internal/presence's own
// copy (unexported across a package boundary, and this is an ABI
// magic-number table, not shared domain logic).
const (
	gpioIoctlType        = 0xB4
	gpioV2GetLineNr      = 0x07
	gpioV2SetValuesNr    = 0x0F
	gpioV2LineFlagOutput = 1 << 3
	gpioV2LineNumAttrs   = 10
	gpioV2LineNumOffsets = 64
	gpioConsumerSize     = 32
)

type gpioV2LineConfigAttribute struct {
	attrID uint32
	_      uint32
	flags  uint64
	mask   uint64
}

type gpioV2LineConfig struct {
	flags    uint64
	numAttrs uint32
	_        [5]uint32
	attrs    [gpioV2LineNumAttrs]gpioV2LineConfigAttribute
}

type gpioV2LineRequest struct {
	offsets         [gpioV2LineNumOffsets]uint32
	consumer        [gpioConsumerSize]byte
	config          gpioV2LineConfig
	numLines        uint32
	eventBufferSize uint32
	_               [5]uint32
	fd              int32
}

type gpioV2LineValues struct {
	bits uint64
	mask uint64
}

func gpioV2GetLineIoctl() uintptr {
	return ioctlNr(3, gpioV2GetLineNr, unsafe.Sizeof(gpioV2LineRequest{}))
}

func gpioV2SetValuesIoctl() uintptr {
	return ioctlNr(3, gpioV2SetValuesNr, unsafe.Sizeof(gpioV2LineValues{}))
}

// ioctlNr builds a Linux ioctl request number: dir(2) | size(14) |
// type(8) | nr(8), matching the _IOC layout in linux/ioctl.h.
func ioctlNr(dir uintptr, nr uint32, size uintptr) uintptr {
	return (dir << 30) | (size << 16) | (uintptr(gpioIoctlType) << 8) | uintptr(nr)
}

// gpioOutput holds one gpiochip line configured as an output, used to
// drive the sensor's power-enable pin the way Power(on|off) requires.
type gpioOutput struct {
	chip *os.File
	fd   int32
}

func openGPIOOutput(chipPath string, offset uint32, initial bool) (*gpioOutput, error) {
	chip, err := os.OpenFile(chipPath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("fpsensor: open %s: %w", chipPath, err)
	}

	req := gpioV2LineRequest{numLines: 1}
	req.offsets[0] = offset
	copy(req.consumer[:], "fpsensor-power")
	req.config.flags = gpioV2LineFlagOutput
	req.config.numAttrs = 1
	req.config.attrs[0] = gpioV2LineConfigAttribute{
		attrID: 2, // GPIO_V2_LINE_ATTR_ID_OUTPUT_VALUES
		flags:  boolToBit(initial),
		mask:   1,
	}

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, chip.Fd(), gpioV2GetLineIoctl(), uintptr(unsafe.Pointer(&req))); errno != 0 {
		chip.Close()
		return nil, fmt.Errorf("fpsensor: GPIO_V2_GET_LINE_IOCTL: %w", errno)
	}
	if req.fd <= 0 {
		chip.Close()
		return nil, fmt.Errorf("fpsensor: kernel returned invalid line fd")
	}
	return &gpioOutput{chip: chip, fd: req.fd}, nil
}

// Set drives the line high (on) or low (off).
func (g *gpioOutput) Set(on bool) error {
	vals := gpioV2LineValues{mask: 1}
	if on {
		vals.bits = 1
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(g.fd), gpioV2SetValuesIoctl(), uintptr(unsafe.Pointer(&vals))); errno != 0 {
		return fmt.Errorf("fpsensor: GPIO_V2_LINE_SET_VALUES_IOCTL: %w", errno)
	}
	return nil
}

func (g *gpioOutput) Close() error {
	unix.Close(int(g.fd))
	return g.chip.Close()
}

func boolToBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
