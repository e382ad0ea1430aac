package board

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Type is the hardware variant of the appliance.
type Type int

const (
	Unknown Type = iota
	V1CM4
	V3Hat
	V2PCIe
	V4H616
)

// ErrUnsupportedBoard is returned when no artifact is published for the board.
var ErrUnsupportedBoard = errors.New("unsupported board")

// Device-tree model strings of the supported carrier boards.
const (
	modelPi4B   = "Raspberry Pi 4 Model B"
	modelCM4    = "Raspberry Pi Compute Module 4"
	modelMcore  = "MangoPi Mcore"
	packageV123 = "blikvm-v1-v2-v3.deb"
	packageV4   = "blikvm-v4.deb"
)

var names = map[Type]string{
	Unknown: "UNKNOWN",
	V1CM4:   "V1_CM4",
	V3Hat:   "V3_HAT",
	V2PCIe:  "V2_PCIE",
	V4H616:  "V4_H616",
}

// packages maps each supported board to its installer artifact.
var packages = map[Type]string{
	V1CM4:  packageV123,
	V3Hat:  packageV123,
	V2PCIe: packageV123,
	V4H616: packageV4,
}

func (t Type) String() string {
	if n, ok := names[t]; ok {
		return n
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// PackageName returns the artifact file name for the board.
func (t Type) PackageName() (string, error) {
	name, ok := packages[t]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedBoard, t)
	}
	return name, nil
}

// FromModel maps a device-tree model string to a board type. The CM4 carrier
// boards (V1 and V2) cannot be told apart from the model string; both share
// one artifact so they are reported as V2_PCIE.
func FromModel(model string) Type {
	switch {
	case strings.Contains(model, modelPi4B):
		return V3Hat
	case strings.Contains(model, modelCM4):
		return V2PCIe
	case strings.Contains(model, modelMcore):
		return V4H616
	default:
		return Unknown
	}
}

// Detector reads the board model from the device tree.
type Detector struct {
	modelPath string
}

// NewDetector creates a detector reading the model string from modelPath.
func NewDetector(modelPath string) *Detector {
	return &Detector{modelPath: modelPath}
}

// Detect returns the board type. A missing or unreadable model file yields
// Unknown together with the read error.
func (d *Detector) Detect() (Type, string, error) {
	data, err := os.ReadFile(d.modelPath)
	if err != nil {
		return Unknown, "", fmt.Errorf("failed to read board model: %w", err)
	}
	// device-tree strings are NUL terminated
	model := strings.TrimSpace(strings.TrimRight(string(data), "\x00"))
	return FromModel(model), model, nil
}
