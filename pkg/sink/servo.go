package sink

import (
	"context"
	"fmt"
	"io"

	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/gwillem/glove/pkg/glove"
	"github.com/gwillem/glove/pkg/pose"
)

type servoGroup interface {
	EnableAll(ctx context.Context) error
	DisableAll(ctx context.Context) error
	SetPositions(ctx context.Context, positions feetech.PositionMap) error
}

// ServoHand drives one Feetech servo per finger from the proximal phalanx
// rotation.
type ServoHand struct {
	bus      io.Closer
	group    servoGroup
	channels map[glove.FingerName]glove.ServoChannel
}

// NewServoHand opens the servo bus and enables torque on the mapped servos.
func NewServoHand(ctx context.Context, cfg *glove.ServoConfig) (*ServoHand, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: cfg.BaudRate,
		Protocol: feetech.ProtocolSTS,
	})
	if err != nil {
		return nil, fmt.Errorf("open servo bus: %w", err)
	}

	group := feetech.NewServoGroupByIDs(bus, cfg.IDs()...)
	h := &ServoHand{
		bus:      bus,
		group:    group,
		channels: cfg.Fingers,
	}
	if err := h.group.EnableAll(ctx); err != nil {
		bus.Close()
		return nil, fmt.Errorf("enable servos: %w", err)
	}
	return h, nil
}

// Name identifies the sink in logs.
func (h *ServoHand) Name() string {
	return "servo"
}

// Positions converts a snapshot to raw servo positions.
func (h *ServoHand) Positions(snap pose.Snapshot) feetech.PositionMap {
	positions := make(feetech.PositionMap, len(h.channels))
	for _, f := range snap.Fingers {
		ch, ok := h.channels[f.Name]
		if !ok {
			continue
		}
		positions[ch.ID] = ch.Position(f.Rotations[0])
	}
	return positions
}

// Apply writes target positions to all mapped servos.
func (h *ServoHand) Apply(ctx context.Context, snap pose.Snapshot) error {
	if err := h.group.SetPositions(ctx, h.Positions(snap)); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}
	return nil
}

// Close disables torque and closes the bus.
func (h *ServoHand) Close() error {
	var errs []error
	if err := h.group.DisableAll(context.Background()); err != nil {
		errs = append(errs, err)
	}
	if err := h.bus.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
