// Package syncqueue holds the durable work queue propagating inventory
// movements between the ERP ledger and the warehouse system.
package syncqueue

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

// Direction states which system originated the movement.
type Direction string

const (
	DirectionERPToWMS Direction = "erp_to_wms"
	DirectionWMSToERP Direction = "wms_to_erp"
)

// MovementKind is the closed set of movement variants carried by the queue.
type MovementKind string

const (
	// KindReceipt adds stock at the target location.
	KindReceipt MovementKind = "receipt"
	// KindShipment removes stock from the target location.
	KindShipment MovementKind = "shipment"
	// KindAdjustment applies a signed correction.
	KindAdjustment MovementKind = "adjustment"
)

// Movement is the typed payload of a queue entry.
type Movement struct {
	Kind     MovementKind `json:"kind" validate:"required,oneof=receipt shipment adjustment"`
	Material string       `json:"material" validate:"required"`
	Location string       `json:"location" validate:"required"`
	Qty      float64      `json:"qty" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

var (
	// ErrInvalidMovement indicates a payload that must not be enqueued.
	ErrInvalidMovement = errors.New("syncqueue: invalid movement payload")
	// ErrEntryNotFound indicates the queue entry does not exist.
	ErrEntryNotFound = errors.New("syncqueue: entry not found")
)

// Validate checks the payload before it may enter the queue.
func (m Movement) Validate() error {
	if err := validate.Struct(m); err != nil {
		return errors.Join(ErrInvalidMovement, err)
	}
	switch m.Kind {
	case KindReceipt, KindShipment:
		if m.Qty <= 0 {
			return ErrInvalidMovement
		}
	case KindAdjustment:
		if m.Qty == 0 {
			return ErrInvalidMovement
		}
	}
	return nil
}

// QtyDelta returns the signed on-hand delta the movement applies at the target.
func (m Movement) QtyDelta() float64 {
	if m.Kind == KindShipment {
		return -m.Qty
	}
	return m.Qty
}

// Status enumerates queue entry lifecycle values.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSucceeded  Status = "SUCCEEDED"
	StatusFailed     Status = "FAILED"
	StatusDeadLetter Status = "DEAD_LETTER"
)

// Terminal reports whether the status will never change again.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusDeadLetter
}

// Entry is one pending inventory movement awaiting propagation.
type Entry struct {
	ID          int64
	Direction   Direction
	Movement    Movement
	Status      Status
	RetryCount  int
	NextRetryAt *time.Time
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
