package service

import (
	"time"

	"github.com/iliyamo/table-reservation/internal/model"
)

// Caller identifies who performs an operation. Email is resolved through
// the identity collaborator.
type Caller struct {
	Email string
}

// CreateReservationRequest is the input of ReservationService.Create.
type CreateReservationRequest struct {
	TableIDs     []string  `json:"table_ids" validate:"required,min=1,unique,dive,required"`
	CustomerName string    `json:"customer_name" validate:"required,max=120"`
	Contact      string    `json:"contact" validate:"max=120"`
	Document     string    `json:"document" validate:"max=64"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
	PartySize    int       `json:"party_size" validate:"min=1"`
	Forced       bool      `json:"forced"`
	Notes        string    `json:"notes" validate:"max=1000"`
}

// UpdateReservationRequest changes a PENDING reservation. Nil fields keep
// their current value; an empty table list keeps the current tables.
type UpdateReservationRequest struct {
	TableIDs     []string   `json:"table_ids" validate:"omitempty,unique,dive,required"`
	CustomerName *string    `json:"customer_name" validate:"omitnil,min=1,max=120"`
	Contact      *string    `json:"contact" validate:"omitnil,max=120"`
	Document     *string    `json:"document" validate:"omitnil,max=64"`
	StartsAt     *time.Time `json:"starts_at"`
	EndsAt       *time.Time `json:"ends_at"`
	PartySize    *int       `json:"party_size" validate:"omitnil,min=1"`
	Forced       *bool      `json:"forced"`
	Notes        *string    `json:"notes" validate:"omitnil,max=1000"`
}

// CreateTableRequest is the input of TableService.Create.
type CreateTableRequest struct {
	Code     string `json:"code" validate:"required,max=20"`
	Capacity int    `json:"capacity" validate:"min=1,max=100"`
	Sector   string `json:"sector" validate:"max=60"`
}

// UpdateTableRequest edits a FREE table; nil fields are left unchanged.
type UpdateTableRequest struct {
	Code     *string `json:"code" validate:"omitnil,min=1,max=20"`
	Capacity *int    `json:"capacity" validate:"omitnil,min=1,max=100"`
	Sector   *string `json:"sector" validate:"omitnil,max=60"`
}

// ChangeTableStatusRequest asks for a manual status transition.
type ChangeTableStatusRequest struct {
	Status model.TableStatus `json:"status" validate:"required,oneof=FREE RESERVED OCCUPIED INACTIVE"`
}
