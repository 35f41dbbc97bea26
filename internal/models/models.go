package models

import (
	"time"
)

// Role is the closed set of principal roles known to the backend.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// ParseRole maps a backend role string onto a Role. Anything unknown becomes
// RoleMember, the least-privileged role.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleMember
	}
}

func (r Role) Valid() bool {
	return r == RoleMember || r == RoleAdmin
}

type Book struct {
	ID              string     `json:"_id"`
	Title           string     `json:"title"`
	Author          string     `json:"author"`
	ISBN            string     `json:"ISBN"`
	Publisher       string     `json:"publisher"`
	AvailableAmount int        `json:"availableAmount"`
	CoverPicture    string     `json:"coverPicture"`
	CreatedAt       *time.Time `json:"createdAt,omitempty"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
}

// BookInput is the payload for creating or updating a book.
type BookInput struct {
	Title           string `json:"title"`
	Author          string `json:"author"`
	ISBN            string `json:"ISBN"`
	Publisher       string `json:"publisher"`
	AvailableAmount int    `json:"availableAmount"`
	CoverPicture    string `json:"coverPicture"`
}

// ReservationUser is the denormalized owner embedded in a reservation.
type ReservationUser struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

type Reservation struct {
	ID         string          `json:"_id"`
	BorrowDate time.Time       `json:"borrowDate"`
	PickupDate time.Time       `json:"pickupDate"`
	CreatedAt  *time.Time      `json:"createdAt,omitempty"`
	User       ReservationUser `json:"user"`
	Book       *Book           `json:"book"` // nil when the book was deleted
}

// ReservationInput is the create payload. Dates are YYYY-MM-DD.
type ReservationInput struct {
	Book       string `json:"book"`
	BorrowDate string `json:"borrowDate"`
	PickupDate string `json:"pickupDate"`
}

// ReservationPatch is the update payload; empty fields are not sent.
type ReservationPatch struct {
	BorrowDate string `json:"borrowDate,omitempty"`
	PickupDate string `json:"pickupDate,omitempty"`
}

type User struct {
	ID        string     `json:"_id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Tel       string     `json:"tel,omitempty"`
	Role      Role       `json:"role"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Tel      string `json:"tel"`
	Password string `json:"password"`
	Role     Role   `json:"role,omitempty"`
}

// AuthResponse is returned by both /auth/login and /auth/register.
type AuthResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Token   string `json:"token"`
}

// Envelope wraps a single record.
type Envelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
}

// CollectionEnvelope wraps a list of records.
type CollectionEnvelope[T any] struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
	Data    []T  `json:"data"`
}
