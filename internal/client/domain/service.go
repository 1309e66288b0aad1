package domain

import (
	"context"
	"errors"
	"fmt"
)

const (
	DefaultListLimit  = 100
	ArchivedListLimit = 200
)

type ListFilter struct {
	Search          string
	IncludeArchived bool
	Limit           int
}

type ListRequest struct {
	Search          string
	IncludeArchived bool
}

type CreateRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	Overwrite bool   `json:"overwrite"`
}

type UpdateRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type Service interface {
	// Create returns created=false when an existing client was returned
	// unchanged or overwritten.
	Create(ctx context.Context, req CreateRequest) (client Client, created bool, err error)
	Update(ctx context.Context, id string, req UpdateRequest) (Client, error)
	Get(ctx context.Context, id string) (Client, error)
	List(ctx context.Context, req ListRequest) ([]Client, error)
	Archive(ctx context.Context, id string) (Client, error)
	Restore(ctx context.Context, id string) (Client, error)
}

var (
	ErrInvalidID   = errors.New("invalid_id")
	ErrInvalidName = errors.New("invalid_name")
	ErrNotFound    = errors.New("not_found")
	ErrNameInUse   = errors.New("client_name_in_use")
)

const (
	ConflictClientExists   = "CLIENT_EXISTS"
	ConflictClientArchived = "CLIENT_ARCHIVED"
)

// ConflictError reports a case-insensitive name collision with another client.
type ConflictError struct {
	Code     string
	Existing Client
}

func (e *ConflictError) Error() string {
	if e.Code == ConflictClientArchived {
		return fmt.Sprintf("a client named %q is archived, restore it first", e.Existing.Name)
	}
	return fmt.Sprintf("a client named %q already exists", e.Existing.Name)
}

func (e *ConflictError) Unwrap() error { return ErrNameInUse }
