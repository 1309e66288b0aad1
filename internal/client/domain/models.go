package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Client struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	Name       string       `gorm:"type:varchar(255);not null" json:"name"`
	Email      string       `gorm:"type:varchar(255);not null" json:"email"`
	Phone      string       `gorm:"type:varchar(64);not null" json:"phone"`
	Address    string       `gorm:"type:text;not null" json:"address"`
	IsArchived bool         `gorm:"not null;default:false;index:ix_clients_archived_updated,priority:1" json:"is_archived"`
	ArchivedAt *time.Time   `json:"archived_at"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null;index:ix_clients_archived_updated,priority:2" json:"updated_at"`
}

func (Client) TableName() string { return "clients" }

// SameContact reports whether the contact fields already match.
func (c Client) SameContact(email, phone, address string) bool {
	return c.Email == email && c.Phone == phone && c.Address == address
}
