package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, client *Client) error
	Update(ctx context.Context, db *gorm.DB, client *Client) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Client, error)
	// FindByName matches case-insensitively, optionally skipping one id.
	FindByName(ctx context.Context, db *gorm.DB, name string, excludeID snowflake.ID) (*Client, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Client, error)
}
