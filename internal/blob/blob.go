// Package blob is the entry point for item image storage. It re-exports the
// core contract and selects a backend from settings.
package blob

import (
	"context"
	"fmt"
	"strings"

	"gearcore/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrUnsupported = core.ErrUnsupported
	ErrNotFound    = core.ErrNotFound
	ErrExists      = core.ErrExists
)

// Settings selects and configures a backend. An empty Driver means fs.
type Settings struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open returns the Store described by settings.
func Open(ctx context.Context, settings Settings) (Store, error) {
	driver := Driver(strings.ToLower(strings.TrimSpace(string(settings.Driver))))
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(settings.FSRoot)
	case DriverS3:
		return NewS3(ctx, settings.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", settings.Driver)
	}
}
