package service

import (
	"github.com/roadwatch/backend/internal/domain"
)

// Repositories are re-exported from domain for convenience
type (
	CollisionRepository = domain.CollisionRepository
	IngestRepository    = domain.IngestRepository
)
