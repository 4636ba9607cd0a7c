package services

import (
	"errors"

	"github.com/arzan03/mediadrop/internal/models"
)

var (
	// ErrNotFound covers unknown, expired and already consumed codes.
	ErrNotFound = errors.New("code not found")
	// ErrUpstreamResolution means the platform refused or failed the media
	// lookup. The binding is left untouched so the caller may retry.
	ErrUpstreamResolution = errors.New("media lookup failed")
	// ErrUpstreamStream means the transfer could not be started or broke
	// after the download URL was obtained.
	ErrUpstreamStream = errors.New("media transfer failed")
	// ErrAllocationFailed is returned once every code width is exhausted.
	ErrAllocationFailed = errors.New("no free code available")

	ErrInvalidMediaRef    = models.ErrInvalidMediaRef
	ErrUnsupportedMessage = errors.New("unsupported message type")
	ErrInvalidCredentials = errors.New("invalid credentials")

	errCodeCollision = errors.New("code collision")
)
