package models

import (
	"errors"
	"strings"
	"time"
)

var ErrInvalidMediaRef = errors.New("invalid media reference")

// MediaBinding links an issued code to the data needed to fetch the media
// from the platform later. Bindings are never updated in place.
type MediaBinding struct {
	Code            string    `bson:"code" json:"code" db:"code"`
	ExternalMediaID string    `bson:"external_media_id" json:"external_media_id" db:"external_media_id"`
	MimeType        string    `bson:"mime_type" json:"mime_type" db:"mime_type"`
	Extension       string    `bson:"extension" json:"extension" db:"extension"`
	OriginalName    string    `bson:"original_name,omitempty" json:"original_name,omitempty" db:"original_name"`
	SenderID        string    `bson:"sender_id,omitempty" json:"sender_id,omitempty" db:"sender_id"`
	CreatedAt       time.Time `bson:"created_at" json:"created_at" db:"created_at"`
}

// DownloadName is the attachment filename served for the binding.
func (b *MediaBinding) DownloadName(preferOriginal bool) string {
	if preferOriginal && strings.TrimSpace(b.OriginalName) != "" {
		return b.OriginalName
	}
	return b.Code + b.Extension
}

// MediaRef is what ingestion hands to the allocator.
type MediaRef struct {
	ExternalMediaID string
	MimeType        string
	Extension       string
	OriginalName    string
	SenderID        string
}

func (r MediaRef) Validate() error {
	if strings.TrimSpace(r.ExternalMediaID) == "" {
		return errors.Join(ErrInvalidMediaRef, errors.New("external media id is required"))
	}
	if strings.TrimSpace(r.MimeType) == "" {
		return errors.Join(ErrInvalidMediaRef, errors.New("mime type is required"))
	}
	return nil
}

// Bind turns the reference into a binding for the given code.
func (r MediaRef) Bind(code string, createdAt time.Time) *MediaBinding {
	return &MediaBinding{
		Code:            code,
		ExternalMediaID: r.ExternalMediaID,
		MimeType:        r.MimeType,
		Extension:       r.Extension,
		OriginalName:    r.OriginalName,
		SenderID:        r.SenderID,
		CreatedAt:       createdAt,
	}
}
