package repository

import (
	"time"

	"github.com/layer-3/credgate/core"
)

type requestRecord struct {
	ID              string    `gorm:"column:request_id;primaryKey"`
	StudentWallet   string    `gorm:"column:student_wallet;index;not null"`
	RecipientWallet string    `gorm:"column:recipient_wallet;index;not null"`
	Description     string    `gorm:"column:description;not null"`
	Status          string    `gorm:"column:status;not null;default:pending"`
	Reason          string    `gorm:"column:reason"`
	ExpiryTimestamp time.Time `gorm:"column:expiry_timestamp;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;not null"`
}

func (requestRecord) TableName() string { return "access_requests" }

func (r requestRecord) toCore() core.AccessRequest {
	return core.AccessRequest{
		ID:              r.ID,
		StudentWallet:   r.StudentWallet,
		RecipientWallet: r.RecipientWallet,
		Description:     r.Description,
		Status:          core.RequestStatus(r.Status),
		ExpiryTimestamp: r.ExpiryTimestamp,
		CreatedAt:       r.CreatedAt,
	}
}

type grantRecord struct {
	RequestID    string `gorm:"column:request_id;primaryKey"`
	TranscriptID string `gorm:"column:transcript_id;primaryKey"`
}

func (grantRecord) TableName() string { return "request_transcripts" }

type transcriptRecord struct {
	TranscriptID     string `gorm:"column:transcript_id;primaryKey"`
	IPFSURIMetadata  string `gorm:"column:ipfs_uri_metadata;index"`
	IPFSURIMediaHash string `gorm:"column:ipfs_uri_media_hash;index"`
	OwnerWallet      string `gorm:"column:owner_wallet;index;not null"`
}

func (transcriptRecord) TableName() string { return "transcripts" }

func (t transcriptRecord) toCore() *core.Transcript {
	return &core.Transcript{
		TranscriptID:     t.TranscriptID,
		IPFSURIMetadata:  t.IPFSURIMetadata,
		IPFSURIMediaHash: t.IPFSURIMediaHash,
		OwnerWallet:      t.OwnerWallet,
	}
}
