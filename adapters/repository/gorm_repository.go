package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/layer-3/credgate/core"
	"github.com/layer-3/credgate/ports"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormRepository stores requests and transcripts in a SQL database
type GormRepository struct {
	db *gorm.DB
}

var _ ports.RequestRepository = (*GormRepository)(nil)

// Open connects to the database named by dsn. URLs and keyword DSNs go to
// postgres; anything else is treated as a sqlite file.
func Open(dsn string) (*gorm.DB, error) {
	config := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	}

	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// NewGormRepository wraps db and migrates the schema
func NewGormRepository(db *gorm.DB) (*GormRepository, error) {
	if err := db.AutoMigrate(&requestRecord{}, &grantRecord{}, &transcriptRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &GormRepository{db: db}, nil
}

func column(field core.WalletField) string {
	if field == core.StudentWallet {
		return "student_wallet"
	}
	return "recipient_wallet"
}

func (g *GormRepository) CreateRequest(ctx context.Context, request *core.AccessRequest) error {
	record := requestRecord{
		ID:              request.ID,
		StudentWallet:   request.StudentWallet,
		RecipientWallet: request.RecipientWallet,
		Description:     request.Description,
		Status:          string(request.Status),
		ExpiryTimestamp: request.ExpiryTimestamp,
		CreatedAt:       request.CreatedAt,
	}
	return g.db.WithContext(ctx).Create(&record).Error
}

func (g *GormRepository) ListRequests(ctx context.Context, field core.WalletField, wallet string) ([]core.AccessRequest, error) {
	var records []requestRecord
	err := g.db.WithContext(ctx).
		Where("LOWER("+column(field)+") = LOWER(?)", wallet).
		Order("created_at, request_id").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	out := make([]core.AccessRequest, 0, len(records))
	for _, r := range records {
		out = append(out, r.toCore())
	}
	return out, nil
}

func (g *GormRepository) GetRequest(ctx context.Context, id string, field core.WalletField, wallet string) (*core.RequestDetail, error) {
	var record requestRecord
	err := g.db.WithContext(ctx).
		Where("request_id = ? AND LOWER("+column(field)+") = LOWER(?)", id, wallet).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}

	detail := &core.RequestDetail{AccessRequest: record.toCore()}
	switch detail.Status {
	case core.StatusApproved:
		var grants []grantRecord
		if err := g.db.WithContext(ctx).Where("request_id = ?", id).Order("transcript_id").Find(&grants).Error; err != nil {
			return nil, err
		}
		for _, gr := range grants {
			detail.Transcripts = append(detail.Transcripts, core.GrantedTranscript{RequestID: gr.RequestID, TranscriptID: gr.TranscriptID})
		}
	case core.StatusDenied:
		detail.Reason = record.Reason
	}
	return detail, nil
}

func (g *GormRepository) ResolveRequest(ctx context.Context, id string, decision core.Decision) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{"status": string(core.StatusDenied), "reason": decision.Reason}
		if decision.Verdict == core.Accept {
			updates = map[string]interface{}{"status": string(core.StatusApproved)}
		}

		res := tx.Model(&requestRecord{}).
			Where("request_id = ? AND LOWER(status) = ?", id, string(core.StatusPending)).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&requestRecord{}).Where("request_id = ?", id).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return core.ErrRequestNotFound
			}
			return core.ErrRequestNotPending
		}

		if decision.Verdict != core.Accept {
			return nil
		}
		ids := decision.Distinct().TranscriptIDs
		grants := make([]grantRecord, 0, len(ids))
		for _, t := range ids {
			grants = append(grants, grantRecord{RequestID: id, TranscriptID: t})
		}
		return tx.Create(&grants).Error
	})
}

func (g *GormRepository) AddTranscript(ctx context.Context, transcript *core.Transcript) error {
	record := transcriptRecord{
		TranscriptID:     transcript.TranscriptID,
		IPFSURIMetadata:  transcript.IPFSURIMetadata,
		IPFSURIMediaHash: transcript.IPFSURIMediaHash,
		OwnerWallet:      transcript.OwnerWallet,
	}
	err := g.db.WithContext(ctx).Create(&record).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return core.ErrTranscriptExists
	}
	return err
}

func (g *GormRepository) TranscriptOwner(ctx context.Context, transcriptID string) (string, error) {
	var record transcriptRecord
	err := g.db.WithContext(ctx).Where("transcript_id = ?", transcriptID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", core.ErrTranscriptNotFound
	}
	if err != nil {
		return "", err
	}
	return record.OwnerWallet, nil
}

func (g *GormRepository) GrantedTranscripts(ctx context.Context, wallet string) ([]string, error) {
	var granted []string
	err := g.db.WithContext(ctx).
		Model(&grantRecord{}).
		Joins("JOIN access_requests ON access_requests.request_id = request_transcripts.request_id").
		Where("access_requests.status = ? AND LOWER(access_requests.recipient_wallet) = LOWER(?)", string(core.StatusApproved), wallet).
		Order("request_transcripts.transcript_id").
		Pluck("request_transcripts.transcript_id", &granted).Error
	if err != nil {
		return nil, err
	}

	var owned []string
	err = g.db.WithContext(ctx).
		Model(&transcriptRecord{}).
		Where("LOWER(owner_wallet) = LOWER(?)", wallet).
		Order("transcript_id").
		Pluck("transcript_id", &owned).Error
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	out := make([]string, 0, len(granted)+len(owned))
	for _, id := range append(granted, owned...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

func (g *GormRepository) FindTranscriptByURI(ctx context.Context, uri string) (*core.Transcript, error) {
	var record transcriptRecord
	err := g.db.WithContext(ctx).
		Where("ipfs_uri_metadata = ? OR ipfs_uri_media_hash = ?", uri, uri).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrTranscriptNotFound
	}
	if err != nil {
		return nil, err
	}
	return record.toCore(), nil
}

func (g *GormRepository) IsGranted(ctx context.Context, transcriptID string, recipient string) (bool, error) {
	var count int64
	err := g.db.WithContext(ctx).
		Model(&grantRecord{}).
		Joins("JOIN access_requests ON access_requests.request_id = request_transcripts.request_id").
		Where("request_transcripts.transcript_id = ? AND access_requests.status = ? AND LOWER(access_requests.recipient_wallet) = LOWER(?)",
			transcriptID, string(core.StatusApproved), recipient).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
