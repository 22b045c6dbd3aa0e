package services

import (
	"context"
	"crypto/subtle"
	"log/slog"

	"billing/internal/core"
	"billing/internal/storage"
)

const ResetConfirmation = "RESET"

// AdminService wipes the store. The SQLite backend is snapshotted first.
type AdminService struct {
	repo      storage.Repository
	secret    string
	summaries *SummaryCache
}

func NewAdminService(repo storage.Repository, secret string, summaries *SummaryCache) *AdminService {
	return &AdminService{repo: repo, secret: secret, summaries: summaries}
}

// ResetResult reports where the pre-reset snapshot went, if anywhere.
type ResetResult struct {
	Backup string `json:"backup,omitempty"`
}

func (s *AdminService) Reset(ctx context.Context, confirm, secret string) (ResetResult, error) {
	if confirm != ResetConfirmation {
		return ResetResult{}, core.NewError("reset not confirmed").
			WithHint("You must provide confirm: 'RESET' to proceed.").
			Mark(core.ErrValidation)
	}
	if s.secret != "" && subtle.ConstantTimeCompare([]byte(secret), []byte(s.secret)) != 1 {
		return ResetResult{}, core.NewError("reset secret mismatch").
			WithHint("Missing or invalid reset secret.").
			Mark(core.ErrForbidden)
	}

	var res ResetResult
	if b, ok := s.repo.(storage.Backupper); ok {
		path, err := b.Backup(ctx)
		if err != nil {
			return ResetResult{}, core.Persistence(err, "backup before reset")
		}
		res.Backup = path
	}

	if err := s.repo.Reset(ctx); err != nil {
		return ResetResult{}, err
	}
	s.summaries.Invalidate()

	slog.WarnContext(ctx, "All billing data reset", "backup", res.Backup)
	return res, nil
}
