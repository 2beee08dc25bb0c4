package commands

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/cins/internal/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew = "commands.service.new"
	opSave       = "commands.save"
	opSearch     = "commands.search"
	opOwnedIDs   = "commands.owned_ids"

	columnID       = "id"
	columnUserID   = "user_id"
	columnText     = "command"
	orderIDDesc    = columnID + " DESC"
	queryUserID    = columnUserID + " = ?"
	queryUserIDsIn = columnUserID + " = ? AND " + columnID + " IN ?"
	queryKeyword   = "LOWER(" + columnText + ") LIKE LOWER(?) ESCAPE '!'"
	likeEscape     = "!"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()

	ErrInvalidOwner = apperr.New(apperr.KindValidation, opSave, "invalid_owner", nil)
	ErrEmptyText    = apperr.New(apperr.KindValidation, opSave, "empty_text", nil)
	ErrTextTooLong  = apperr.New(apperr.KindValidation, opSave, "text_too_long", nil)
)

// ServiceConfig describes the dependencies of the command store.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service stores and searches commands.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService constructs the command store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperr.New(apperr.KindInternal, opServiceNew, "missing_database", errMissingDatabase)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, logger: logger}, nil
}

// Save stores text for ownerID and returns the new command identifier.
func (s *Service) Save(ctx context.Context, ownerID int64, text string) (int64, error) {
	if s.db == nil {
		s.logError(opSave, "missing_database", errMissingDatabase)
		return 0, apperr.New(apperr.KindInternal, opSave, "missing_database", errMissingDatabase)
	}
	if ownerID <= 0 {
		return 0, ErrInvalidOwner
	}
	if strings.TrimSpace(text) == "" {
		return 0, ErrEmptyText
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return 0, ErrTextTooLong
	}

	command := Command{UserID: ownerID, Text: text}
	// A primary key collision is absorbed as a no-op instead of surfacing a duplicate-key fault.
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&command)
	if result.Error != nil {
		s.logError(opSave, "insert_failed", result.Error, zap.Int64("user_id", ownerID))
		return 0, apperr.New(apperr.KindInternal, opSave, "insert_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		s.logger.Warn("command insert skipped on conflict",
			zap.Int64("user_id", ownerID),
			zap.Int64("command_id", command.ID))
	}
	return command.ID, nil
}

// Search returns ownerID's commands newest first, filtered by opts.
func (s *Service) Search(ctx context.Context, ownerID int64, opts SearchOptions) ([]Entry, error) {
	if s.db == nil {
		s.logError(opSearch, "missing_database", errMissingDatabase)
		return nil, apperr.New(apperr.KindInternal, opSearch, "missing_database", errMissingDatabase)
	}
	if ownerID <= 0 {
		return nil, apperr.New(apperr.KindValidation, opSearch, "invalid_owner", nil)
	}

	var rows []Command
	if err := buildSearchQuery(s.db.WithContext(ctx), ownerID, opts).Find(&rows).Error; err != nil {
		s.logError(opSearch, "query_failed", err, zap.Int64("user_id", ownerID))
		return nil, apperr.New(apperr.KindInternal, opSearch, "query_failed", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entry := Entry{Text: row.Text}
		if opts.IncludeIDs {
			entry.ID = row.ID
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// OwnedIDs reports which of ids are commands owned by ownerID. It runs on the
// supplied handle so callers can use it inside their own transaction.
func OwnedIDs(db *gorm.DB, ownerID int64, ids []int64) (map[int64]struct{}, error) {
	owned := make(map[int64]struct{}, len(ids))
	if len(ids) == 0 {
		return owned, nil
	}
	var found []int64
	if err := db.Model(&Command{}).
		Where(queryUserIDsIn, ownerID, ids).
		Pluck(columnID, &found).Error; err != nil {
		return nil, apperr.New(apperr.KindInternal, opOwnedIDs, "query_failed", err)
	}
	for _, id := range found {
		owned[id] = struct{}{}
	}
	return owned, nil
}

func buildSearchQuery(db *gorm.DB, ownerID int64, opts SearchOptions) *gorm.DB {
	columns := []string{columnText}
	if opts.IncludeIDs {
		columns = []string{columnID, columnText}
	}
	query := db.Model(&Command{}).
		Select(columns).
		Where(queryUserID, ownerID).
		Order(orderIDDesc)
	if opts.Keyword != "" {
		query = query.Where(queryKeyword, likePattern(opts.Keyword))
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	return query
}

// likePattern builds a substring pattern in which LIKE wildcards
// from the keyword match literally.
func likePattern(keyword string) string {
	escaper := strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")
	return "%" + escaper.Replace(keyword) + "%"
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	logger := s.logger
	if logger == nil {
		logger = noOpLogger
	}
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	logger.Error("commands service error", attrs...)
}
