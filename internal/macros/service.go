package macros

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/cins/internal/apperr"
	"github.com/MarcoPoloResearchLab/cins/internal/commands"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew = "macros.service.new"
	opExists     = "macros.exists"
	opCreate     = "macros.create"
	opGet        = "macros.get"
	opListNames  = "macros.list_names"
	opRenumber   = "macros.renumber"
	opPrune      = "macros.prune_memberships"

	queryUserID       = "user_id = ?"
	queryUserName     = "user_id = ? AND name = ?"
	queryMembership   = "macro_id = ? AND command_id = ?"
	orderIDAsc        = "id ASC"
	orderIDDesc       = "id DESC"
	orderMemberships  = "macro_id ASC, order_index ASC, command_id ASC"
	joinMemberCommand = "JOIN commands ON commands.id = macro_commands.command_id AND commands.user_id = ?"
	queryMemberMacro  = "macro_commands.macro_id = ?"
	orderMemberIndex  = "macro_commands.order_index ASC"
	columnMemberText  = "commands.command"
	queryOrphanMember = "macro_id NOT IN (?) OR command_id NOT IN (?)"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()

	ErrInvalidOwner   = apperr.New(apperr.KindValidation, opCreate, "invalid_owner", nil)
	ErrEmptyName      = apperr.New(apperr.KindValidation, opCreate, "empty_name", nil)
	ErrNameTooLong    = apperr.New(apperr.KindValidation, opCreate, "name_too_long", nil)
	ErrNameTaken      = apperr.New(apperr.KindConflict, opCreate, "name_taken", nil)
	ErrEmptyCommands  = apperr.New(apperr.KindValidation, opCreate, "empty_commands", nil)
	ErrUnknownCommand = apperr.New(apperr.KindValidation, opCreate, "unknown_command", nil)
)

// ServiceConfig describes the dependencies of the macro store.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service creates and resolves macros.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService constructs the macro store.
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

// Exists reports whether ownerID already has a macro called name.
func (s *Service) Exists(ctx context.Context, ownerID int64, name string) (bool, error) {
	if s.db == nil {
		s.logError(opExists, "missing_database", errMissingDatabase)
		return false, apperr.New(apperr.KindInternal, opExists, "missing_database", errMissingDatabase)
	}
	exists, err := macroExists(s.db.WithContext(ctx), ownerID, strings.TrimSpace(name))
	if err != nil {
		s.logError(opExists, "query_failed", err, zap.Int64("user_id", ownerID))
		return false, apperr.New(apperr.KindInternal, opExists, "query_failed", err)
	}
	return exists, nil
}

// Create stores a macro replaying commandIDs in the given order and returns its
// identifier. Repeated identifiers keep their first position. Every identifier
// must be a command owned by ownerID; otherwise nothing is stored.
func (s *Service) Create(ctx context.Context, ownerID int64, name string, commandIDs []int64) (int64, error) {
	if s.db == nil {
		s.logError(opCreate, "missing_database", errMissingDatabase)
		return 0, apperr.New(apperr.KindInternal, opCreate, "missing_database", errMissingDatabase)
	}
	if ownerID <= 0 {
		return 0, ErrInvalidOwner
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, ErrEmptyName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return 0, ErrNameTooLong
	}

	exists, err := s.Exists(ctx, ownerID, name)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, ErrNameTaken
	}
	if len(commandIDs) == 0 {
		return 0, ErrEmptyCommands
	}
	ordered := normalizeCommandIDs(commandIDs)

	var macro Macro
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := macroExists(tx, ownerID, name)
		if err != nil {
			return apperr.New(apperr.KindInternal, opCreate, "exists_query_failed", err)
		}
		if taken {
			return ErrNameTaken
		}

		owned, err := commands.OwnedIDs(tx, ownerID, ordered)
		if err != nil {
			return err
		}
		if missing := missingIDs(ordered, owned); len(missing) > 0 {
			return fmt.Errorf("%w: %v", ErrUnknownCommand, missing)
		}

		macro = Macro{UserID: ownerID, Name: name}
		if err := tx.Create(&macro).Error; err != nil {
			return err
		}
		memberships := buildMemberships(macro.ID, ordered)
		if err := tx.Create(&memberships).Error; err != nil {
			return apperr.New(apperr.KindInternal, opCreate, "membership_insert_failed", err)
		}
		return nil
	})
	if txErr == nil {
		return macro.ID, nil
	}

	var appErr *apperr.Error
	if errors.As(txErr, &appErr) {
		if appErr.Kind() == apperr.KindInternal {
			s.logError(opCreate, "transaction_failed", txErr, zap.Int64("user_id", ownerID))
		}
		return 0, txErr
	}
	if errors.Is(txErr, gorm.ErrDuplicatedKey) {
		return 0, ErrNameTaken
	}
	// A concurrent creator that committed first leaves a row we can observe now.
	if taken, err := macroExists(s.db.WithContext(ctx), ownerID, name); err == nil && taken {
		return 0, ErrNameTaken
	}
	s.logError(opCreate, "macro_insert_failed", txErr, zap.Int64("user_id", ownerID), zap.String("name", name))
	return 0, apperr.New(apperr.KindInternal, opCreate, "macro_insert_failed", txErr)
}

// Get returns the command texts of the macro called name in replay order. An
// empty name selects the owner's newest macro. A missing macro yields an empty slice.
func (s *Service) Get(ctx context.Context, ownerID int64, name string) ([]string, error) {
	if s.db == nil {
		s.logError(opGet, "missing_database", errMissingDatabase)
		return nil, apperr.New(apperr.KindInternal, opGet, "missing_database", errMissingDatabase)
	}
	db := s.db.WithContext(ctx)

	query := db.Model(&Macro{})
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		query = query.Where(queryUserName, ownerID, trimmed)
	} else {
		query = query.Where(queryUserID, ownerID).Order(orderIDDesc).Limit(1)
	}
	var macro Macro
	err := query.Take(&macro).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []string{}, nil
	}
	if err != nil {
		s.logError(opGet, "macro_query_failed", err, zap.Int64("user_id", ownerID))
		return nil, apperr.New(apperr.KindInternal, opGet, "macro_query_failed", err)
	}

	texts := []string{}
	if err := db.Model(&MacroCommand{}).
		Joins(joinMemberCommand, ownerID).
		Where(queryMemberMacro, macro.ID).
		Order(orderMemberIndex).
		Pluck(columnMemberText, &texts).Error; err != nil {
		s.logError(opGet, "member_query_failed", err, zap.Int64("user_id", ownerID), zap.Int64("macro_id", macro.ID))
		return nil, apperr.New(apperr.KindInternal, opGet, "member_query_failed", err)
	}
	if texts == nil {
		texts = []string{}
	}
	return texts, nil
}

// ListNames returns every macro name of ownerID, oldest first.
func (s *Service) ListNames(ctx context.Context, ownerID int64) ([]string, error) {
	if s.db == nil {
		s.logError(opListNames, "missing_database", errMissingDatabase)
		return nil, apperr.New(apperr.KindInternal, opListNames, "missing_database", errMissingDatabase)
	}
	names := []string{}
	if err := s.db.WithContext(ctx).
		Model(&Macro{}).
		Where(queryUserID, ownerID).
		Order(orderIDAsc).
		Pluck("name", &names).Error; err != nil {
		s.logError(opListNames, "query_failed", err, zap.Int64("user_id", ownerID))
		return nil, apperr.New(apperr.KindInternal, opListNames, "query_failed", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// RenumberMemberships rewrites order_index so every macro's positions run 1..N
// without gaps, keeping the existing relative order.
func RenumberMemberships(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var memberships []MacroCommand
		if err := tx.Order(orderMemberships).Find(&memberships).Error; err != nil {
			return apperr.New(apperr.KindInternal, opRenumber, "query_failed", err)
		}
		position := 0
		var currentMacro int64
		for _, membership := range memberships {
			if membership.MacroID != currentMacro {
				currentMacro = membership.MacroID
				position = 0
			}
			position++
			if membership.Order == position {
				continue
			}
			if err := tx.Model(&MacroCommand{}).
				Where(queryMembership, membership.MacroID, membership.CommandID).
				Update("order_index", position).Error; err != nil {
				return apperr.New(apperr.KindInternal, opRenumber, "update_failed", err)
			}
		}
		return nil
	})
}

// PruneOrphanMemberships deletes memberships whose macro or command no longer
// exists and returns how many rows were removed. Remaining positions may have
// gaps; RenumberMemberships closes them.
func PruneOrphanMemberships(db *gorm.DB) (int64, error) {
	result := db.
		Where(queryOrphanMember, db.Model(&Macro{}).Select("id"), db.Model(&commands.Command{}).Select("id")).
		Delete(&MacroCommand{})
	if result.Error != nil {
		return 0, apperr.New(apperr.KindInternal, opPrune, "delete_failed", result.Error)
	}
	return result.RowsAffected, nil
}

func macroExists(db *gorm.DB, ownerID int64, name string) (bool, error) {
	var count int64
	err := db.Model(&Macro{}).Where(queryUserName, ownerID, name).Count(&count).Error
	return count > 0, err
}

func missingIDs(ordered []int64, owned map[int64]struct{}) []int64 {
	var missing []int64
	for _, id := range ordered {
		if _, ok := owned[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
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
	logger.Error("macros service error", attrs...)
}
