// Package allowlist holds the manually curated set of accounts permitted to
// trigger builds.
package allowlist

import (
	"errors"
	"log/slog"
	"pkgforge/bot/schema"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Add upserts the entry for an account. A repeated add for the same account
// overwrites the status (last write wins).
func (r *Repository) Add(accountName, status string) (schema.AllowlistEntry, error) {
	entry := schema.AllowlistEntry{AccountName: accountName, Status: status}

	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"status"}),
	}).Create(&entry)
	if result.Error != nil {
		slog.Error("sql error adding allowlist entry", "account", accountName, "error", result.Error)
		return schema.AllowlistEntry{}, schema.ErrDbAccessFailed
	}

	return entry, nil
}

// Get returns nil when no entry exists for the account.
func (r *Repository) Get(accountName string) (*schema.AllowlistEntry, error) {
	var entry schema.AllowlistEntry

	result := r.db.First(&entry, "account_name = ?", accountName)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.Error("sql error getting allowlist entry", "account", accountName, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}

	return &entry, nil
}

func (r *Repository) AccountsByStatus(status string) ([]string, error) {
	var accounts []string

	result := r.db.Model(&schema.AllowlistEntry{}).Where("status = ?", status).Order("account_name").Pluck("account_name", &accounts)
	if result.Error != nil {
		slog.Error("sql error listing allowlist entries", "status", status, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}

	return accounts, nil
}

// Remove deletes the entry if present. Removing an unknown account is not
// an error.
func (r *Repository) Remove(accountName string) error {
	result := r.db.Delete(&schema.AllowlistEntry{}, "account_name = ?", accountName)
	if result.Error != nil {
		slog.Error("sql error removing allowlist entry", "account", accountName, "error", result.Error)
		return schema.ErrDbAccessFailed
	}

	if result.RowsAffected == 0 {
		slog.Info("account not on allowlist, nothing to remove", "account", accountName)
	}

	return nil
}

func (r *Repository) Approve(accountName string) error {
	_, err := r.Add(accountName, schema.AllowlistApprovedManually)
	return err
}

// IsApproved checks whether an account may trigger builds. Accounts seen for
// the first time are registered as waiting so that an admin can approve them
// later.
func (r *Repository) IsApproved(accountName string) (bool, error) {
	entry, err := r.Get(accountName)
	if err != nil {
		return false, err
	}

	if entry == nil {
		slog.Info("new account, adding to allowlist as waiting", "account", accountName)
		if _, err := r.Add(accountName, schema.AllowlistWaiting); err != nil {
			return false, err
		}
		return false, nil
	}

	switch entry.Status {
	case schema.AllowlistApprovedManually, schema.AllowlistApprovedAutomatically:
		return true, nil
	default:
		return false, nil
	}
}

func (r *Repository) AccountsWaiting() ([]string, error) {
	return r.AccountsByStatus(schema.AllowlistWaiting)
}
