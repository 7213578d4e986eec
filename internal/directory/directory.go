// Package directory answers who is an admin and which capabilities each admin holds.
package directory

import (
	"context"
	"errors"

	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/ibrohim2505/prokinobot/internal/models"
	"github.com/ibrohim2505/prokinobot/internal/permissions"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrSuperadmin is returned for any attempt to change the superadmin.
	ErrSuperadmin = errors.New("superadmin cannot be modified")
	// ErrAlreadyExists is returned when adding an existing admin.
	ErrAlreadyExists = errors.New("admin already exists")
	// ErrNotAdmin is returned when the target is not an admin.
	ErrNotAdmin = errors.New("not an admin")
)

// AdminStore is the subset of the store the directory needs.
type AdminStore interface {
	GetAdmin(ctx context.Context, userID int64) (*models.Admin, error)
	ListAdmins(ctx context.Context) ([]models.Admin, error)
	CreateAdmin(ctx context.Context, admin *models.Admin) error
	UpdateAdminPermissions(ctx context.Context, userID int64, keys []string) error
	DeleteAdmin(ctx context.Context, userID int64) error
	EnsureSuperAdmin(ctx context.Context, userID int64, keys []string) error
}

// Account is an admin with decoded capabilities.
type Account struct {
	UserID       int64
	DisplayName  string
	Username     string
	Capabilities []string
	IsSuperAdmin bool
}

// Has reports whether the account holds capability.
func (a Account) Has(capability string) bool {
	if a.IsSuperAdmin || (capability == permissions.AnyAdmin && a.UserID != 0) {
		return true
	}
	return permissions.HasPermission(a.Capabilities, capability)
}

// Directory is the capability directory.
type Directory struct {
	store        AdminStore
	superadminID int64
}

// New constructs a Directory. superadminID always holds every capability.
func New(store AdminStore, superadminID int64) *Directory {
	return &Directory{store: store, superadminID: superadminID}
}

// SuperadminID returns the configured superadmin.
func (d *Directory) SuperadminID() int64 { return d.superadminID }

// EnsureSuperadmin seeds the superadmin row with every capability.
func (d *Directory) EnsureSuperadmin(ctx context.Context) error {
	if d.superadminID == 0 {
		return errkind.New(errkind.Validation, "directory.ensure_superadmin", "superadmin id is not configured")
	}
	return d.store.EnsureSuperAdmin(ctx, d.superadminID, permissions.All())
}

func toAccount(admin *models.Admin) Account {
	return Account{
		UserID:       admin.UserID,
		DisplayName:  admin.DisplayName,
		Username:     admin.Username,
		Capabilities: permissions.ParsePermissions(admin.Permissions),
		IsSuperAdmin: admin.IsSuperAdmin,
	}
}

// Get returns the admin account of id.
func (d *Directory) Get(ctx context.Context, id int64) (Account, error) {
	if id == d.superadminID && id != 0 {
		account := Account{UserID: id, Capabilities: permissions.All(), IsSuperAdmin: true}
		if admin, errGet := d.store.GetAdmin(ctx, id); errGet == nil {
			account.DisplayName = admin.DisplayName
			account.Username = admin.Username
		}
		return account, nil
	}
	admin, errGet := d.store.GetAdmin(ctx, id)
	if errGet != nil {
		if errkind.Is(errGet, errkind.NotFound) {
			return Account{}, errkind.Wrap(errkind.NotFound, "directory.get", ErrNotAdmin)
		}
		return Account{}, errGet
	}
	return toAccount(admin), nil
}

// IsAdmin reports whether id is an admin.
func (d *Directory) IsAdmin(ctx context.Context, id int64) (bool, error) {
	if id == d.superadminID && id != 0 {
		return true, nil
	}
	_, err := d.Get(ctx, id)
	if errkind.Is(err, errkind.NotFound) {
		return false, nil
	}
	return err == nil, err
}

// HasCapability reports whether id holds capability.
func (d *Directory) HasCapability(ctx context.Context, id int64, capability string) (bool, error) {
	if id == d.superadminID && id != 0 {
		return true, nil
	}
	account, err := d.Get(ctx, id)
	if errkind.Is(err, errkind.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return account.Has(capability), nil
}

// Require returns a Permission error unless id holds capability.
func (d *Directory) Require(ctx context.Context, id int64, capability string) error {
	ok, err := d.HasCapability(ctx, id, capability)
	if err != nil {
		return err
	}
	if !ok {
		return errkind.New(errkind.Permission, "directory.require", "missing capability "+capability)
	}
	return nil
}

// ListAdmins returns every admin, superadmins first.
func (d *Directory) ListAdmins(ctx context.Context) ([]Account, error) {
	rows, err := d.store.ListAdmins(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(rows))
	for i := range rows {
		out = append(out, toAccount(&rows[i]))
	}
	return out, nil
}

// AdminsWith returns the admins holding capability.
func (d *Directory) AdminsWith(ctx context.Context, capability string) ([]Account, error) {
	all, err := d.ListAdmins(ctx)
	if err != nil {
		return nil, err
	}
	var out []Account
	for _, account := range all {
		if account.Has(capability) {
			out = append(out, account)
		}
	}
	return out, nil
}

// AddAdmin creates an admin on behalf of actor.
func (d *Directory) AddAdmin(ctx context.Context, actor int64, account Account) error {
	if err := d.Require(ctx, actor, permissions.Admins); err != nil {
		return err
	}
	if account.UserID == d.superadminID {
		return errkind.Wrap(errkind.Conflict, "directory.add_admin", ErrAlreadyExists)
	}
	if _, errGet := d.store.GetAdmin(ctx, account.UserID); errGet == nil {
		return errkind.Wrap(errkind.Conflict, "directory.add_admin", ErrAlreadyExists)
	} else if !errkind.Is(errGet, errkind.NotFound) {
		return errGet
	}

	keys := account.Capabilities
	if len(keys) == 0 {
		keys = permissions.DefaultForNewAdmin()
	}
	raw, errMarshal := permissions.MarshalPermissions(keys)
	if errMarshal != nil {
		return errkind.Wrap(errkind.Validation, "directory.add_admin", errMarshal)
	}
	errCreate := d.store.CreateAdmin(ctx, &models.Admin{
		UserID:      account.UserID,
		DisplayName: account.DisplayName,
		Username:    account.Username,
		Permissions: raw,
	})
	if errkind.Is(errCreate, errkind.Conflict) {
		return errkind.Wrap(errkind.Conflict, "directory.add_admin", ErrAlreadyExists)
	}
	if errCreate != nil {
		return errCreate
	}
	log.WithFields(log.Fields{"actor": actor, "admin": account.UserID}).Info("admin added")
	return nil
}

// RemoveAdmin deletes an admin on behalf of actor.
func (d *Directory) RemoveAdmin(ctx context.Context, actor, id int64) error {
	if id == d.superadminID {
		return errkind.Wrap(errkind.Forbidden, "directory.remove_admin", ErrSuperadmin)
	}
	if err := d.Require(ctx, actor, permissions.Admins); err != nil {
		return err
	}
	if errDelete := d.store.DeleteAdmin(ctx, id); errDelete != nil {
		if errkind.Is(errDelete, errkind.NotFound) {
			return errkind.Wrap(errkind.NotFound, "directory.remove_admin", ErrNotAdmin)
		}
		return errDelete
	}
	log.WithFields(log.Fields{"actor": actor, "admin": id}).Info("admin removed")
	return nil
}

// Grant adds capability to id on behalf of actor.
func (d *Directory) Grant(ctx context.Context, actor, id int64, capability string) error {
	return d.mutate(ctx, "directory.grant", actor, id, capability, func(keys []string) []string {
		return permissions.With(keys, capability)
	})
}

// Revoke removes capability from id on behalf of actor.
func (d *Directory) Revoke(ctx context.Context, actor, id int64, capability string) error {
	return d.mutate(ctx, "directory.revoke", actor, id, capability, func(keys []string) []string {
		return permissions.Without(keys, capability)
	})
}

// Toggle grants capability when missing and revokes it when held. It returns the new state.
func (d *Directory) Toggle(ctx context.Context, actor, id int64, capability string) (bool, error) {
	var granted bool
	err := d.mutate(ctx, "directory.toggle", actor, id, capability, func(keys []string) []string {
		if permissions.HasPermission(keys, capability) {
			granted = false
			return permissions.Without(keys, capability)
		}
		granted = true
		return permissions.With(keys, capability)
	})
	return granted, err
}

func (d *Directory) mutate(ctx context.Context, op string, actor, id int64, capability string, fn func([]string) []string) error {
	if id == d.superadminID {
		return errkind.Wrap(errkind.Forbidden, op, ErrSuperadmin)
	}
	if invalid := permissions.ValidatePermissions([]string{capability}); len(invalid) > 0 {
		return errkind.New(errkind.Validation, op, "unknown capability "+capability)
	}
	if err := d.Require(ctx, actor, permissions.Admins); err != nil {
		return err
	}
	admin, errGet := d.store.GetAdmin(ctx, id)
	if errGet != nil {
		if errkind.Is(errGet, errkind.NotFound) {
			return errkind.Wrap(errkind.NotFound, op, ErrNotAdmin)
		}
		return errGet
	}
	if admin.IsSuperAdmin {
		return errkind.Wrap(errkind.Forbidden, op, ErrSuperadmin)
	}
	next := fn(permissions.ParsePermissions(admin.Permissions))
	return d.store.UpdateAdminPermissions(ctx, id, next)
}
