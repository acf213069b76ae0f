package userstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dalemusser/handspm/internal/app/system/auth"
	"github.com/dalemusser/handspm/internal/app/system/authz"
	"github.com/dalemusser/handspm/internal/app/system/docstore"
	"github.com/dalemusser/handspm/internal/app/system/inputval"
	"github.com/dalemusser/handspm/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned for any failed sign-in. It never
	// says whether the employee code exists.
	ErrInvalidCredentials = errors.New("invalid employee code or password")
	// ErrDuplicateEmployeeID is returned when the employee code is taken.
	ErrDuplicateEmployeeID = errors.New("employee code already registered")
	// ErrNotFound is returned when a user does not exist.
	ErrNotFound = errors.New("user not found")
)

// Password length bounds, counted in characters after trimming.
const (
	MinPasswordLen = 6
	MaxPasswordLen = 12
)

type Store struct {
	b    docstore.Backend
	now  func() time.Time
	cost int
}

func New(b docstore.Backend) *Store {
	return &Store{b: b, now: func() time.Time { return time.Now().UTC() }, cost: bcrypt.DefaultCost}
}

// WithBcryptCost returns s using cost for new hashes. Tests use
// bcrypt.MinCost.
func (s *Store) WithBcryptCost(cost int) *Store {
	s.cost = cost
	return s
}

// credentialKey folds an employee code so sign-in is case-insensitive.
func credentialKey(employeeID string) string {
	return text.Fold(strings.TrimSpace(employeeID))
}

// CheckPassword applies the length rule and returns the trimmed password.
func CheckPassword(pw string) (string, error) {
	pw = strings.TrimSpace(pw)
	n := utf8.RuneCountInString(pw)
	if n < MinPasswordLen || n > MaxPasswordLen {
		return "", inputval.New("password", "密碼長度需為 %d-%d 碼", MinPasswordLen, MaxPasswordLen)
	}
	return pw, nil
}

/* ---------- reads ---------- */

// Get loads a user by uid.
func (s *Store) Get(ctx context.Context, uid string) (models.User, error) {
	d, err := s.b.Get(ctx, models.CollUsers, uid)
	if errors.Is(err, docstore.ErrNotFound) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	var u models.User
	if err := d.Decode(&u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// GetByEmployeeID loads a user by employee code.
func (s *Store) GetByEmployeeID(ctx context.Context, employeeID string) (models.User, error) {
	d, err := s.b.FindOne(ctx, models.CollUsers, bson.M{"employee_id": strings.TrimSpace(employeeID)})
	if errors.Is(err, docstore.ErrNotFound) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	var u models.User
	if err := d.Decode(&u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// List returns every user in directory order.
func (s *Store) List(ctx context.Context) ([]models.User, error) {
	docs, err := s.b.Find(ctx, models.CollUsers, bson.M{})
	if err != nil {
		return nil, err
	}
	return docstore.DecodeAll[models.User](docs)
}

// CountAdmins returns how many users hold the admin role.
func (s *Store) CountAdmins(ctx context.Context) (int64, error) {
	return s.b.Count(ctx, models.CollUsers, bson.M{"role": models.RoleAdmin})
}

// LoadActor implements auth.ActorLoader.
func (s *Store) LoadActor(ctx context.Context, uid string) (authz.Actor, error) {
	u, err := s.Get(ctx, uid)
	if errors.Is(err, ErrNotFound) {
		return authz.Actor{}, auth.ErrNoUser
	}
	if err != nil {
		return authz.Actor{}, err
	}
	return authz.NewActor(u), nil
}

/* ---------- registration & sign-in ---------- */

// Registration is the self-service sign-up form.
type Registration struct {
	EmployeeID  string `json:"employee_id" validate:"required,max=32" label:"員工編號"`
	Password    string `json:"password" validate:"required" label:"密碼"`
	DisplayName string `json:"display_name" validate:"required,max=50" label:"姓名"`
	Department  string `json:"department" validate:"required,department" label:"部門"`
	Email       string `json:"email" validate:"omitempty,email" label:"Email"`
}

// Register creates an account. The very first account becomes admin;
// every later one is a plain user.
func (s *Store) Register(ctx context.Context, in Registration) (models.User, error) {
	n, err := s.b.Count(ctx, models.CollUsers, bson.M{})
	if err != nil {
		return models.User{}, fmt.Errorf("count users: %w", err)
	}
	role := models.RoleUser
	if n == 0 {
		role = models.RoleAdmin
	}
	return s.create(ctx, UserInput{
		EmployeeID:  in.EmployeeID,
		Password:    in.Password,
		DisplayName: in.DisplayName,
		Department:  in.Department,
		Email:       in.Email,
		Role:        role,
	})
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// Authenticate verifies an employee code and password. Unknown codes still
// pay for one bcrypt comparison so timing does not reveal them.
func (s *Store) Authenticate(ctx context.Context, employeeID, password string) (models.User, error) {
	password = strings.TrimSpace(password)
	d, err := s.b.Get(ctx, models.CollCredentials, credentialKey(employeeID))
	if errors.Is(err, docstore.ErrNotFound) {
		dummyOnce.Do(func() {
			dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.cost)
		})
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, err
	}
	var cred models.Credential
	if err := d.Decode(&cred); err != nil {
		return models.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		return models.User{}, ErrInvalidCredentials
	}
	u, err := s.Get(ctx, cred.UID)
	if errors.Is(err, ErrNotFound) {
		return models.User{}, ErrInvalidCredentials
	}
	return u, err
}

/* ---------- presence ---------- */

// SetPresence marks a user online or offline and refreshes last_active.
func (s *Store) SetPresence(ctx context.Context, uid string, online bool) error {
	err := s.b.Update(ctx, models.CollUsers, uid, bson.M{"is_online": online, "last_active": s.now()})
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// SweepStale marks online users whose last_active is older than timeout as
// offline and returns how many were changed.
func (s *Store) SweepStale(ctx context.Context, timeout time.Duration) (int, error) {
	docs, err := s.b.Find(ctx, models.CollUsers, bson.M{"is_online": true})
	if err != nil {
		return 0, err
	}
	users, err := docstore.DecodeAll[models.User](docs)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-timeout)
	changed := 0
	for _, u := range users {
		if u.LastActive.After(cutoff) {
			continue
		}
		if err := s.b.Update(ctx, models.CollUsers, u.ID, bson.M{"is_online": false}); err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

/* ---------- admin management ---------- */

// UserInput is the admin create form.
type UserInput struct {
	EmployeeID  string `json:"employee_id" validate:"required,max=32" label:"員工編號"`
	Password    string `json:"password" validate:"required" label:"密碼"`
	DisplayName string `json:"display_name" validate:"required,max=50" label:"姓名"`
	Department  string `json:"department" validate:"required,department" label:"部門"`
	Email       string `json:"email" validate:"omitempty,email" label:"Email"`
	Role        string `json:"role" validate:"required,role" label:"權限"`
}

// Create adds an account with an explicit role.
func (s *Store) Create(ctx context.Context, in UserInput) (models.User, error) {
	return s.create(ctx, in)
}

func (s *Store) create(ctx context.Context, in UserInput) (models.User, error) {
	in.EmployeeID = strings.TrimSpace(in.EmployeeID)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	in.Email = strings.TrimSpace(in.Email)
	if err := inputval.Validate(in).Err(); err != nil {
		return models.User{}, err
	}
	pw, err := CheckPassword(in.Password)
	if err != nil {
		return models.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), s.cost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	if _, err := s.GetByEmployeeID(ctx, in.EmployeeID); err == nil {
		return models.User{}, ErrDuplicateEmployeeID
	} else if !errors.Is(err, ErrNotFound) {
		return models.User{}, err
	}

	now := s.now()
	u := models.User{
		ID:          uuid.NewString(),
		EmployeeID:  in.EmployeeID,
		DisplayName: in.DisplayName,
		Email:       in.Email,
		Department:  in.Department,
		Role:        in.Role,
		IsOnline:    false,
		LastActive:  now,
		CreatedAt:   now,
	}
	userData, err := docstore.Encode(u)
	if err != nil {
		return models.User{}, err
	}
	credData, err := docstore.Encode(models.Credential{UID: u.ID, PasswordHash: string(hash), UpdatedAt: now})
	if err != nil {
		return models.User{}, err
	}
	err = s.b.Batch(ctx, []docstore.Op{
		{Kind: docstore.OpInsert, Collection: models.CollCredentials, ID: credentialKey(in.EmployeeID), Data: credData},
		{Kind: docstore.OpInsert, Collection: models.CollUsers, ID: u.ID, Data: userData},
	})
	if errors.Is(err, docstore.ErrDuplicate) {
		return models.User{}, ErrDuplicateEmployeeID
	}
	if err != nil {
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// UserUpdate holds the editable fields; nil means unchanged.
type UserUpdate struct {
	DisplayName *string `json:"display_name"`
	Department  *string `json:"department"`
	Email       *string `json:"email"`
	Role        *string `json:"role"`
	Password    *string `json:"password"`
}

// Update edits a user. A password change replaces the credential hash.
func (s *Store) Update(ctx context.Context, uid string, upd UserUpdate) (models.User, error) {
	u, err := s.Get(ctx, uid)
	if err != nil {
		return models.User{}, err
	}
	set := bson.M{}
	if upd.DisplayName != nil {
		name := strings.TrimSpace(*upd.DisplayName)
		if name == "" {
			return models.User{}, inputval.New("display_name", "姓名為必填")
		}
		set["display_name"] = name
	}
	if upd.Department != nil {
		if !models.IsValidDepartment(*upd.Department) {
			return models.User{}, inputval.New("department", "部門格式不正確")
		}
		set["department"] = *upd.Department
	}
	if upd.Email != nil {
		email := strings.TrimSpace(*upd.Email)
		if email != "" && !inputval.IsValidEmail(email) {
			return models.User{}, inputval.New("email", "請輸入有效的電子郵件")
		}
		set["email"] = email
	}
	if upd.Role != nil {
		if !models.IsValidRole(*upd.Role) {
			return models.User{}, inputval.New("role", "權限格式不正確")
		}
		set["role"] = *upd.Role
	}

	var ops []docstore.Op
	if upd.Password != nil {
		pw, err := CheckPassword(*upd.Password)
		if err != nil {
			return models.User{}, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(pw), s.cost)
		if err != nil {
			return models.User{}, fmt.Errorf("hash password: %w", err)
		}
		ops = append(ops, docstore.Op{
			Kind:       docstore.OpSet,
			Collection: models.CollCredentials,
			ID:         credentialKey(u.EmployeeID),
			Data:       bson.M{"uid": u.ID, "password_hash": string(hash), "updated_at": s.now()},
		})
	}
	if len(set) > 0 {
		ops = append(ops, docstore.Op{Kind: docstore.OpUpdate, Collection: models.CollUsers, ID: uid, Data: set})
	}
	if len(ops) == 0 {
		return u, nil
	}
	if err := s.b.Batch(ctx, ops); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("update user: %w", err)
	}
	return s.Get(ctx, uid)
}

// Delete removes a user and their credential together.
func (s *Store) Delete(ctx context.Context, uid string) error {
	u, err := s.Get(ctx, uid)
	if err != nil {
		return err
	}
	ops := []docstore.Op{{Kind: docstore.OpDelete, Collection: models.CollUsers, ID: uid}}
	if _, err := s.b.Get(ctx, models.CollCredentials, credentialKey(u.EmployeeID)); err == nil {
		ops = append(ops, docstore.Op{Kind: docstore.OpDelete, Collection: models.CollCredentials, ID: credentialKey(u.EmployeeID)})
	}
	if err := s.b.Batch(ctx, ops); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
