package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"size:100;not null;unique" json:"username"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Email     *string   `gorm:"size:100;unique" json:"email"`
	Password  string    `gorm:"size:255;not null" json:"password,omitempty"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	IsAdmin   bool      `gorm:"not null;default:false" json:"is_admin"`
	Roles     []Role    `gorm:"many2many:user_roles" json:"roles"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username string   `json:"username" validate:"required,max=100"`
	Name     string   `json:"name" validate:"required,max=100"`
	Email    string   `json:"email" validate:"omitempty,email"`
	Password string   `json:"password" validate:"required,min=8"`
	IsAdmin  bool     `json:"is_admin"`
	Roles    []string `json:"roles"`
}

type LoginInfo struct {
	Token   string   `json:"token"`
	Name    string   `json:"name"`
	Roles   []string `json:"roles"`
	IsAdmin bool     `json:"is_admin"`
}

/*
caches:
	User:$username
	Token:$token -> username
	Tokens:$username (set of tokens)
*/

func (user User) RemoveInstanceRedis() error {
	return config.RemoveRedisKey("User:" + user.Username)
}

func (user *User) PrepareGive() {
	user.Password = ""
}

func (user User) RoleCodes() []string {
	codes := make([]string, 0, len(user.Roles))
	for _, r := range user.Roles {
		codes = append(codes, r.Code)
	}
	return codes
}

func (user User) Active() bool {
	return user.IsActive != nil && *user.IsActive
}

// destroy current session
func Logout(ctx context.Context) (bool, error) {
	token, ok := utils.GetTokenFromContext(ctx)
	if !ok || token == "" {
		return false, errors.New("token is required")
	}
	if err := config.RemoveRedisKey("Token:" + token); err != nil {
		return false, err
	}
	username, ok := utils.GetUsernameFromContext(ctx)
	if !ok || username == "" {
		return false, errors.New("user not found")
	}
	if err := config.RemoveRedisSetMember("Tokens:"+username, token); err != nil {
		return false, err
	}
	return true, nil
}

func Login(ctx context.Context, username string, password string) (*LoginInfo, error) {
	user, err := findUserForLogin(ctx, username, password)
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()
	lifespan := utils.TokenLifespan()
	if err := config.AddRedisSet("Tokens:"+user.Username, token); err != nil {
		return nil, err
	}
	if err := config.SetRedisValue("Token:"+token, user.Username, lifespan); err != nil {
		return nil, err
	}

	return &LoginInfo{
		Token:   token,
		Name:    user.Name,
		Roles:   user.RoleCodes(),
		IsAdmin: user.IsAdmin,
	}, nil
}

// IssueBearerToken returns a signed JWT for service clients that cannot keep
// a redis session.
func IssueBearerToken(ctx context.Context, username string, password string) (string, error) {
	user, err := findUserForLogin(ctx, username, password)
	if err != nil {
		return "", err
	}
	return utils.JwtGenerate(user.ID, user.Username)
}

func findUserForLogin(ctx context.Context, username string, password string) (*User, error) {
	var user User
	err := config.GetDB().WithContext(ctx).Preload("Roles").
		Where("username = ?", username).Take(&user).Error
	if err != nil {
		return nil, errors.New("invalid username or password")
	}
	if err := utils.ComparePassword(user.Password, password); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, errors.New("invalid username or password")
		}
		return nil, err
	}
	if !user.Active() {
		return nil, errors.New("user is disabled")
	}
	return &user, nil
}

// GetUserByUsername reads the user cache first, then the database.
func GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return nil, err
	}
	if exists {
		return &user, nil
	}
	if err := config.GetDB().WithContext(ctx).Preload("Roles").
		Where("username = ?", username).Take(&user).Error; err != nil {
		return nil, notFound[User](err)
	}
	user.PrepareGive()
	if err := config.SetRedisObject("User:"+username, &user, config.CacheLifespan()); err != nil {
		return nil, err
	}
	return &user, nil
}

func GetUser(ctx context.Context, id int) (*User, error) {
	user, err := fetchModel[User](ctx, nil, id, "Roles")
	if err != nil {
		return nil, err
	}
	user.PrepareGive()
	return user, nil
}

// GetUsersByIds is the batch function behind the user loader.
func GetUsersByIds(ctx context.Context, ids []int) ([]*User, error) {
	var users []*User
	if err := config.GetDB().WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		u.PrepareGive()
	}
	return users, nil
}

func ListUsers(ctx context.Context) ([]*User, error) {
	var results []*User
	if err := config.GetDB().WithContext(ctx).Preload("Roles").Order("username").Find(&results).Error; err != nil {
		return nil, err
	}
	for _, u := range results {
		u.PrepareGive()
	}
	return results, nil
}

// ListUsersWithRole returns active users holding roleCode, or every active
// user when roleCode is empty. Ordered by id for stable assignment order.
func ListUsersWithRole(ctx context.Context, tx *gorm.DB, roleCode string) ([]User, error) {
	q := txOrDB(ctx, tx).Model(&User{}).Select("users.*").Where("users.is_active = ?", true)
	if code := strings.TrimSpace(roleCode); code != "" {
		q = q.Joins("JOIN user_roles ON user_roles.user_id = users.id").
			Joins("JOIN roles ON roles.id = user_roles.role_id").
			Where("roles.code = ?", code)
	}
	var users []User
	if err := q.Preload("Roles").Order("users.id").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	db := config.GetDB()
	var count int64
	q := db.WithContext(ctx).Model(&User{}).Where("username = ?", input.Username)
	if input.Email != "" {
		q = q.Or("email = ?", input.Email)
	}
	if err := q.Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.ConflictError("username or email already exists")
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	user := User{
		Username: input.Username,
		Name:     input.Name,
		Password: hashed,
		IsActive: utils.NewTrue(),
		IsAdmin:  input.IsAdmin,
	}
	if input.Email != "" {
		email := input.Email
		user.Email = &email
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(input.Roles) > 0 {
			roles, err := rolesByCodes(ctx, tx, input.Roles)
			if err != nil {
				return err
			}
			user.Roles = roles
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		return nil, err
	}
	user.PrepareGive()
	return &user, nil
}

// AssignRoles replaces the role set of a user.
func AssignRoles(ctx context.Context, userId int, roleCodes []string) (*User, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	var user *User
	err := runInTx(ctx, func(tx *gorm.DB) error {
		var err error
		user, err = fetchModel[User](ctx, tx, userId)
		if err != nil {
			return err
		}
		roles, err := rolesByCodes(ctx, tx, roleCodes)
		if err != nil {
			return err
		}
		if err := tx.Model(user).Association("Roles").Replace(roles); err != nil {
			return err
		}
		user.Roles = roles
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := user.RemoveInstanceRedis(); err != nil {
		return nil, err
	}
	user.PrepareGive()
	return user, nil
}

func SetUserActive(ctx context.Context, userId int, isActive bool) (*User, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	user, err := fetchModel[User](ctx, nil, userId)
	if err != nil {
		return nil, err
	}
	if err := config.GetDB().WithContext(ctx).Model(user).UpdateColumn("is_active", isActive).Error; err != nil {
		return nil, err
	}
	user.IsActive = &isActive
	if err := user.RemoveInstanceRedis(); err != nil {
		return nil, err
	}
	if !isActive {
		if err := revokeSessions(user.Username); err != nil {
			return nil, err
		}
	}
	user.PrepareGive()
	return user, nil
}

func revokeSessions(username string) error {
	tokens, err := config.GetRedisSetMembers("Tokens:" + username)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(tokens)+1)
	for _, t := range tokens {
		keys = append(keys, "Token:"+t)
	}
	keys = append(keys, "Tokens:"+username)
	return config.RemoveRedisKey(keys...)
}

func rolesByCodes(ctx context.Context, tx *gorm.DB, codes []string) ([]Role, error) {
	codes = utils.UniqueSlice(codes)
	var roles []Role
	if len(codes) == 0 {
		return roles, nil
	}
	if err := tx.WithContext(ctx).Where("code IN ?", codes).Find(&roles).Error; err != nil {
		return nil, err
	}
	if len(roles) != len(codes) {
		found := make(map[string]bool, len(roles))
		for _, r := range roles {
			found[r.Code] = true
		}
		var missing []string
		for _, c := range codes {
			if !found[c] {
				missing = append(missing, c)
			}
		}
		return nil, utils.NewValidationError("unknown roles: %s", strings.Join(missing, ", "))
	}
	return roles, nil
}

// EnsureAdminUser creates or resets the bootstrap admin. Used by cmd/seed-admin.
func EnsureAdminUser(ctx context.Context, username, name, password string) (*User, bool, error) {
	hashed, err := utils.HashPassword(password)
	if err != nil {
		return nil, false, err
	}
	db := config.GetDB().WithContext(ctx)
	var user User
	err = db.Where("username = ?", username).Take(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = User{Username: username, Name: name, Password: hashed, IsActive: utils.NewTrue(), IsAdmin: true}
		if err := db.Create(&user).Error; err != nil {
			return nil, false, fmt.Errorf("create admin: %w", err)
		}
		return &user, true, nil
	}
	if err := db.Model(&user).Updates(map[string]interface{}{
		"password":  hashed,
		"is_admin":  true,
		"is_active": true,
	}).Error; err != nil {
		return nil, false, err
	}
	_ = user.RemoveInstanceRedis()
	return &user, false, nil
}
