package config

import (
	"context"
	"reflect"

	"github.com/mmdatafocus/erp_backend/appctx"
	"gorm.io/gorm"
)

// AuditStampPlugin fills created_by / updated_by from the request user when a
// model carries those columns and the caller left them empty.
//
// Raw SQL and UpdateColumn calls are not stamped.
type AuditStampPlugin struct{}

func NewAuditStampPlugin() *AuditStampPlugin { return &AuditStampPlugin{} }

func (p *AuditStampPlugin) Name() string { return "audit_stamp" }

func (p *AuditStampPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Create().Before("gorm:create").Register("audit_stamp:create", auditStampCreate); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("audit_stamp:update", auditStampUpdate); err != nil {
		return err
	}
	return nil
}

func auditStampCreate(db *gorm.DB) {
	userId, ok := auditUserId(db)
	if !ok {
		return
	}
	setIfZero(db, "CreatedBy", userId)
	setIfZero(db, "UpdatedBy", userId)
}

func auditStampUpdate(db *gorm.DB) {
	userId, ok := auditUserId(db)
	if !ok {
		return
	}
	if db.Statement.Schema.LookUpField("UpdatedBy") == nil {
		return
	}
	db.Statement.SetColumn("UpdatedBy", userId, true)
}

func auditUserId(db *gorm.DB) (int, bool) {
	if db == nil || db.Statement == nil || db.Statement.Schema == nil {
		return 0, false
	}
	return userIdFromContext(db.Statement.Context)
}

func userIdFromContext(ctx context.Context) (int, bool) {
	if ctx == nil {
		return 0, false
	}
	a, ok := appctx.ActorFrom(ctx)
	if !ok || a.UserId <= 0 {
		return 0, false
	}
	return a.UserId, true
}

func setIfZero(db *gorm.DB, fieldName string, value int) {
	field := db.Statement.Schema.LookUpField(fieldName)
	if field == nil {
		return
	}
	ctx := db.Statement.Context
	rv := reflect.Indirect(db.Statement.ReflectValue)
	switch rv.Kind() {
	case reflect.Struct:
		if _, zero := field.ValueOf(ctx, rv); zero {
			_ = field.Set(ctx, rv, value)
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			elem := reflect.Indirect(rv.Index(i))
			if _, zero := field.ValueOf(ctx, elem); zero {
				_ = field.Set(ctx, elem, value)
			}
		}
	}
}
