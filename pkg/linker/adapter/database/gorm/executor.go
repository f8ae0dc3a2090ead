package gorm

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tigerroll/imagelink/pkg/linker/adapter/database"
)

// TableNamer represents a struct that has a TableName() string method.
type TableNamer interface {
	TableName() string
}

// applyTableName scopes db to the table of model, which may be an entity or a slice of entities.
func applyTableName(db *gorm.DB, model interface{}) *gorm.DB {
	if namer, ok := model.(TableNamer); ok {
		return db.Table(namer.TableName())
	}

	val := reflect.ValueOf(model)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if val.Kind() == reflect.Slice || val.Kind() == reflect.Array {
		elemType := val.Type().Elem()
		if elemType.Kind() == reflect.Ptr {
			elemType = elemType.Elem()
		}
		if namer, ok := reflect.New(elemType).Interface().(TableNamer); ok {
			return db.Table(namer.TableName())
		}
	}
	return db.Model(model)
}

// executor implements database.DBExecutor over a *gorm.DB. Connections wrap the pool,
// transactions wrap the *gorm.DB returned by Begin.
type executor struct {
	db     *gorm.DB
	dbType string
	inTx   bool
}

func (e *executor) session(ctx context.Context) *gorm.DB {
	db := e.db.WithContext(ctx)
	if !e.inTx {
		db = db.Session(&gorm.Session{SkipDefaultTransaction: true})
	}
	return db
}

func (e *executor) ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	db := e.session(ctx)
	if tableName != "" {
		db = db.Table(tableName)
	}

	var result *gorm.DB
	switch operation {
	case database.OpCreate:
		result = db.Create(model)
	case database.OpUpdate:
		// Select("*") writes zero values too; the primary key of model is part of the WHERE clause.
		result = db.Model(model).Select("*").Where(query).Updates(model)
	case database.OpDelete:
		if query != nil {
			db = db.Where(query)
		}
		result = db.Delete(model)
	default:
		return 0, fmt.Errorf("unsupported update operation: %s", operation)
	}

	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (e *executor) ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	db := e.session(ctx)
	if tableName != "" {
		db = db.Table(tableName)
	}

	columns := make([]clause.Column, 0, len(conflictColumns))
	for _, col := range conflictColumns {
		columns = append(columns, clause.Column{Name: col})
	}
	onConflict := clause.OnConflict{Columns: columns}
	if len(updateColumns) > 0 {
		onConflict.DoUpdates = clause.AssignmentColumns(updateColumns)
	} else {
		onConflict.DoNothing = true
	}

	result := db.Clauses(onConflict).Create(model)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (e *executor) ExecuteQuery(ctx context.Context, target interface{}, query map[string]interface{}) error {
	db := applyTableName(e.db.WithContext(ctx), target)
	if query != nil {
		db = db.Where(query)
	}
	// Find does not return ErrRecordNotFound; callers check for an empty result.
	return db.Find(target).Error
}

func (e *executor) ExecuteQueryAdvanced(ctx context.Context, target interface{}, query map[string]interface{}, orderBy string, limit int) error {
	db := applyTableName(e.db.WithContext(ctx), target)
	if query != nil {
		db = db.Where(query)
	}
	if orderBy != "" {
		db = db.Order(orderBy)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}
	return db.Find(target).Error
}

func (e *executor) ExecuteQueryWhere(ctx context.Context, target interface{}, condition string, args []interface{}, orderBy string) error {
	db := applyTableName(e.db.WithContext(ctx), target)
	if condition != "" {
		db = db.Where(condition, args...)
	}
	if orderBy != "" {
		db = db.Order(orderBy)
	}
	return db.Find(target).Error
}

func (e *executor) Count(ctx context.Context, model interface{}, query map[string]interface{}) (int64, error) {
	db := applyTableName(e.db.WithContext(ctx), model)
	if query != nil {
		db = db.Where(query)
	}
	var count int64
	if err := db.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (e *executor) Pluck(ctx context.Context, model interface{}, column string, target interface{}, query map[string]interface{}) error {
	db := applyTableName(e.db.WithContext(ctx), model)
	if query != nil {
		db = db.Where(query)
	}
	return db.Distinct().Pluck(column, target).Error
}

func (e *executor) IsTableNotExistError(err error) bool {
	return isTableNotExistError(e.dbType, err)
}

func isTableNotExistError(dbType string, err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	switch dbType {
	case "postgres":
		return strings.Contains(msg, "SQLSTATE 42P01") || (strings.Contains(msg, "relation \"") && strings.Contains(msg, "does not exist"))
	case "mysql":
		return strings.Contains(msg, "Error 1146")
	case "sqlite":
		return strings.Contains(msg, "no such table")
	default:
		return strings.Contains(msg, "no such table") || strings.Contains(msg, "Error 1146") ||
			(strings.Contains(msg, "relation \"") && strings.Contains(msg, "does not exist"))
	}
}

var _ database.DBExecutor = (*executor)(nil)
