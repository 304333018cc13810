// Package sqlschema 通过 database/sql 连接查询目标表的列类型
//
// ClickHouse 的 MySQL/PostgreSQL 兼容接口会直接返回原生类型名；
// 其它数据库返回的 SQL 类型名按 TypeMap 映射为对应的编码器。
package sqlschema

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rushairer/bulkcopy/rowbinary"
)

// TypeMap SQL 类型名（大写，不含长度参数）到列类型名的映射
var TypeMap = map[string]string{
	"TINYINT":           "Int8",
	"SMALLINT":          "Int16",
	"MEDIUMINT":         "Int32",
	"INT":               "Int32",
	"INT2":              "Int16",
	"INT4":              "Int32",
	"INT8":              "Int64",
	"INTEGER":           "Int64",
	"BIGINT":            "Int64",
	"SERIAL":            "Int32",
	"BIGSERIAL":         "Int64",
	"REAL":              "Float64",
	"FLOAT":             "Float32",
	"FLOAT4":            "Float32",
	"FLOAT8":            "Float64",
	"DOUBLE":            "Float64",
	"DOUBLE PRECISION":  "Float64",
	"BOOL":              "Bool",
	"BOOLEAN":           "Bool",
	"TEXT":              "String",
	"VARCHAR":           "String",
	"CHAR":              "String",
	"BPCHAR":            "String",
	"CHARACTER":         "String",
	"CHARACTER VARYING": "String",
	"CLOB":              "String",
	"BLOB":              "String",
	"BYTEA":             "String",
	"JSON":              "String",
	"JSONB":             "String",
	"UUID":              "UUID",
	"DATE":              "Date32",
	"DATETIME":          "DateTime64(6)",
	"TIMESTAMP":         "DateTime64(6)",
	"TIMESTAMPTZ":       "DateTime64(6, 'UTC')",
	"INET":              "IPv6",
}

var sizeSuffix = regexp.MustCompile(`\s*\(([^)]*)\)`)

// 未声明精度的 DECIMAL 按 MySQL 的默认值 DECIMAL(10, 0)
const (
	defaultDecimalPrecision = 10
	defaultDecimalScale     = 0
)

// Resolver 基于 database/sql 的 SchemaResolver
type Resolver struct {
	db *sql.DB
}

// NewResolver 创建解析器，调用方负责关闭 db
func NewResolver(db *sql.DB) *Resolver {
	return &Resolver{db: db}
}

// ResolveSchema 执行零行查询并读取 ColumnTypes
func (r *Resolver) ResolveSchema(ctx context.Context, table string) ([]rowbinary.Column, error) {
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("table name is empty")
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 0", table))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types of %s: %w", table, err)
	}
	columns := make([]rowbinary.Column, len(types))
	for i, ct := range types {
		t, err := columnType(ct)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", ct.Name(), err)
		}
		if nullable, ok := ct.Nullable(); ok && nullable {
			if _, already := t.(rowbinary.NullableType); !already {
				t = rowbinary.NewNullable(t)
			}
		}
		columns[i] = rowbinary.Column{Name: ct.Name(), Type: t}
	}
	return columns, rows.Err()
}

// ColumnType 将数据库返回的类型名转换为列类型：先按原生类型名解析，再查 TypeMap
// MySQL 驱动把无符号列报告为 "UNSIGNED BIGINT"，DDL 写法则是 "BIGINT UNSIGNED"，两种都接受
func ColumnType(dbType string) (rowbinary.ColumnType, error) {
	if t, err := rowbinary.ParseType(dbType); err == nil {
		return t, nil
	}
	key, args := splitType(dbType)
	if isDecimal(key) {
		precision, scale, err := decimalArgs(args)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", rowbinary.ErrUnsupportedType, dbType)
		}
		return rowbinary.NewDecimal(precision, scale)
	}
	return mapped(dbType, key)
}

func columnType(ct *sql.ColumnType) (rowbinary.ColumnType, error) {
	dbType := ct.DatabaseTypeName()
	if key, _ := splitType(dbType); isDecimal(key) {
		if precision, scale, ok := ct.DecimalSize(); ok && precision > 0 {
			return rowbinary.NewDecimal(int(precision), int(scale))
		}
	}
	return ColumnType(dbType)
}

func mapped(dbType, key string) (rowbinary.ColumnType, error) {
	unsigned := false
	if k, ok := strings.CutPrefix(key, "UNSIGNED "); ok {
		key, unsigned = k, true
	}
	if k, ok := strings.CutSuffix(key, " UNSIGNED"); ok {
		key, unsigned = k, true
	}
	name, ok := TypeMap[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", rowbinary.ErrUnsupportedType, dbType)
	}
	if unsigned && strings.HasPrefix(name, "Int") {
		name = "U" + name
	}
	return rowbinary.ParseType(name)
}

// splitType 返回大写的类型名与括号内的参数
func splitType(dbType string) (key, args string) {
	dbType = strings.TrimSpace(dbType)
	if m := sizeSuffix.FindStringSubmatchIndex(dbType); m != nil {
		args = dbType[m[2]:m[3]]
		dbType = dbType[:m[0]] + dbType[m[1]:]
	}
	return strings.ToUpper(strings.TrimSpace(dbType)), args
}

func isDecimal(key string) bool {
	key = strings.TrimSuffix(strings.TrimPrefix(key, "UNSIGNED "), " UNSIGNED")
	return key == "DECIMAL" || key == "NUMERIC" || key == "DEC"
}

func decimalArgs(args string) (precision, scale int, err error) {
	if strings.TrimSpace(args) == "" {
		return defaultDecimalPrecision, defaultDecimalScale, nil
	}
	parts := strings.Split(args, ",")
	if len(parts) > 2 {
		return 0, 0, fmt.Errorf("decimal arguments %q", args)
	}
	if precision, err = strconv.Atoi(strings.TrimSpace(parts[0])); err != nil {
		return 0, 0, err
	}
	if len(parts) == 2 {
		if scale, err = strconv.Atoi(strings.TrimSpace(parts[1])); err != nil {
			return 0, 0, err
		}
	}
	return precision, scale, nil
}
