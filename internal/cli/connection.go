package cli

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"

	"github.com/rushairer/bulkcopy"
	"github.com/rushairer/bulkcopy/drivers/clickhouse"
	bcredis "github.com/rushairer/bulkcopy/drivers/redis"
	"github.com/rushairer/bulkcopy/drivers/sqlschema"
)

func (a *app) clickhouseClient() (*clickhouse.Client, error) {
	client, err := clickhouse.NewClient(a.cfg.ClickHouse)
	if err != nil {
		return nil, err
	}
	return client.WithLogger(a.logger.With().Str("component", "clickhouse").Logger()), nil
}

func (a *app) redisSpool() (*bcredis.Spool, *redis.Client) {
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	spool := bcredis.NewSpool(client, a.cfg.Redis.Stream).
		WithMaxLen(a.cfg.Redis.MaxLen).
		WithLogger(a.logger.With().Str("component", "spool").Logger())
	return spool, client
}

// sqlResolver 解析 driver://dsn 形式的连接串：mysql://、postgres://、sqlite3://
func sqlResolver(ctx context.Context, dsn string) (bulkcopy.SchemaResolver, func() error, error) {
	driver, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return nil, nil, fmt.Errorf("schema dsn must look like driver://dsn, got %q", dsn)
	}
	switch driver {
	case "mysql", "sqlite3":
	case "postgres", "postgresql":
		driver, rest = "postgres", dsn
	default:
		return nil, nil, fmt.Errorf("unsupported schema driver %q", driver)
	}
	db, err := sql.Open(driver, rest)
	if err != nil {
		return nil, nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	return sqlschema.NewResolver(db), db.Close, nil
}
