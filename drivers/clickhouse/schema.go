package clickhouse

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rushairer/bulkcopy/rowbinary"
)

// SchemaQuery 零行元数据查询，返回的头部包含按建表顺序排列的列名与类型
func SchemaQuery(table string) string {
	return fmt.Sprintf("SELECT * FROM %s LIMIT 0 FORMAT RowBinaryWithNamesAndTypes", table)
}

// ResolveSchema 查询目标表的列类型
func (c *Client) ResolveSchema(ctx context.Context, table string) ([]rowbinary.Column, error) {
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("table name is empty")
	}
	req, err := c.newRequest(ctx, url.Values{}, strings.NewReader(SchemaQuery(table)))
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}
	defer drain(resp)
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	columns, err := rowbinary.ParseHeader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}
	c.logger.Debug().Str("table", table).Int("columns", len(columns)).Msg("schema resolved")
	return columns, nil
}
