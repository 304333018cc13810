package bulkcopy

import "errors"

var (
	// ErrConfiguration 配置错误：目标表为空、批大小/并发度非法、缺少依赖等，不会发起任何请求
	ErrConfiguration = errors.New("invalid configuration")

	// ErrSchemaResolution 目标表元数据查询失败，整个加载终止
	ErrSchemaResolution = errors.New("schema resolution failed")

	// ErrEncoding 批次编码失败（行列数不一致或值无法编码）
	ErrEncoding = errors.New("batch encoding failed")

	// ErrRowArity 行的值个数与目标表列数不一致
	ErrRowArity = errors.New("row arity does not match column count")

	// ErrTransport 批次发送失败
	ErrTransport = errors.New("batch transport failed")

	// ErrRowSource 行数据源读取失败
	ErrRowSource = errors.New("row source failed")

	// ErrSessionUsed LoadSession 只能运行一次
	ErrSessionUsed = errors.New("load session already used")

	// ErrEmptyBatch 空批次
	ErrEmptyBatch = errors.New("empty batch")
)
