package repository

import "errors"

// ErrNotFound 表示目标记录不存在。
var ErrNotFound = errors.New("repository: record not found")

// ErrInvalidID 表示主键格式不合法，调用方应当作客户端错误处理。
var ErrInvalidID = errors.New("repository: invalid id")
