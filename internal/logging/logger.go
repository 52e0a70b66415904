package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options 配置结构化日志。
type Options struct {
	Service string
	Level   string
	Format  string // "json" 或 "console"
	Output  io.Writer
}

// Factory 按组件名派生日志器，由组合根持有并注入各组件。
type Factory struct {
	base zerolog.Logger
}

// New 创建日志工厂。
func New(opts Options) *Factory {
	var output io.Writer = opts.Output
	if output == nil {
		output = os.Stdout
	}
	if strings.EqualFold(opts.Format, "console") {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	service := opts.Service
	if service == "" {
		service = "beehive"
	}

	base := zerolog.New(output).
		With().
		Timestamp().
		Str("service", service).
		Logger().
		Level(ParseLevel(opts.Level))

	return &Factory{base: base}
}

// Nop 返回丢弃所有输出的工厂，主要用于测试。
func Nop() *Factory {
	return &Factory{base: zerolog.Nop()}
}

// Named 返回带 logger=<name> 字段的子日志器。
func (f *Factory) Named(name string) zerolog.Logger {
	if f == nil {
		return zerolog.Nop()
	}
	return f.base.With().Str("logger", name).Logger()
}

func ParseLevel(value string) zerolog.Level {
	levelString := strings.ToLower(strings.TrimSpace(value))
	if levelString == "" {
		return zerolog.InfoLevel
	}
	if lvl, err := zerolog.ParseLevel(levelString); err == nil && lvl != zerolog.NoLevel {
		return lvl
	}
	return zerolog.InfoLevel
}
