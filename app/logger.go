package app

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// InitLogger 初始化全局 zap；配置了 file 时同时写滚动日志文件（JSON）
func InitLogger(mode, file string) *zap.Logger {
	zapConfig := zap.NewDevelopmentConfig()
	if mode == "production" {
		zapConfig = zap.NewProductionConfig()
	}

	var (
		logger *zap.Logger
		err    error
	)
	if file != "" {
		rotate := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    64, // MB
			MaxBackups: 7,
			MaxAge:     30,
			Compress:   true,
		}
		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(rotate),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller())
	} else {
		logger, err = zapConfig.Build(zap.AddCaller())
		if err != nil {
			logger = zap.NewExample()
		}
	}
	zap.ReplaceGlobals(logger)
	return logger
}
