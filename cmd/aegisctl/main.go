// aegisctl 是数据集查询引擎的命令行入口：导入、删除、列出数据集并执行查询。
package main

import (
	"QueryAegis/internal/core/port"
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
)

var version = "dev"

// 退出码
const (
	exitOK        = 0
	exitFailure   = 1
	exitInvalid   = 2
	exitDuplicate = 3
	exitNotFound  = 4
	exitTooLarge  = 5
	exitCanceled  = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError("%v", err)
		os.Exit(exitCode(err))
	}
}

// exitCode 将错误类别映射为进程退出码
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, port.ErrInvalidID),
		errors.Is(err, port.ErrInvalidContent),
		errors.Is(err, port.ErrInvalidQuery):
		return exitInvalid
	case errors.Is(err, port.ErrDuplicateDataset):
		return exitDuplicate
	case errors.Is(err, port.ErrNotFound):
		return exitNotFound
	case errors.Is(err, port.ErrResultTooLarge):
		return exitTooLarge
	case errors.Is(err, context.Canceled):
		return exitCanceled
	}
	return exitFailure
}
