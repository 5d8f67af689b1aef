// Package main - административная утилита progressctl.
//
// Команды работают напрямую с хранилищем из конфигурации
// (STORAGE_DRIVER и связанные переменные окружения).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ecoquest/ecoquest-progression/internal/interface/cli"
)

func main() {
	// .env необязателен
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCommand(cli.OpenFromEnv)
	if err := cmd.ExecuteContext(ctx); err != nil {
		// Ошибки команд уже выведены в выбранном формате
		if !cli.IsReported(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
