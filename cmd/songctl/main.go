// Package main songctl：离线评分、修复模型输出与运维命令
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version 构建时注入
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "songctl",
		Short: "Score, repair and operate song briefs",
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	root.Version = version
	root.AddCommand(newScoreCmd())
	root.AddCommand(newRepairCmd())
	root.AddCommand(newCacheCmd())
	root.AddCommand(newUsageCmd())
	return root
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// readInput 参数为空或 "-" 时读取标准输入
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
