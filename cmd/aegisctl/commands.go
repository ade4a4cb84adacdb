package main

import (
	"QueryAegis/internal/aegobserve"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/port"
	"QueryAegis/internal/downloader"
	"QueryAegis/internal/service"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagDataDir  string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:           "aegisctl",
	Short:         "数据集查询引擎的命令行工具",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "配置文件路径 (默认查找 ./configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "快照目录，覆盖 storage.data_dir")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "日志级别，覆盖 log.level")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", noColor, "关闭彩色输出")

	rootCmd.AddCommand(addCmd, removeCmd, listCmd, queryCmd, statsCmd, watchCmd)
}

// --- add ---

var addCmd = &cobra.Command{
	Use:   "add <id> <archive>",
	Short: "将 zip 归档导入为数据集",
	Long: `将 zip 归档 (或其 base64 文本) 导入为数据集。

Examples:
  aegisctl add courses ./courses.zip
  aegisctl add ubcrooms ./rooms.zip --kind rooms`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, source := args[0], args[1]
		kindStr, _ := cmd.Flags().GetString("kind")
		kind, ok := domain.ParseKind(kindStr)
		if !ok {
			return fmt.Errorf("%w: 不支持的数据集类别 '%s'", port.ErrInvalidContent, kindStr)
		}

		ctx := contextOf(cmd)
		content, err := downloader.NewFetcher(0).Fetch(ctx, source)
		if err != nil {
			return err
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		printStep("正在导入 %s (%s, %d 字节)", id, kind, len(content))
		ids, err := a.svc.AddDataset(ctx, id, content, kind)
		if err != nil {
			return err
		}
		printSuccess("已添加数据集 %s，当前共 %d 个数据集", id, len(ids))
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

func init() {
	addCmd.Flags().String("kind", string(domain.KindCourses), "数据集类别 (courses|rooms)")
}

// --- remove ---

var removeCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "删除数据集及其快照",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		removed, err := a.svc.RemoveDataset(contextOf(cmd), args[0])
		if err != nil {
			return err
		}
		printSuccess("已删除数据集 %s", removed)
		fmt.Fprintln(cmd.OutOrStdout(), removed)
		return nil
	},
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "列出全部数据集",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		metas, err := a.svc.ListDatasets(contextOf(cmd))
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(cmd.OutOrStdout(), metas)
		}
		if len(metas) == 0 {
			printWarning("当前没有任何数据集")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tKIND\tROWS")
		for _, m := range metas {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", m.ID, m.Kind, m.NumRows)
		}
		return tw.Flush()
	},
}

func init() {
	listCmd.Flags().Bool("json", false, "以 JSON 输出")
}

// --- query ---

var queryCmd = &cobra.Command{
	Use:   "query <file|->",
	Short: "执行 JSON 查询文档",
	Long: `执行 JSON 查询文档，结果以 JSON 数组输出到标准输出。

Examples:
  aegisctl query ./q.json
  echo '{"WHERE":{},"OPTIONS":{"COLUMNS":["courses_dept"]}}' | aegisctl query -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := readQuery(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		rows, err := a.svc.PerformQuery(contextOf(cmd), doc)
		if err != nil {
			return err
		}
		if err := writeJSON(cmd.OutOrStdout(), rows); err != nil {
			return err
		}
		printSuccess("共 %d 行", len(rows))
		return nil
	},
}

func readQuery(stdin io.Reader, source string) ([]byte, error) {
	if source == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("读取标准输入失败: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("读取查询文件失败: %w", err)
	}
	return data, nil
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "加载全部数据集并输出指标快照",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.svc.ListDatasets(contextOf(cmd)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "  %s %s\n", colorize(colorBold, "data_dir:"), a.cfg.Storage.DataDir)
		return aegobserve.WriteSummary(cmd.OutOrStdout(), a.registry)
	},
}

// --- watch ---

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "监视导入目录，自动导入放入的 <id>.<kind>.zip 文件",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if dir == "" {
			dir = a.cfg.Storage.ImportDir
		}
		if dir == "" {
			return errors.New("未指定导入目录: 使用 --dir 或配置 storage.import_dir")
		}

		ctx := contextOf(cmd)
		w := service.NewImportWatcher(a.svc, dir, service.WithWatcherLogger(a.logger))
		if err := w.Start(ctx); err != nil {
			return err
		}
		printStep("正在监视 %s，按 Ctrl+C 退出", dir)
		<-ctx.Done()
		printStep("正在停止...")
		return w.Close()
	},
}

func init() {
	watchCmd.Flags().String("dir", "", "导入目录，覆盖 storage.import_dir")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
