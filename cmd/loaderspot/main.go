package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/LoaderSpot/loaderspot/internal/app/planner"
	"github.com/LoaderSpot/loaderspot/internal/app/run"
	"github.com/LoaderSpot/loaderspot/internal/config"
	"github.com/LoaderSpot/loaderspot/internal/domain"
	"github.com/LoaderSpot/loaderspot/internal/export"
	"github.com/LoaderSpot/loaderspot/internal/scan"
)

// 退出码：0 完成；1 运行期错误（例如导出失败）；2 参数/配置/请求无效；130 被取消。
const (
	exitOK        = 0
	exitFailure   = 1
	exitUsage     = 2
	exitCancelled = 130
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "search":
		if code := searchCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(exitUsage)
	}
}

func searchCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printSearchUsage()
			return exitOK
		}
	}

	cli, err := parseSearchArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printSearchUsage()
		return exitUsage
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return exitFailure
	}

	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置错误（%s）：%v\n", config.Code(err), err)
		return exitUsage
	}

	engine, plan, err := run.Prepare(eff)
	if err != nil {
		if planner.IsValidation(err) {
			fmt.Fprintf(os.Stderr, "请求无效：%v\n", err)
			return exitUsage
		}
		fmt.Fprintf(os.Stderr, "初始化失败：%v\n", err)
		return exitUsage
	}

	progressW, interactive := pickProgressWriter()
	var ui *progressUI
	if interactive {
		ui = newProgressUI(progressW)
	} else {
		// 非交互：只把旁路通知写到 stderr，stdout 留给 JSON。
		ui = newQuietUI(os.Stderr)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	stopSignals := watchSignals(engine.Control(), func(msg string) { ui.OnNotice(msg) })
	defer stopSignals()
	if interactive && isTTY(os.Stdin) {
		go readCommands(os.Stdin, engine.Control(), ui)
	}

	ui.OnStart(eff, plan)
	ui.startTicker(engine.Progress)
	rr := engine.Run(ctx, plan, ui)
	run.Publish(ctx, eff, rr, ui)

	code := exitOK
	if eff.Out != "" {
		if err := export.WriteJSON(eff.Out, rr); err != nil {
			fmt.Fprintf(os.Stderr, "写入 report.json 失败：%v\n", err)
			code = exitFailure
		}
	}
	if eff.XLSX != "" {
		if err := export.WriteXLSX(eff.XLSX, rr); err != nil {
			fmt.Fprintf(os.Stderr, "写入 xlsx 失败：%v\n", err)
			code = exitFailure
		}
	}

	emitReport(rr)
	if interactive {
		emitLocations(progressW, eff)
	}
	if code == exitOK && rr.Cancelled() {
		code = exitCancelled
	}
	return code
}

// watchSignals：第一次 SIGINT/SIGTERM 取消运行（在途探测自然结束），第二次直接退出。
func watchSignals(ctl *scan.Control, notify func(string)) func() {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case <-ch:
		case <-done:
			return
		}
		ctl.Cancel()
		notify("已请求取消，等待在途探测结束（再次 Ctrl+C 立即退出）")

		select {
		case <-ch:
			os.Exit(exitCancelled)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}

// readCommands 处理交互命令：p 切换暂停，r 恢复，c/q 取消。
func readCommands(r io.Reader, ctl *scan.Control, obs run.Observer) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctl.Cancelled() {
			return
		}
		switch strings.ToLower(strings.TrimSpace(sc.Text())) {
		case "p":
			if ctl.TogglePause() {
				obs.OnNotice("已暂停（输入 p 或 r 继续）")
			} else {
				obs.OnNotice("已继续")
			}
		case "r":
			ctl.Resume()
			obs.OnNotice("已继续")
		case "c", "q":
			ctl.Cancel()
			obs.OnNotice("已请求取消，等待在途探测结束")
			return
		case "":
		default:
			obs.OnNotice("未知命令：" + sc.Text() + "（可用：p r c q）")
		}
	}
}

func parseSearchArgs(args []string) (config.CLIArgs, error) {
	var cli config.CLIArgs

	for i := 0; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "-") {
			cli.Versions = append(cli.Versions, a)
			continue
		}

		name, val, hasVal := strings.Cut(a, "=")

		// 布尔参数：--adaptive / --adaptive=false。
		switch name {
		case "--adaptive", "--report-unknown":
			b := true
			if hasVal {
				var err error
				if b, err = parseBool(name, val); err != nil {
					return config.CLIArgs{}, err
				}
			}
			if name == "--adaptive" {
				cli.Adaptive, cli.AdaptiveSet = b, true
			} else {
				cli.ReportUnknown, cli.ReportUnknownSet = b, true
			}
			continue
		}

		if !hasVal {
			if i+1 >= len(args) {
				return config.CLIArgs{}, fmt.Errorf("%s 需要一个值", name)
			}
			i++
			val = args[i]
		}

		switch name {
		case "--version", "-v":
			cli.Versions = append(cli.Versions, val)
		case "--config":
			if strings.TrimSpace(val) == "" {
				return config.CLIArgs{}, fmt.Errorf("--config 不能为空")
			}
			cli.ConfigPath = val
		case "--range":
			cli.Range, cli.RangeSet = val, true
		case "--platform":
			cli.Platforms, cli.PlatformsSet = val, true
		case "--arch":
			cli.Arches, cli.ArchesSet = val, true
		case "--connections", "-c":
			n, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				return config.CLIArgs{}, fmt.Errorf("%s 必须是整数，实际是 %q", name, val)
			}
			cli.Connections, cli.ConnectionsSet = n, true
		case "--gas-url":
			cli.GASURL, cli.GASURLSet = val, true
		case "--source":
			cli.Source, cli.SourceSet = val, true
		case "--proxy":
			cli.ProxyURL, cli.ProxyURLSet = val, true
		case "--rate-limit":
			f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
			if err != nil {
				return config.CLIArgs{}, fmt.Errorf("--rate-limit 必须是数字，实际是 %q", val)
			}
			cli.RateLimit, cli.RateLimitSet = f, true
		case "--base-url":
			cli.BaseURL, cli.BaseURLSet = val, true
		case "--out":
			cli.Out = val
		case "--xlsx":
			cli.XLSX = val
		default:
			return config.CLIArgs{}, fmt.Errorf("未知参数 %q", name)
		}
	}

	return cli, nil
}

func parseBool(name, v string) (bool, error) {
	switch v {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("%s 只能是 true 或 false，实际是 %q", name, v)
	}
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  loaderspot search <version>... [参数]

命令：
  search    探测指定版本的安装包下载地址

使用 "loaderspot search --help" 查看详细说明。
`)
}

func printSearchUsage() {
	fmt.Fprint(os.Stdout, `用法：
  loaderspot search <version>... [参数]

参数：
  -v, --version <v>      完整版本号（可重复，也可逗号分隔），例如 1.2.40.599.g606b7f29
  --range <a-b>          构建号闭区间（默认 0-5000；adaptive 模式下忽略）
  --platform <list>      win,mac|all（默认 all）
  --arch <list>          x86,x64,arm64,intel|all（默认 all）
  -c, --connections <n>  并发上限，钳制到 [50, 300]（默认 100）
  --adaptive[=bool]      逐步加宽窗口搜索，直到每个平台都有命中
  --gas-url <url>        结果推送地址（与 --source 同时给出时自动进入 adaptive）
  --source <name>        结果来源标记
  --report-unknown[=bool] 未收录的版本提交到收录表单
  --proxy <url>          HTTP 代理
  --rate-limit <n>       每秒探测数上限（0 不限速）
  --base-url <url>       安装包源站
  --config <file>        指定配置文件（否则自动发现 loaderspot.json / loaderspot.yaml）
  --out <file>           写入 report.json
  --xlsx <file>          写入 xlsx
  -h, --help             显示帮助

交互（终端中）：p 暂停/继续，r 继续，c 或 q 取消；Ctrl+C 取消，再按一次立即退出。
`)
}

func emitReport(rr domain.RunReport) {
	summary := fmt.Sprintf("完成：state=%s processed=%d/%d found=%d rate_limited=%d skipped=%d",
		rr.State, rr.Summary.Processed, rr.Summary.Planned, rr.Summary.Found, rr.Summary.RateLimited, rr.Summary.Skipped,
	)

	if isTTY(os.Stdout) {
		fmt.Fprintln(os.Stdout, summary)
		for _, res := range rr.Results {
			v := res.Metadata[domain.MetaVersion]
			if !res.Found() {
				fmt.Fprintf(os.Stdout, "%s: %s\n", v, domain.UnknownPlaceholder)
				continue
			}
			for _, p := range res.Platforms() {
				fmt.Fprintf(os.Stdout, "%s %-9s %s\n", v, p.Key(), res.Latest[p])
			}
		}
		for _, s := range rr.Skipped {
			fmt.Fprintf(os.Stderr, "%s skipped: %s\n", s.Version, s.Reason)
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(os.Stderr, summary)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	if w == nil {
		return
	}
	if eff.Out != "" {
		fmt.Fprintf(w, "report: %s\n", eff.Out)
	}
	if eff.XLSX != "" {
		fmt.Fprintf(w, "xlsx: %s\n", eff.XLSX)
	}
}
