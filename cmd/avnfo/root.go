package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/avnfo/internal/config"
	"github.com/John-Robertt/avnfo/internal/mapping"
)

// 退出码。
const (
	exitOK         = 0
	exitFailed     = 1 // 运行完成但有失败条目，或发生 I/O 错误
	exitUsage      = 2
	exitNoMapping  = 3
	exitRootNotDir = 4
	exitCancelled  = 5
)

// exitError 把错误与退出码绑定；其余错误（cobra 的参数解析错误）一律视为 exitUsage。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error { return &exitError{code: code, err: err} }

// cliEnv 是命令运行所需的外部环境，测试可替换。
type cliEnv struct {
	stdout io.Writer
	stderr io.Writer
	getwd  func() (string, error)
}

func newEnv(stdout, stderr io.Writer) *cliEnv {
	return &cliEnv{stdout: stdout, stderr: stderr, getwd: os.Getwd}
}

func execute(ctx context.Context, args []string, env *cliEnv) int {
	cmd := newRootCommand(env)
	cmd.SetArgs(args)
	cmd.SetOut(env.stdout)
	cmd.SetErr(env.stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(env.stderr, ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(env.stderr, "参数错误：%v\n", err)
	return exitUsage
}

// newRootCommand 构造根命令。"avnfo <root> [flags]" 等价于 "avnfo run <root> [flags]"。
func newRootCommand(env *cliEnv) *cobra.Command {
	var f runFlags
	root := &cobra.Command{
		Use:           "avnfo [root]",
		Short:         "批量整理 NFO 元数据：演员/系列映射、结构修复、按模板重命名目录",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runRun(cmd, env, f, args[0])
		},
	}
	f.registerRun(root)
	root.AddCommand(newRunCommand(env))
	root.AddCommand(newDupesCommand(env))
	root.AddCommand(newListCommand(env))
	return root
}

// commonFlags 是各命令共享的配置相关参数。
type commonFlags struct {
	configPath string
	actorMap   string
	seriesMap  string
	workers    int
	inferNum   bool
}

func (f *commonFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.configPath, "config", "", "配置文件路径（默认 <root>/"+config.FileName+"）")
	fs.StringVar(&f.actorMap, "actor-map", "", "演员映射文件路径")
	fs.StringVar(&f.seriesMap, "series-map", "", "系列映射文件路径")
	fs.IntVar(&f.workers, "workers", 0, "并发 worker 数（默认 min(8, CPU 数)）")
	fs.BoolVar(&f.inferNum, "infer-num", false, "文档缺少 num 时从文件名/目录名推断识别号")
}

func (f *commonFlags) cliArgs(cmd *cobra.Command, root string) config.CLIArgs {
	fs := cmd.Flags()
	return config.CLIArgs{
		Root:        root,
		ConfigPath:  f.configPath,
		ActorMap:    f.actorMap,
		SeriesMap:   f.seriesMap,
		Workers:     f.workers,
		WorkersSet:  fs.Changed("workers"),
		InferNum:    f.inferNum,
		InferNumSet: fs.Changed("infer-num"),
	}
}

// loadConfig 读取生效配置，并把配置错误映射为退出码。
func loadConfig(env *cliEnv, cli config.CLIArgs) (config.EffectiveConfig, error) {
	cwd, err := env.getwd()
	if err != nil {
		return config.EffectiveConfig{}, exitWith(exitFailed, fmt.Errorf("读取当前目录失败：%w", err))
	}
	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		return config.EffectiveConfig{}, exitWith(configExitCode(err), err)
	}
	return eff, nil
}

func configExitCode(err error) int {
	if config.Code(err) == config.ErrCodeRootNotDir {
		return exitRootNotDir
	}
	return exitUsage
}

// loadTables 加载映射表；格式错误的映射文件按"映射不可用"处理。
func loadTables(eff config.EffectiveConfig) (mapping.Tables, error) {
	t, err := mapping.Load(mapping.Options{
		ActorPath:  eff.ActorMapPath,
		SeriesPath: eff.SeriesMapPath,
		SearchDirs: eff.MapSearchDirs,
	})
	if err != nil {
		return mapping.Tables{}, exitWith(exitNoMapping, err)
	}
	return t, nil
}

// requireMappings 在映射步骤被开启、但所有被请求的映射表都为空时返回错误。
func requireMappings(eff config.EffectiveConfig, t mapping.Tables) error {
	if !eff.MappingRequested() {
		return nil
	}
	if eff.DoActor && t.Actor.Len() > 0 {
		return nil
	}
	if eff.DoSeries && t.Series.Len() > 0 {
		return nil
	}
	err := errors.New("没有可用的映射表（可用 --actor-map/--series-map 指定，或用 --no-actor/--no-series 关闭对应步骤）")
	for _, w := range t.Warnings {
		err = fmt.Errorf("%w；%v", err, w)
	}
	return exitWith(exitNoMapping, err)
}
