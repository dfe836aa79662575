// Package config 发现并读取可选的 avnfo.toml，并与 CLI 参数合并为最终配置。
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	// FileName 是库根目录下的配置文件名。
	FileName = "avnfo.toml"

	// DefaultTemplate 是命名模板的内置默认值。
	DefaultTemplate = "filename smart_actor"
	// DefaultDocExt 是文档后缀的内置默认值。
	DefaultDocExt = ".nfo"
	// MaxWorkers 是 worker 数上限；超出截断。
	MaxWorkers = 64
)

const (
	// ErrCodeNotFound 表示 --config 显式指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingRoot 表示没有给出库根目录。
	ErrCodeMissingRoot = "root_missing"
	// ErrCodeRootNotDir 表示库根目录不存在或不是目录。
	ErrCodeRootNotDir = "root_not_dir"
)

// CLIArgs 是 CLI 暴露的参数，并保留“是否显式指定”的信息，
// 保证覆盖优先级可实现：例如 --workers 必须能覆盖配置文件里的 workers。
type CLIArgs struct {
	Root       string
	ConfigPath string

	ActorMap  string
	SeriesMap string

	Template    string
	TemplateSet bool

	Workers    int
	WorkersSet bool

	InferNum    bool
	InferNumSet bool

	NoActor  bool
	NoSeries bool
	NoRename bool

	DryRun bool
}

// FileConfig 对应 avnfo.toml 的解析结构。
type FileConfig struct {
	Template    string       `toml:"template"`
	ActorMap    string       `toml:"actor_map"`
	SeriesMap   string       `toml:"series_map"`
	Workers     int          `toml:"workers"`
	ExcludeDirs []string     `toml:"exclude_dirs"`
	LogDir      string       `toml:"log_dir"`
	DocExt      string       `toml:"doc_ext"`
	InferNum    *bool        `toml:"infer_num"`
	Passes      PassesConfig `toml:"passes"`
}

// PassesConfig 控制三个可选步骤；未写时默认开启。
type PassesConfig struct {
	Actor  *bool `toml:"actor"`
	Series *bool `toml:"series"`
	Rename *bool `toml:"rename"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Root string `toml:"root"`

	// ConfigPath 是实际读取的配置文件；未读取时为空。
	ConfigPath string `toml:"config_path"`

	Template string `toml:"template"`

	// ActorMapPath/SeriesMapPath 是显式指定的映射文件（绝对路径）；为空表示按 MapSearchDirs 查找。
	ActorMapPath  string   `toml:"actor_map"`
	SeriesMapPath string   `toml:"series_map"`
	MapSearchDirs []string `toml:"map_search_dirs"`

	Workers     int      `toml:"workers"`
	ExcludeDirs []string `toml:"exclude_dirs"`
	LogDir      string   `toml:"log_dir"`
	DocExt      string   `toml:"doc_ext"`
	InferNum    bool     `toml:"infer_num"`

	DoActor  bool `toml:"do_actor"`
	DoSeries bool `toml:"do_series"`
	DoRename bool `toml:"do_rename"`
	DryRun   bool `toml:"dry_run"`
}

// MappingRequested 表示是否有任何一个需要映射表的步骤被开启。
func (e EffectiveConfig) MappingRequested() bool { return e.DoActor || e.DoSeries }

// String 以单行 TOML 风格输出，便于写入审计日志。
func (e EffectiveConfig) String() string {
	b, err := toml.Marshal(e)
	if err != nil {
		return fmt.Sprintf("%+v", e)
	}
	return strings.Join(strings.Fields(strings.ReplaceAll(string(b), "\n", "; ")), " ")
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingRoot:
		return fmt.Sprintf("%s：需要指定库根目录", e.Code)
	case ErrCodeRootNotDir:
		return fmt.Sprintf("%s：%q 不是目录", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// executableDir 返回可执行文件所在目录（测试可替换）。
var executableDir = func() string {
	p, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Dir(p)
}

// DefaultWorkers 是 worker 数的内置默认值：min(8, CPU 数)。
func DefaultWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// LoadEffective 读取配置文件并与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 给了 --config：必须存在
// 2) 否则尝试 <root>/avnfo.toml（可选）
//
// 覆盖优先级（固定）：
// - template / workers / infer_num / 映射路径：CLI > config > 默认
// - 三个步骤：--no-* 一旦给出即关闭；否则 config > 默认开启
// - 其他字段：仅由 config 控制
//
// CLI 中的相对路径相对 cwd；配置文件中的相对路径相对配置文件所在目录。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	if strings.TrimSpace(cli.Root) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingRoot}
	}
	root := absCleanFrom(cwdAbs, cli.Root)
	if fi, err := os.Stat(root); err != nil || !fi.IsDir() {
		return EffectiveConfig{}, &Error{Code: ErrCodeRootNotDir, Path: root, Err: err}
	}

	var (
		cfgPath string
		fc      FileConfig
	)
	if strings.TrimSpace(cli.ConfigPath) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigPath)
		var exists bool
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
	} else {
		cfgPath = filepath.Join(root, FileName)
		var exists bool
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			cfgPath = ""
		}
	}

	return merge(cwdAbs, root, cli, fc, cfgPath)
}

func merge(cwdAbs, root string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	cfgDir := root
	if cfgPath != "" {
		cfgDir = filepath.Dir(cfgPath)
	}

	// template：CLI > config > 默认
	template := DefaultTemplate
	if cli.TemplateSet {
		template = cli.Template
	} else if strings.TrimSpace(fc.Template) != "" {
		template = fc.Template
	}
	if strings.TrimSpace(template) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("template 不能为空")}
	}

	// workers：CLI > config > 默认；超出范围截断。
	workers := DefaultWorkers()
	if cli.WorkersSet {
		if cli.Workers < 1 {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("--workers 必须 >= 1，实际 %d", cli.Workers)}
		}
		workers = cli.Workers
	} else if fc.Workers != 0 {
		workers = fc.Workers
	}
	if workers < 1 {
		workers = 1
	}
	if workers > MaxWorkers {
		workers = MaxWorkers
	}

	inferNum := false
	if cli.InferNumSet {
		inferNum = cli.InferNum
	} else if fc.InferNum != nil {
		inferNum = *fc.InferNum
	}

	docExt := strings.ToLower(strings.TrimSpace(fc.DocExt))
	if docExt == "" {
		docExt = DefaultDocExt
	}
	if !strings.HasPrefix(docExt, ".") {
		docExt = "." + docExt
	}
	if strings.ContainsAny(docExt, `/\`) || docExt == "." {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("doc_ext 无效：%q", fc.DocExt)}
	}

	actorMap := absCleanFrom(cfgDir, fc.ActorMap)
	if strings.TrimSpace(cli.ActorMap) != "" {
		actorMap = absCleanFrom(cwdAbs, cli.ActorMap)
	}
	seriesMap := absCleanFrom(cfgDir, fc.SeriesMap)
	if strings.TrimSpace(cli.SeriesMap) != "" {
		seriesMap = absCleanFrom(cwdAbs, cli.SeriesMap)
	}

	searchDirs := []string{root}
	if d := executableDir(); d != "" && d != root {
		searchDirs = append(searchDirs, d)
	}

	logDir := ""
	if d := strings.TrimSpace(fc.LogDir); d != "" {
		logDir = absCleanFrom(cfgDir, d)
	}

	return EffectiveConfig{
		Root:          root,
		ConfigPath:    cfgPath,
		Template:      template,
		ActorMapPath:  actorMap,
		SeriesMapPath: seriesMap,
		MapSearchDirs: searchDirs,
		Workers:       workers,
		ExcludeDirs:   append([]string(nil), fc.ExcludeDirs...),
		LogDir:        logDir,
		DocExt:        docExt,
		InferNum:      inferNum,
		DoActor:       !cli.NoActor && boolOr(fc.Passes.Actor, true),
		DoSeries:      !cli.NoSeries && boolOr(fc.Passes.Series, true),
		DoRename:      !cli.NoRename && boolOr(fc.Passes.Rename, true),
		DryRun:        cli.DryRun,
	}, nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 TOML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。未知字段视为错误，避免拼写错误被静默忽略。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	defer f.Close()

	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
