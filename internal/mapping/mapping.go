// Package mapping 加载两张外部映射表：演员别名 -> 规范名，识别号 -> 系列。
//
// 映射表在流水线启动时加载一次，之后只读，可被所有 worker 无锁并发读取。
package mapping

import (
	"embed"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/unicode/norm"
)

const (
	DefaultActorFile  = "mapping_actor.xml"
	DefaultSeriesFile = "mapping_series.xml"
)

// SourceBundled 表示使用了内置的默认表。
const SourceBundled = "bundled"

//go:embed defaults/*.xml
var bundled embed.FS

const (
	// KindMissing：文件不存在。按空表处理，不致命。
	KindMissing = "config_missing"
	// KindMalformed：文件存在但无法解析。对该表致命。
	KindMalformed = "config_malformed"
)

// Error 是映射表加载阶段的结构化错误。
type Error struct {
	Kind string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindMissing:
		return fmt.Sprintf("%s：映射文件不存在 %q", e.Kind, e.Path)
	default:
		return fmt.Sprintf("%s：映射文件 %q 无法解析：%v", e.Kind, e.Path, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func IsMissing(err error) bool   { return kindOf(err) == KindMissing }
func IsMalformed(err error) bool { return kindOf(err) == KindMalformed }

func kindOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ActorMap 是演员别名 -> 规范名的映射。未知别名按原样返回。
type ActorMap struct {
	alias     map[string]string
	canonical map[string]struct{}
}

// NewActorMap 由 alias -> canonical 条目构造 ActorMap（键会做 TrimSpace + NFC）。
func NewActorMap(entries map[string]string) ActorMap {
	m := ActorMap{
		alias:     make(map[string]string, len(entries)),
		canonical: make(map[string]struct{}, len(entries)),
	}
	for k, v := range entries {
		m.add(k, v)
	}
	return m
}

func (m *ActorMap) add(alias, canonical string) {
	alias = normKey(alias)
	canonical = normKey(canonical)
	if alias == "" || canonical == "" {
		return
	}
	if m.alias == nil {
		m.alias = map[string]string{}
		m.canonical = map[string]struct{}{}
	}
	m.canonical[canonical] = struct{}{}
	if _, ok := m.alias[alias]; ok {
		// 同一别名出现多次：先出现者优先。
		return
	}
	m.alias[alias] = canonical
}

// Resolve 返回 name 对应的规范名。
//
// 约束：name 本身已经是某个规范名时不再映射，这保证了连续改写的幂等性
// （即使表里存在 A->B 与 B->C 这样的链）。
func (m ActorMap) Resolve(name string) (string, bool) {
	k := normKey(name)
	if k == "" || len(m.alias) == 0 {
		return name, false
	}
	if _, ok := m.canonical[k]; ok {
		return name, false
	}
	v, ok := m.alias[k]
	if !ok || v == k {
		return name, false
	}
	return v, true
}

// Lookup 与 Resolve 相同，但未命中时返回原名（identity）。
func (m ActorMap) Lookup(name string) string {
	v, _ := m.Resolve(name)
	return v
}

// Len 返回别名条目数。
func (m ActorMap) Len() int { return len(m.alias) }

// SeriesMap 是识别号 -> 系列名的映射。
type SeriesMap struct {
	byID map[string]string
}

// NewSeriesMap 由 id -> series 条目构造 SeriesMap。
func NewSeriesMap(entries map[string]string) SeriesMap {
	m := SeriesMap{byID: make(map[string]string, len(entries))}
	for k, v := range entries {
		m.add(k, v)
	}
	return m
}

func (m *SeriesMap) add(id, series string) {
	id = normKey(id)
	series = normKey(series)
	if id == "" || series == "" {
		return
	}
	if m.byID == nil {
		m.byID = map[string]string{}
	}
	if _, ok := m.byID[id]; ok {
		return
	}
	m.byID[id] = series
}

// Lookup 先精确匹配，再按大写匹配（识别号通常为大写）。
func (m SeriesMap) Lookup(id string) (string, bool) {
	k := normKey(id)
	if k == "" || len(m.byID) == 0 {
		return "", false
	}
	if v, ok := m.byID[k]; ok {
		return v, true
	}
	v, ok := m.byID[strings.ToUpper(k)]
	return v, ok
}

// Len 返回条目数。
func (m SeriesMap) Len() int { return len(m.byID) }

// LoadActor 读取演员映射文件。
func LoadActor(path string) (ActorMap, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ActorMap{}, &Error{Kind: KindMissing, Path: path, Err: err}
		}
		return ActorMap{}, &Error{Kind: KindMalformed, Path: path, Err: err}
	}
	defer f.Close()

	m, err := ParseActor(f)
	if err != nil {
		return ActorMap{}, &Error{Kind: KindMalformed, Path: path, Err: err}
	}
	return m, nil
}

// LoadSeries 读取系列映射文件。
func LoadSeries(path string) (SeriesMap, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return SeriesMap{}, &Error{Kind: KindMissing, Path: path, Err: err}
		}
		return SeriesMap{}, &Error{Kind: KindMalformed, Path: path, Err: err}
	}
	defer f.Close()

	m, err := ParseSeries(f)
	if err != nil {
		return SeriesMap{}, &Error{Kind: KindMalformed, Path: path, Err: err}
	}
	return m, nil
}

// ParseActor 流式解析演员表：每个 <a zh_cn="X" keyword="k1,k2,…"> 贡献 k_i -> X。
func ParseActor(r io.Reader) (ActorMap, error) {
	m := ActorMap{alias: map[string]string{}, canonical: map[string]struct{}{}}
	err := stream(r, func(se xml.StartElement) {
		if se.Name.Local != "a" {
			return
		}
		canonical := attr(se, "zh_cn")
		for _, k := range strings.Split(attr(se, "keyword"), ",") {
			m.add(k, canonical)
		}
	})
	if err != nil {
		return ActorMap{}, err
	}
	return m, nil
}

// ParseSeries 流式解析系列表：每个 <map code="ID" series="S"> 贡献 ID -> S。
func ParseSeries(r io.Reader) (SeriesMap, error) {
	m := SeriesMap{byID: map[string]string{}}
	err := stream(r, func(se xml.StartElement) {
		if se.Name.Local != "map" {
			return
		}
		m.add(attr(se, "code"), attr(se, "series"))
	})
	if err != nil {
		return SeriesMap{}, err
	}
	return m, nil
}

func stream(r io.Reader, onStart func(xml.StartElement)) error {
	d := xml.NewDecoder(r)
	d.Strict = true
	d.Entity = xml.HTMLEntity
	d.CharsetReader = charset.NewReaderLabel

	sawRoot := false
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if se, ok := tok.(xml.StartElement); ok {
			sawRoot = true
			onStart(se)
		}
	}
	if !sawRoot {
		return errors.New("没有根元素")
	}
	return nil
}

func attr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func normKey(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Options 描述两张表的定位方式。
type Options struct {
	// ActorPath/SeriesPath 显式指定时只读该路径（不存在 => KindMissing 警告 + 空表）。
	ActorPath  string
	SeriesPath string

	// SearchDirs 未显式指定路径时，按顺序查找同名外部文件；都找不到则用内置默认表。
	SearchDirs []string
}

// Tables 是加载结果。
type Tables struct {
	Actor  ActorMap
	Series SeriesMap

	// ActorSource/SeriesSource 是实际来源（文件路径或 SourceBundled；缺失时为空串）。
	ActorSource  string
	SeriesSource string

	// Warnings 收集非致命问题（KindMissing）。
	Warnings []error
}

// Load 按 Options 定位并加载两张表。
// KindMissing 记入 Warnings 并按空表继续；KindMalformed 直接返回错误。
func Load(opts Options) (Tables, error) {
	var t Tables

	actorPath, actorBundled := resolve(opts.ActorPath, DefaultActorFile, opts.SearchDirs)
	if actorBundled {
		m, err := parseBundled(DefaultActorFile, ParseActor)
		if err != nil {
			return Tables{}, err
		}
		t.Actor, t.ActorSource = m, SourceBundled
	} else {
		m, err := LoadActor(actorPath)
		switch {
		case err == nil:
			t.Actor, t.ActorSource = m, actorPath
		case IsMissing(err):
			t.Warnings = append(t.Warnings, err)
		default:
			return Tables{}, err
		}
	}

	seriesPath, seriesBundled := resolve(opts.SeriesPath, DefaultSeriesFile, opts.SearchDirs)
	if seriesBundled {
		m, err := parseBundled(DefaultSeriesFile, ParseSeries)
		if err != nil {
			return Tables{}, err
		}
		t.Series, t.SeriesSource = m, SourceBundled
	} else {
		m, err := LoadSeries(seriesPath)
		switch {
		case err == nil:
			t.Series, t.SeriesSource = m, seriesPath
		case IsMissing(err):
			t.Warnings = append(t.Warnings, err)
		default:
			return Tables{}, err
		}
	}

	return t, nil
}

// Locate 在 dirs 中按顺序查找 name，返回第一个存在的普通文件。
func Locate(name string, dirs ...string) (string, bool) {
	for _, d := range dirs {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		p := filepath.Join(d, name)
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			return p, true
		}
	}
	return "", false
}

func resolve(explicit, name string, dirs []string) (path string, useBundled bool) {
	if p := strings.TrimSpace(explicit); p != "" {
		return p, false
	}
	if p, ok := Locate(name, dirs...); ok {
		return p, false
	}
	return "", true
}

func parseBundled[T any](name string, parse func(io.Reader) (T, error)) (T, error) {
	f, err := bundled.Open("defaults/" + name)
	if err != nil {
		var zero T
		return zero, &Error{Kind: KindMalformed, Path: SourceBundled + ":" + name, Err: err}
	}
	defer f.Close()
	m, err := parse(f)
	if err != nil {
		var zero T
		return zero, &Error{Kind: KindMalformed, Path: SourceBundled + ":" + name, Err: err}
	}
	return m, nil
}
