// Package dataset 把 TFRecord 分片流式地变成已解码的训练/评估批次。
//
// 设计要点：
//   - TRAIN：有界窗口乱序 + 无限重复 + 定长批（每轮丢弃尾部残批）
//   - EVAL：单趟顺序读取，保留尾部残批（评估覆盖完整）
//   - 预取：后台生产者解码下一批，深度为 1 的通道形成天然背压
//   - 解析失败策略：Strict 时整流失败（fail-fast），否则跳过并计数
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/vtag/core"
	"github.com/rushteam/vtag/pkg/dsl"
	"github.com/rushteam/vtag/record"
	"github.com/rushteam/vtag/schema"
)

// Mode 指定管道行为：训练或评估。
type Mode int

const (
	// ModeTrain 乱序、无限重复、丢弃残批
	ModeTrain Mode = iota
	// ModeEval 单趟、保序、保留残批
	ModeEval
)

// Options 是管道配置。
type Options struct {
	BatchSize     int    // 批大小，默认 1024
	ShuffleWindow int    // 乱序窗口，默认 1000（仅 TRAIN）
	Seed          int64  // 乱序随机种子，默认 777
	Filter        string // CEL 过滤表达式，空串表示不过滤
	Strict        bool   // true 时单条解析失败立即终止整流
}

const (
	defaultBatchSize     = 1024
	defaultShuffleWindow = 1000
	defaultSeed          = 777
)

// Pipeline 是数据管道：一份 Spec + 一份配置，可多次派生 Stream。
type Pipeline struct {
	dec    *record.Decoder
	opts   Options
	filter *dsl.Filter
}

// New 创建管道。过滤表达式在此一次性编译。
func New(spec *schema.Spec, opts Options) (*Pipeline, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.ShuffleWindow <= 0 {
		opts.ShuffleWindow = defaultShuffleWindow
	}
	if opts.Seed == 0 {
		opts.Seed = defaultSeed
	}
	filter, err := dsl.NewFilter(opts.Filter)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		dec:    record.NewDecoder(spec),
		opts:   opts,
		filter: filter,
	}, nil
}

// Expand 展开数据路径：支持逗号分隔的多个 glob。
// 未匹配到任何文件返回 SOURCE_NOT_FOUND。
func Expand(patterns string) ([]string, error) {
	var files []string
	for _, p := range strings.Split(patterns, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("dataset: bad glob %q: %w", p, err)
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, core.NewDomainError(core.ModuleDataset, core.ErrorCodeSourceNotFound,
			fmt.Sprintf("dataset: no input files match %q", patterns))
	}
	sort.Strings(files)
	return files, nil
}

// Stream 启动一条数据流。消费端通过 Next/Batch/Err 迭代，用完或提前退出都应 Close。
func (p *Pipeline) Stream(ctx context.Context, patterns string, mode Mode) (*Stream, error) {
	files, err := Expand(patterns)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		// 深度 1：生产者最多领先消费者一个已解码批次
		ch:     make(chan *core.Batch, 1),
		cancel: cancel,
	}
	eg, ctx := errgroup.WithContext(ctx)
	s.eg = eg
	eg.Go(func() error {
		defer close(s.ch)
		if mode == ModeTrain {
			return p.produceTrain(ctx, files, s)
		}
		return p.produceEval(ctx, files, s)
	})
	return s, nil
}

// Stream 是一条惰性批次序列。
type Stream struct {
	ch      chan *core.Batch
	eg      *errgroup.Group
	cancel  context.CancelFunc
	batch   *core.Batch
	err     error
	done    bool
	skipped atomic.Int64
}

// Next 推进到下一批。返回 false 表示流结束或出错，此后检查 Err。
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	b, ok := <-s.ch
	if !ok {
		s.done = true
		if err := s.eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			s.err = err
		}
		return false
	}
	s.batch = b
	return true
}

// Batch 返回当前批。
func (s *Stream) Batch() *core.Batch { return s.batch }

// Err 返回终止原因（正常读尽为 nil）。
func (s *Stream) Err() error { return s.err }

// Skipped 返回因解析失败或被过滤表达式丢弃的样本数。
func (s *Stream) Skipped() int64 { return s.skipped.Load() }

// Close 提前终止数据流，释放生产者。
func (s *Stream) Close() error {
	s.cancel()
	for range s.ch {
		// 排空，保证生产者退出
	}
	s.done = true
	return nil
}

func (s *Stream) send(ctx context.Context, b *core.Batch) error {
	select {
	case s.ch <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// produceEval 单趟读取：顺序、保留残批。
func (p *Pipeline) produceEval(ctx context.Context, files []string, s *Stream) error {
	buf := make([]*record.Decoded, 0, p.opts.BatchSize)
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		b := p.dec.Assemble(buf)
		buf = buf[:0]
		return s.send(ctx, b)
	}
	for _, file := range files {
		err := p.eachRecord(ctx, file, s, func(one *record.Decoded) error {
			buf = append(buf, one)
			if len(buf) == p.opts.BatchSize {
				return flush()
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return flush()
}

// produceTrain 无限重复：每轮重排文件顺序，窗口乱序，满批才产出。
func (p *Pipeline) produceTrain(ctx context.Context, files []string, s *Stream) error {
	rng := rand.New(rand.NewSource(p.opts.Seed))
	window := make([]*record.Decoded, 0, p.opts.ShuffleWindow)
	buf := make([]*record.Decoded, 0, p.opts.BatchSize)

	emit := func(one *record.Decoded) error {
		buf = append(buf, one)
		if len(buf) < p.opts.BatchSize {
			return nil
		}
		b := p.dec.Assemble(buf)
		buf = buf[:0]
		return s.send(ctx, b)
	}

	for epoch := 0; ; epoch++ {
		order := rng.Perm(len(files))
		for _, fi := range order {
			err := p.eachRecord(ctx, files[fi], s, func(one *record.Decoded) error {
				if len(window) < p.opts.ShuffleWindow {
					window = append(window, one)
					return nil
				}
				j := rng.Intn(len(window))
				out := window[j]
				window[j] = one
				return emit(out)
			})
			if err != nil {
				return err
			}
		}
		// 冲洗窗口（随机顺序），轮末残批丢弃后重新开始
		rng.Shuffle(len(window), func(i, j int) { window[i], window[j] = window[j], window[i] })
		for _, one := range window {
			if err := emit(one); err != nil {
				return err
			}
		}
		window = window[:0]
		buf = buf[:0]
	}
}

// eachRecord 读取单个分片，逐条解码并应用过滤/跳过策略。
func (p *Pipeline) eachRecord(ctx context.Context, file string, s *Stream, fn func(*record.Decoded) error) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("dataset: open %s: %w", file, err)
	}
	defer f.Close()
	r := record.NewReader(f)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if core.IsParseError(err) && !p.opts.Strict {
				// 容器帧损坏无法重新同步，放弃该分片剩余部分
				s.skipped.Add(1)
				return nil
			}
			return fmt.Errorf("dataset: %s: %w", file, err)
		}
		one, err := p.dec.DecodeOne(raw)
		if err != nil {
			if core.IsParseError(err) && !p.opts.Strict {
				s.skipped.Add(1)
				continue
			}
			return fmt.Errorf("dataset: %s: %w", file, err)
		}
		keep, err := p.filter.Keep(one.ID, one.LabelIndex)
		if err != nil {
			return fmt.Errorf("dataset: %s: %w", file, err)
		}
		if !keep {
			s.skipped.Add(1)
			continue
		}
		if err := fn(one); err != nil {
			return err
		}
	}
}
