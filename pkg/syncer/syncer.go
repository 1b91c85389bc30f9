// pkg/syncer/syncer.go
package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"asphalt/pkg/asset"
	"asphalt/pkg/backend"
	"asphalt/pkg/codegen"
	"asphalt/pkg/config"
	"asphalt/pkg/ignore"
	"asphalt/pkg/lockfile"
	"asphalt/pkg/types"
	"asphalt/pkg/walker"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	ErrSyncFailed = errors.New("sync failed")
	ErrNewAssets  = errors.New("new assets would be uploaded")
)

// FatalReporter 报告远端是否发生过致命错误 (webapi.Client 实现)
type FatalReporter interface {
	Failed() bool
}

type Options struct {
	Target       backend.Target
	DryRun       bool
	LockfilePath string
	ProjectDir   string
	Process      asset.ProcessOptions

	// Output 接收进度和结果，通常是 stderr
	Output io.Writer
}

// Syncer 编排一次完整的同步
type Syncer struct {
	cfg      *config.Config
	existing *lockfile.Lockfile
	backend  backend.Backend
	remote   FatalReporter
	opts     Options
}

// New 组装 Syncer
// dry-run 时 b 可以为 nil; remote 可以为 nil (studio/debug)
func New(cfg *config.Config, existing *lockfile.Lockfile, b backend.Backend, remote FatalReporter, opts Options) (*Syncer, error) {
	if opts.DryRun && opts.Target != backend.TargetCloud {
		return nil, fmt.Errorf("dry run is only supported for the cloud target")
	}
	if b == nil && !opts.DryRun {
		return nil, fmt.Errorf("no backend for target %s", opts.Target)
	}
	if existing == nil {
		existing = lockfile.New()
	}
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	if opts.ProjectDir == "" {
		opts.ProjectDir = "."
	}
	if opts.LockfilePath == "" {
		opts.LockfilePath = lockfile.FileName
	}
	return &Syncer{cfg: cfg, existing: existing, backend: b, remote: remote, opts: opts}, nil
}

// Run 执行同步，返回最终的计数器
// 有资源失败或远端致命错误时返回 ErrSyncFailed，dry-run 有新资源时返回 ErrNewAssets
func (s *Syncer) Run(ctx context.Context) (Progress, error) {
	events := make(chan event, 64)
	col := newCollector(s)

	// 1. 收集者: 唯一拥有计数器、codegen 表和新 lockfile 的 goroutine
	done := make(chan struct{})
	go func() {
		defer close(done)
		col.run(events)
	}()

	// 2. 每个 input 一个生产者，input 内部顺序执行
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range s.cfg.InputNames() {
		in := s.cfg.Inputs[name]
		g.Go(func() error {
			return s.produce(gctx, in, events)
		})
	}
	walkErr := g.Wait()
	close(events)
	<-done
	col.endProgress()

	if walkErr != nil {
		// 中断前已经上传的资源要记下来，否则下次会重复上传
		if !s.opts.DryRun && col.lock.Len() > s.existing.Len() {
			if err := col.lock.Write(s.opts.LockfilePath); err != nil {
				walkErr = errors.Join(walkErr, err)
			}
		}
		return col.progress, walkErr
	}
	if col.writeErr != nil {
		return col.progress, col.writeErr
	}
	col.warnDuplicates()

	// 3. dry-run 只报告
	if s.opts.DryRun {
		if col.progress.New > 0 {
			fmt.Fprintf(s.opts.Output, "%d new assets\n", col.progress.New)
			return col.progress, fmt.Errorf("%w: %d", ErrNewAssets, col.progress.New)
		}
		fmt.Fprintln(s.opts.Output, "No new assets")
		return col.progress, nil
	}

	// 4. 落盘: lockfile 和生成代码
	if err := col.lock.Write(s.opts.LockfilePath); err != nil {
		return col.progress, err
	}
	for _, name := range s.cfg.InputNames() {
		in := s.cfg.Inputs[name]
		if err := codegen.Write(in.OutputPath, s.cfg.Codegen, col.codegen[name]); err != nil {
			return col.progress, fmt.Errorf("codegen for input %s: %w", name, err)
		}
	}

	p := col.progress
	fmt.Fprintf(s.opts.Output, "Synced %d files (%d new, %d no-op, %d duplicates, %d failed)\n",
		p.Synced+p.Dupes, p.New, p.NoOp(), p.Dupes, p.Failed)

	fatal := s.remote != nil && s.remote.Failed()
	if p.Failed > 0 || fatal {
		return p, fmt.Errorf("%w: %d assets failed", ErrSyncFailed, p.Failed)
	}
	return p, nil
}

// produce 遍历一个 input 并处理每个文件
func (s *Syncer) produce(ctx context.Context, in *config.Input, events chan<- event) error {
	send := func(ev event) error {
		ev.input = in.Name
		select {
		case events <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	// 上传结果无论是否取消都必须交给收集者，收集者会一直读到 events 关闭
	deliver := func(ev event) {
		ev.input = in.Name
		events <- ev
	}

	matcher, err := ignore.NewMatcher(s.opts.ProjectDir, in.Ignore...)
	if err != nil {
		return fmt.Errorf("input %s: failed to load ignore rules: %w", in.Name, err)
	}
	w, err := walker.New(in.Path, matcher)
	if err != nil {
		return fmt.Errorf("input %s: %w", in.Name, err)
	}

	// 本次运行中已经见过的 Hash，第一次出现的路径获胜
	seen := make(map[types.Hash]bool)

	err = w.Walk(ctx, func(f walker.File) error {
		if err := send(event{kind: evDiscovered, path: f.RelPath}); err != nil {
			return err
		}

		a, err := s.prepare(ctx, in, f)
		if err != nil {
			log.WithField("path", f.Path).Warnf("Skipping file: %v", err)
			return send(event{kind: evFailed, path: f.RelPath, err: err})
		}

		if seen[a.Hash] {
			return send(event{kind: evFinished, path: f.RelPath, state: stateDuplicate, hash: a.Hash})
		}
		seen[a.Hash] = true

		// cloud 命中 lockfile 直接复用
		if s.opts.Target == backend.TargetCloud {
			if e, ok := s.existing.Get(in.Name, a.Hash); ok {
				return send(event{kind: evFinished, path: f.RelPath, state: stateSynced, hash: a.Hash, ref: asset.CloudRef(e.AssetID)})
			}
		}

		if s.opts.DryRun {
			return send(event{kind: evFinished, path: f.RelPath, state: stateSynced, isNew: true, hash: a.Hash})
		}

		if err := send(event{kind: evInFlight, path: f.RelPath}); err != nil {
			return err
		}
		ref, err := s.backend.Sync(ctx, in.Name, a)
		if err != nil {
			log.WithField("path", f.Path).Warnf("Failed to sync: %v", err)
			deliver(event{kind: evFailed, path: f.RelPath, err: err, inFlight: true})
			return nil
		}
		deliver(event{kind: evFinished, path: f.RelPath, state: stateSynced, isNew: true, hash: a.Hash, ref: ref})
		return nil
	})
	if err != nil {
		return fmt.Errorf("input %s: %w", in.Name, err)
	}
	return nil
}

// prepare: 读文件 -> 分类 -> 预处理 -> Hash
func (s *Syncer) prepare(ctx context.Context, in *config.Input, f walker.File) (*asset.Asset, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	a, err := asset.New(f.RelPath, data)
	if err != nil {
		return nil, err
	}
	opts := s.opts.Process
	opts.Bleed = in.Bleed
	if err := a.Process(ctx, opts); err != nil {
		return nil, err
	}
	return a, nil
}
