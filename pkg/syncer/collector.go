package syncer

import (
	"fmt"

	"asphalt/pkg/asset"
	"asphalt/pkg/lockfile"

	log "github.com/sirupsen/logrus"
)

// collector 消费事件，单线程，不需要锁
type collector struct {
	s        *Syncer
	progress Progress

	// input -> rel_path -> Ref
	codegen map[string]map[string]*asset.Ref
	// 从旧 lockfile 复制，只会增加 Cloud 记录
	lock *lockfile.Lockfile

	dupes    map[string][]string
	writeErr error
	drawn    bool
}

func newCollector(s *Syncer) *collector {
	c := &collector{
		s:       s,
		codegen: make(map[string]map[string]*asset.Ref),
		lock:    s.existing.Clone(),
		dupes:   make(map[string][]string),
	}
	// web 资源预先放入
	for name, in := range s.cfg.Inputs {
		refs := make(map[string]*asset.Ref, len(in.Web))
		for rel, web := range in.Web {
			refs[rel] = asset.CloudRef(web.ID)
		}
		c.codegen[name] = refs
	}
	return c
}

func (c *collector) run(events <-chan event) {
	for ev := range events {
		c.handle(ev)
		c.drawProgress()
	}
}

func (c *collector) handle(ev event) {
	p := &c.progress
	switch ev.kind {
	case evDiscovered:
		p.Discovered++

	case evInFlight:
		p.InFlight++

	case evFailed:
		if ev.inFlight {
			p.InFlight--
		}
		p.Failed++

	case evFinished:
		if ev.state == stateDuplicate {
			p.Dupes++
			c.dupes[ev.input] = append(c.dupes[ev.input], ev.path)
			if c.s.cfg.Inputs[ev.input].WarnEachDuplicate {
				log.WithField("path", ev.path).Warn("Duplicate file found, it will not be uploaded")
			}
			return
		}

		p.Synced++
		if ev.isNew {
			p.New++
			if !c.s.opts.DryRun {
				p.InFlight--
			}
		}
		if ev.ref == nil {
			return
		}
		c.codegen[ev.input][ev.path] = ev.ref

		if ev.ref.IsCloud() && !c.s.opts.DryRun {
			c.lock.Insert(ev.input, ev.hash, lockfile.Entry{AssetID: ev.ref.Cloud})
		}
		// studio/debug 每次成功后立即落盘
		if ev.isNew && c.s.opts.Target.IsLocal() {
			if err := c.lock.Write(c.s.opts.LockfilePath); err != nil && c.writeErr == nil {
				c.writeErr = err
			}
		}
	}
}

func (c *collector) drawProgress() {
	p := c.progress
	fmt.Fprintf(c.s.opts.Output, "\rSyncing: %d discovered, %d synced, %d new, %d duplicates, %d failed, %d in flight",
		p.Discovered, p.Synced, p.New, p.Dupes, p.Failed, p.InFlight)
	c.drawn = true
}

func (c *collector) endProgress() {
	if c.drawn {
		fmt.Fprintln(c.s.opts.Output)
	}
}

// warnDuplicates 没有开启 warn_each_duplicate 的 input 只汇总警告一次
func (c *collector) warnDuplicates() {
	for _, name := range c.s.cfg.InputNames() {
		paths := c.dupes[name]
		if len(paths) == 0 || c.s.cfg.Inputs[name].WarnEachDuplicate {
			continue
		}
		log.WithField("input", name).Warnf("%d duplicate files found and skipped (set warn_each_duplicate to list them)", len(paths))
	}
}
