package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/palemoky/turnstile/internal/game/session"
)

type namedSink struct {
	name string
	sink session.PersistenceSink
}

// Fanout 把会话记录并行写入多个存储，任一失败都会返回
type Fanout struct {
	sinks []namedSink
}

// NewFanout 创建空的 Fanout
func NewFanout() *Fanout {
	return &Fanout{}
}

// Add 添加一个存储
func (f *Fanout) Add(name string, sink session.PersistenceSink) {
	f.sinks = append(f.sinks, namedSink{name: name, sink: sink})
}

// Len 存储数量
func (f *Fanout) Len() int { return len(f.sinks) }

// Save 实现 session.PersistenceSink
func (f *Fanout) Save(ctx context.Context, rec session.Snapshot) error {
	errs := make([]error, len(f.sinks))

	var g errgroup.Group
	for i, ns := range f.sinks {
		g.Go(func() error {
			if err := ns.sink.Save(ctx, rec); err != nil {
				errs[i] = fmt.Errorf("%s: %w", ns.name, err)
				log.Error().Err(err).
					Str("session_id", rec.ID).
					Str("store", ns.name).
					Msg("❌ 保存会话记录失败")
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

var _ session.PersistenceSink = (*Fanout)(nil)
