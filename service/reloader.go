package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wyfcoding/rectstab/config"
	"github.com/wyfcoding/rectstab/logging"
	"github.com/wyfcoding/rectstab/retry"
	"github.com/wyfcoding/rectstab/xerrors"
)

// Reloader 按 cron 计划从矩形文件重建索引.
// 读取文件失败会按退避策略重试；内容非法不重试。重建失败时保留上一份索引。
type Reloader struct {
	cron   *cron.Cron
	svc    *Stabbing
	path   string
	retry  retry.Config
	logger *logging.Logger
}

// NewReloader 解析计划表达式并注册重建任务.
func NewReloader(svc *Stabbing, cfg config.IndexConfig, logger *logging.Logger) (*Reloader, error) {
	if cfg.RectanglesFile == "" {
		return nil, fmt.Errorf("reload schedule %q requires index.rectangles_file", cfg.ReloadSchedule)
	}

	r := &Reloader{
		cron:   cron.New(),
		svc:    svc,
		path:   cfg.RectanglesFile,
		retry:  retry.DefaultConfig(),
		logger: logger,
	}
	if _, err := r.cron.AddFunc(cfg.ReloadSchedule, r.reload); err != nil {
		return nil, fmt.Errorf("invalid reload schedule %q: %w", cfg.ReloadSchedule, err)
	}
	return r, nil
}

func (r *Reloader) reload() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	err := retry.Do(ctx, r.retry, func(ctx context.Context) error {
		return r.svc.LoadFile(ctx, r.path)
	}, transientLoadError)
	if err != nil {
		r.logger.ErrorContext(ctx, "scheduled index reload failed, keeping previous index", "file", r.path, "error", err)
		return
	}
	r.logger.InfoContext(ctx, "scheduled index reload finished", "file", r.path)
}

// Start 启动调度并阻塞到 ctx 取消.
func (r *Reloader) Start(ctx context.Context) error {
	r.logger.Info("index reloader started", "file", r.path, "entries", len(r.cron.Entries()))
	r.cron.Start()
	<-ctx.Done()
	return r.Stop(context.Background())
}

// Stop 停止调度并等待正在执行的重建结束.
func (r *Reloader) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// transientLoadError 输入内容错误 (格式错误、矩形非法) 重试无意义.
func transientLoadError(err error) bool {
	var xe *xerrors.Error
	if errors.As(err, &xe) {
		return xe.Type != xerrors.ErrInvalidArg
	}
	return true
}
