package scan

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/henworth/trent-six/internal/metrics"
	"github.com/henworth/trent-six/internal/model"
	"github.com/henworth/trent-six/internal/repository"
)

// ClanProcessorService はクラン1件の同期とスキャンの実行インターフェース。
type ClanProcessorService interface {
	// Process は名簿同期と履歴スキャンを順に実行する。
	Process(ctx context.Context, clan *model.Clan) error
}

// Processor は名簿同期と履歴スキャンを束ねる。
// 名簿を先に同期することで、直近の加入者もスキャン対象に含める。
type Processor struct {
	syncer    *RosterSyncer
	scanner   *Scanner
	collector metrics.MetricsCollector
}

// NewProcessor はProcessorの新しいインスタンスを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewProcessor(syncer *RosterSyncer, scanner *Scanner, collector metrics.MetricsCollector) *Processor {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Processor{syncer: syncer, scanner: scanner, collector: collector}
}

// Process は名簿同期と履歴スキャンを順に実行する。
func (p *Processor) Process(ctx context.Context, clan *model.Clan) error {
	start := time.Now()

	if err := p.syncer.SyncClan(ctx, clan); err != nil {
		p.collector.RecordScanFailure(clan.ID, "roster_sync")
		return err
	}
	if err := p.scanner.ScanClan(ctx, clan); err != nil {
		p.collector.RecordScanFailure(clan.ID, "history_scan")
		return err
	}

	p.collector.RecordScanSuccess(clan.ID)
	p.collector.RecordScanLatency(time.Since(start))
	return nil
}

// Scheduler はクランスキャンのスケジューリングと並列制御を行う。
// 一定間隔のティッカーで登録済みクランを取得し、
// semaphoreパターンで最大並列数を制御しながら処理を実行する。
type Scheduler struct {
	clanRepo       repository.ClanRepository
	processor      ClanProcessorService
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値5を使用する。
func NewScheduler(
	clanRepo repository.ClanRepository,
	processor ClanProcessorService,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	return &Scheduler{
		clanRepo:       clanRepo,
		processor:      processor,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("スキャンスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("スキャンサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("スキャンスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("スキャンサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は登録済みクランを1回取得し、並列で処理を実行する。
// semaphoreパターンで最大並列数を制御する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	clans, err := s.clanRepo.List(ctx)
	if err != nil {
		return err
	}

	if len(clans) == 0 {
		s.logger.Info("スキャン対象のクランはありません")
		return nil
	}

	s.logger.Info("スキャンサイクルを開始します",
		slog.Int("clan_count", len(clans)),
	)

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, clan := range clans {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(c *model.Clan) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if err := s.processor.Process(ctx, c); err != nil {
				s.logger.Error("クランの処理に失敗しました",
					slog.String("clan_id", c.ID),
					slog.Int64("group_id", c.GroupID),
					slog.String("error", err.Error()),
				)
			}
		}(clan)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("スキャンサイクルが完了しました",
		slog.Int("clan_count", len(clans)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// compile-time interface check
var _ ClanProcessorService = (*Processor)(nil)
