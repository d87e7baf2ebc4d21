package search

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/jobtrail/internal/metrics"
	"github.com/hitoshi/jobtrail/internal/model"
)

// エンジン名
const (
	EngineAll      = "all"
	EngineRemoteOK = "remoteok"
	EngineRSS      = "rss"
)

// serpEnginePattern はSerpApiのエンジン名として受け付ける形式。
var serpEnginePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,40}$`)

// Config は検索サービスの設定。
type Config struct {
	// Timeout は1回の検索呼び出し全体の上限時間。
	Timeout time.Duration
}

// Service はエンジン名に応じて検索ソースを選び、結果を正規化して返す。
type Service struct {
	serp    *SerpAPI
	named   map[string]Source
	order   []Source
	config  Config
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewService はServiceを生成する。serpはAPIキー未設定の場合nilでよい。
// othersはエンジン名=Name()で参照され、"all"では渡した順に結合される。
func NewService(serp *SerpAPI, others []Source, config Config, recorder metrics.Recorder, logger *slog.Logger) *Service {
	s := &Service{
		serp:    serp,
		named:   make(map[string]Source),
		config:  config,
		metrics: recorder,
		logger:  logger,
	}
	if serp != nil {
		s.order = append(s.order, serp)
	}
	for _, src := range others {
		s.named[src.Name()] = src
		s.order = append(s.order, src)
	}
	return s
}

// Search は検索語で求人を検索する。engineが空の場合はgoogle_jobsを使う。
func (s *Service) Search(ctx context.Context, term, engine string) ([]model.Job, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, model.NewValidationError("searchTerm", "必須です")
	}
	engine = strings.ToLower(strings.TrimSpace(engine))
	if engine == "" {
		engine = DefaultSerpAPIEngine
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	if engine == EngineAll {
		return s.searchAll(ctx, term)
	}

	src, err := s.resolve(engine)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, src, term)
}

func (s *Service) resolve(engine string) (Source, error) {
	if src, ok := s.named[engine]; ok {
		return src, nil
	}
	if engine == EngineRemoteOK || engine == EngineRSS || !serpEnginePattern.MatchString(engine) {
		return nil, model.NewUnknownEngineError(engine)
	}
	if s.serp == nil {
		return nil, model.NewUpstreamFailedError("serpapi", "APIキーが設定されていません")
	}
	return s.serp.WithEngine(engine), nil
}

// searchAll は全ソースに並行して問い合わせ、ソース順に結合してIDで重複を除く。
// 一部ソースの失敗はログに残して無視し、全ソースが失敗した場合のみエラーを返す。
func (s *Service) searchAll(ctx context.Context, term string) ([]model.Job, error) {
	if len(s.order) == 0 {
		return nil, model.NewUnknownEngineError(EngineAll)
	}

	results := make([][]model.Job, len(s.order))
	errs := make([]error, len(s.order))

	var g errgroup.Group
	for i, src := range s.order {
		g.Go(func() error {
			results[i], errs[i] = s.run(ctx, src, term)
			return nil
		})
	}
	_ = g.Wait()

	var (
		merged   = []model.Job{}
		seen     = make(map[string]struct{})
		firstErr error
		failed   int
	)
	for i, src := range s.order {
		if errs[i] != nil {
			failed++
			if firstErr == nil {
				firstErr = errs[i]
			}
			s.logger.Warn("検索ソースの呼び出しに失敗したためスキップします",
				slog.String("source", src.Name()),
				slog.String("error", errs[i].Error()),
			)
			continue
		}
		for _, job := range results[i] {
			if _, dup := seen[job.ID]; dup {
				continue
			}
			seen[job.ID] = struct{}{}
			merged = append(merged, job)
		}
	}
	if failed == len(s.order) {
		return nil, firstErr
	}
	return merged, nil
}

func (s *Service) run(ctx context.Context, src Source, term string) ([]model.Job, error) {
	start := time.Now()
	jobs, err := src.Search(ctx, term)
	s.metrics.RecordUpstream(src.Name(), metrics.Outcome(err), time.Since(start))

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = model.NewUpstreamFailedError(src.Name(), "タイムアウトしました")
		}
		s.logger.Error("求人検索に失敗しました",
			slog.String("source", src.Name()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.metrics.RecordSearchResults(src.Name(), len(jobs))
	return jobs, nil
}
