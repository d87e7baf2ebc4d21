package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/jobtrail/internal/metrics"
	"github.com/hitoshi/jobtrail/internal/model"
	"github.com/hitoshi/jobtrail/internal/repository"
	"github.com/hitoshi/jobtrail/internal/storage"
)

// maxResumeTextLength は生成モデルに渡す履歴書テキストの最大文字数。
const maxResumeTextLength = 15000

// TextExtractor はPDFのURLからテキストを抽出する。
type TextExtractor interface {
	ExtractText(ctx context.Context, fileURL string) (string, error)
}

// Generator はプロンプトからテキストを生成する。
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// URLSigner は署名付きURLを発行する。
type URLSigner interface {
	SignedURL(bucket, path string) (string, time.Time, error)
}

// Deps はServiceの依存。ResumeModelとMatchModelは未設定（nil）でもよく、
// その場合は呼び出し時に上流エラーを返す。
type Deps struct {
	Profiles    repository.ProfileRepository
	Apps        repository.ApplicationRepository
	Signer      URLSigner
	Extractor   TextExtractor
	ResumeModel Generator
	MatchModel  Generator
	Metrics     metrics.Recorder
	Logger      *slog.Logger
}

// Service は履歴書分析と求人マッチングを実行し、結果を保存する。
type Service struct {
	deps Deps
}

// NewService はServiceを生成する。
func NewService(deps Deps) *Service {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	return &Service{deps: deps}
}

// AnalyzeResume はアップロード済み履歴書をテキスト化し、生成モデルで要約・スキル抽出を行う。
func (s *Service) AnalyzeResume(ctx context.Context, userID string) (*model.ResumeAnalysis, error) {
	profile, err := s.deps.Profiles.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil || profile.ResumePath == "" {
		return nil, model.NewMissingResumeError()
	}

	fileURL, _, err := s.deps.Signer.SignedURL(storage.BucketResumes, profile.ResumePath)
	if err != nil {
		return nil, fmt.Errorf("署名付きURLの発行に失敗しました: %w", err)
	}

	var text string
	err = s.observe(ctx, "pdfco", func(ctx context.Context) (err error) {
		text, err = s.deps.Extractor.ExtractText(ctx, fileURL)
		return err
	})
	if err != nil {
		return nil, err
	}
	text = truncateRunes(text, maxResumeTextLength)

	raw, err := s.generate(ctx, "huggingface", s.deps.ResumeModel, ResumePrompt(text))
	if err != nil {
		return nil, err
	}

	var analysis model.ResumeAnalysis
	if err := ExtractJSON("huggingface", raw, ResumeAnalysisSchema, &analysis); err != nil {
		return nil, err
	}
	if err := s.deps.Profiles.UpdateResumeAnalysis(ctx, userID, &analysis); err != nil {
		return nil, fmt.Errorf("履歴書分析結果の保存に失敗しました: %w", err)
	}

	s.deps.Logger.Info("履歴書分析が完了しました",
		slog.String("user_id", userID),
		slog.Int("skills", len(analysis.Skills)),
	)
	return &analysis, nil
}

// ScoreMatch は履歴書分析結果と応募先の職種・会社名からマッチ度を算出し、応募記録に保存する。
func (s *Service) ScoreMatch(ctx context.Context, userID, applicationID string) (*model.MatchAnalysis, error) {
	if strings.TrimSpace(applicationID) == "" {
		return nil, model.NewValidationError("applicationId", "必須です")
	}
	app, err := s.deps.Apps.FindByID(ctx, userID, applicationID)
	if err != nil {
		return nil, fmt.Errorf("応募記録の取得に失敗しました: %w", err)
	}
	if app == nil {
		return nil, model.NewApplicationNotFoundError(applicationID)
	}

	profile, err := s.deps.Profiles.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil || profile.ResumeAnalysis == nil {
		return nil, model.NewMissingResumeAnalysisError()
	}

	prompt, err := MatchPrompt(profile.ResumeAnalysis, app.Position, app.Company)
	if err != nil {
		return nil, err
	}
	raw, err := s.generate(ctx, "gemini", s.deps.MatchModel, prompt)
	if err != nil {
		return nil, err
	}

	var analysis model.MatchAnalysis
	if err := ExtractJSON("gemini", raw, MatchAnalysisSchema, &analysis); err != nil {
		return nil, err
	}
	ok, err := s.deps.Apps.UpdateMatchAnalysis(ctx, userID, applicationID, &analysis)
	if err != nil {
		return nil, fmt.Errorf("マッチング結果の保存に失敗しました: %w", err)
	}
	if !ok {
		return nil, model.NewApplicationNotFoundError(applicationID)
	}
	return &analysis, nil
}

func (s *Service) generate(ctx context.Context, upstream string, gen Generator, prompt string) (string, error) {
	if gen == nil {
		return "", model.NewUpstreamFailedError(upstream, "APIキーが設定されていません")
	}
	var out string
	err := s.observe(ctx, upstream, func(ctx context.Context) (err error) {
		out, err = gen.Generate(ctx, prompt)
		return err
	})
	return out, err
}

// observe は外部呼び出しのレイテンシと結果を記録する。
func (s *Service) observe(ctx context.Context, upstream string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	s.deps.Metrics.RecordUpstream(upstream, metrics.Outcome(err), time.Since(start))
	if err != nil {
		s.deps.Logger.Error("外部APIの呼び出しに失敗しました",
			slog.String("upstream", upstream),
			slog.String("error", err.Error()),
		)
	}
	return err
}

// ResumePrompt は履歴書分析用の固定プロンプトを組み立てる。
func ResumePrompt(resumeText string) string {
	return `[INST] You are an expert HR analyst. Analyze the following resume text and extract the information in a valid JSON format. ` +
		`Respond ONLY with a valid JSON object with keys "summary" (string), "skills" (array of strings), "experienceYears" (number). ` +
		`Resume text: ` + resumeText + ` [/INST]`
}

// MatchPrompt はマッチング分析用のプロンプトを組み立てる。
func MatchPrompt(resume *model.ResumeAnalysis, position, company string) (string, error) {
	summary, err := json.Marshal(map[string]any{
		"summary": resume.Summary,
		"skills":  resume.Skills,
	})
	if err != nil {
		return "", fmt.Errorf("履歴書分析結果のエンコードに失敗しました: %w", err)
	}
	return fmt.Sprintf(`You are an expert career coach. A candidate's resume analysis shows these skills and summary: %s. `+
		`They are applying for the position of %q at %q.
Based on this, provide the following in a JSON format:
- a "matchScore" integer from 0 to 100.
- a short "summary" explaining why it's a good or bad match.
- an array of exactly 3 concrete "suggestions" for the candidate to improve their alignment with the job.
Your response MUST be only the JSON object, with no extra text or explanations.`, summary, position, company), nil
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
