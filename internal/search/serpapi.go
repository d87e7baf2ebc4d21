package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/jobtrail/internal/model"
)

// DefaultSerpAPIEngine はengine未指定時のSerpApiエンジン。
const DefaultSerpAPIEngine = "google_jobs"

const serpAPIEndpoint = "https://serpapi.com/search.json"

// SerpAPI はSerpApi経由の求人検索ソース。
type SerpAPI struct {
	client   *http.Client
	apiKey   string
	engine   string
	endpoint string
}

// NewSerpAPI はSerpAPIを生成する。
func NewSerpAPI(client *http.Client, apiKey string) *SerpAPI {
	return &SerpAPI{
		client:   client,
		apiKey:   apiKey,
		engine:   DefaultSerpAPIEngine,
		endpoint: serpAPIEndpoint,
	}
}

// WithEngine は指定エンジンを使うコピーを返す。
func (s *SerpAPI) WithEngine(engine string) *SerpAPI {
	cp := *s
	cp.engine = engine
	return &cp
}

// Name はソース名を返す。
func (s *SerpAPI) Name() string { return "serpapi" }

type serpAPIResponse struct {
	Error          string       `json:"error"`
	JobsResults    []serpAPIJob `json:"jobs_results"`
	OrganicResults []serpAPIJob `json:"organic_results"`
}

type serpAPIJob struct {
	JobID        string `json:"job_id"`
	Title        string `json:"title"`
	CompanyName  string `json:"company_name"`
	Location     string `json:"location"`
	ShareLink    string `json:"share_link"`
	Link         string `json:"link"`
	RelatedLinks []struct {
		Link string `json:"link"`
	} `json:"related_links"`
	DetectedExtensions struct {
		ScheduleType string `json:"schedule_type"`
	} `json:"detected_extensions"`
	Extensions []string `json:"extensions"`
}

// Search はSerpApiで検索し、jobs_results（なければorganic_results）を正規化する。
func (s *SerpAPI) Search(ctx context.Context, term string) ([]model.Job, error) {
	q := url.Values{
		"api_key":  {s.apiKey},
		"engine":   {s.engine},
		"q":        {term},
		"location": {"United States"},
		"gl":       {"us"},
		"hl":       {"en"},
	}
	body, err := getBody(ctx, s.client, s.Name(), s.endpoint+"?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var resp serpAPIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, model.NewMalformedUpstreamError(s.Name(), "JSONではありません")
	}
	if resp.Error != "" {
		return nil, model.NewUpstreamFailedError(s.Name(), resp.Error)
	}

	results := resp.JobsResults
	if len(results) == 0 {
		results = resp.OrganicResults
	}

	jobs := make([]model.Job, 0, len(results))
	for _, r := range results {
		jobs = append(jobs, s.normalize(r))
	}
	return jobs, nil
}

func (s *SerpAPI) normalize(r serpAPIJob) model.Job {
	key := r.JobID
	if key == "" {
		key = r.Title
	}

	link := ""
	if len(r.RelatedLinks) > 0 {
		link = r.RelatedLinks[0].Link
	}
	for _, candidate := range []string{r.ShareLink, r.Link} {
		if link != "" {
			break
		}
		link = candidate
	}
	if link == "" {
		link = "https://www.google.com/search?" + url.Values{"q": {strings.TrimSpace(r.Title + " " + r.CompanyName)}}.Encode()
	}

	tags := []string{}
	if r.DetectedExtensions.ScheduleType != "" {
		tags = append(tags, r.DetectedExtensions.ScheduleType)
	} else if len(r.Extensions) > 0 {
		tags = append(tags, r.Extensions...)
	}

	return model.Job{
		ID:       s.engine + "-" + key,
		Company:  r.CompanyName,
		Position: r.Title,
		Tags:     tags,
		Location: r.Location,
		URL:      link,
	}
}
