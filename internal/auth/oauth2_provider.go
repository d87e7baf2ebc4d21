package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"

	defaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
	defaultGitHubUserURL     = "https://api.github.com/user"
	defaultGitHubEmailsURL   = "https://api.github.com/user/emails"
)

// ProviderConfig はOAuthプロバイダーの設定。
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	EmailsURL   string
}

// OAuth2Provider はx/oauth2による認可コードフローを提供する。
// ユーザー情報の取得方法はプロバイダーごとに異なる。
type OAuth2Provider struct {
	name      string
	oauth     *oauth2.Config
	userURL   string
	emailsURL string
	parse     func(ctx context.Context, p *OAuth2Provider, client *http.Client) (*OAuthUserInfo, error)
}

// NewGoogleProvider はGoogle用のOAuth2Providerを生成する。
func NewGoogleProvider(cfg ProviderConfig) *OAuth2Provider {
	p := newProvider(ProviderGoogle, cfg, google.Endpoint, []string{"openid", "email", "profile"})
	p.userURL = orDefault(cfg.UserInfoURL, defaultGoogleUserInfoURL)
	p.parse = fetchGoogleUser
	return p
}

// NewGitHubProvider はGitHub用のOAuth2Providerを生成する。
func NewGitHubProvider(cfg ProviderConfig) *OAuth2Provider {
	p := newProvider(ProviderGitHub, cfg, github.Endpoint, []string{"read:user", "user:email"})
	p.userURL = orDefault(cfg.UserInfoURL, defaultGitHubUserURL)
	p.emailsURL = orDefault(cfg.EmailsURL, defaultGitHubEmailsURL)
	p.parse = fetchGitHubUser
	return p
}

func newProvider(name string, cfg ProviderConfig, endpoint oauth2.Endpoint, scopes []string) *OAuth2Provider {
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	return &OAuth2Provider{
		name: name,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
	}
}

// Name はプロバイダー名を返す。
func (p *OAuth2Provider) Name() string {
	return p.name
}

// GetLoginURL は認証URLを生成する。
func (p *OAuth2Provider) GetLoginURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// ExchangeCode は認可コードをアクセストークンに交換し、ユーザー情報を取得する。
func (p *OAuth2Provider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	info, err := p.parse(ctx, p, p.oauth.Client(ctx, token))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	info.Provider = p.name
	return info, nil
}

type googleUserInfo struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func fetchGoogleUser(ctx context.Context, p *OAuth2Provider, client *http.Client) (*OAuthUserInfo, error) {
	var u googleUserInfo
	if err := getJSON(ctx, client, p.userURL, &u); err != nil {
		return nil, err
	}
	if u.Sub == "" {
		return nil, fmt.Errorf("empty sub in user info response")
	}
	return &OAuthUserInfo{ProviderUserID: u.Sub, Email: u.Email, Name: u.Name}, nil
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// fetchGitHubUser はGitHubのユーザー情報を取得する。
// 公開メールアドレスが未設定の場合は/user/emailsから検証済みのプライマリを採用する。
func fetchGitHubUser(ctx context.Context, p *OAuth2Provider, client *http.Client) (*OAuthUserInfo, error) {
	var u githubUser
	if err := getJSON(ctx, client, p.userURL, &u); err != nil {
		return nil, err
	}
	if u.ID == 0 {
		return nil, fmt.Errorf("empty id in user response")
	}

	email := u.Email
	if email == "" {
		var emails []githubEmail
		if err := getJSON(ctx, client, p.emailsURL, &emails); err != nil {
			return nil, err
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				email = e.Email
				break
			}
		}
	}

	name := u.Name
	if name == "" {
		name = u.Login
	}
	return &OAuthUserInfo{ProviderUserID: strconv.FormatInt(u.ID, 10), Email: email, Name: name}, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// compile-time interface check
var _ OAuthProvider = (*OAuth2Provider)(nil)
