package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/jobtrail/internal/model"
	"github.com/hitoshi/jobtrail/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn           func(ctx context.Context, id string) (*model.User, error)
	createWithIdentityFn func(ctx context.Context, user *model.User, identity *model.Identity) error
	updateContactFn      func(ctx context.Context, id, email, name string, now time.Time) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	if m.createWithIdentityFn != nil {
		return m.createWithIdentityFn(ctx, user, identity)
	}
	return nil
}

func (m *mockUserRepo) UpdateContact(ctx context.Context, id, email, name string, now time.Time) error {
	if m.updateContactFn != nil {
		return m.updateContactFn(ctx, id, email, name, now)
	}
	return nil
}

func (m *mockUserRepo) DeleteByID(_ context.Context, _ string) error {
	return nil
}

type mockIdentityRepo struct {
	findByProviderFn func(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

func (m *mockIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	if m.findByProviderFn != nil {
		return m.findByProviderFn(ctx, provider, providerUserID)
	}
	return nil, nil
}

type mockSessionRepo struct {
	createFn     func(ctx context.Context, session *model.Session) error
	findByIDFn   func(ctx context.Context, id string) (*model.Session, error)
	extendFn     func(ctx context.Context, id string, expiresAt time.Time) (bool, error)
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) Extend(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	if m.extendFn != nil {
		return m.extendFn(ctx, id, expiresAt)
	}
	return true, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(_ context.Context, _ string) error {
	return nil
}

type mockOAuthProvider struct {
	name           string
	exchangeCodeFn func(ctx context.Context, code string) (*OAuthUserInfo, error)
}

func (m *mockOAuthProvider) Name() string { return m.name }

func (m *mockOAuthProvider) GetLoginURL(state string) string {
	return "https://idp.example/" + m.name + "?state=" + state
}

func (m *mockOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code)
	}
	return nil, errors.New("not configured")
}

var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.IdentityRepository = (*mockIdentityRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)
var _ OAuthProvider = (*mockOAuthProvider)(nil)

func googleUser(providerUserID string) *mockOAuthProvider {
	return &mockOAuthProvider{
		name: ProviderGoogle,
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{
				ProviderUserID: providerUserID,
				Email:          "test@example.com",
				Name:           "Test User",
				Provider:       ProviderGoogle,
			}, nil
		},
	}
}

// --- テスト ---

func TestGetLoginURL_RoutesByProvider(t *testing.T) {
	svc := NewService(
		[]OAuthProvider{&mockOAuthProvider{name: ProviderGoogle}, &mockOAuthProvider{name: ProviderGitHub}},
		nil, nil, nil, ServiceConfig{SessionMaxAge: 86400},
	)

	url, err := svc.GetLoginURL(ProviderGitHub, "s1")
	if err != nil {
		t.Fatalf("GetLoginURL() error = %v", err)
	}
	if url != "https://idp.example/github?state=s1" {
		t.Errorf("GetLoginURL() = %q", url)
	}
}

func TestGetLoginURL_UnknownProvider_ReturnsAPIError(t *testing.T) {
	svc := NewService([]OAuthProvider{&mockOAuthProvider{name: ProviderGoogle}}, nil, nil, nil, ServiceConfig{})

	_, err := svc.GetLoginURL(ProviderGitHub, "s1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUnknownProvider {
		t.Errorf("error = %v, want UNKNOWN_PROVIDER", err)
	}
}

func TestProviders_ListsConfiguredInFixedOrder(t *testing.T) {
	svc := NewService(
		[]OAuthProvider{&mockOAuthProvider{name: ProviderGitHub}, &mockOAuthProvider{name: ProviderGoogle}},
		nil, nil, nil, ServiceConfig{},
	)
	got := svc.Providers()
	if len(got) != 2 || got[0] != ProviderGoogle || got[1] != ProviderGitHub {
		t.Errorf("Providers() = %v", got)
	}
}

func TestHandleCallback_NewUser_CreatesUserAndIdentityAndSession(t *testing.T) {
	var createdUser *model.User
	var createdIdentity *model.Identity
	var createdSession *model.Session

	userRepo := &mockUserRepo{
		createWithIdentityFn: func(ctx context.Context, user *model.User, identity *model.Identity) error {
			createdUser = user
			createdIdentity = identity
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			createdSession = session
			return nil
		},
	}

	svc := NewService([]OAuthProvider{googleUser("google-user-123")}, userRepo, &mockIdentityRepo{}, sessionRepo, ServiceConfig{SessionMaxAge: 86400})

	session, err := svc.HandleCallback(context.Background(), ProviderGoogle, "auth-code-123")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}

	if createdUser == nil || createdIdentity == nil {
		t.Fatal("expected user and identity to be created")
	}
	if createdIdentity.UserID != createdUser.ID {
		t.Errorf("identity.UserID = %q, want %q", createdIdentity.UserID, createdUser.ID)
	}
	if createdIdentity.ProviderUserID != "google-user-123" {
		t.Errorf("identity.ProviderUserID = %q", createdIdentity.ProviderUserID)
	}
	if createdSession == nil || session.UserID != createdUser.ID {
		t.Fatalf("session = %+v, want user %q", session, createdUser.ID)
	}
	// セッションIDは32バイトの16進表現
	if len(session.ID) != 64 {
		t.Errorf("len(session.ID) = %d, want 64", len(session.ID))
	}
	if !session.ExpiresAt.After(time.Now().Add(23 * time.Hour)) {
		t.Errorf("ExpiresAt = %v, want ~24h ahead", session.ExpiresAt)
	}
}

func TestHandleCallback_ExistingUser_DoesNotCreateUser(t *testing.T) {
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "test@example.com", Name: "Test User"}, nil
		},
		updateContactFn: func(ctx context.Context, id, email, name string, now time.Time) error {
			t.Error("UpdateContact should not be called when contact is unchanged")
			return nil
		},
		createWithIdentityFn: func(ctx context.Context, user *model.User, identity *model.Identity) error {
			t.Error("CreateWithIdentity should not be called for existing users")
			return nil
		},
	}
	identityRepo := &mockIdentityRepo{
		findByProviderFn: func(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
			if provider != ProviderGoogle || providerUserID != "google-user-789" {
				t.Errorf("lookup = %s/%s", provider, providerUserID)
			}
			return &model.Identity{ID: "identity-1", UserID: "existing-user"}, nil
		},
	}

	svc := NewService([]OAuthProvider{googleUser("google-user-789")}, userRepo, identityRepo, &mockSessionRepo{}, ServiceConfig{SessionMaxAge: 86400})

	session, err := svc.HandleCallback(context.Background(), ProviderGoogle, "code")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}
	if session.UserID != "existing-user" {
		t.Errorf("session.UserID = %q, want existing-user", session.UserID)
	}
}

// IdP側でメールアドレスが変わった既存ユーザーは連絡先を更新する
func TestHandleCallback_ExistingUser_SyncsChangedContact(t *testing.T) {
	var gotEmail, gotName string
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "old@example.com", Name: "Test User"}, nil
		},
		updateContactFn: func(ctx context.Context, id, email, name string, now time.Time) error {
			gotEmail, gotName = email, name
			return nil
		},
	}
	identityRepo := &mockIdentityRepo{
		findByProviderFn: func(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
			return &model.Identity{ID: "identity-1", UserID: "existing-user"}, nil
		},
	}

	svc := NewService([]OAuthProvider{googleUser("google-user-789")}, userRepo, identityRepo, &mockSessionRepo{}, ServiceConfig{SessionMaxAge: 86400})

	if _, err := svc.HandleCallback(context.Background(), ProviderGoogle, "code"); err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}
	if gotEmail != "test@example.com" || gotName != "Test User" {
		t.Errorf("UpdateContact(%q, %q), want test@example.com / Test User", gotEmail, gotName)
	}
}

// identityに紐づくユーザーが存在しない場合はエラー
func TestHandleCallback_OrphanIdentity_ReturnsError(t *testing.T) {
	identityRepo := &mockIdentityRepo{
		findByProviderFn: func(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
			return &model.Identity{ID: "identity-1", UserID: "deleted-user"}, nil
		},
	}
	svc := NewService([]OAuthProvider{googleUser("google-user-789")}, &mockUserRepo{}, identityRepo, &mockSessionRepo{}, ServiceConfig{SessionMaxAge: 86400})

	_, err := svc.HandleCallback(context.Background(), ProviderGoogle, "code")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("error = %v, want USER_NOT_FOUND", err)
	}
}

// IdPが表示名を返さない場合は保存済みの表示名を維持する
func TestHandleCallback_ExistingUser_KeepsStoredNameWhenEmpty(t *testing.T) {
	var gotEmail, gotName string
	calls := 0
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "old@example.com", Name: "保存済みの名前"}, nil
		},
		updateContactFn: func(ctx context.Context, id, email, name string, now time.Time) error {
			calls++
			gotEmail, gotName = email, name
			return nil
		},
	}
	identityRepo := &mockIdentityRepo{
		findByProviderFn: func(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
			return &model.Identity{ID: "identity-1", UserID: "existing-user"}, nil
		},
	}
	provider := &mockOAuthProvider{
		name: ProviderGitHub,
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{ProviderUserID: "gh-1", Email: "new@example.com", Provider: ProviderGitHub}, nil
		},
	}

	svc := NewService([]OAuthProvider{provider}, userRepo, identityRepo, &mockSessionRepo{}, ServiceConfig{SessionMaxAge: 86400})

	if _, err := svc.HandleCallback(context.Background(), ProviderGitHub, "code"); err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("UpdateContact calls = %d, want 1", calls)
	}
	if gotEmail != "new@example.com" || gotName != "保存済みの名前" {
		t.Errorf("UpdateContact(%q, %q), want new@example.com / 保存済みの名前", gotEmail, gotName)
	}
}

// 連絡先の更新に失敗した場合はセッションを発行しない
func TestHandleCallback_UpdateContactError_ReturnsError(t *testing.T) {
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "old@example.com", Name: "Test User"}, nil
		},
		updateContactFn: func(ctx context.Context, id, email, name string, now time.Time) error {
			return errors.New("db error")
		},
	}
	identityRepo := &mockIdentityRepo{
		findByProviderFn: func(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
			return &model.Identity{ID: "identity-1", UserID: "existing-user"}, nil
		},
	}
	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			t.Error("Create should not be called when contact sync fails")
			return nil
		},
	}
	svc := NewService([]OAuthProvider{googleUser("google-user-789")}, userRepo, identityRepo, sessionRepo, ServiceConfig{SessionMaxAge: 86400})

	if _, err := svc.HandleCallback(context.Background(), ProviderGoogle, "code"); err == nil {
		t.Fatal("expected error from HandleCallback")
	}
}

func TestHandleCallback_ExchangeError_ReturnsError(t *testing.T) {
	svc := NewService([]OAuthProvider{&mockOAuthProvider{name: ProviderGoogle}}, nil, nil, nil, ServiceConfig{})

	if _, err := svc.HandleCallback(context.Background(), ProviderGoogle, "bad-code"); err == nil {
		t.Fatal("expected error from HandleCallback")
	}
}

func TestHandleCallback_UserCreationError_ReturnsError(t *testing.T) {
	userRepo := &mockUserRepo{
		createWithIdentityFn: func(ctx context.Context, user *model.User, identity *model.Identity) error {
			return errors.New("db error")
		},
	}
	svc := NewService([]OAuthProvider{googleUser("g-err")}, userRepo, &mockIdentityRepo{}, nil, ServiceConfig{})

	if _, err := svc.HandleCallback(context.Background(), ProviderGoogle, "code"); err == nil {
		t.Fatal("expected error from HandleCallback")
	}
}

func TestRefresh_ExtendsExpiry(t *testing.T) {
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	var extendedTo time.Time

	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "user-1", ExpiresAt: fixed.Add(time.Minute)}, nil
		},
		extendFn: func(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
			extendedTo = expiresAt
			return true, nil
		},
	}
	svc := NewService(nil, nil, nil, sessionRepo, ServiceConfig{SessionMaxAge: 3600})
	svc.now = func() time.Time { return fixed }

	session, err := svc.Refresh(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	want := fixed.Add(time.Hour)
	if !extendedTo.Equal(want) || !session.ExpiresAt.Equal(want) {
		t.Errorf("extended to %v / session %v, want %v", extendedTo, session.ExpiresAt, want)
	}
}

// 期限切れセッションはリフレッシュできない
func TestRefresh_ExpiredSession_Unauthorized(t *testing.T) {
	svc := NewService(nil, nil, nil, &mockSessionRepo{}, ServiceConfig{SessionMaxAge: 3600})

	_, err := svc.Refresh(context.Background(), "expired")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUnauthorized {
		t.Errorf("error = %v, want UNAUTHORIZED", err)
	}
}

func TestLogout_DeletesSession(t *testing.T) {
	var deleted string
	sessionRepo := &mockSessionRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	svc := NewService(nil, nil, nil, sessionRepo, ServiceConfig{})

	if err := svc.Logout(context.Background(), "session-to-delete"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if deleted != "session-to-delete" {
		t.Errorf("deleted = %q", deleted)
	}
}

func TestLogout_EmptySessionID_ReturnsError(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, ServiceConfig{})
	if err := svc.Logout(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty session ID")
	}
}

func TestGetCurrentUser_ValidSession_ReturnsUser(t *testing.T) {
	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "user@example.com"}, nil
		},
	}
	svc := NewService(nil, userRepo, nil, sessionRepo, ServiceConfig{})

	user, err := svc.GetCurrentUser(context.Background(), "session-valid")
	if err != nil {
		t.Fatalf("GetCurrentUser() error = %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("user.ID = %q, want user-1", user.ID)
	}
}

func TestGetCurrentUser_ExpiredSession_ReturnsError(t *testing.T) {
	svc := NewService(nil, nil, nil, &mockSessionRepo{}, ServiceConfig{})
	if _, err := svc.GetCurrentUser(context.Background(), "expired-session"); err == nil {
		t.Fatal("expected error for expired session")
	}
}
