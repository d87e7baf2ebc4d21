// Package session はクライアント側のログイン状態を管理する。
// 初回のセッション確認が終わるまで保護された画面を表示しないためのReady判定を提供する。
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/hitoshi/jobtrail/internal/client"
)

// EventType はセッション状態の変化の種類。
type EventType int

const (
	InitialLoad EventType = iota
	SignedIn
	SignedOut
	Refreshed
)

func (t EventType) String() string {
	switch t {
	case InitialLoad:
		return "initial_load"
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	case Refreshed:
		return "refreshed"
	default:
		return "unknown"
	}
}

// Event はリスナーに渡す状態変化。Userは未ログインならnil。
type Event struct {
	Type EventType
	User *client.User
}

// Authenticator はログイン状態の確認と破棄を行う。*client.Clientが満たす。
type Authenticator interface {
	Me(ctx context.Context) (*client.User, error)
	Logout(ctx context.Context) error
	RefreshSession(ctx context.Context) error
}

type listener struct {
	id int
	fn func(Event)
}

// Manager は現在のユーザーとセッション状態を保持する。並行利用できる。
type Manager struct {
	auth   Authenticator
	logger *slog.Logger

	mu        sync.Mutex
	user      *client.User
	ready     bool
	initDone  bool
	nextID    int
	listeners []listener
}

// NewManager はManagerを生成する。
func NewManager(auth Authenticator, logger *slog.Logger) *Manager {
	return &Manager{auth: auth, logger: logger}
}

// Subscribe は状態変化のリスナーを登録し、登録解除関数を返す。
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners = append(m.listeners, listener{id: id, fn: fn})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, l := range m.listeners {
				if l.id == id {
					m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Init は初回のセッション確認を行い、InitialLoadを1回だけ通知する。
// 2回目以降の呼び出しは何もしない。確認に失敗しても未ログインとしてReadyになる。
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	if m.initDone {
		m.mu.Unlock()
		return nil
	}
	m.initDone = true
	m.mu.Unlock()

	user, err := m.resolve(ctx)

	m.mu.Lock()
	m.user = user
	m.ready = true
	m.mu.Unlock()

	m.emit(Event{Type: InitialLoad, User: user})
	return err
}

// SignIn はOAuthコールバック後にユーザーを再取得し、SignedInを通知する。
func (m *Manager) SignIn(ctx context.Context) error {
	user, err := m.auth.Me(ctx)
	if err != nil {
		return fmt.Errorf("ログインユーザーの取得に失敗しました: %w", err)
	}
	m.mu.Lock()
	m.user = user
	m.ready = true
	m.mu.Unlock()

	m.emit(Event{Type: SignedIn, User: user})
	return nil
}

// Refresh はセッションを延長し、Refreshedを通知する。
// セッションが失効していた場合は状態をクリアしてSignedOutを通知する。
func (m *Manager) Refresh(ctx context.Context) error {
	if err := m.auth.RefreshSession(ctx); err != nil {
		if client.IsStatus(err, http.StatusUnauthorized) {
			m.clear()
			m.emit(Event{Type: SignedOut})
			return nil
		}
		return fmt.Errorf("セッションの延長に失敗しました: %w", err)
	}

	m.mu.Lock()
	user := m.user
	m.mu.Unlock()
	m.emit(Event{Type: Refreshed, User: user})
	return nil
}

// SignOut はログアウトし、状態をクリアしてSignedOutを通知する。
// サーバー側の削除に失敗してもローカル状態はクリアする。
func (m *Manager) SignOut(ctx context.Context) error {
	err := m.auth.Logout(ctx)
	if err != nil {
		m.logger.Warn("ログアウトに失敗しました", slog.String("error", err.Error()))
	}
	m.clear()
	m.emit(Event{Type: SignedOut})
	if err != nil {
		return fmt.Errorf("ログアウトに失敗しました: %w", err)
	}
	return nil
}

// User は現在のユーザーを返す。未ログインならnil。
func (m *Manager) User() *client.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// Ready は初回のセッション確認が完了したかを返す。
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// Authenticated はログイン済みかを返す。
func (m *Manager) Authenticated() bool {
	return m.User() != nil
}

func (m *Manager) resolve(ctx context.Context) (*client.User, error) {
	user, err := m.auth.Me(ctx)
	if err == nil {
		return user, nil
	}
	if client.IsStatus(err, http.StatusUnauthorized) {
		return nil, nil
	}
	m.logger.Warn("セッションの確認に失敗しました", slog.String("error", err.Error()))
	return nil, fmt.Errorf("セッションの確認に失敗しました: %w", err)
}

func (m *Manager) clear() {
	m.mu.Lock()
	m.user = nil
	m.mu.Unlock()
}

// emit はロックの外でリスナーを呼び出す。
func (m *Manager) emit(ev Event) {
	m.mu.Lock()
	ls := make([]listener, len(m.listeners))
	copy(ls, m.listeners)
	m.mu.Unlock()

	for _, l := range ls {
		l.fn(ev)
	}
}
