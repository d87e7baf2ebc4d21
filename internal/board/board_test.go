package board

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sync"
	"testing"

	"github.com/hitoshi/jobtrail/internal/client"
	"github.com/hitoshi/jobtrail/internal/model"
)

// --- モック定義 ---

// fakeRemote はサーバー側の一覧を保持するRemoteのモック。
type fakeRemote struct {
	mu        sync.Mutex
	apps      []client.Application
	updateErr error
	applyErr  error
	block     chan struct{} // nil以外なら書き込みをブロックする
	entered   chan struct{}
	writes    int
	lists     int
	ctxAware  bool // trueなら書き込み時にctxのキャンセルを検査する
}

func (f *fakeRemote) ListApplications(ctx context.Context) ([]client.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	return cloneApps(f.apps), nil
}

func (f *fakeRemote) UpdateStatus(ctx context.Context, id string, status model.Status) (*client.Application, error) {
	if f.ctxAware {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return f.write(id, status, f.updateErr)
}

func (f *fakeRemote) ApplyNow(ctx context.Context, id string) (*client.Application, error) {
	return f.write(id, model.StatusApplied, f.applyErr)
}

func (f *fakeRemote) write(id string, status model.Status, failWith error) (*client.Application, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if failWith != nil {
		return nil, failWith
	}
	for i := range f.apps {
		if f.apps[i].ID == id {
			f.apps[i].Status = status
			a := f.apps[i]
			return &a, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeRemote) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (n *recordingNotifier) Notify(notice Notice) {
	n.mu.Lock()
	n.notices = append(n.notices, notice)
	n.mu.Unlock()
}

func (n *recordingNotifier) errors() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, x := range n.notices {
		if x.Level == NoticeError {
			count++
		}
	}
	return count
}

type recordingOpener struct {
	opened []string
	err    error
}

func (o *recordingOpener) Open(url string) error {
	o.opened = append(o.opened, url)
	return o.err
}

func seedApps() []client.Application {
	return []client.Application{
		{ID: "a1", Company: "Acme", Position: "Engineer", Status: model.StatusApplied},
		{ID: "a2", Company: "Globex", Position: "SRE", Status: model.StatusInterview},
		{ID: "s1", Company: "Initech", Position: "Go Dev", Status: model.StatusSaved, URL: "https://initech.example.com/jobs/1"},
		{ID: "s2", Company: "Hooli", Position: "Backend", Status: model.StatusSaved},
	}
}

func newTestBoard(t *testing.T, remote *fakeRemote) (*Board, *recordingNotifier, *recordingOpener) {
	t.Helper()
	n := &recordingNotifier{}
	o := &recordingOpener{}
	b := New(remote, n, o, slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	return b, n, o
}

func statusOf(apps []client.Application, id string) model.Status {
	for _, a := range apps {
		if a.ID == id {
			return a.Status
		}
	}
	return ""
}

// --- テスト ---

// 楽観的更新はリモート書き込みの完了前にSnapshotへ反映される
func TestBoard_Drop_OptimisticBeforeRemoteReturns(t *testing.T) {
	remote := &fakeRemote{apps: seedApps(), block: make(chan struct{}), entered: make(chan struct{}, 1)}
	b, _, _ := newTestBoard(t, remote)

	if !b.Drop(context.Background(), "a1", Column(model.StatusInterview)) {
		t.Fatal("Drop() = false, want true")
	}
	<-remote.entered

	if got := statusOf(b.Snapshot(), "a1"); got != model.StatusInterview {
		t.Errorf("status before remote returns = %q, want interview", got)
	}
	if remote.writeCount() != 0 {
		t.Error("remote write should still be blocked")
	}

	close(remote.block)
	b.Wait()
	if remote.writeCount() != 1 {
		t.Errorf("writes = %d, want 1", remote.writeCount())
	}
}

// 書き込み失敗時は再取得し、ローカル状態がリモートと完全に一致する
func TestBoard_Drop_FailureResyncsToRemote(t *testing.T) {
	remote := &fakeRemote{apps: seedApps(), updateErr: errors.New("500")}
	b, n, _ := newTestBoard(t, remote)

	b.Drop(context.Background(), "a1", Column(model.StatusInterview))
	b.Wait()

	if got := statusOf(b.Snapshot(), "a1"); got != model.StatusApplied {
		t.Errorf("status after resync = %q, want applied", got)
	}
	remoteApps, _ := remote.ListApplications(context.Background())
	if !reflect.DeepEqual(b.Snapshot(), remoteApps) {
		t.Errorf("snapshot = %+v, want remote list %+v", b.Snapshot(), remoteApps)
	}
	if n.errors() != 1 {
		t.Errorf("error notices = %d, want 1", n.errors())
	}
}

func TestBoard_Drop_NoOps(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		target Target
	}{
		{"自分自身へのドロップ", "a1", Card("a1")},
		{"同じステータス列", "a1", Column(model.StatusApplied)},
		{"同じステータスのカード上", "s1", Card("s2")},
		{"存在しないカード", "zzz", Column(model.StatusOffer)},
		{"不正なステータス列", "a1", Column("hired")},
		{"savedから他の列へ", "s1", Column(model.StatusInterview)},
		{"savedから他のカード上へ", "s1", Card("a2")},
		{"saved列へ", "a1", Column(model.StatusSaved)},
		{"savedのカード上へ", "a2", Card("s1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := &fakeRemote{apps: seedApps()}
			b, _, _ := newTestBoard(t, remote)
			before := b.Snapshot()
			rev := b.Revision()

			if b.Drop(context.Background(), tt.id, tt.target) {
				t.Error("Drop() = true, want false")
			}
			b.Wait()

			if !reflect.DeepEqual(b.Snapshot(), before) || b.Revision() != rev {
				t.Error("state should not change")
			}
			if remote.writeCount() != 0 {
				t.Errorf("writes = %d, want 0", remote.writeCount())
			}
		})
	}
}

// savedに関わるドラッグは書き込まず、今すぐ応募への案内を通知する
func TestBoard_Drop_SavedShowsApplyNowHint(t *testing.T) {
	remote := &fakeRemote{apps: seedApps()}
	b, n, o := newTestBoard(t, remote)

	if b.Drop(context.Background(), "s1", Column(model.StatusInterview)) {
		t.Fatal("Drop(saved -> interview) = true, want false")
	}
	if b.Drop(context.Background(), "a1", Column(model.StatusSaved)) {
		t.Fatal("Drop(applied -> saved) = true, want false")
	}
	b.Wait()

	if got := statusOf(b.Snapshot(), "s1"); got != model.StatusSaved {
		t.Errorf("s1 status = %q, want saved", got)
	}
	if got := statusOf(b.Snapshot(), "a1"); got != model.StatusApplied {
		t.Errorf("a1 status = %q, want applied", got)
	}
	if remote.writeCount() != 0 {
		t.Errorf("writes = %d, want 0", remote.writeCount())
	}
	if len(o.opened) != 0 {
		t.Errorf("opened = %v, want none", o.opened)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notices) != 2 || n.notices[0].Level != NoticeInfo {
		t.Errorf("notices = %+v, want 2 info notices", n.notices)
	}
}

// 呼び出し元のctxがキャンセルされても書き込みは完了する
func TestBoard_Drop_SurvivesCallerCancel(t *testing.T) {
	remote := &fakeRemote{apps: seedApps(), ctxAware: true}
	b, n, _ := newTestBoard(t, remote)

	// ジェスチャー終了と同時にキャンセルされるctxを想定し、先にキャンセルしておく
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if !b.Drop(ctx, "a1", Column(model.StatusOffer)) {
		t.Fatal("Drop() = false, want true")
	}
	b.Wait()

	if got := statusOf(remote.apps, "a1"); got != model.StatusOffer {
		t.Errorf("remote status = %q, want offer", got)
	}
	if n.errors() != 0 {
		t.Errorf("error notices = %d, want 0", n.errors())
	}
}

// カード上へのドロップはそのカードのステータスを採用する
func TestBoard_Drop_OnCardAdoptsStatus(t *testing.T) {
	remote := &fakeRemote{apps: seedApps()}
	b, _, _ := newTestBoard(t, remote)

	b.Drop(context.Background(), "a1", Card("a2"))
	b.Wait()

	if got := statusOf(b.Snapshot(), "a1"); got != model.StatusInterview {
		t.Errorf("status = %q, want interview", got)
	}
	if got := statusOf(remote.apps, "a1"); got != model.StatusInterview {
		t.Errorf("remote status = %q, want interview", got)
	}
}

func TestBoard_ApplyNow_MissingURL_NoWrite(t *testing.T) {
	remote := &fakeRemote{apps: seedApps()}
	b, n, o := newTestBoard(t, remote)

	err := b.ApplyNow(context.Background(), "s2")
	b.Wait()

	if !errors.Is(err, ErrMissingURL) {
		t.Errorf("error = %v, want ErrMissingURL", err)
	}
	if remote.writeCount() != 0 {
		t.Errorf("writes = %d, want 0", remote.writeCount())
	}
	if n.errors() != 1 {
		t.Errorf("error notices = %d, want 1", n.errors())
	}
	if len(o.opened) != 0 {
		t.Error("URL should not be opened")
	}
	if got := statusOf(b.Snapshot(), "s2"); got != model.StatusSaved {
		t.Errorf("status = %q, want saved", got)
	}
}

func TestBoard_ApplyNow_NotSaved(t *testing.T) {
	remote := &fakeRemote{apps: seedApps()}
	b, n, _ := newTestBoard(t, remote)

	if err := b.ApplyNow(context.Background(), "a1"); !errors.Is(err, ErrNotSaved) {
		t.Errorf("error = %v, want ErrNotSaved", err)
	}
	if remote.writeCount() != 0 || n.errors() != 1 {
		t.Errorf("writes = %d, notices = %d", remote.writeCount(), n.errors())
	}
}

func TestBoard_ApplyNow_OpensURLAndApplies(t *testing.T) {
	remote := &fakeRemote{apps: seedApps()}
	b, _, o := newTestBoard(t, remote)

	if err := b.ApplyNow(context.Background(), "s1"); err != nil {
		t.Fatalf("ApplyNow() error: %v", err)
	}
	if got := statusOf(b.Snapshot(), "s1"); got != model.StatusApplied {
		t.Errorf("optimistic status = %q, want applied", got)
	}
	b.Wait()

	if len(o.opened) != 1 || o.opened[0] != "https://initech.example.com/jobs/1" {
		t.Errorf("opened = %v", o.opened)
	}
	if remote.writeCount() != 1 {
		t.Errorf("writes = %d, want 1", remote.writeCount())
	}
}

func TestBoard_ApplyNow_RemoteFailureResyncs(t *testing.T) {
	remote := &fakeRemote{apps: seedApps(), applyErr: errors.New("409")}
	b, n, _ := newTestBoard(t, remote)

	b.ApplyNow(context.Background(), "s1")
	b.Wait()

	if got := statusOf(b.Snapshot(), "s1"); got != model.StatusSaved {
		t.Errorf("status after resync = %q, want saved", got)
	}
	if n.errors() != 1 {
		t.Errorf("error notices = %d, want 1", n.errors())
	}
}

// 異なる記録への遷移は互いに独立して反映される
func TestBoard_ConcurrentDropsOnDifferentRecords(t *testing.T) {
	remote := &fakeRemote{apps: seedApps()}
	b, _, _ := newTestBoard(t, remote)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); b.Drop(context.Background(), "a1", Column(model.StatusOffer)) }()
	go func() { defer wg.Done(); b.Drop(context.Background(), "a2", Column(model.StatusRejected)) }()
	wg.Wait()
	b.Wait()

	snap := b.Snapshot()
	if statusOf(snap, "a1") != model.StatusOffer || statusOf(snap, "a2") != model.StatusRejected {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestBoard_Columns_GroupsInOrder(t *testing.T) {
	b, _, _ := newTestBoard(t, &fakeRemote{apps: seedApps()})

	cols := b.Columns()
	if len(cols) != 5 {
		t.Fatalf("columns = %d, want 5", len(cols))
	}
	if cols[0].Status != model.StatusSaved || len(cols[0].Cards) != 2 {
		t.Errorf("saved column = %+v", cols[0])
	}
	if cols[3].Status != model.StatusOffer || len(cols[3].Cards) != 0 {
		t.Errorf("offer column = %+v", cols[3])
	}
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	state := State{Apps: seedApps(), Revision: 1}
	next := Reduce(state, StatusChanged{ID: "a1", Status: model.StatusOffer})

	if statusOf(state.Apps, "a1") != model.StatusApplied {
		t.Error("input state was mutated")
	}
	if statusOf(next.Apps, "a1") != model.StatusOffer || next.Revision != 2 {
		t.Errorf("next = %+v", next)
	}
	if same := Reduce(next, StatusChanged{ID: "a1", Status: model.StatusOffer}); same.Revision != next.Revision {
		t.Error("no-op change should keep revision")
	}
}
