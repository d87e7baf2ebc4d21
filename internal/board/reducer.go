// Package board は応募ボードのローカル状態とステータス遷移を管理する。
// 変更は楽観的にローカルへ反映し、リモート書き込みが失敗した場合は一覧を再取得する。
package board

import (
	"github.com/hitoshi/jobtrail/internal/client"
	"github.com/hitoshi/jobtrail/internal/model"
)

// State はボードのローカル状態。Revisionは変更ごとに増える。
type State struct {
	Apps     []client.Application
	Revision int
}

// Action はReduceに渡す状態変更。
type Action interface {
	isAction()
}

// Loaded は初回読み込みの結果。
type Loaded struct {
	Apps []client.Application
}

// StatusChanged は1件のステータス変更。
type StatusChanged struct {
	ID     string
	Status model.Status
}

// Resynced はリモートから再取得した一覧。
type Resynced struct {
	Apps []client.Application
}

func (Loaded) isAction()        {}
func (StatusChanged) isAction() {}
func (Resynced) isAction()      {}

// Reduce はstateにactionを適用した新しい状態を返す。stateは変更しない。
func Reduce(state State, action Action) State {
	switch a := action.(type) {
	case Loaded:
		return State{Apps: cloneApps(a.Apps), Revision: state.Revision + 1}
	case Resynced:
		return State{Apps: cloneApps(a.Apps), Revision: state.Revision + 1}
	case StatusChanged:
		apps := cloneApps(state.Apps)
		changed := false
		for i := range apps {
			if apps[i].ID == a.ID && apps[i].Status != a.Status {
				apps[i].Status = a.Status
				changed = true
			}
		}
		if !changed {
			return state
		}
		return State{Apps: apps, Revision: state.Revision + 1}
	default:
		return state
	}
}

func cloneApps(apps []client.Application) []client.Application {
	out := make([]client.Application, len(apps))
	copy(out, apps)
	return out
}

// TargetKind はドロップ先の種類。
type TargetKind int

const (
	// TargetColumn はステータス列へのドロップ。
	TargetColumn TargetKind = iota
	// TargetCard は他のカード上へのドロップ。
	TargetCard
)

// Target はドラッグ&ドロップのドロップ先。
type Target struct {
	Kind   TargetKind
	Status model.Status
	CardID string
}

// Column はステータス列を指すTargetを返す。
func Column(status model.Status) Target {
	return Target{Kind: TargetColumn, Status: status}
}

// Card はカードを指すTargetを返す。
func Card(id string) Target {
	return Target{Kind: TargetCard, CardID: id}
}

// ResolveDrop はドロップ結果の遷移先ステータスを返す。
// 自分自身へのドロップや現在と同じステータスへの移動はok=falseとなる。
// savedへの出入りはドラッグでは行わない（savedからはApplyNowのみで遷移する）。
// 列内の並び順は保持しない。
func ResolveDrop(draggedID string, target Target, apps []client.Application) (model.Status, bool) {
	from, to, ok := dropTransition(draggedID, target, apps)
	if !ok || from == model.StatusSaved || to == model.StatusSaved {
		return "", false
	}
	return to, true
}

// dropTransition はドロップの遷移元と遷移先を返す。savedの扱いは判定しない。
func dropTransition(draggedID string, target Target, apps []client.Application) (from, to model.Status, ok bool) {
	dragged := find(apps, draggedID)
	if dragged == nil {
		return "", "", false
	}

	switch target.Kind {
	case TargetColumn:
		to = target.Status
	case TargetCard:
		if target.CardID == draggedID {
			return "", "", false
		}
		card := find(apps, target.CardID)
		if card == nil {
			return "", "", false
		}
		to = card.Status
	default:
		return "", "", false
	}

	if !to.Valid() || to == dragged.Status {
		return "", "", false
	}
	return dragged.Status, to, true
}

func find(apps []client.Application, id string) *client.Application {
	for i := range apps {
		if apps[i].ID == id {
			return &apps[i]
		}
	}
	return nil
}
