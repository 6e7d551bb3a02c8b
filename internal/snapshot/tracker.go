package snapshot

import (
	"context"

	"github.com/utrading/utrading-liq-monitor/internal/models"
	"github.com/utrading/utrading-liq-monitor/internal/store"
)

const KeyPositionSnapshot = "position_snapshot"

// Diff 返回 current 中 (symbol, 实际方向) 不在 previous 里的持仓，保持原顺序
func Diff(current, previous []models.Position) []models.Position {
	seen := make(map[string]struct{}, len(previous))
	for _, p := range previous {
		seen[p.Key()] = struct{}{}
	}

	var added []models.Position
	for _, p := range current {
		if _, ok := seen[p.Key()]; !ok {
			added = append(added, p)
		}
	}
	return added
}

// Tracker 上一轮持仓快照
type Tracker struct {
	store *store.JSON[[]models.Position]
}

func NewTracker(blob store.Blob) *Tracker {
	return &Tracker{
		store: store.NewJSON(blob, KeyPositionSnapshot, func() []models.Position { return []models.Position{} }),
	}
}

// Load 读取失败时返回空快照和错误
func (t *Tracker) Load(ctx context.Context) ([]models.Position, error) {
	return t.store.Load(ctx)
}

// Persist 无条件覆盖快照，方向以解析后的实际方向保存
func (t *Tracker) Persist(ctx context.Context, current []models.Position) error {
	out := make([]models.Position, 0, len(current))
	for _, p := range current {
		if side := p.EffectiveSide(); side != "" {
			p.Side = side
		}
		out = append(out, p)
	}
	return t.store.Save(ctx, out)
}

// Clear 清空快照
func (t *Tracker) Clear(ctx context.Context) error {
	return t.store.Save(ctx, []models.Position{})
}
