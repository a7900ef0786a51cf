package feed

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"optimal-execution/internal/orderbook"
	"optimal-execution/internal/store"
)

// SnapshotStore 将订单簿快照持久化到 SQLite。
type SnapshotStore struct {
	db *sql.DB
}

// NewSnapshotStore 初始化快照存储并创建表结构。
func NewSnapshotStore(st *store.Store) (*SnapshotStore, error) {
	if st == nil {
		return nil, errors.New("feed: store 不能为空")
	}
	s := &SnapshotStore{db: st.DB()}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SnapshotStore) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS lob_snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol TEXT NOT NULL,
	ts INTEGER NOT NULL,
	bids TEXT NOT NULL,
	asks TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lob_snapshots_symbol_ts ON lob_snapshots(symbol, ts);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("feed: 初始化快照表失败: %w", err)
	}
	return nil
}

// Save 写入单个快照。
func (s *SnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	bids, err := json.Marshal(snap.Bids)
	if err != nil {
		return fmt.Errorf("feed: 序列化买盘失败: %w", err)
	}
	asks, err := json.Marshal(snap.Asks)
	if err != nil {
		return fmt.Errorf("feed: 序列化卖盘失败: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lob_snapshots (symbol, ts, bids, asks) VALUES (?, ?, ?, ?)`,
		snap.Symbol, snap.Timestamp.UnixNano(), string(bids), string(asks),
	)
	if err != nil {
		return fmt.Errorf("feed: 写入快照失败: %w", err)
	}
	return nil
}

// Count 返回某个交易对的快照数量。
func (s *SnapshotStore) Count(ctx context.Context, symbol string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lob_snapshots WHERE symbol = ?`, symbol).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("feed: 统计快照失败: %w", err)
	}
	return n, nil
}

// Load 按时间升序读取 [offset, offset+limit) 区间的快照。
func (s *SnapshotStore) Load(ctx context.Context, symbol string, offset, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, bids, asks FROM lob_snapshots WHERE symbol = ? ORDER BY ts ASC, id ASC LIMIT ? OFFSET ?`,
		symbol, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("feed: 查询快照失败: %w", err)
	}
	defer rows.Close()

	snaps := make([]Snapshot, 0, limit)
	for rows.Next() {
		var (
			ts   int64
			bids string
			asks string
		)
		if err := rows.Scan(&ts, &bids, &asks); err != nil {
			return nil, fmt.Errorf("feed: 解析快照失败: %w", err)
		}

		snap := Snapshot{Symbol: symbol, Timestamp: time.Unix(0, ts).UTC()}
		if err := json.Unmarshal([]byte(bids), &snap.Bids); err != nil {
			return nil, fmt.Errorf("feed: 解析买盘失败: %w", err)
		}
		if err := json.Unmarshal([]byte(asks), &snap.Asks); err != nil {
			return nil, fmt.Errorf("feed: 解析卖盘失败: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("feed: 读取快照失败: %w", err)
	}
	return snaps, nil
}

// levelsOf 去掉价格或数量非正的档位。
func levelsOf(levels []orderbook.Level) []orderbook.Level {
	out := make([]orderbook.Level, 0, len(levels))
	for _, lvl := range levels {
		if lvl.Price.IsPositive() && lvl.Volume.IsPositive() {
			out = append(out, lvl)
		}
	}
	return out
}
