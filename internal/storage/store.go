package storage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"websentry/internal/logger"
	"websentry/pkg/model"
)

// 状态文档内的持久化键，对应扩展时代 chrome.storage.local 的键集
const (
	keyMonitorEnabled = "monitorEnabled"
	keyStats          = "stats"
	keyTrafficLog     = "trafficLog"
	keyAlertsLog      = "alertsLog"
	keyRecentAlerts   = "recentAlerts"
	keyBlocked        = "blocked"
)

const defaultProfile = "default"

// stateRow 每个 profile 一行，Document 是完整的 JSON 状态文档
type stateRow struct {
	ID        uint   `gorm:"primaryKey"`
	Profile   string `gorm:"uniqueIndex;size:64"`
	Document  string
	UpdatedAt time.Time
}

func (stateRow) TableName() string { return "state" }

// Store sqlite 快照存储。单写者（后台进程），文档缓存在内存中，
// 逐键用 sjson 打补丁后整体落库；持久化是尽力而为的耐久性边界，
// 启动时 Load 是唯一的恢复路径
type Store struct {
	db      *gorm.DB
	log     logger.Logger
	profile string

	mu  sync.Mutex
	doc []byte
}

// Open 打开（必要时创建）状态库并载入当前文档
func Open(dsn, prefix string, l logger.Logger) (*Store, error) {
	if l == nil {
		l = logger.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         NewGormLogger(l),
		NamingStrategy: schema.NamingStrategy{TablePrefix: prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.AutoMigrate(&stateRow{}); err != nil {
		return nil, fmt.Errorf("migrate state table: %w", err)
	}

	s := &Store{db: db, log: l, profile: defaultProfile, doc: []byte("{}")}

	var row stateRow
	err = db.Where("profile = ?", s.profile).Take(&row).Error
	switch {
	case err == nil:
		if gjson.ValidBytes([]byte(row.Document)) {
			s.doc = []byte(row.Document)
		} else {
			l.Warn("状态文档损坏，重置为空", "profile", s.profile)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		// 首次启动，保持空文档
	default:
		return nil, fmt.Errorf("load state row: %w", err)
	}
	return s, nil
}

// Close 关闭底层数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveSnapshot 持久化统计与三个日志。每处理完一个事件调用一次
func (s *Store) SaveSnapshot(sn model.Snapshot) error {
	return s.patch(map[string]any{
		keyStats:        sn.Stats,
		keyTrafficLog:   sn.TrafficLog,
		keyAlertsLog:    sn.AlertsLog,
		keyRecentAlerts: sn.RecentAlerts,
	})
}

// SaveMonitorEnabled 持久化监控开关
func (s *Store) SaveMonitorEnabled(enabled bool) error {
	return s.patch(map[string]any{keyMonitorEnabled: enabled})
}

// SaveBlocked 持久化域名黑名单
func (s *Store) SaveBlocked(domains []string) error {
	if domains == nil {
		domains = []string{}
	}
	return s.patch(map[string]any{keyBlocked: domains})
}

// Load 从状态文档重建快照、监控开关与黑名单。
// monitorEnabled 缺省为 true
func (s *Store) Load() (model.Snapshot, bool, []string, error) {
	s.mu.Lock()
	doc := append([]byte(nil), s.doc...)
	s.mu.Unlock()

	var sn model.Snapshot
	if v := gjson.GetBytes(doc, keyStats); v.Exists() {
		if err := json.Unmarshal([]byte(v.Raw), &sn.Stats); err != nil {
			return sn, true, nil, fmt.Errorf("decode stats: %w", err)
		}
	}
	if err := decodeKey(doc, keyTrafficLog, &sn.TrafficLog); err != nil {
		return sn, true, nil, err
	}
	if err := decodeKey(doc, keyAlertsLog, &sn.AlertsLog); err != nil {
		return sn, true, nil, err
	}
	if err := decodeKey(doc, keyRecentAlerts, &sn.RecentAlerts); err != nil {
		return sn, true, nil, err
	}

	monitor := true
	if v := gjson.GetBytes(doc, keyMonitorEnabled); v.Exists() {
		monitor = v.Bool()
	}

	var blocked []string
	if err := decodeKey(doc, keyBlocked, &blocked); err != nil {
		return sn, monitor, nil, err
	}
	return sn, monitor, blocked, nil
}

// patch 逐键更新文档并整行落库
func (s *Store) patch(kv map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.doc
	for key, val := range kv {
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		doc, err = sjson.SetRawBytes(doc, key, raw)
		if err != nil {
			return fmt.Errorf("patch %s: %w", key, err)
		}
	}

	row := stateRow{Profile: s.profile, Document: string(doc), UpdatedAt: time.Now()}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "profile"}},
		DoUpdates: clause.AssignmentColumns([]string{"document", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save state row: %w", err)
	}
	s.doc = doc
	return nil
}

func decodeKey[T any](doc []byte, key string, out *T) error {
	v := gjson.GetBytes(doc, key)
	if !v.Exists() {
		return nil
	}
	if err := json.Unmarshal([]byte(v.Raw), out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
