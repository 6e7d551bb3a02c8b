package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	proxymysql "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/utrading/utrading-liq-monitor/config"
	"github.com/utrading/utrading-liq-monitor/pkg/logger"
	"github.com/utrading/utrading-liq-monitor/pkg/netx"
)

// KVBlob 状态表
type KVBlob struct {
	Key       string    `gorm:"column:key;primaryKey;size:191"`
	Value     []byte    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (KVBlob) TableName() string {
	return "liq_monitor_kv"
}

type gormLog struct{}

func (gormLog) Printf(f string, args ...any) {
	log.Printf(f, args...)
}

// SQLBlob 基于 gorm 的存储，支持 sqlite / mysql
type SQLBlob struct {
	db *gorm.DB
}

// registerProxyDialer mysql 连接走 SOCKS5
func registerProxyDialer(proxyAddr string) error {
	dial, err := netx.ProxyDialer(proxyAddr)
	if err != nil {
		return err
	}
	proxymysql.RegisterDialContext("tcp", func(ctx context.Context, addr string) (net.Conn, error) {
		return dial(ctx, "tcp", addr)
	})
	return nil
}

func OpenSQL(cfg config.Storage) (*SQLBlob, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "liq_monitor.db"
		}
		dialector = sqlite.Open(dsn)
	case "mysql":
		if cfg.ProxyAddr != "" {
			if err := registerProxyDialer(cfg.ProxyAddr); err != nil {
				return nil, err
			}
			logger.Info().Str("proxy", cfg.ProxyAddr).Msg("mysql proxy enabled")
		}
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("store: %q is not a sql driver", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(gormLog{}, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", cfg.Driver, err)
	}
	return NewSQLBlob(db)
}

// NewSQLBlob 使用已有连接并迁移表结构
func NewSQLBlob(db *gorm.DB) (*SQLBlob, error) {
	if err := db.AutoMigrate(&KVBlob{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &SQLBlob{db: db}, nil
}

func (s *SQLBlob) Get(ctx context.Context, key string) ([]byte, error) {
	var row KVBlob
	err := s.db.WithContext(ctx).Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.Value, nil
}

func (s *SQLBlob) Put(ctx context.Context, key string, data []byte) error {
	row := KVBlob{Key: key, Value: data, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

func (s *SQLBlob) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
