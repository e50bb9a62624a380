package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"repaircafe/backend/internal/domain"
	"repaircafe/backend/internal/storage"
)

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）
type Store struct {
	db         *sql.DB
	gormDB     *gorm.DB
	driverName string // "mysql" or "postgres"
}

// NewStore 创建SQL数据库存储
func NewStore(
	driverName string,
	dsn string,
	maxOpenConns int,
	maxIdleConns int,
	connMaxLifetime time.Duration,
) (*Store, error) {
	// 验证驱动类型
	if driverName != "mysql" && driverName != "postgres" {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	// 打开数据库连接
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 设置连接池参数
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	// 测试连接
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		TranslateError: true,
	}

	var dialector gorm.Dialector
	if driverName == "mysql" {
		dialector = mysql.New(mysql.Config{Conn: db})
	} else {
		dialector = postgres.New(postgres.Config{Conn: db})
	}

	gormDB, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	store := &Store{
		db:         db,
		gormDB:     gormDB,
		driverName: driverName,
	}

	// 自动执行数据库迁移
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Health 检查数据库健康状态
func (s *Store) Health() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.Ping()
}

// migrate 执行数据库迁移（使用GORM AutoMigrate）
func (s *Store) migrate() error {
	return s.gormDB.AutoMigrate(
		&domain.Member{},
		&domain.GuestbookEntry{},
	)
}

// ListMembers 按创建时间返回全部成员
func (s *Store) ListMembers(ctx context.Context) ([]*domain.Member, error) {
	var members []*domain.Member
	if err := s.gormDB.WithContext(ctx).Order("created_at ASC, id ASC").Find(&members).Error; err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// GetMember 获取单个成员
func (s *Store) GetMember(ctx context.Context, id string) (*domain.Member, error) {
	var member domain.Member
	err := s.gormDB.WithContext(ctx).First(&member, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return &member, nil
}

// InsertMember 新增成员
func (s *Store) InsertMember(ctx context.Context, member *domain.Member) error {
	err := s.gormDB.WithContext(ctx).Create(member).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return storage.ErrMemberExists
	}
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// ReplaceMember 整条覆盖已有成员，保留创建时间
func (s *Store) ReplaceMember(ctx context.Context, member *domain.Member) error {
	result := s.gormDB.WithContext(ctx).
		Model(&domain.Member{}).
		Where("id = ?", member.ID).
		Select("first_name", "last_name", "email", "is_member", "tags", "greeting", "closing", "note", "updated_at").
		Updates(member)
	if result.Error != nil {
		return fmt.Errorf("replace member: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrMemberNotFound
	}
	return nil
}

// DeleteMember 删除成员
func (s *Store) DeleteMember(ctx context.Context, id string) error {
	result := s.gormDB.WithContext(ctx).Delete(&domain.Member{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("delete member: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrMemberNotFound
	}
	return nil
}

// SaveGuestbookEntry 保存留言
func (s *Store) SaveGuestbookEntry(ctx context.Context, entry *domain.GuestbookEntry) error {
	if err := s.gormDB.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("save guestbook entry: %w", err)
	}
	return nil
}

// ListGuestbookEntries 按时间倒序返回留言
func (s *Store) ListGuestbookEntries(ctx context.Context, approvedOnly bool) ([]*domain.GuestbookEntry, error) {
	query := s.gormDB.WithContext(ctx).Order("created_at DESC")
	if approvedOnly {
		query = query.Where("approved = ?", true)
	}

	var entries []*domain.GuestbookEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list guestbook entries: %w", err)
	}
	return entries, nil
}
