// Package gormstore implements every chat store interface on gorm, with
// sqlite and postgres registered as separate store plugins.
package gormstore

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/chirino/chat-store/internal/config"
	"github.com/chirino/chat-store/internal/model"
	"github.com/chirino/chat-store/internal/monitoring"
	registrymigrate "github.com/chirino/chat-store/internal/registry/migrate"
	registrystore "github.com/chirino/chat-store/internal/registry/store"
)

func init() {
	for _, d := range []dialect{sqliteDialect, postgresDialect} {
		d := d
		registrystore.Register(registrystore.Plugin{
			Name: d.name,
			Loader: func(ctx context.Context) (registrystore.ChatStore, error) {
				return openStore(ctx, d)
			},
		})
	}
	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &schemaMigrator{}})
}

// Store implements registrystore.ChatStore.
type Store struct {
	db      *gorm.DB
	dialect dialect
	stop    context.CancelFunc
}

var _ registrystore.ChatStore = (*Store)(nil)

func newGormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: gormlogger.New(
			log.StandardLog(log.StandardLogOptions{ForceLevel: log.WarnLevel}),
			gormlogger.Config{
				SlowThreshold:             500 * time.Millisecond,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	}
}

func openDB(cfg *config.Config, d dialect) (*gorm.DB, error) {
	if cfg.DBURL == "" {
		return nil, &registrystore.UnavailableError{Cause: fmt.Errorf("no database url configured for %s", d.name)}
	}
	db, err := gorm.Open(d.open(cfg.DBURL), newGormConfig())
	if err != nil {
		return nil, &registrystore.UnavailableError{Cause: fmt.Errorf("failed to connect to %s: %w", d.name, err)}
	}
	return db, nil
}

// openStore connects to the database described by the config in ctx.
func openStore(ctx context.Context, d dialect) (*Store, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("%s store: no config in context", d.name)
	}
	db, err := openDB(cfg, d)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying db: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	monitoring.SetDBPoolStats(0, cfg.DBMaxOpenConns)

	poolCtx, stop := context.WithCancel(context.Background())
	// Periodically update the open connections gauge.
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-poolCtx.Done():
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				monitoring.SetDBPoolStats(sqlDB.Stats().OpenConnections, cfg.DBMaxOpenConns)
			}
		}
	}()

	return &Store{db: db, dialect: d, stop: stop}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return &registrystore.UnavailableError{Cause: err}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return &registrystore.UnavailableError{Cause: err}
	}
	return nil
}

func (s *Store) Close() error {
	s.stop()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type schemaMigrator struct{}

func (m *schemaMigrator) Name() string { return "chat-store-schema" }

func (m *schemaMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	var d dialect
	switch cfg.DatastoreType {
	case config.DatastoreSQLite, "":
		d = sqliteDialect
	case config.DatastorePostgres:
		d = postgresDialect
	default:
		return nil // not a gorm backed datastore
	}
	log.Info("Running migration", "name", m.Name(), "dialect", d.name)
	db, err := openDB(cfg, d)
	if err != nil {
		return fmt.Errorf("migration: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if _, err := sqlDB.ExecContext(ctx, d.schema); err != nil {
		return fmt.Errorf("migration: failed to execute schema: %w", err)
	}
	log.Info("Schema migration complete", "dialect", d.name)
	return nil
}

// ownerScope restricts a query on conversations to the resolved owner.
func ownerScope(owner model.Owner, prefix string) func(*gorm.DB) *gorm.DB {
	col, val := owner.Column()
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(prefix+col+" = ?", val)
	}
}

func validOwner(owner model.Owner) (model.Owner, error) {
	o, err := owner.Validate()
	if err != nil {
		return o, &registrystore.InvalidArgumentError{Field: "owner", Message: err.Error()}
	}
	return o, nil
}

// touchConversation bumps updated_at after a write to one of its messages.
func touchConversation(tx *gorm.DB, conversationID string, now model.Timestamp) error {
	return tx.Model(&model.Conversation{}).
		Where("id = ?", conversationID).
		Update("updated_at", now).Error
}

// ownedConversation loads a live conversation under owner, or nil.
func ownedConversation(tx *gorm.DB, owner model.Owner, conversationID string) (*model.Conversation, error) {
	var convs []model.Conversation
	err := tx.Scopes(ownerScope(owner, "")).
		Where("id = ? AND deleted_at IS NULL", conversationID).
		Limit(1).
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, nil
	}
	return &convs[0], nil
}
