package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	boltdb "github.com/andrew-solarstorm/bolt-db"
	"github.com/bytedance/sonic"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/ledger-orchestrator/internal/common"
	"github.com/hxuan190/ledger-orchestrator/internal/domain"
)

const (
	TablesBucket = "lookup_tables"
	RoutesBucket = "routes"

	DefaultDBPath = "./data/lookup-tables.db"
)

// StoredTable is the persisted handle of a signer's lookup table.
type StoredTable struct {
	Address   string `json:"address"`
	Authority string `json:"authority"`
	Slot      uint64 `json:"slot"`
	Addresses int    `json:"addresses"`
	CreatedAt int64  `json:"createdAt"`
}

func (t *StoredTable) PublicKey() (solana.PublicKey, error) {
	return solana.PublicKeyFromBase58(t.Address)
}

// Storage is a bolt file holding lookup-table handles and resolved pool
// routes. Writes are serialized so a read-then-write from two flows in one
// process sees a consistent bucket.
type Storage struct {
	mu     sync.Mutex
	db     *boltdb.BoltDatabase
	dbPath string
}

func NewStorage(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db := boltdb.NewBoltDatabase(dbPath)
	if db == nil {
		return nil, fmt.Errorf("failed to open database at %s", dbPath)
	}

	log.Info().Str("path", dbPath).Msg("[Storage] opened database")

	return &Storage{
		db:     db,
		dbPath: dbPath,
	}, nil
}

func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func tableKey(signer solana.PublicKey) []byte {
	return []byte(common.LookupTableKeyPrefix + signer.String())
}

// Table returns the handle persisted for signer, nil when there is none.
func (s *Storage) Table(signer solana.PublicKey) (*StoredTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.db.List(TablesBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	raw, ok := data[string(tableKey(signer))]
	if !ok || len(raw) == 0 {
		return nil, nil
	}

	var stored StoredTable
	if err := sonic.Unmarshal(raw, &stored); err != nil {
		log.Warn().Str("signer", signer.String()).Err(err).Msg("[Storage] corrupt table handle, ignoring")
		return nil, nil
	}
	return &stored, nil
}

func (s *Storage) SaveTable(signer solana.PublicKey, table *StoredTable) error {
	data, err := sonic.Marshal(table)
	if err != nil {
		return fmt.Errorf("failed to marshal table: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Set(TablesBucket, tableKey(signer), data)
}

// DeleteTable clears the handle. An empty value reads back as absent.
func (s *Storage) DeleteTable(signer solana.PublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Set(TablesBucket, tableKey(signer), []byte{})
}

func (s *Storage) SaveRoutes(routes []domain.PoolRouteDescriptor) error {
	if len(routes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	for _, route := range routes {
		data, err := sonic.Marshal(route)
		if err != nil {
			return fmt.Errorf("failed to marshal route %s: %w", route.Pool, err)
		}

		value := data
		op := &boltdb.WriteOperation{
			Bucket: []byte(RoutesBucket),
			Key:    []byte(route.Pool.String()),
			Value:  &value,
			Op:     boltdb.OpSet,
		}
		if err := batch.Add(op); err != nil {
			return fmt.Errorf("failed to add route %s to batch: %w", route.Pool, err)
		}
	}

	if err := batch.Execute(); err != nil {
		log.Error().Err(err).Int("count", len(routes)).Msg("[Storage] failed to execute route batch")
		return err
	}

	log.Info().Int("count", len(routes)).Msg("[Storage] saved routes")
	return nil
}

func (s *Storage) LoadRoutes() ([]domain.PoolRouteDescriptor, error) {
	s.mu.Lock()
	data, err := s.db.List(RoutesBucket)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}

	routes := make([]domain.PoolRouteDescriptor, 0, len(data))
	for pool, value := range data {
		var route domain.PoolRouteDescriptor
		if err := sonic.Unmarshal(value, &route); err != nil {
			log.Warn().Str("pool", pool).Err(err).Msg("[Storage] failed to unmarshal route, skipping")
			continue
		}
		routes = append(routes, route)
	}

	log.Info().Int("loaded", len(routes)).Msg("[Storage] route loading completed")
	return routes, nil
}
