// internal/store/leveldb/client.go
package leveldb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fawad-mazhar/flowstate/internal/config"
	"github.com/fawad-mazhar/flowstate/internal/models"
	"github.com/fawad-mazhar/flowstate/internal/store"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const runKeyPrefix = "run:"

func runKey(runID string) []byte {
	return []byte(fmt.Sprintf("%s%s", runKeyPrefix, runID))
}

// Client is an embedded, single-process JobStore backed by LevelDB. The
// compare-and-swap contract is enforced under a process-wide mutex against
// the persisted version counter, which is sufficient because LevelDB
// permits exactly one opener per database directory.
type Client struct {
	db    *leveldb.DB
	mutex sync.Mutex
}

// NewClient opens (or creates) the LevelDB database at the configured path
func NewClient(cfg config.LevelDBConfig) (*Client, error) {
	opts := &opt.Options{
		CompactionTableSize: 2 * 1024 * 1024, // 2MB
		WriteBuffer:         1 * 1024 * 1024, // 1MB
	}

	db, err := leveldb.OpenFile(cfg.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb: %w", err)
	}

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

// CreateRun persists a fresh run at version 1
func (c *Client) CreateRun(ctx context.Context, run *models.RunState) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	key := runKey(run.ID)
	exists, err := c.db.Has(key, nil)
	if err != nil {
		return fmt.Errorf("failed to check run existence: %w", err)
	}
	if exists {
		return store.ErrAlreadyExists
	}

	run.Version = 1
	run.UpdatedAt = time.Now().UTC()
	data, err := run.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	return c.db.Put(key, data, nil)
}

// GetRun loads the latest persisted state of a run
func (c *Client) GetRun(ctx context.Context, runID string) (*models.RunState, error) {
	data, err := c.db.Get(runKey(runID), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	var run models.RunState
	if err := run.FromJSON(data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}

// CompareAndSwap writes the run only if the stored version is unchanged
func (c *Client) CompareAndSwap(ctx context.Context, run *models.RunState) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	current, err := c.GetRun(ctx, run.ID)
	if err != nil {
		return err
	}
	if current.Version != run.Version {
		return store.ErrVersionConflict
	}

	run.Version++
	run.UpdatedAt = time.Now().UTC()
	data, err := run.ToJSON()
	if err != nil {
		run.Version--
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	if err := c.db.Put(runKey(run.ID), data, nil); err != nil {
		run.Version--
		return err
	}
	return nil
}

// ListActive returns every run still in RUNNING status
func (c *Client) ListActive(ctx context.Context) ([]*models.RunState, error) {
	iter := c.db.NewIterator(util.BytesPrefix([]byte(runKeyPrefix)), nil)
	defer iter.Release()

	var runs []*models.RunState
	for iter.Next() {
		var run models.RunState
		if err := run.FromJSON(iter.Value()); err != nil {
			continue
		}
		if run.Status == models.RunStatusRunning {
			runs = append(runs, &run)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}
