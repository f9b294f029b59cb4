package session

import (
	"time"

	"github.com/adred-codev/indexer-sessiond/internal/cache"
	"github.com/adred-codev/indexer-sessiond/internal/collaborators"
	"github.com/adred-codev/indexer-sessiond/internal/cost"
)

// newBareManager builds a Manager with just enough state for unit
// tests that exercise caches/groups/registry logic directly, without
// going through config parsing or starting any listener.
func newBareManager() (*Manager, error) {
	limits := cost.Limits{SoftLimit: 1000, HardLimit: 10000, InitialConcurrent: 10}
	return &Manager{
		limits:        limits,
		startTime:     time.Now(),
		sessions:      make(map[uint64]*Session),
		sessionGroups: make(map[uint64][]*SessionGroup),
		groups:        make(map[string]*SessionGroup),
		HistoryCache:  cache.New[string, []collaborators.TxEntry](cache.DefaultCapacity),
		TxHashesCache: cache.New[int32, [][32]byte](cache.DefaultCapacity),
		MerkleCache:   cache.New[int32, *MerkleAccelerator](cache.DefaultCapacity),
		sessionEvent:  make(chan struct{}, 1),
		shutdownCh:    make(chan struct{}),
	}, nil
}

func okTxHashes() cache.Result[[][32]byte] {
	return cache.Ok([][32]byte{{0x01}})
}

func okMerkleAccelerator() cache.Result[*MerkleAccelerator] {
	return cache.Ok(NewMerkleAccelerator([][32]byte{{0x01}, {0x02}}))
}

func okHistory() cache.Result[[]collaborators.TxEntry] {
	return cache.Ok([]collaborators.TxEntry{{Height: 1}})
}
