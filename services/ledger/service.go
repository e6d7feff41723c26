package ledger

import (
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/stopthephish/phishwatch/interfaces"
	"github.com/stopthephish/phishwatch/internal/logger"
	"github.com/stopthephish/phishwatch/internal/utils"
)

// ledgerFile is the on-disk shape of the processed set.
type ledgerFile struct {
	ProcessedUIDs []uint32 `json:"processed_uids"`
}

type ledgerService struct {
	path string
	log  logger.Logger

	mu   sync.Mutex
	uids map[uint32]struct{}
}

// NewLedgerService loads the processed set from path. A missing file starts
// empty. A corrupt file also starts empty, with a warning: losing the ledger
// only risks duplicate notifications, never dropped messages.
func NewLedgerService(path string, log logger.Logger) interfaces.ProcessedLedger {
	s := &ledgerService{
		path: path,
		log:  log,
		uids: make(map[uint32]struct{}),
	}
	s.load()
	return s
}

func (s *ledgerService) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warnf("Unable to read processed ledger %s, starting empty: %v", s.path, err)
		}
		return
	}

	var file ledgerFile
	if err := json.Unmarshal(data, &file); err != nil {
		s.log.Warnf("Processed ledger %s is corrupt, starting empty: %v", s.path, err)
		return
	}

	for _, uid := range file.ProcessedUIDs {
		s.uids[uid] = struct{}{}
	}
}

func (s *ledgerService) IsProcessed(uid uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.uids[uid]
	return ok
}

func (s *ledgerService) MarkProcessed(uid uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.uids[uid]; ok {
		return nil
	}

	s.uids[uid] = struct{}{}
	if err := s.save(); err != nil {
		// Keep the in-memory entry; the next successful save picks it up
		return errors.Wrapf(err, "persist processed uid %d", uid)
	}
	return nil
}

func (s *ledgerService) Prune(currentUnseen []uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := make(map[uint32]struct{}, len(currentUnseen))
	for _, uid := range currentUnseen {
		live[uid] = struct{}{}
	}

	removed := 0
	for uid := range s.uids {
		if _, ok := live[uid]; !ok {
			delete(s.uids, uid)
			removed++
		}
	}

	if removed == 0 {
		return
	}

	s.log.Debugf("Pruned %d stale entries from processed ledger", removed)
	if err := s.save(); err != nil {
		s.log.Warnf("Unable to persist pruned ledger: %v", err)
	}
}

func (s *ledgerService) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.uids)
}

// save writes the current set atomically. Callers hold s.mu.
func (s *ledgerService) save() error {
	uids := make([]uint32, 0, len(s.uids))
	for uid := range s.uids {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	data, err := json.Marshal(ledgerFile{ProcessedUIDs: uids})
	if err != nil {
		return err
	}

	return utils.WriteFileAtomic(s.path, data, 0o644)
}
