package ident

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/yungbote/termgraph-backend/internal/pkg/errors"
	"github.com/yungbote/termgraph-backend/internal/platform/logger"
)

// Partition identifiers for the international namespace, short format.
const (
	ConceptPartition      = "00"
	DescriptionPartition  = "01"
	RelationshipPartition = "02"
)

// Source hands out SCTIDs for new components. An external identifier service
// can be plugged in behind this interface; the local source below is used
// when none is configured.
type Source interface {
	ReserveConceptIDs(ctx context.Context, count int) ([]string, error)
	ReserveDescriptionIDs(ctx context.Context, count int) ([]string, error)
	ReserveRelationshipIDs(ctx context.Context, count int) ([]string, error)
	// ConfirmRegistered marks reserved ids as used once their commit has
	// completed.
	ConfirmRegistered(ctx context.Context, ids []string) error
}

// LocalSource generates sequential item numbers and appends the partition and
// check digits. Good for tests and single-node deployments.
type LocalSource struct {
	mu   sync.Mutex
	next int64
	log  *logger.Logger
}

func NewLocalSource(start int64, baseLog *logger.Logger) *LocalSource {
	if start < 100 {
		start = 100
	}
	return &LocalSource{next: start, log: baseLog.With("service", "LocalIdentifierSource")}
}

func (s *LocalSource) ReserveConceptIDs(ctx context.Context, count int) ([]string, error) {
	return s.reserve(ctx, ConceptPartition, count)
}

func (s *LocalSource) ReserveDescriptionIDs(ctx context.Context, count int) ([]string, error) {
	return s.reserve(ctx, DescriptionPartition, count)
}

func (s *LocalSource) ReserveRelationshipIDs(ctx context.Context, count int) ([]string, error) {
	return s.reserve(ctx, RelationshipPartition, count)
}

func (s *LocalSource) ConfirmRegistered(ctx context.Context, ids []string) error {
	s.log.Debug("ids registered", "count", len(ids))
	return nil
}

func (s *LocalSource) reserve(ctx context.Context, partition string, count int) ([]string, error) {
	if count < 0 {
		return nil, fmt.Errorf("reserve count %d: %w", count, errors.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		body := strconv.FormatInt(s.next, 10) + partition
		s.next++
		check, _ := CheckDigit(body)
		out = append(out, body+string(check))
	}
	return out, nil
}

// Validate checks the length, digit content, partition and check digit of an
// SCTID.
func Validate(sctid, partition string) error {
	if len(sctid) < 6 || len(sctid) > 18 {
		return fmt.Errorf("sctid %q length: %w", sctid, errors.ErrInvalidArgument)
	}
	if sctid[0] == '0' {
		return fmt.Errorf("sctid %q leading zero: %w", sctid, errors.ErrInvalidArgument)
	}
	if got := sctid[len(sctid)-3 : len(sctid)-1]; got != partition {
		return fmt.Errorf("sctid %q partition %s, want %s: %w", sctid, got, partition, errors.ErrInvalidArgument)
	}
	if !Verify(sctid) {
		return fmt.Errorf("sctid %q check digit: %w", sctid, errors.ErrInvalidArgument)
	}
	return nil
}
