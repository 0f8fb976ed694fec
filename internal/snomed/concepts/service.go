package concepts

import (
	stderrors "errors"
	"fmt"

	"github.com/yungbote/termgraph-backend/internal/data/repos/components"
	"github.com/yungbote/termgraph-backend/internal/domain"
	"github.com/yungbote/termgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/termgraph-backend/internal/pkg/errors"
	"github.com/yungbote/termgraph-backend/internal/platform/logger"
	"github.com/yungbote/termgraph-backend/internal/snomed/ident"
	"github.com/yungbote/termgraph-backend/internal/vc"
)

// Service is the authoring entry point for concepts and everything hanging
// off them.
type Service struct {
	vcs           *vc.Service
	branches      vc.Registry
	concepts      components.ConceptRepo
	descriptions  components.DescriptionRepo
	relationships components.RelationshipRepo
	members       components.MemberRepo
	identifiers   ident.Source
	log           *logger.Logger
}

func NewService(
	vcs *vc.Service,
	concepts components.ConceptRepo,
	descriptions components.DescriptionRepo,
	relationships components.RelationshipRepo,
	members components.MemberRepo,
	identifiers ident.Source,
	baseLog *logger.Logger,
) *Service {
	return &Service{
		vcs:           vcs,
		branches:      vcs.Registry(),
		concepts:      concepts,
		descriptions:  descriptions,
		relationships: relationships,
		members:       members,
		identifiers:   identifiers,
		log:           baseLog.With("service", "Concept"),
	}
}

// Find loads the full authoring view of one concept.
func (s *Service) Find(ctx dbctx.Context, path, conceptID string) (*domain.Concept, error) {
	criteria, err := s.branches.Criteria(ctx, path)
	if err != nil {
		return nil, err
	}
	views, err := s.loadConceptViews(ctx, criteria, []string{conceptID})
	if err != nil {
		return nil, err
	}
	concept, ok := views[conceptID]
	if !ok {
		return nil, fmt.Errorf("concept %s on %s: %w", conceptID, path, errors.ErrNotFound)
	}
	return concept, nil
}

func (s *Service) FindByIDs(ctx dbctx.Context, path string, conceptIDs []string) (map[string]*domain.Concept, error) {
	criteria, err := s.branches.Criteria(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.loadConceptViews(ctx, criteria, conceptIDs)
}

// Create saves a new concept. The concept id, when supplied, must not exist
// on the branch.
func (s *Service) Create(ctx dbctx.Context, path string, concept *domain.Concept) (*domain.Concept, error) {
	if concept.ConceptID != "" {
		_, err := s.Find(ctx, path, concept.ConceptID)
		if err == nil {
			return nil, fmt.Errorf("concept %s already exists on %s: %w", concept.ConceptID, path, errors.ErrConflict)
		}
		if !stderrors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
	}
	saved, err := s.CreateUpdate(ctx, path, []*domain.Concept{concept})
	if err != nil {
		return nil, err
	}
	return saved[0], nil
}

// Update saves changes to an existing concept.
func (s *Service) Update(ctx dbctx.Context, path string, concept *domain.Concept) (*domain.Concept, error) {
	if concept.ConceptID == "" {
		return nil, fmt.Errorf("concept id required for update: %w", errors.ErrInvalidArgument)
	}
	if _, err := s.Find(ctx, path, concept.ConceptID); err != nil {
		return nil, err
	}
	saved, err := s.CreateUpdate(ctx, path, []*domain.Concept{concept})
	if err != nil {
		return nil, err
	}
	return saved[0], nil
}

// CreateUpdate runs the update pipeline for a batch of concepts in one
// commit.
func (s *Service) CreateUpdate(ctx dbctx.Context, path string, incoming []*domain.Concept) ([]*domain.Concept, error) {
	if len(incoming) == 0 {
		return nil, nil
	}
	commit, err := s.vcs.OpenCommit(ctx, path)
	if err != nil {
		return nil, err
	}
	defer s.vcs.Close(ctx, commit)

	saved, err := s.saveConceptsInCommit(ctx, commit, incoming)
	if err != nil {
		return nil, err
	}
	if err := s.vcs.MarkSuccessful(ctx, commit); err != nil {
		return nil, err
	}
	s.log.Info("concepts saved", "path", path, "count", len(saved))
	return saved, nil
}

// Delete removes a concept and all its children from the branch. Released
// concepts are only removed with force.
func (s *Service) Delete(ctx dbctx.Context, path, conceptID string, force bool) error {
	concept, err := s.Find(ctx, path, conceptID)
	if err != nil {
		return err
	}
	if concept.Released && !force {
		return fmt.Errorf("concept %s has been released: %w", conceptID, errors.ErrConflict)
	}

	commit, err := s.vcs.OpenCommit(ctx, path)
	if err != nil {
		return err
	}
	defer s.vcs.Close(ctx, commit)

	concept.MarkDeleted()
	for _, d := range concept.Descriptions {
		d.MarkDeleted()
	}
	for _, r := range concept.Relationships {
		r.MarkDeleted()
	}
	var memberRows []*domain.ReferenceSetMember
	for _, m := range concept.AllOwlAxiomMembers() {
		m.MarkDeleted()
		memberRows = append(memberRows, m)
	}

	if err := s.concepts.SaveBatch(ctx, commit, []*domain.Concept{concept}); err != nil {
		return err
	}
	if err := s.descriptions.SaveBatch(ctx, commit, concept.Descriptions); err != nil {
		return err
	}
	if err := s.relationships.SaveBatch(ctx, commit, concept.Relationships); err != nil {
		return err
	}
	if err := s.members.SaveBatch(ctx, commit, memberRows); err != nil {
		return err
	}
	if err := s.cascadeMemberDeletion(ctx, commit); err != nil {
		return err
	}
	if err := s.vcs.MarkSuccessful(ctx, commit); err != nil {
		return err
	}
	s.log.Info("concept deleted", "path", path, "concept", conceptID)
	return nil
}
