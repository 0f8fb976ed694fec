package members

import (
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/termgraph-backend/internal/data/repos/components"
	"github.com/yungbote/termgraph-backend/internal/domain"
	"github.com/yungbote/termgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/termgraph-backend/internal/pkg/errors"
	"github.com/yungbote/termgraph-backend/internal/platform/logger"
	"github.com/yungbote/termgraph-backend/internal/vc"
)

// Service manages reference set members saved outside the concept pipeline.
type Service struct {
	vcs          *vc.Service
	branches     vc.Registry
	members      components.MemberRepo
	descriptions components.DescriptionRepo
	types        *TypeRegistry
	log          *logger.Logger

	// OnOwlChange runs inside the commit after OWL axiom members change, so
	// dependent concept state can be brought in line before completion.
	OnOwlChange func(ctx dbctx.Context, commit *vc.Commit, conceptIDs []string) error
}

func NewService(vcs *vc.Service, members components.MemberRepo, descriptions components.DescriptionRepo, types *TypeRegistry, baseLog *logger.Logger) *Service {
	return &Service{
		vcs:          vcs,
		branches:     vcs.Registry(),
		members:      members,
		descriptions: descriptions,
		types:        types,
		log:          baseLog.With("service", "ReferenceSetMember"),
	}
}

func (s *Service) FindMember(ctx dbctx.Context, path, memberID string) (*domain.ReferenceSetMember, error) {
	criteria, err := s.branches.Criteria(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.members.Find(ctx, criteria, memberID)
}

func (s *Service) FindMembers(ctx dbctx.Context, path string, filter components.MemberFilter) ([]*domain.ReferenceSetMember, error) {
	criteria, err := s.branches.Criteria(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.members.FindByFilter(ctx, criteria, filter)
}

// CreateMembers saves new or updated members in one commit.
func (s *Service) CreateMembers(ctx dbctx.Context, path string, incoming []*domain.ReferenceSetMember) ([]*domain.ReferenceSetMember, error) {
	for _, m := range incoming {
		if m.RefsetID == "" || m.ReferencedComponentID == "" {
			return nil, fmt.Errorf("member needs refsetId and referencedComponentId: %w", errors.ErrInvalidArgument)
		}
		if err := s.types.Validate(m); err != nil {
			return nil, err
		}
	}

	commit, err := s.vcs.OpenCommit(ctx, path)
	if err != nil {
		return nil, err
	}
	defer s.vcs.Close(ctx, commit)

	saved, err := s.SaveInCommit(ctx, commit, incoming)
	if err != nil {
		return nil, err
	}
	if err := s.notifyOwlChange(ctx, commit, saved); err != nil {
		return nil, err
	}
	if err := s.vcs.MarkSuccessful(ctx, commit); err != nil {
		return nil, err
	}
	return saved, nil
}

// SaveInCommit applies member write rules inside an open commit: release
// state carried forward, inactive unreleased members removed outright,
// members referencing a missing description dropped with a warning, and the
// owning concept id denormalized onto every member.
func (s *Service) SaveInCommit(ctx dbctx.Context, commit *vc.Commit, incoming []*domain.ReferenceSetMember) ([]*domain.ReferenceSetMember, error) {
	if len(incoming) == 0 {
		return nil, nil
	}
	criteria := commit.Criteria()

	var ids []string
	for _, m := range incoming {
		if m.MemberID == "" {
			m.MemberID = uuid.NewString()
		}
		ids = append(ids, m.MemberID)
	}
	existing, err := s.findExisting(ctx, criteria, ids)
	if err != nil {
		return nil, err
	}

	if err := s.resolveConceptIDs(ctx, criteria, incoming); err != nil {
		return nil, err
	}

	var toSave []*domain.ReferenceSetMember
	for _, m := range incoming {
		if m.ConceptID == "" && domain.IsDescriptionID(m.ReferencedComponentID) {
			s.log.Warn("member references missing description, dropped",
				"member", m.MemberID, "referencedComponent", m.ReferencedComponentID)
			continue
		}
		prev := existing[m.MemberID]
		if prev != nil {
			domain.CopyReleaseDetails(m, prev)
			if !m.IsComponentChanged(prev) {
				continue
			}
			m.MarkChanged()
		} else {
			domain.ClearReleaseDetails(m)
			m.Creating = true
		}
		if !m.Active && !m.Released {
			// Never-released inactive members carry no history worth keeping.
			m.MarkDeleted()
		}
		domain.UpdateEffectiveTime(m)
		toSave = append(toSave, m)
	}

	if err := s.members.SaveBatch(ctx, commit, toSave); err != nil {
		return nil, err
	}
	return toSave, nil
}

func (s *Service) findExisting(ctx dbctx.Context, criteria *vc.BranchCriteria, memberIDs []string) (map[string]*domain.ReferenceSetMember, error) {
	out := map[string]*domain.ReferenceSetMember{}
	for _, id := range memberIDs {
		m, err := s.members.Find(ctx, criteria, id)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		out[id] = m
	}
	return out, nil
}

// resolveConceptIDs fills the denormalized concept back-reference: concepts
// directly, descriptions through a lookup.
func (s *Service) resolveConceptIDs(ctx dbctx.Context, criteria *vc.BranchCriteria, incoming []*domain.ReferenceSetMember) error {
	var descriptionIDs []string
	for _, m := range incoming {
		switch {
		case m.ConceptID != "":
		case domain.IsConceptID(m.ReferencedComponentID):
			m.ConceptID = m.ReferencedComponentID
		case domain.IsDescriptionID(m.ReferencedComponentID):
			descriptionIDs = append(descriptionIDs, m.ReferencedComponentID)
		}
	}
	if len(descriptionIDs) == 0 {
		return nil
	}
	descriptions, err := s.descriptions.FindByIDs(ctx, criteria, descriptionIDs)
	if err != nil {
		return err
	}
	conceptByDescription := map[string]string{}
	for _, d := range descriptions {
		conceptByDescription[d.DescriptionID] = d.ConceptID
	}
	for _, m := range incoming {
		if m.ConceptID == "" && domain.IsDescriptionID(m.ReferencedComponentID) {
			m.ConceptID = conceptByDescription[m.ReferencedComponentID]
		}
	}
	return nil
}

// DeleteMember removes a member. Released members are only removed with
// force.
func (s *Service) DeleteMember(ctx dbctx.Context, path, memberID string, force bool) error {
	criteria, err := s.branches.Criteria(ctx, path)
	if err != nil {
		return err
	}
	member, err := s.members.Find(ctx, criteria, memberID)
	if err != nil {
		return err
	}
	if member.Released && !force {
		return fmt.Errorf("member %s has been released: %w", memberID, errors.ErrConflict)
	}

	commit, err := s.vcs.OpenCommit(ctx, path)
	if err != nil {
		return err
	}
	defer s.vcs.Close(ctx, commit)

	member.MarkDeleted()
	if err := s.members.SaveBatch(ctx, commit, []*domain.ReferenceSetMember{member}); err != nil {
		return err
	}
	if err := s.notifyOwlChange(ctx, commit, []*domain.ReferenceSetMember{member}); err != nil {
		return err
	}
	return s.vcs.MarkSuccessful(ctx, commit)
}

func (s *Service) notifyOwlChange(ctx dbctx.Context, commit *vc.Commit, saved []*domain.ReferenceSetMember) error {
	if s.OnOwlChange == nil {
		return nil
	}
	var conceptIDs []string
	seen := map[string]bool{}
	for _, m := range saved {
		if m.RefsetID == domain.OWLAxiomRefset && !seen[m.ReferencedComponentID] {
			seen[m.ReferencedComponentID] = true
			conceptIDs = append(conceptIDs, m.ReferencedComponentID)
		}
	}
	if len(conceptIDs) == 0 {
		return nil
	}
	return s.OnOwlChange(ctx, commit, conceptIDs)
}

func isNotFound(err error) bool {
	return stderrors.Is(err, errors.ErrNotFound)
}
