package service

import (
	"context"
	"sort"
	"strings"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/xid"
)

func (s *Service) Business(ctx context.Context) (domain.Business, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Business{}, err
	}
	business, err := s.business(ctx, actor)
	if err != nil {
		return domain.Business{}, err
	}
	return *business, nil
}

func (s *Service) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.business(ctx, actor); err != nil {
		return nil, err
	}
	branches, err := s.repo.ListBranches(ctx, actor.BusinessID)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleOwner {
		for _, b := range branches {
			if b.ID == actor.BranchID {
				return []domain.Branch{b}, nil
			}
		}
		return []domain.Branch{}, nil
	}
	return branches, nil
}

func (s *Service) CreateBranch(ctx context.Context, req domain.BranchCreateRequest) (domain.Branch, error) {
	actor, err := requireOwner(ctx)
	if err != nil {
		return domain.Branch{}, err
	}
	if _, err := s.business(ctx, actor); err != nil {
		return domain.Branch{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Branch{}, invalidf("branch name is required")
	}
	existing, err := s.repo.ListBranches(ctx, actor.BusinessID)
	if err != nil {
		return domain.Branch{}, err
	}
	for _, b := range existing {
		if strings.EqualFold(b.Name, name) {
			return domain.Branch{}, invalidf("branch %q already exists", name)
		}
	}

	created, err := s.repo.CreateBranch(ctx, domain.Branch{
		ID:         xid.New("br"),
		BusinessID: actor.BusinessID,
		Name:       name,
		Address:    strings.TrimSpace(req.Address),
		Active:     true,
		CreatedAt:  s.now().UTC(),
	})
	if err != nil {
		return domain.Branch{}, err
	}
	s.logAudit(ctx, "branch_create", "branch", created.ID)
	return *created, nil
}

// branch looks up a branch of the actor's business.
func (s *Service) branch(ctx context.Context, businessID string, branchID string) (domain.Branch, error) {
	branches, err := s.repo.ListBranches(ctx, businessID)
	if err != nil {
		return domain.Branch{}, err
	}
	for _, b := range branches {
		if b.ID == branchID {
			return b, nil
		}
	}
	return domain.Branch{}, ErrSetupRequired
}

func (s *Service) branchNames(ctx context.Context, businessID string) (map[string]string, error) {
	branches, err := s.repo.ListBranches(ctx, businessID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(branches))
	for _, b := range branches {
		names[b.ID] = b.Name
	}
	return names, nil
}

func (s *Service) ListEmployees(ctx context.Context) ([]domain.UserAccount, error) {
	actor, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.repo.ListUsers(ctx, actor.BusinessID)
	if err != nil {
		return nil, err
	}
	employees := make([]domain.UserAccount, 0, len(users))
	for _, u := range users {
		if u.Role == domain.RoleEmployee {
			employees = append(employees, u)
		}
	}
	sort.Slice(employees, func(i, j int) bool { return employees[i].Email < employees[j].Email })
	return employees, nil
}
